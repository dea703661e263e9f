package domain

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	FilterLotSize     = "LOT_SIZE"
	FilterPriceFilter = "PRICE_FILTER"

	DefaultMinQty   = 0.001
	DefaultStepSize = 0.001
)

type AccountInfo struct {
	AvailableBalance string `json:"availableBalance"`
}

// Available parses the available balance.
func (a AccountInfo) Available() (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(a.AvailableBalance), 64)
	if err != nil {
		return 0, fmt.Errorf("parse available balance %q: %w", a.AvailableBalance, err)
	}
	return v, nil
}

type SymbolFilter struct {
	FilterType string `json:"filterType"`
	MinQty     string `json:"minQty,omitempty"`
	StepSize   string `json:"stepSize,omitempty"`
	TickSize   string `json:"tickSize,omitempty"`
}

type SymbolInfo struct {
	Symbol  string         `json:"symbol"`
	Filters []SymbolFilter `json:"filters"`
}

// Filter returns the first filter of the given type.
func (s *SymbolInfo) Filter(filterType string) (SymbolFilter, bool) {
	if s == nil {
		return SymbolFilter{}, false
	}
	for _, f := range s.Filters {
		if f.FilterType == filterType {
			return f, true
		}
	}
	return SymbolFilter{}, false
}

// Ticker24h carries the fields of a 24h ticker the engine reads.
type Ticker24h struct {
	Symbol    string `json:"symbol"`
	LastPrice string `json:"lastPrice,omitempty"`
	Price     string `json:"price,omitempty"`
}

// LotSizeRule is the exchange quantity constraint for a symbol.
type LotSizeRule struct {
	MinQty    float64 `json:"minQty"`
	StepSize  float64 `json:"stepSize"`
	Defaulted bool    `json:"-"`
}

func DefaultLotSizeRule() LotSizeRule {
	return LotSizeRule{MinQty: DefaultMinQty, StepSize: DefaultStepSize, Defaulted: true}
}
