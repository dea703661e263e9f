package domain

import "strings"

type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
	SideBuy   Side = "BUY"
	SideSell  Side = "SELL"
)

// IsBuy reports whether the side opens or adds in the buy direction.
func (s Side) IsBuy() bool {
	switch Side(strings.ToUpper(string(s))) {
	case SideLong, SideBuy:
		return true
	}
	return false
}

// Valid reports whether s is one of the known sides.
func (s Side) Valid() bool {
	switch Side(strings.ToUpper(string(s))) {
	case SideLong, SideShort, SideBuy, SideSell:
		return true
	}
	return false
}

type MarginType string

const (
	MarginCrossed  MarginType = "CROSSED"
	MarginIsolated MarginType = "ISOLATED"
)

// ExitPlan is the source agent's own protection levels for a position.
type ExitPlan struct {
	ProfitTarget float64 `json:"profit_target"`
	StopLoss     float64 `json:"stop_loss"`
}

// SourcePosition is a snapshot of the followed agent's position.
type SourcePosition struct {
	Symbol       string   `json:"symbol"`
	EntryPrice   float64  `json:"entry_price"`
	CurrentPrice float64  `json:"current_price"`
	Quantity     float64  `json:"quantity"`
	Leverage     float64  `json:"leverage"`
	EntryOID     string   `json:"entry_oid"`
	ExitPlan     ExitPlan `json:"exit_plan"`
}
