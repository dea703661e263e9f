package domain

import (
	"fmt"
	"strconv"

	"github.com/google/uuid"
)

type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
)

// clientOrderNamespace scopes client order ids generated by this bot.
var clientOrderNamespace = uuid.MustParse("6f1c7d2e-5b0a-4f4e-9a53-2f3b8c1d9e71")

// TradingPlan is the follower's own order intent.
type TradingPlan struct {
	ID            string     `json:"id"`
	ClientOrderID string     `json:"clientOrderId"`
	Action        Action     `json:"action"`
	Symbol        string     `json:"symbol"`
	Side          Side       `json:"side"`
	Type          OrderType  `json:"type"`
	Quantity      float64    `json:"quantity"`
	Leverage      float64    `json:"leverage"`
	MarginType    MarginType `json:"marginType"`
	ReduceOnly    bool       `json:"reduceOnly"`
	Price         float64    `json:"price,omitempty"`
	Timestamp     int64      `json:"timestamp"`
}

// NewTradingPlan derives the follower order intent from a follow plan.
// An entry's client order id is keyed on the source order id alone, so every
// retry of it carries the same id. Exits and adjustments on that position add
// their own timestamp, since one position sees many of them.
func NewTradingPlan(p FollowPlan) TradingPlan {
	orderType := p.Type
	if orderType == "" {
		orderType = OrderTypeMarket
	}
	marginType := p.MarginType
	if marginType == "" {
		marginType = MarginCrossed
	}
	id := fmt.Sprintf("%s_%s_%d", p.Agent, p.Symbol, p.Timestamp)
	clientID := ClientOrderID(id, string(p.Action))
	if oid := p.SourceOrderID(); oid != "" {
		if p.Action == ActionEnter {
			clientID = ClientOrderID("oid:"+oid, string(p.Action))
		} else {
			clientID = ClientOrderID("oid:"+oid, string(p.Action), strconv.FormatInt(p.Timestamp, 10))
		}
	}
	return TradingPlan{
		ID:            id,
		Action:        p.Action,
		ClientOrderID: clientID,
		Symbol:        p.Symbol,
		Side:          p.Side,
		Type:          orderType,
		Quantity:      p.Quantity,
		Leverage:      p.Leverage,
		MarginType:    marginType,
		ReduceOnly:    p.Action == ActionExit,
		Price:         p.EntryPrice,
		Timestamp:     p.Timestamp,
	}
}

// ClientOrderID returns a deterministic exchange client order id for key.
// The parts distinguish orders derived from the same key, such as the legs
// of a bracket.
func ClientOrderID(key string, parts ...string) string {
	name := key
	for _, p := range parts {
		name += "|" + p
	}
	return uuid.NewSHA1(clientOrderNamespace, []byte(name)).String()
}

// LeverageInt returns the leverage as a whole multiplier, at least 1.
func (p TradingPlan) LeverageInt() int {
	if p.Leverage < 1 {
		return 1
	}
	return int(p.Leverage)
}

// ExecutionResult is the outcome of submitting a trading plan.
type ExecutionResult struct {
	Success           bool   `json:"success"`
	OrderID           string `json:"orderId,omitempty"`
	TakeProfitOrderID string `json:"takeProfitOrderId,omitempty"`
	StopLossOrderID   string `json:"stopLossOrderId,omitempty"`
	Error             string `json:"error,omitempty"`
}
