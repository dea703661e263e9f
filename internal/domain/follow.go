package domain

import "fmt"

type Action string

const (
	ActionEnter  Action = "ENTER"
	ActionExit   Action = "EXIT"
	ActionAdjust Action = "ADJUST"
)

// FollowPlan is a detected change on the followed agent's account.
type FollowPlan struct {
	Agent          string          `json:"agent"`
	Symbol         string          `json:"symbol"`
	Action         Action          `json:"action"`
	Side           Side            `json:"side"`
	Type           OrderType       `json:"type"`
	Quantity       float64         `json:"quantity"`
	Leverage       float64         `json:"leverage"`
	EntryPrice     float64         `json:"entryPrice,omitempty"`
	ExitPrice      float64         `json:"exitPrice,omitempty"`
	ReleasedMargin float64         `json:"releasedMargin,omitempty"`
	Position       *SourcePosition `json:"position,omitempty"`
	Reason         string          `json:"reason"`
	MarginType     MarginType      `json:"marginType"`
	Timestamp      int64           `json:"timestamp"`
}

// SourceOrderID returns the source agent's order id, or "" when the plan
// carries no position snapshot.
func (p FollowPlan) SourceOrderID() string {
	if p.Position == nil {
		return ""
	}
	return p.Position.EntryOID
}

// CurrentPrice returns the source position's current price, or 0.
func (p FollowPlan) CurrentPrice() float64 {
	if p.Position == nil {
		return 0
	}
	return p.Position.CurrentPrice
}

// Bracketed reports whether the plan must be executed with stop orders.
func (p FollowPlan) Bracketed() bool {
	return p.Action == ActionEnter && p.Position != nil
}

// LockKey identifies plans that must not be processed concurrently.
func (p FollowPlan) LockKey() string {
	return fmt.Sprintf("%s|%s", p.Agent, p.Symbol)
}

func (p FollowPlan) Validate() error {
	if p.Symbol == "" {
		return fmt.Errorf("follow plan: empty symbol")
	}
	switch p.Action {
	case ActionEnter, ActionExit, ActionAdjust:
	default:
		return fmt.Errorf("follow plan %s: unknown action %q", p.Symbol, p.Action)
	}
	if !p.Side.Valid() {
		return fmt.Errorf("follow plan %s: unknown side %q", p.Symbol, p.Side)
	}
	return nil
}
