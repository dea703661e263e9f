package domain

type OutcomeStatus string

const (
	// StatusExecuted: order placed, and recorded when a record was due.
	StatusExecuted OutcomeStatus = "EXECUTED"
	// StatusExecutedNotRecorded: order placed, a recording precondition was missing.
	StatusExecutedNotRecorded OutcomeStatus = "EXECUTED_NOT_RECORDED"
	// StatusExecutedLedgerFailed: order placed, the ledger write failed.
	StatusExecutedLedgerFailed OutcomeStatus = "EXECUTED_LEDGER_FAILED"
	// StatusExecutedDuplicate: order placed, the ledger already held the source id.
	StatusExecutedDuplicate OutcomeStatus = "EXECUTED_DUPLICATE"
	// StatusAlreadyHandled: skipped, the source id was recorded before.
	StatusAlreadyHandled OutcomeStatus = "ALREADY_HANDLED"
	StatusRiskRejected   OutcomeStatus = "RISK_REJECTED"
	StatusRiskOnly       OutcomeStatus = "RISK_ONLY"
	StatusFailed         OutcomeStatus = "FAILED"
	StatusCancelled      OutcomeStatus = "CANCELLED"
	StatusInvalid        OutcomeStatus = "INVALID"
)

// Executed reports whether an order reached the exchange.
func (s OutcomeStatus) Executed() bool {
	switch s {
	case StatusExecuted, StatusExecutedNotRecorded, StatusExecutedLedgerFailed, StatusExecutedDuplicate:
		return true
	}
	return false
}

// Failed reports whether the status is an error for the caller.
func (s OutcomeStatus) Failed() bool {
	return s == StatusFailed || s == StatusExecutedLedgerFailed || s == StatusInvalid
}

type SizingMethod string

const (
	SizingMarginFraction SizingMethod = "margin_fraction"
	SizingReleasedMargin SizingMethod = "released_margin"
	SizingUnchanged      SizingMethod = "unchanged"
)

// SizingReport describes how a plan's quantity was derived.
type SizingReport struct {
	Method         SizingMethod `json:"method"`
	OriginalQty    float64      `json:"originalQty"`
	Quantity       float64      `json:"quantity"`
	MarginToUse    float64      `json:"marginToUse,omitempty"`
	Price          float64      `json:"price,omitempty"`
	Lot            LotSizeRule  `json:"lot"`
	LotDefaulted   bool         `json:"lotDefaulted,omitempty"`
	Clamped        bool         `json:"clamped,omitempty"`
	OvershootRatio float64      `json:"overshootRatio,omitempty"`
	Rejected       bool         `json:"rejected,omitempty"`
	Fallback       string       `json:"fallback,omitempty"`
}

// Outcome is the terminal result of processing one follow plan.
type Outcome struct {
	PlanID        string          `json:"planId"`
	Agent         string          `json:"agent"`
	Symbol        string          `json:"symbol"`
	Action        Action          `json:"action"`
	SourceOrderID string          `json:"sourceOrderId,omitempty"`
	Status        OutcomeStatus   `json:"status"`
	Bracketed     bool            `json:"bracketed"`
	Quantity      float64         `json:"quantity"`
	Sizing        SizingReport    `json:"sizing"`
	Risk          RiskAssessment  `json:"risk"`
	Result        ExecutionResult `json:"result"`
	Warnings      []string        `json:"warnings,omitempty"`
	Error         string          `json:"error,omitempty"`
}
