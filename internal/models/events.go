package models

import "time"

// Event types
const (
	EventTypeOrderCommitted            = "ORDER_COMMITTED"
	EventTypePaymentVerified           = "PAYMENT_VERIFIED"
	EventTypePaymentVerificationFailed = "PAYMENT_VERIFICATION_FAILED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderCommittedEvent published when the backend accepted an order
type OrderCommittedEvent struct {
	BaseEvent
	SessionID   string `json:"session_id"`
	OrderID     int64  `json:"order_id"`
	OrderNo     string `json:"order_no"`
	PaymentTerm string `json:"payment_term"`
	TotalAmount int64  `json:"total_amount"`
	ItemCount   int    `json:"item_count"`
}

// PaymentVerifiedEvent published when a bank transfer matched.
// CommitError is non-empty when the order could not be created afterwards.
type PaymentVerifiedEvent struct {
	BaseEvent
	VerificationID string  `json:"verification_id"`
	SessionID      string  `json:"session_id"`
	Reference      string  `json:"reference"`
	ExpectedAmount int64   `json:"expected_amount"`
	PaidAmount     float64 `json:"paid_amount"`
	Description    string  `json:"description"`
	OrderNo        string  `json:"order_no,omitempty"`
	CommitError    string  `json:"commit_error,omitempty"`
}

// PaymentVerificationFailedEvent published when the verification window elapsed
type PaymentVerificationFailedEvent struct {
	BaseEvent
	VerificationID string `json:"verification_id"`
	SessionID      string `json:"session_id"`
	Reference      string `json:"reference"`
	ExpectedAmount int64  `json:"expected_amount"`
	LastError      string `json:"last_error,omitempty"`
}
