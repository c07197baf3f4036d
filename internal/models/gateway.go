package models

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// VerificationOutcome is the gateway's view of a previously initiated payment.
type VerificationOutcome string

const (
	OutcomeCompleted VerificationOutcome = "completed"
	OutcomeFailed    VerificationOutcome = "failed"
	OutcomePending   VerificationOutcome = "pending"
)

type GatewayPaymentRequest struct {
	OrderID       string
	PaymentID     string
	Amount        decimal.Decimal
	Currency      string
	PhoneNumber   string
	CustomerID    string
	CustomerName  string
	CustomerEmail string
	Operator      string
	Country       string
	ReturnURL     string
	WebhookURL    string
}

type GatewayPaymentResponse struct {
	Success       bool
	TransactionID string
	PaymentURL    string
	Message       string
	Raw           json.RawMessage
}

type GatewayVerification struct {
	TransactionID string
	Outcome       VerificationOutcome
	Message       string
	Raw           json.RawMessage
}
