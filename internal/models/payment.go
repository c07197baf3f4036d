package models

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	StatusPending   PaymentStatus = "pending"
	StatusCompleted PaymentStatus = "completed"
	StatusFailed    PaymentStatus = "failed"
	StatusExpired   PaymentStatus = "expired"
)

var ErrPaymentNotFound = errors.New("payment not found")

// IsTerminal reports whether the status can no longer change.
func (s PaymentStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusExpired
}

func (s PaymentStatus) Valid() bool {
	return s == StatusPending || s.IsTerminal()
}

// CanTransition allows only pending -> terminal moves.
func CanTransition(from, to PaymentStatus) bool {
	return from == StatusPending && to.IsTerminal()
}

type MobileMoneyPayment struct {
	ID                    string          `json:"id"`
	OrderID               string          `json:"order_id"`
	Amount                decimal.Decimal `json:"amount"`
	Currency              string          `json:"currency"`
	Operator              string          `json:"operator"`
	Country               string          `json:"country"`
	PhoneNumber           string          `json:"phone_number"`
	GatewayProvider       string          `json:"gateway_provider"`
	GatewayTransactionID  string          `json:"gateway_transaction_id,omitempty"`
	GatewayResponse       json.RawMessage `json:"gateway_response,omitempty"`
	FailureReason         string          `json:"failure_reason,omitempty"`
	Status                PaymentStatus   `json:"status"`
	CreatedAt             time.Time       `json:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at"`
	CompletedAt           *time.Time      `json:"completed_at,omitempty"`
	LastVerificationCheck *time.Time      `json:"last_verification_check,omitempty"`
}

func (p *MobileMoneyPayment) IsPending() bool {
	return p.Status == StatusPending
}

func (p *MobileMoneyPayment) HasGatewayTransaction() bool {
	return p.GatewayTransactionID != ""
}

// Age is measured from CreatedAt.
func (p *MobileMoneyPayment) Age(now time.Time) time.Duration {
	return now.Sub(p.CreatedAt)
}

// Clone returns a deep copy so stores can hand out records without sharing state.
func (p *MobileMoneyPayment) Clone() *MobileMoneyPayment {
	if p == nil {
		return nil
	}
	cp := *p
	if p.GatewayResponse != nil {
		cp.GatewayResponse = append(json.RawMessage(nil), p.GatewayResponse...)
	}
	if p.CompletedAt != nil {
		t := *p.CompletedAt
		cp.CompletedAt = &t
	}
	if p.LastVerificationCheck != nil {
		t := *p.LastVerificationCheck
		cp.LastVerificationCheck = &t
	}
	return &cp
}

type MobileMoneyOperator struct {
	Country  string `json:"country"`
	Code     string `json:"code"`
	Name     string `json:"name"`
	Provider string `json:"provider"`
	Priority int    `json:"priority"`
}

type InitiatePaymentRequest struct {
	OrderID       string          `json:"order_id" binding:"required"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency" binding:"required"`
	PhoneNumber   string          `json:"phone_number" binding:"required"`
	Operator      string          `json:"operator" binding:"required"`
	Country       string          `json:"country" binding:"required"`
	CustomerID    string          `json:"customer_id"`
	CustomerName  string          `json:"customer_name"`
	CustomerEmail string          `json:"customer_email"`
	ReturnURL     string          `json:"return_url"`
}

type InitiatePaymentData struct {
	PaymentID     string `json:"payment_id"`
	PaymentURL    string `json:"payment_url,omitempty"`
	TransactionID string `json:"transaction_id,omitempty"`
}

type InitiatePaymentResponse struct {
	Success bool                 `json:"success"`
	Data    *InitiatePaymentData `json:"data,omitempty"`
	Message string               `json:"message"`
	// Retryable marks failures caused by the gateway being unreachable, as
	// opposed to a rejection of the payment itself.
	Retryable bool `json:"retryable,omitempty"`
}

type PaymentStatusChangedEvent struct {
	PaymentID            string        `json:"payment_id"`
	OrderID              string        `json:"order_id"`
	Status               PaymentStatus `json:"status"`
	PreviousStatus       PaymentStatus `json:"previous_status,omitempty"`
	GatewayTransactionID string        `json:"gateway_transaction_id,omitempty"`
	FailureReason        string        `json:"failure_reason,omitempty"`
	Timestamp            time.Time     `json:"timestamp"`
}
