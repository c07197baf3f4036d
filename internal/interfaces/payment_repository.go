package interfaces

import (
	"context"
	"encoding/json"
	"time"

	"github.com/akylbek/payment-system/mobile-money-service/internal/models"
)

// PaymentRepository defines the contract for mobile-money payment storage
type PaymentRepository interface {
	Create(ctx context.Context, payment *models.MobileMoneyPayment) error
	GetByID(ctx context.Context, id string) (*models.MobileMoneyPayment, error)
	GetByGatewayTransactionID(ctx context.Context, transactionID string) (*models.MobileMoneyPayment, error)
	// ListPending returns pending payments in discovery (creation) order.
	ListPending(ctx context.Context) ([]*models.MobileMoneyPayment, error)
	AttachGatewayTransaction(ctx context.Context, id, transactionID string, payload json.RawMessage, at time.Time) error
	TouchVerificationCheck(ctx context.Context, id string, at time.Time) error
	// TransitionStatus moves a payment out of pending. It reports false when the
	// payment had already left pending, in which case nothing is written.
	TransitionStatus(ctx context.Context, id string, to models.PaymentStatus, reason string, at time.Time) (bool, error)
}
