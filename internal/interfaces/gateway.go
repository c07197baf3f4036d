package interfaces

import (
	"context"

	"github.com/akylbek/payment-system/mobile-money-service/internal/models"
)

// PaymentGateway is implemented by every mobile-money gateway adapter.
//
// Business rejections (insufficient funds, operator refusal) come back as
// Success=false with a message. An error means the gateway could not be
// reached or answered with something unreadable.
type PaymentGateway interface {
	Name() string
	InitiateMobileMoneyPayment(ctx context.Context, req models.GatewayPaymentRequest) (*models.GatewayPaymentResponse, error)
	VerifyPayment(ctx context.Context, transactionID string) (*models.GatewayVerification, error)
	GetAvailableOperators(ctx context.Context, country string) ([]models.MobileMoneyOperator, error)
}

type EventPublisher interface {
	PublishStatusChanged(ctx context.Context, event models.PaymentStatusChangedEvent) error
	Close() error
}
