package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/mobile-money-service/internal/interfaces"
	"github.com/akylbek/payment-system/mobile-money-service/internal/metrics"
	"github.com/akylbek/payment-system/mobile-money-service/internal/models"
	"github.com/akylbek/payment-system/mobile-money-service/internal/telemetry"
	"github.com/akylbek/payment-system/mobile-money-service/internal/verification"
)

const (
	msgInitiationFailed = "Payment initiation failed"
	gatewayErrorReason  = "gateway_error"

	// amounts are stored as DECIMAL(18,2)
	maxAmountScale = 2
)

type Config struct {
	// WebhookBaseURL is the public URL the gateway calls back on.
	WebhookBaseURL string
	GatewayTimeout time.Duration
	Clock          func() time.Time
}

// PaymentService is the entry point for checkout and status-polling callers.
type PaymentService struct {
	repo      interfaces.PaymentRepository
	gateway   interfaces.PaymentGateway
	publisher interfaces.EventPublisher
	verifier  *verification.Verifier
	metrics   *metrics.Metrics
	logger    *zap.Logger
	cfg       Config
}

func NewPaymentService(
	repo interfaces.PaymentRepository,
	gateway interfaces.PaymentGateway,
	publisher interfaces.EventPublisher,
	verifier *verification.Verifier,
	m *metrics.Metrics,
	logger *zap.Logger,
	cfg Config,
) *PaymentService {
	if logger == nil {
		logger = telemetry.Logger
	}
	if cfg.Clock == nil {
		cfg.Clock = func() time.Time { return time.Now().UTC() }
	}
	if cfg.GatewayTimeout <= 0 {
		cfg.GatewayTimeout = 30 * time.Second
	}
	return &PaymentService{
		repo:      repo,
		gateway:   gateway,
		publisher: publisher,
		verifier:  verifier,
		metrics:   m,
		logger:    logger,
		cfg:       cfg,
	}
}

func validateInitiateRequest(req models.InitiatePaymentRequest) error {
	switch {
	case strings.TrimSpace(req.OrderID) == "":
		return errors.New("order_id is required")
	case !req.Amount.IsPositive():
		return errors.New("amount must be greater than zero")
	case !req.Amount.Equal(req.Amount.Round(maxAmountScale)):
		return fmt.Errorf("amount must have at most %d decimal places", maxAmountScale)
	case len(strings.TrimSpace(req.Currency)) != 3:
		return errors.New("currency must be a 3-letter ISO code")
	case strings.TrimSpace(req.PhoneNumber) == "":
		return errors.New("phone_number is required")
	case strings.TrimSpace(req.Operator) == "":
		return errors.New("operator is required")
	case len(strings.TrimSpace(req.Country)) != 2:
		return errors.New("country must be a 2-letter ISO code")
	}
	return nil
}

// InitiatePayment records a pending payment and asks the gateway to start it.
// Gateway rejections and gateway errors both end with the payment failed and
// a failure response; only storage errors are returned as errors.
func (s *PaymentService) InitiatePayment(ctx context.Context, req models.InitiatePaymentRequest) (*models.InitiatePaymentResponse, error) {
	span := trace.SpanFromContext(ctx)

	if err := validateInitiateRequest(req); err != nil {
		return &models.InitiatePaymentResponse{Success: false, Message: err.Error()}, nil
	}

	now := s.cfg.Clock()
	payment := &models.MobileMoneyPayment{
		ID:              uuid.New().String(),
		OrderID:         strings.TrimSpace(req.OrderID),
		Amount:          req.Amount,
		Currency:        strings.ToUpper(strings.TrimSpace(req.Currency)),
		Operator:        strings.ToLower(strings.TrimSpace(req.Operator)),
		Country:         strings.ToUpper(strings.TrimSpace(req.Country)),
		PhoneNumber:     strings.TrimSpace(req.PhoneNumber),
		GatewayProvider: s.gateway.Name(),
		Status:          models.StatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	s.logger.Info("Initiating mobile money payment",
		zap.String("payment_id", payment.ID),
		zap.String("order_id", payment.OrderID),
		zap.String("operator", payment.Operator),
		zap.String("country", payment.Country),
		zap.String("amount", payment.Amount.String()),
		zap.String("trace_id", span.SpanContext().TraceID().String()),
	)

	if err := s.repo.Create(ctx, payment); err != nil {
		s.logger.Error("Failed to save payment", zap.String("payment_id", payment.ID), zap.Error(err))
		return nil, fmt.Errorf("create payment: %w", err)
	}

	webhookURL := ""
	if s.cfg.WebhookBaseURL != "" {
		webhookURL = fmt.Sprintf("%s/payments/mobile-money/webhooks/%s", s.cfg.WebhookBaseURL, s.gateway.Name())
	}

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.GatewayTimeout)
	start := time.Now()
	resp, err := s.gateway.InitiateMobileMoneyPayment(callCtx, models.GatewayPaymentRequest{
		OrderID:       payment.OrderID,
		PaymentID:     payment.ID,
		Amount:        payment.Amount,
		Currency:      payment.Currency,
		PhoneNumber:   payment.PhoneNumber,
		CustomerID:    req.CustomerID,
		CustomerName:  req.CustomerName,
		CustomerEmail: req.CustomerEmail,
		Operator:      payment.Operator,
		Country:       payment.Country,
		ReturnURL:     req.ReturnURL,
		WebhookURL:    webhookURL,
	})
	cancel()
	s.metrics.ObserveGateway(s.gateway.Name(), "initiate", time.Since(start))

	if err == nil && resp == nil {
		err = errors.New("gateway returned no response")
	}
	if err != nil {
		s.logger.Error("Gateway initiation error",
			zap.String("payment_id", payment.ID),
			zap.Error(err),
		)
		s.metrics.RecordInitiation(payment.Operator, payment.Country, "error")
		s.fail(ctx, payment, gatewayErrorReason)
		return &models.InitiatePaymentResponse{
			Success:   false,
			Data:      &models.InitiatePaymentData{PaymentID: payment.ID},
			Message:   msgInitiationFailed,
			Retryable: true,
		}, nil
	}

	if !resp.Success {
		message := resp.Message
		if message == "" {
			message = msgInitiationFailed
		}
		s.metrics.RecordInitiation(payment.Operator, payment.Country, "rejected")
		s.fail(ctx, payment, message)
		return &models.InitiatePaymentResponse{
			Success: false,
			Data:    &models.InitiatePaymentData{PaymentID: payment.ID},
			Message: message,
		}, nil
	}

	if err := s.repo.AttachGatewayTransaction(ctx, payment.ID, resp.TransactionID, resp.Raw, s.cfg.Clock()); err != nil {
		s.logger.Error("Failed to store gateway transaction",
			zap.String("payment_id", payment.ID),
			zap.String("gateway_transaction_id", resp.TransactionID),
			zap.Error(err),
		)
		return nil, fmt.Errorf("attach gateway transaction: %w", err)
	}
	s.metrics.RecordInitiation(payment.Operator, payment.Country, "success")
	span.SetAttributes(attribute.String("payment.id", payment.ID))

	s.logger.Info("Mobile money payment initiated",
		zap.String("payment_id", payment.ID),
		zap.String("gateway_transaction_id", resp.TransactionID),
	)

	message := resp.Message
	if message == "" {
		message = "Payment initiated"
	}
	return &models.InitiatePaymentResponse{
		Success: true,
		Data: &models.InitiatePaymentData{
			PaymentID:     payment.ID,
			PaymentURL:    resp.PaymentURL,
			TransactionID: resp.TransactionID,
		},
		Message: message,
	}, nil
}

func (s *PaymentService) fail(ctx context.Context, payment *models.MobileMoneyPayment, reason string) {
	if _, err := verification.ApplyTransition(ctx, s.repo, s.publisher, s.metrics, s.logger,
		payment, models.StatusFailed, reason, s.cfg.Clock()); err != nil {
		s.logger.Error("Failed to mark payment failed",
			zap.String("payment_id", payment.ID),
			zap.Error(err),
		)
	}
}

// GetPaymentStatus returns the payment, re-verifying it first when it is
// still pending at the gateway. Unknown ids yield (nil, nil).
func (s *PaymentService) GetPaymentStatus(ctx context.Context, id string) (*models.MobileMoneyPayment, error) {
	payment, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, models.ErrPaymentNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get payment %s: %w", id, err)
	}

	if !payment.IsPending() || !payment.HasGatewayTransaction() || s.verifier == nil {
		return payment, nil
	}

	verified, err := s.verifier.Verify(ctx, payment.ID)
	if err != nil {
		if !errors.Is(err, verification.ErrVerificationInProgress) {
			s.logger.Warn("Inline verification failed",
				zap.String("payment_id", payment.ID),
				zap.Error(err),
			)
		}
		return payment, nil
	}
	return verified, nil
}

// GetOperatorsByCountry lists the operators available in country, by priority.
func (s *PaymentService) GetOperatorsByCountry(ctx context.Context, country string) ([]models.MobileMoneyOperator, error) {
	ops, err := s.gateway.GetAvailableOperators(ctx, country)
	if err != nil {
		return nil, fmt.Errorf("get operators for %s: %w", country, err)
	}
	if ops == nil {
		ops = []models.MobileMoneyOperator{}
	}
	return ops, nil
}

// HandleGatewayCallback re-verifies the payment a gateway notified us about.
// The callback body is not trusted for the status itself. Unknown
// transactions yield (nil, nil).
func (s *PaymentService) HandleGatewayCallback(ctx context.Context, provider, transactionID string) (*models.MobileMoneyPayment, error) {
	if transactionID == "" {
		return nil, nil
	}

	payment, err := s.repo.GetByGatewayTransactionID(ctx, transactionID)
	if errors.Is(err, models.ErrPaymentNotFound) {
		s.logger.Warn("Callback for unknown transaction",
			zap.String("provider", provider),
			zap.String("gateway_transaction_id", transactionID),
		)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup transaction %s: %w", transactionID, err)
	}

	if !strings.EqualFold(provider, payment.GatewayProvider) {
		s.logger.Warn("Callback provider mismatch",
			zap.String("payment_id", payment.ID),
			zap.String("provider", provider),
			zap.String("expected_provider", payment.GatewayProvider),
		)
	}

	if !payment.IsPending() || s.verifier == nil {
		return payment, nil
	}

	verified, err := s.verifier.Verify(ctx, payment.ID)
	if errors.Is(err, verification.ErrVerificationInProgress) {
		return payment, nil
	}
	if err != nil {
		return nil, err
	}
	return verified, nil
}
