package verification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/akylbek/payment-system/mobile-money-service/internal/interfaces"
	"github.com/akylbek/payment-system/mobile-money-service/internal/metrics"
	"github.com/akylbek/payment-system/mobile-money-service/internal/models"
)

// ErrVerificationInProgress is returned when another worker holds the
// payment's verification lock.
var ErrVerificationInProgress = errors.New("verification already in progress")

type VerifierConfig struct {
	Policy  Policy
	Timeout time.Duration
	Clock   func() time.Time
}

// Verifier re-checks one pending payment against the gateway and applies the
// resulting transition.
type Verifier struct {
	repo      interfaces.PaymentRepository
	gateway   interfaces.PaymentGateway
	publisher interfaces.EventPublisher
	locker    Locker
	metrics   *metrics.Metrics
	logger    *zap.Logger

	policy  Policy
	timeout time.Duration
	now     func() time.Time
}

func NewVerifier(
	repo interfaces.PaymentRepository,
	gateway interfaces.PaymentGateway,
	publisher interfaces.EventPublisher,
	locker Locker,
	m *metrics.Metrics,
	logger *zap.Logger,
	cfg VerifierConfig,
) *Verifier {
	if locker == nil {
		locker = NopLocker{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Clock == nil {
		cfg.Clock = func() time.Time { return time.Now().UTC() }
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Verifier{
		repo:      repo,
		gateway:   gateway,
		publisher: publisher,
		locker:    locker,
		metrics:   m,
		logger:    logger,
		policy:    cfg.Policy,
		timeout:   cfg.Timeout,
		now:       cfg.Clock,
	}
}

func (v *Verifier) Policy() Policy {
	return v.policy
}

func (v *Verifier) Now() time.Time {
	return v.now()
}

// Verify checks a payment with the gateway and moves it to completed, failed
// or expired when the rules say so. It returns the stored record afterwards.
// Verify ignores the debounce; callers decide when a check is due.
func (v *Verifier) Verify(ctx context.Context, paymentID string) (*models.MobileMoneyPayment, error) {
	release, err := v.locker.Acquire(ctx, paymentID)
	switch {
	case err != nil:
		// Transitions are compare-and-swap in the store, so an unreachable
		// lock backend must not stall completion or expiry.
		v.logger.Warn("Verification lock unavailable, continuing without it",
			zap.String("payment_id", paymentID),
			zap.Error(err),
		)
	case release == nil:
		return nil, ErrVerificationInProgress
	default:
		defer release()
	}

	payment, err := v.repo.GetByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if !payment.IsPending() {
		return payment, nil
	}

	var outcome *models.VerificationOutcome
	message := ""
	if payment.HasGatewayTransaction() {
		result, checkedAt, err := v.callGateway(ctx, payment.GatewayTransactionID)
		if touchErr := v.repo.TouchVerificationCheck(ctx, payment.ID, checkedAt); touchErr != nil {
			return nil, fmt.Errorf("stamp verification check: %w", touchErr)
		}
		if err != nil {
			v.metrics.RecordVerification("error")
			v.logger.Warn("Gateway verification failed",
				zap.String("payment_id", payment.ID),
				zap.String("gateway_transaction_id", payment.GatewayTransactionID),
				zap.Error(err),
			)
		} else {
			v.metrics.RecordVerification(string(result.Outcome))
			outcome = &result.Outcome
			message = result.Message
			if len(result.Raw) > 0 {
				if err := v.repo.AttachGatewayTransaction(ctx, payment.ID, payment.GatewayTransactionID, result.Raw, checkedAt); err != nil {
					v.logger.Warn("Failed to store gateway payload", zap.String("payment_id", payment.ID), zap.Error(err))
				}
			}
		}
	}

	now := v.now()
	target := v.policy.Decide(payment, outcome, now)
	if target == models.StatusPending {
		return v.repo.GetByID(ctx, payment.ID)
	}

	reason := ""
	switch target {
	case models.StatusFailed:
		reason = message
		if reason == "" {
			reason = "Payment declined by gateway"
		}
	case models.StatusExpired:
		reason = fmt.Sprintf("No confirmation received within %s", v.policy.Expiry)
	}

	if _, err := ApplyTransition(ctx, v.repo, v.publisher, v.metrics, v.logger, payment, target, reason, now); err != nil {
		return nil, err
	}
	return v.repo.GetByID(ctx, payment.ID)
}

func (v *Verifier) callGateway(ctx context.Context, transactionID string) (*models.GatewayVerification, time.Time, error) {
	callCtx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	start := time.Now()
	result, err := v.gateway.VerifyPayment(callCtx, transactionID)
	v.metrics.ObserveGateway(v.gateway.Name(), "verify", time.Since(start))
	checkedAt := v.now()

	if err == nil && result == nil {
		err = errors.New("gateway returned no verification result")
	}
	return result, checkedAt, err
}

// ApplyTransition moves payment out of pending, then publishes the change.
// It reports false when the payment had already left pending.
func ApplyTransition(
	ctx context.Context,
	repo interfaces.PaymentRepository,
	publisher interfaces.EventPublisher,
	m *metrics.Metrics,
	logger *zap.Logger,
	payment *models.MobileMoneyPayment,
	to models.PaymentStatus,
	reason string,
	at time.Time,
) (bool, error) {
	moved, err := repo.TransitionStatus(ctx, payment.ID, to, reason, at)
	if err != nil {
		return false, fmt.Errorf("transition payment %s to %s: %w", payment.ID, to, err)
	}
	if !moved {
		logger.Info("Payment already left pending",
			zap.String("payment_id", payment.ID),
			zap.String("to_status", string(to)),
		)
		return false, nil
	}

	m.RecordTransition(string(to))
	logger.Info("Payment status transition",
		zap.String("payment_id", payment.ID),
		zap.String("order_id", payment.OrderID),
		zap.String("from_status", string(models.StatusPending)),
		zap.String("to_status", string(to)),
		zap.String("reason", reason),
	)

	if publisher != nil {
		event := models.PaymentStatusChangedEvent{
			PaymentID:            payment.ID,
			OrderID:              payment.OrderID,
			Status:               to,
			PreviousStatus:       models.StatusPending,
			GatewayTransactionID: payment.GatewayTransactionID,
			FailureReason:        reason,
			Timestamp:            at,
		}
		if err := publisher.PublishStatusChanged(ctx, event); err != nil {
			logger.Error("Failed to publish status change",
				zap.String("payment_id", payment.ID),
				zap.Error(err),
			)
		}
	}
	return true, nil
}
