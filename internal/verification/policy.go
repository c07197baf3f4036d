package verification

import (
	"time"

	"github.com/akylbek/payment-system/mobile-money-service/internal/models"
)

// Policy holds the timing rules for re-checking pending payments.
type Policy struct {
	// FirstCheckDelay is how old a never-checked payment must be before the
	// periodic scan picks it up.
	FirstCheckDelay time.Duration
	// RecheckInterval is the minimum gap between two checks of one payment.
	RecheckInterval time.Duration
	// Expiry is the age after which a pending payment is expired.
	Expiry time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		FirstCheckDelay: 5 * time.Minute,
		RecheckInterval: 2 * time.Minute,
		Expiry:          24 * time.Hour,
	}
}

func (p Policy) IsExpired(payment *models.MobileMoneyPayment, now time.Time) bool {
	return payment.Age(now) > p.Expiry
}

// IsEligible reports whether the periodic scan should look at payment now.
// Payments past expiry are always eligible. Payments with no gateway
// transaction have nothing to verify, so only the expiry rule applies to them.
func (p Policy) IsEligible(payment *models.MobileMoneyPayment, now time.Time) bool {
	if !payment.IsPending() {
		return false
	}
	if p.IsExpired(payment, now) {
		return true
	}
	if !payment.HasGatewayTransaction() {
		return false
	}
	if payment.LastVerificationCheck == nil {
		return payment.Age(now) > p.FirstCheckDelay
	}
	return now.Sub(*payment.LastVerificationCheck) > p.RecheckInterval
}

// Decide picks the next status for a pending payment. outcome is nil when the
// gateway was not consulted or the call failed.
func (p Policy) Decide(payment *models.MobileMoneyPayment, outcome *models.VerificationOutcome, now time.Time) models.PaymentStatus {
	if outcome != nil {
		switch *outcome {
		case models.OutcomeCompleted:
			return models.StatusCompleted
		case models.OutcomeFailed:
			return models.StatusFailed
		}
	}
	if p.IsExpired(payment, now) {
		return models.StatusExpired
	}
	return models.StatusPending
}
