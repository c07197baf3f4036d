package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"
	"time"

	nanoid "github.com/jaevor/go-nanoid"

	"github.com/akylbek/payment-system/mobile-money-service/internal/models"
)

const (
	MockProviderName = "mock"
	// MockCheckoutPath is where the service hosts the mock payment page.
	MockCheckoutPath = "/mock-checkout"

	mockIDAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// MockGateway simulates a mobile-money aggregator. Initiation succeeds with
// probability SuccessRate; verification picks completed, failed or pending at
// random.
type MockGateway struct {
	successRate float64
	latency     time.Duration
	baseURL     string

	mu  sync.Mutex
	rnd *rand.Rand

	newID func() string
}

type MockOption func(*MockGateway)

// WithRand makes outcomes reproducible.
func WithRand(rnd *rand.Rand) MockOption {
	return func(g *MockGateway) { g.rnd = rnd }
}

func WithLatency(d time.Duration) MockOption {
	return func(g *MockGateway) { g.latency = d }
}

func WithCheckoutBaseURL(url string) MockOption {
	return func(g *MockGateway) { g.baseURL = url }
}

func NewMockGateway(successRate float64, opts ...MockOption) (*MockGateway, error) {
	if successRate < 0 || successRate > 1 {
		return nil, fmt.Errorf("success rate must be within [0,1], got %v", successRate)
	}

	idGenerator, err := nanoid.CustomASCII(mockIDAlphabet, 16)
	if err != nil {
		return nil, fmt.Errorf("failed to build id generator: %w", err)
	}

	g := &MockGateway{
		successRate: successRate,
		baseURL:     "https://checkout.mock-gateway.local",
		rnd:         rand.New(rand.NewSource(time.Now().UnixNano())),
		newID:       idGenerator,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

func (g *MockGateway) Name() string {
	return MockProviderName
}

func (g *MockGateway) float() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rnd.Float64()
}

func (g *MockGateway) sleep(ctx context.Context) error {
	if g.latency <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(g.latency)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (g *MockGateway) InitiateMobileMoneyPayment(ctx context.Context, req models.GatewayPaymentRequest) (*models.GatewayPaymentResponse, error) {
	if err := g.sleep(ctx); err != nil {
		return nil, fmt.Errorf("mock gateway: %w", err)
	}

	if !SupportsOperator(req.Country, req.Operator) {
		raw, _ := json.Marshal(map[string]any{"status": "rejected", "reason": "unsupported_operator"})
		return &models.GatewayPaymentResponse{
			Success: false,
			Message: fmt.Sprintf("Operator %s is not available in %s", req.Operator, req.Country),
			Raw:     raw,
		}, nil
	}

	if g.float() >= g.successRate {
		raw, _ := json.Marshal(map[string]any{"status": "rejected", "reason": "insufficient_funds"})
		return &models.GatewayPaymentResponse{
			Success: false,
			Message: "Insufficient funds",
			Raw:     raw,
		}, nil
	}

	transactionID := "MOCK_" + g.newID()
	paymentURL := fmt.Sprintf("%s/pay/%s", g.baseURL, transactionID)
	raw, _ := json.Marshal(map[string]any{
		"status":         "pending",
		"transaction_id": transactionID,
		"payment_url":    paymentURL,
		"operator":       req.Operator,
		"amount":         req.Amount.String(),
		"currency":       req.Currency,
	})

	return &models.GatewayPaymentResponse{
		Success:       true,
		TransactionID: transactionID,
		PaymentURL:    paymentURL,
		Message:       "Payment request sent to " + req.PhoneNumber,
		Raw:           raw,
	}, nil
}

func (g *MockGateway) VerifyPayment(ctx context.Context, transactionID string) (*models.GatewayVerification, error) {
	if err := g.sleep(ctx); err != nil {
		return nil, fmt.Errorf("mock gateway: %w", err)
	}

	var (
		outcome models.VerificationOutcome
		message string
	)
	switch roll := g.float(); {
	case roll < 0.6:
		outcome, message = models.OutcomeCompleted, "Payment confirmed by subscriber"
	case roll < 0.75:
		outcome, message = models.OutcomeFailed, "Payment declined by subscriber"
	default:
		outcome, message = models.OutcomePending, "Awaiting subscriber confirmation"
	}

	raw, _ := json.Marshal(map[string]any{"transaction_id": transactionID, "status": outcome})
	return &models.GatewayVerification{
		TransactionID: transactionID,
		Outcome:       outcome,
		Message:       message,
		Raw:           raw,
	}, nil
}

func (g *MockGateway) GetAvailableOperators(ctx context.Context, country string) ([]models.MobileMoneyOperator, error) {
	return OperatorsFor(country), nil
}
