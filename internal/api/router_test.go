package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/akylbek/payment-system/mobile-money-service/internal/models"
)

type stubService struct {
	initiateCalls int
	// gatewayDown makes this many initiations fail as if the gateway were unreachable
	gatewayDown   int
	payments      map[string]*models.MobileMoneyPayment
	byTransaction map[string]*models.MobileMoneyPayment
}

func (s *stubService) InitiatePayment(ctx context.Context, req models.InitiatePaymentRequest) (*models.InitiatePaymentResponse, error) {
	s.initiateCalls++
	if s.gatewayDown > 0 {
		s.gatewayDown--
		return &models.InitiatePaymentResponse{
			Success:   false,
			Data:      &models.InitiatePaymentData{PaymentID: "pay-broken"},
			Message:   "Payment initiation failed",
			Retryable: true,
		}, nil
	}
	if req.Operator == "bad_op" {
		return &models.InitiatePaymentResponse{
			Success: false,
			Data:    &models.InitiatePaymentData{PaymentID: "pay-failed"},
			Message: "Insufficient funds",
		}, nil
	}
	return &models.InitiatePaymentResponse{
		Success: true,
		Data:    &models.InitiatePaymentData{PaymentID: "pay-1", TransactionID: "TX-1"},
		Message: "Payment initiated",
	}, nil
}

func (s *stubService) GetPaymentStatus(ctx context.Context, id string) (*models.MobileMoneyPayment, error) {
	return s.payments[id], nil
}

func (s *stubService) GetOperatorsByCountry(ctx context.Context, country string) ([]models.MobileMoneyOperator, error) {
	if country == "CM" {
		return []models.MobileMoneyOperator{{Code: "orange_cm", Priority: 1}}, nil
	}
	return []models.MobileMoneyOperator{}, nil
}

func (s *stubService) HandleGatewayCallback(ctx context.Context, provider, transactionID string) (*models.MobileMoneyPayment, error) {
	return s.byTransaction[transactionID], nil
}

type memoryCache struct {
	mu    sync.Mutex
	items map[string][]byte
}

func (m *memoryCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.items[key]
	return v, ok, nil
}

func (m *memoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = value
	return nil
}

func newTestRouter(svc *stubService) http.Handler {
	return NewRouter(svc, RouterConfig{
		ServiceName:    "mobile-money-service",
		IdempotencyTTL: time.Hour,
		Cache:          &memoryCache{items: map[string][]byte{}},
		Gatherer:       prometheus.NewRegistry(),
	})
}

const initiateBody = `{"order_id":"o-1","amount":"1000","currency":"XAF","phone_number":"+237670000000","operator":"mtn_cm","country":"CM"}`

func TestInitiate_RequiresIdempotencyKey(t *testing.T) {
	svc := &stubService{}
	router := newTestRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/payments/mobile-money", bytes.NewBufferString(initiateBody))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if svc.initiateCalls != 0 {
		t.Fatal("expected service not to be called")
	}
}

func TestInitiate_ReplaysSameKey(t *testing.T) {
	svc := &stubService{}
	router := newTestRouter(svc)

	var bodies []string
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/payments/mobile-money", bytes.NewBufferString(initiateBody))
		req.Header.Set("Idempotency-Key", "key-1")
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusCreated {
			t.Fatalf("expected 201 on attempt %d, got %d: %s", i, w.Code, w.Body.String())
		}
		bodies = append(bodies, w.Body.String())
	}

	if svc.initiateCalls != 1 {
		t.Fatalf("expected one initiation, got %d", svc.initiateCalls)
	}
	if bodies[0] != bodies[1] {
		t.Fatalf("expected replayed body to match, got %q and %q", bodies[0], bodies[1])
	}
}

func TestInitiate_BusinessFailureSurfacesMessage(t *testing.T) {
	router := newTestRouter(&stubService{})

	body := bytes.Replace([]byte(initiateBody), []byte("mtn_cm"), []byte("bad_op"), 1)
	req := httptest.NewRequest(http.MethodPost, "/payments/mobile-money", bytes.NewReader(body))
	req.Header.Set("Idempotency-Key", "key-2")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", w.Code)
	}
	var resp models.InitiatePaymentResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if resp.Success || resp.Message != "Insufficient funds" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestInitiate_GatewayOutageIsNotReplayed(t *testing.T) {
	svc := &stubService{gatewayDown: 1}
	router := newTestRouter(svc)

	codes := []int{}
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/payments/mobile-money", bytes.NewBufferString(initiateBody))
		req.Header.Set("Idempotency-Key", "key-retry")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		if w.Header().Get("Idempotent-Replayed") != "" {
			t.Fatalf("expected attempt %d not to be a replay", i)
		}
		codes = append(codes, w.Code)
	}

	if codes[0] != http.StatusBadGateway || codes[1] != http.StatusCreated {
		t.Fatalf("expected 502 then 201, got %v", codes)
	}
	if svc.initiateCalls != 2 {
		t.Fatalf("expected the retry to reach the service, got %d calls", svc.initiateCalls)
	}
}

func TestGetPaymentStatus(t *testing.T) {
	svc := &stubService{payments: map[string]*models.MobileMoneyPayment{
		"pay-1": {ID: "pay-1", Status: models.StatusPending},
	}}
	router := newTestRouter(svc)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/payments/mobile-money/pay-1", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var p models.MobileMoneyPayment
	_ = json.Unmarshal(w.Body.Bytes(), &p)
	if p.Status != models.StatusPending {
		t.Fatalf("expected pending status, got %s", p.Status)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/payments/mobile-money/missing", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestGetOperators(t *testing.T) {
	router := newTestRouter(&stubService{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/payments/mobile-money/operators/ZZ", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if w.Body.String() != "[]" {
		t.Fatalf("expected empty JSON array, got %s", w.Body.String())
	}
}

func TestGatewayWebhook(t *testing.T) {
	svc := &stubService{byTransaction: map[string]*models.MobileMoneyPayment{
		"TX-1": {ID: "pay-1", Status: models.StatusCompleted},
	}}
	router := newTestRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/payments/mobile-money/webhooks/mock", bytes.NewBufferString(`{"transaction_id":"TX-1","status":"failed"}`))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", w.Code)
	}
	if !bytes.Contains(w.Body.Bytes(), []byte(`"status":"completed"`)) {
		t.Fatalf("expected verified status, not the callback's, got %s", w.Body.String())
	}

	req = httptest.NewRequest(http.MethodPost, "/payments/mobile-money/webhooks/mock", bytes.NewBufferString(`{"transaction_id":"TX-404"}`))
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown transaction, got %d", w.Code)
	}
}

func TestHealth(t *testing.T) {
	router := newTestRouter(&stubService{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestMockCheckoutRoute(t *testing.T) {
	build := func(enabled bool) http.Handler {
		return NewRouter(&stubService{}, RouterConfig{Gatherer: prometheus.NewRegistry(), MockCheckout: enabled})
	}

	w := httptest.NewRecorder()
	build(true).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/mock-checkout/pay/MOCK_ABC", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !bytes.Contains(w.Body.Bytes(), []byte(`"transaction_id":"MOCK_ABC"`)) {
		t.Fatalf("expected transaction id in body, got %s", w.Body.String())
	}

	w = httptest.NewRecorder()
	build(false).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/mock-checkout/pay/MOCK_ABC", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 without the mock gateway, got %d", w.Code)
	}
}
