package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/akylbek/payment-system/mobile-money-service/internal/models"
)

// MemoryPaymentRepository keeps payments in process memory. Records are lost on
// restart; use PaymentRepository for durable storage.
type MemoryPaymentRepository struct {
	mu       sync.RWMutex
	payments map[string]*models.MobileMoneyPayment
	order    []string
}

func NewMemoryPaymentRepository() *MemoryPaymentRepository {
	return &MemoryPaymentRepository{
		payments: make(map[string]*models.MobileMoneyPayment),
	}
}

func (r *MemoryPaymentRepository) Create(ctx context.Context, payment *models.MobileMoneyPayment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.payments[payment.ID]; exists {
		return fmt.Errorf("payment %s already exists", payment.ID)
	}
	r.payments[payment.ID] = payment.Clone()
	r.order = append(r.order, payment.ID)
	return nil
}

func (r *MemoryPaymentRepository) GetByID(ctx context.Context, id string) (*models.MobileMoneyPayment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	payment, ok := r.payments[id]
	if !ok {
		return nil, models.ErrPaymentNotFound
	}
	return payment.Clone(), nil
}

func (r *MemoryPaymentRepository) GetByGatewayTransactionID(ctx context.Context, transactionID string) (*models.MobileMoneyPayment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if transactionID == "" {
		return nil, models.ErrPaymentNotFound
	}
	for _, id := range r.order {
		if p := r.payments[id]; p.GatewayTransactionID == transactionID {
			return p.Clone(), nil
		}
	}
	return nil, models.ErrPaymentNotFound
}

func (r *MemoryPaymentRepository) ListPending(ctx context.Context) ([]*models.MobileMoneyPayment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var pending []*models.MobileMoneyPayment
	for _, id := range r.order {
		if p := r.payments[id]; p.IsPending() {
			pending = append(pending, p.Clone())
		}
	}
	return pending, nil
}

func (r *MemoryPaymentRepository) AttachGatewayTransaction(ctx context.Context, id, transactionID string, payload json.RawMessage, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.payments[id]
	if !ok {
		return models.ErrPaymentNotFound
	}
	p.GatewayTransactionID = transactionID
	if payload != nil {
		p.GatewayResponse = append(json.RawMessage(nil), payload...)
	}
	p.UpdatedAt = at
	return nil
}

func (r *MemoryPaymentRepository) TouchVerificationCheck(ctx context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.payments[id]
	if !ok {
		return models.ErrPaymentNotFound
	}
	checked := at
	p.LastVerificationCheck = &checked
	p.UpdatedAt = at
	return nil
}

func (r *MemoryPaymentRepository) TransitionStatus(ctx context.Context, id string, to models.PaymentStatus, reason string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.payments[id]
	if !ok {
		return false, models.ErrPaymentNotFound
	}
	if !models.CanTransition(p.Status, to) {
		return false, nil
	}

	p.Status = to
	p.UpdatedAt = at
	if to == models.StatusCompleted {
		completed := at
		p.CompletedAt = &completed
	}
	if reason != "" {
		p.FailureReason = reason
	}
	return true, nil
}
