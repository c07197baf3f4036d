package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/akylbek/payment-system/mobile-money-service/internal/models"
)

// PaymentRepository stores mobile-money payments in PostgreSQL.
type PaymentRepository struct {
	db *sql.DB
}

func NewPaymentRepository(db *sql.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

const paymentColumns = `id, order_id, amount, currency, operator, country, phone_number,
	gateway_provider, gateway_transaction_id, gateway_response, failure_reason, status,
	created_at, updated_at, completed_at, last_verification_check`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPayment(row rowScanner) (*models.MobileMoneyPayment, error) {
	var (
		p             models.MobileMoneyPayment
		transactionID sql.NullString
		response      []byte
		reason        sql.NullString
		completedAt   sql.NullTime
		lastCheck     sql.NullTime
	)

	err := row.Scan(&p.ID, &p.OrderID, &p.Amount, &p.Currency, &p.Operator, &p.Country, &p.PhoneNumber,
		&p.GatewayProvider, &transactionID, &response, &reason, &p.Status,
		&p.CreatedAt, &p.UpdatedAt, &completedAt, &lastCheck)
	if err != nil {
		return nil, err
	}

	p.GatewayTransactionID = transactionID.String
	p.FailureReason = reason.String
	if len(response) > 0 {
		p.GatewayResponse = json.RawMessage(response)
	}
	if completedAt.Valid {
		t := completedAt.Time.UTC()
		p.CompletedAt = &t
	}
	if lastCheck.Valid {
		t := lastCheck.Time.UTC()
		p.LastVerificationCheck = &t
	}
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return &p, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func (r *PaymentRepository) Create(ctx context.Context, payment *models.MobileMoneyPayment) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO mobile_money_payments (`+paymentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`, payment.ID, payment.OrderID, payment.Amount, payment.Currency, payment.Operator, payment.Country,
		payment.PhoneNumber, payment.GatewayProvider, nullString(payment.GatewayTransactionID),
		nullJSON(payment.GatewayResponse), nullString(payment.FailureReason), payment.Status,
		payment.CreatedAt, payment.UpdatedAt, payment.CompletedAt, payment.LastVerificationCheck)
	if err != nil {
		return fmt.Errorf("insert payment %s: %w", payment.ID, err)
	}
	return nil
}

func (r *PaymentRepository) GetByID(ctx context.Context, id string) (*models.MobileMoneyPayment, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM mobile_money_payments WHERE id = $1`, id)
	p, err := scanPayment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrPaymentNotFound
	}
	return p, err
}

func (r *PaymentRepository) GetByGatewayTransactionID(ctx context.Context, transactionID string) (*models.MobileMoneyPayment, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM mobile_money_payments WHERE gateway_transaction_id = $1`, transactionID)
	p, err := scanPayment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrPaymentNotFound
	}
	return p, err
}

func (r *PaymentRepository) ListPending(ctx context.Context) ([]*models.MobileMoneyPayment, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+paymentColumns+` FROM mobile_money_payments
		WHERE status = $1
		ORDER BY created_at, id
	`, models.StatusPending)
	if err != nil {
		return nil, fmt.Errorf("list pending payments: %w", err)
	}
	defer rows.Close()

	var payments []*models.MobileMoneyPayment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

func (r *PaymentRepository) AttachGatewayTransaction(ctx context.Context, id, transactionID string, payload json.RawMessage, at time.Time) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE mobile_money_payments
		SET gateway_transaction_id = $1, gateway_response = COALESCE($2, gateway_response), updated_at = $3
		WHERE id = $4
	`, transactionID, nullJSON(payload), at, id)
	if err != nil {
		return fmt.Errorf("attach gateway transaction to %s: %w", id, err)
	}
	return requireRow(result)
}

func (r *PaymentRepository) TouchVerificationCheck(ctx context.Context, id string, at time.Time) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE mobile_money_payments
		SET last_verification_check = $1, updated_at = $1
		WHERE id = $2
	`, at, id)
	if err != nil {
		return fmt.Errorf("touch verification check for %s: %w", id, err)
	}
	return requireRow(result)
}

// TransitionStatus is a compare-and-swap on status = 'pending'.
func (r *PaymentRepository) TransitionStatus(ctx context.Context, id string, to models.PaymentStatus, reason string, at time.Time) (bool, error) {
	if !models.CanTransition(models.StatusPending, to) {
		return false, fmt.Errorf("invalid target status %s", to)
	}

	var completedAt *time.Time
	if to == models.StatusCompleted {
		completedAt = &at
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE mobile_money_payments
		SET status = $1, updated_at = $2, completed_at = $3,
			failure_reason = COALESCE($4, failure_reason)
		WHERE id = $5 AND status = $6
	`, to, at, completedAt, nullString(reason), id, models.StatusPending)
	if err != nil {
		return false, fmt.Errorf("transition payment %s to %s: %w", id, to, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("transition payment %s to %s: %w", id, to, err)
	}
	if rows > 0 {
		return true, nil
	}

	// Distinguish "already terminal" from "unknown id".
	var exists bool
	if err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM mobile_money_payments WHERE id = $1)`, id).Scan(&exists); err != nil {
		return false, err
	}
	if !exists {
		return false, models.ErrPaymentNotFound
	}
	return false, nil
}

func requireRow(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return models.ErrPaymentNotFound
	}
	return nil
}
