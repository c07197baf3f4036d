package repository

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/akylbek/payment-system/mobile-money-service/internal/models"
)

// openTestDatabase connects to DATABASE_URL and skips the test when it is unset.
func openTestDatabase(t *testing.T) *sql.DB {
	t.Helper()
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL not set; skipping PostgreSQL integration test")
	}
	db, err := sql.Open("postgres", url)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		t.Fatalf("failed to connect to database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestPostgres_MigrationsAreRepeatable(t *testing.T) {
	db := openTestDatabase(t)

	for i := 0; i < 2; i++ {
		if err := RunMigrations(db); err != nil {
			t.Fatalf("RunMigrations attempt %d returned error: %v", i, err)
		}
	}

	var exists bool
	if err := db.QueryRow(`SELECT to_regclass('public.mobile_money_payments') IS NOT NULL`).Scan(&exists); err != nil {
		t.Fatalf("failed to inspect schema: %v", err)
	}
	if !exists {
		t.Fatal("expected mobile_money_payments table after migrations")
	}
}

func TestPostgres_PaymentLifecycle(t *testing.T) {
	db := openTestDatabase(t)
	if err := RunMigrations(db); err != nil {
		t.Fatalf("RunMigrations returned error: %v", err)
	}
	repo := NewPaymentRepository(db)
	ctx := context.Background()

	id := uuid.NewString()
	transactionID := "MOCK_" + id
	t.Cleanup(func() { _, _ = db.Exec(`DELETE FROM mobile_money_payments WHERE id = $1`, id) })

	created := time.Now().UTC().Truncate(time.Microsecond)
	if err := repo.Create(ctx, newPendingPayment(id, created)); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if err := repo.AttachGatewayTransaction(ctx, id, transactionID, []byte(`{"status":"pending"}`), created); err != nil {
		t.Fatalf("AttachGatewayTransaction returned error: %v", err)
	}

	found, err := repo.GetByGatewayTransactionID(ctx, transactionID)
	if err != nil || found.ID != id {
		t.Fatalf("expected lookup by transaction id, got %+v err=%v", found, err)
	}

	completedAt := created.Add(time.Minute)
	moved, err := repo.TransitionStatus(ctx, id, models.StatusCompleted, "", completedAt)
	if err != nil || !moved {
		t.Fatalf("expected first transition to apply, got moved=%v err=%v", moved, err)
	}

	moved, err = repo.TransitionStatus(ctx, id, models.StatusFailed, "late failure", completedAt.Add(time.Minute))
	if err != nil || moved {
		t.Fatalf("expected terminal payment to stay put, got moved=%v err=%v", moved, err)
	}

	p, err := repo.GetByID(ctx, id)
	if err != nil {
		t.Fatalf("GetByID returned error: %v", err)
	}
	if p.Status != models.StatusCompleted || p.CompletedAt == nil || !p.CompletedAt.Equal(completedAt) {
		t.Fatalf("expected completed payment, got %+v", p)
	}

	if _, err := repo.TransitionStatus(ctx, uuid.NewString(), models.StatusFailed, "", time.Now()); !errors.Is(err, models.ErrPaymentNotFound) {
		t.Fatalf("expected ErrPaymentNotFound for unknown id, got %v", err)
	}
}
