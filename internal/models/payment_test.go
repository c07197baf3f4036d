package models

import (
	"encoding/json"
	"testing"
	"time"
)

func TestCanTransition(t *testing.T) {
	statuses := []PaymentStatus{StatusPending, StatusCompleted, StatusFailed, StatusExpired}

	for _, from := range statuses {
		for _, to := range statuses {
			want := from == StatusPending && to != StatusPending
			if got := CanTransition(from, to); got != want {
				t.Fatalf("CanTransition(%s, %s): expected %v, got %v", from, to, want, got)
			}
		}
	}
}

func TestPaymentStatusValid(t *testing.T) {
	if PaymentStatus("refunded").Valid() {
		t.Fatal("expected unknown status to be invalid")
	}
	if !StatusExpired.Valid() {
		t.Fatal("expected expired to be valid")
	}
}

func TestCloneDoesNotShareState(t *testing.T) {
	checked := time.Now()
	original := &MobileMoneyPayment{
		ID:                    "pay-1",
		Status:                StatusPending,
		GatewayResponse:       json.RawMessage(`{"status":"pending"}`),
		LastVerificationCheck: &checked,
	}

	cp := original.Clone()
	cp.GatewayResponse[2] = 'X'
	*cp.LastVerificationCheck = checked.Add(time.Hour)
	cp.Status = StatusCompleted

	if string(original.GatewayResponse) != `{"status":"pending"}` {
		t.Fatalf("expected original payload untouched, got %s", original.GatewayResponse)
	}
	if !original.LastVerificationCheck.Equal(checked) {
		t.Fatal("expected original verification timestamp untouched")
	}
	if original.Status != StatusPending {
		t.Fatalf("expected original status pending, got %s", original.Status)
	}
}
