package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_RecordsOnOwnRegistry(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordInitiation("mtn_cm", "CM", "success")
	m.RecordInitiation("mtn_cm", "CM", "success")
	m.RecordTransition("expired")
	m.ObservePass(time.Second)

	if got := testutil.ToFloat64(m.PaymentsInitiated.WithLabelValues("mtn_cm", "CM", "success")); got != 2 {
		t.Fatalf("expected 2 initiations, got %v", got)
	}
	if got := testutil.ToFloat64(m.StatusTransitions.WithLabelValues("expired")); got != 1 {
		t.Fatalf("expected 1 expired transition, got %v", got)
	}
}

func TestMetrics_NilIsSafe(t *testing.T) {
	var m *Metrics
	m.RecordInitiation("a", "b", "c")
	m.RecordTransition("completed")
	m.RecordVerification("pending")
	m.ObservePass(time.Second)
	m.ObserveGateway("mock", "verify", time.Second)
}
