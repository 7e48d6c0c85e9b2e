package authcore

import (
	"sync"
	"testing"
)

func TestMetricsIncAndSnapshot(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})

	m.Inc(MetricLoginSuccess)
	m.Inc(MetricLoginSuccess)
	m.Inc(MetricRefreshFailure)

	if got := m.Value(MetricLoginSuccess); got != 2 {
		t.Fatalf("expected 2, got %d", got)
	}

	snapshot := m.Snapshot()
	if snapshot.Counters[MetricLoginSuccess] != 2 {
		t.Fatalf("expected snapshot 2, got %d", snapshot.Counters[MetricLoginSuccess])
	}
	if snapshot.Counters[MetricRefreshFailure] != 1 {
		t.Fatalf("expected snapshot 1, got %d", snapshot.Counters[MetricRefreshFailure])
	}
	if snapshot.Counters[MetricCSRFIssued] != 0 {
		t.Fatalf("expected untouched counter 0, got %d", snapshot.Counters[MetricCSRFIssued])
	}
}

func TestMetricsDisabledIsNoOp(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: false})

	m.Inc(MetricLoginSuccess)
	if got := m.Value(MetricLoginSuccess); got != 0 {
		t.Fatalf("expected disabled metrics to stay 0, got %d", got)
	}
	if len(m.Snapshot().Counters) != 0 {
		t.Fatal("expected empty snapshot when disabled")
	}
}

func TestMetricsNilReceiver(t *testing.T) {
	var m *Metrics

	m.Inc(MetricLoginSuccess)
	if m.Value(MetricLoginSuccess) != 0 {
		t.Fatal("expected nil receiver to report 0")
	}
	if m.Enabled() {
		t.Fatal("expected nil receiver disabled")
	}
	if m.Snapshot().Counters == nil {
		t.Fatal("expected non-nil counters map from nil receiver")
	}
}

func TestMetricsOutOfRangeID(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})

	m.Inc(metricIDCount)
	m.Inc(metricIDCount + 100)
	if got := m.Value(metricIDCount + 100); got != 0 {
		t.Fatalf("expected out-of-range reads to be 0, got %d", got)
	}
}

func TestMetricsConcurrentInc(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})

	const workers = 8
	const perWorker = 1000

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				m.Inc(MetricLoginSuccess)
			}
		}()
	}
	wg.Wait()

	if got := m.Value(MetricLoginSuccess); got != workers*perWorker {
		t.Fatalf("expected %d, got %d", workers*perWorker, got)
	}
}
