package metrics

import (
	"testing"
	"time"

	"priceflow/logger"
)

func resetMetricHandlers() {
	metricHandlersMu.Lock()
	metricHandlers = make(map[MetricHandlerID]MetricHandler)
	nextMetricHandlerID = 0
	metricHandlersMu.Unlock()
}

func TestRegisterMetricHandlerReturnsUniqueIDs(t *testing.T) {
	resetMetricHandlers()

	id := RegisterMetricHandler(func(Metric) {})
	if id == 0 {
		t.Fatalf("expected non-zero handler id")
	}

	second := RegisterMetricHandler(func(Metric) {})
	if second == 0 || second == id {
		t.Fatalf("expected unique handler id")
	}
}

func TestRegisterMetricHandlerNil(t *testing.T) {
	resetMetricHandlers()

	if id := RegisterMetricHandler(nil); id != 0 {
		t.Fatalf("expected zero id for nil handler, got %d", id)
	}
}

func TestEmitMetricDispatchesToHandlers(t *testing.T) {
	resetMetricHandlers()
	UseCloudWatchClient(nil, "")

	events := make(chan Metric, 1)
	id := RegisterMetricHandler(func(m Metric) {
		events <- m
	})
	t.Cleanup(func() {
		UnregisterMetricHandler(id)
	})

	fields := logger.Fields{"symbol": "AAPL", "unit": "count"}
	EmitMetric(logger.Logger(), "pipeline", "symbol_rows", 42, fields)

	select {
	case event := <-events:
		if event.Component != "pipeline" || event.Name != "symbol_rows" {
			t.Fatalf("unexpected event: %+v", event)
		}
		if event.Value != 42 {
			t.Fatalf("unexpected value: %v", event.Value)
		}
		if event.Unit != "count" {
			t.Fatalf("unexpected unit: %s", event.Unit)
		}
		if _, ok := event.Fields["unit"]; ok {
			t.Fatalf("unit should be lifted out of fields: %v", event.Fields)
		}
		if _, ok := fields["metric"]; ok {
			t.Fatalf("original fields mutated: %v", fields)
		}
	case <-time.After(50 * time.Millisecond):
		t.Fatal("metric handler not invoked")
	}
}

func TestEmitMetricIgnoresEmptyName(t *testing.T) {
	resetMetricHandlers()

	called := false
	RegisterMetricHandler(func(Metric) { called = true })
	EmitMetric(nil, "pipeline", "", 1, nil)
	if called {
		t.Fatalf("handler invoked for unnamed metric")
	}
}

func TestUnregisterMetricHandler(t *testing.T) {
	resetMetricHandlers()

	calls := 0
	id := RegisterMetricHandler(func(Metric) { calls++ })
	EmitMetric(nil, "pipeline", "a", 1, nil)
	UnregisterMetricHandler(id)
	EmitMetric(nil, "pipeline", "b", 1, nil)

	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}
