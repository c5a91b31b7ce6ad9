package otel_test

import (
	"context"
	"sync"
	"testing"

	"github.com/easyops/contextcore/pkg/otel"
)

func TestInMemoryMetrics_Counter(t *testing.T) {
	metrics := otel.NewInMemoryMetrics()
	counter := metrics.Counter(otel.MetricContextRequests)

	ctx := context.Background()
	counter.Add(ctx, 5)
	counter.Add(ctx, 3)

	if value := metrics.GetCounterValue(otel.MetricContextRequests); value != 8 {
		t.Fatalf("expected counter value 8, got %d", value)
	}
}

func TestInMemoryMetrics_CounterWithAttrs(t *testing.T) {
	metrics := otel.NewInMemoryMetrics()
	counter := metrics.Counter(otel.MetricFanoutErrors)
	ctx := context.Background()

	counter.Add(ctx, 1, otel.NewAttr("source", "mind"))

	if value := metrics.GetCounterValue(otel.MetricFanoutErrors); value != 1 {
		t.Fatalf("expected counter value 1, got %d", value)
	}
}

func TestInMemoryMetrics_SameCounterReturned(t *testing.T) {
	metrics := otel.NewInMemoryMetrics()

	counter1 := metrics.Counter("same_counter")
	counter2 := metrics.Counter("same_counter")

	ctx := context.Background()
	counter1.Add(ctx, 5)
	counter2.Add(ctx, 3)

	if value := metrics.GetCounterValue("same_counter"); value != 8 {
		t.Fatalf("expected counter value 8, got %d", value)
	}
}

func TestInMemoryMetrics_Gauge(t *testing.T) {
	metrics := otel.NewInMemoryMetrics()
	gauge := metrics.Gauge(otel.MetricCacheSize)

	ctx := context.Background()
	gauge.Set(ctx, 42)
	gauge.Set(ctx, 17)

	if value := metrics.GetGaugeValue(otel.MetricCacheSize); value != 17 {
		t.Fatalf("expected gauge value 17, got %f", value)
	}
}

func TestInMemoryMetrics_ConcurrentAccess(t *testing.T) {
	metrics := otel.NewInMemoryMetrics()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				metrics.Counter("concurrent").Add(ctx, 1)
			}
		}()
	}
	wg.Wait()

	if value := metrics.GetCounterValue("concurrent"); value != 1000 {
		t.Fatalf("expected 1000, got %d", value)
	}
}

func TestNoopMetrics(t *testing.T) {
	metrics := otel.NewNoopMetrics()
	ctx := context.Background()

	// 空实现不应 panic
	metrics.Counter("x").Add(ctx, 1)
	metrics.Histogram("y").Record(ctx, 1.5)
	metrics.Gauge("z").Set(ctx, 2.0)
}

func TestConfig_Validate(t *testing.T) {
	cfg := otel.DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config must be valid: %v", err)
	}

	bad := otel.DefaultConfig()
	bad.Tracing.SampleRate = 2.0
	if err := bad.Validate(); err == nil {
		t.Fatal("expected error for sample rate > 1")
	}
}
