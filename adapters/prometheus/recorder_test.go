package prometheus

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func gatherFamily(t *testing.T, registry *prometheus.Registry, name string) *dto.MetricFamily {
	t.Helper()
	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather failed: %v", err)
	}
	for _, family := range families {
		if family.GetName() == name {
			return family
		}
	}
	t.Fatalf("metric family %q not found", name)
	return nil
}

func TestIncCounterRegistersAndAccumulates(t *testing.T) {
	registry := prometheus.NewRegistry()
	recorder := NewRecorder(WithRegisterer(registry))
	ctx := context.Background()

	tags := map[string]string{"operation": "cards.load", "outcome": "ok"}
	recorder.IncCounter(ctx, "wallet.operations", 1, tags)
	recorder.IncCounter(ctx, "wallet.operations", 2, tags)

	family := gatherFamily(t, registry, "wallet_wallet_operations")
	if len(family.Metric) != 1 {
		t.Fatalf("expected one series, got %d", len(family.Metric))
	}
	if got := family.Metric[0].GetCounter().GetValue(); got != 3 {
		t.Fatalf("expected counter value 3, got %v", got)
	}
}

func TestCounterSchemaFixedByFirstUse(t *testing.T) {
	registry := prometheus.NewRegistry()
	recorder := NewRecorder(WithRegisterer(registry))
	ctx := context.Background()

	recorder.IncCounter(ctx, "enrollments", 1, map[string]string{"phase": "finished"})
	// A later call with an unknown tag must not panic; the extra tag is
	// dropped and the known label defaults to empty.
	recorder.IncCounter(ctx, "enrollments", 1, map[string]string{"unrelated": "x"})

	family := gatherFamily(t, registry, "wallet_enrollments")
	total := 0.0
	for _, metric := range family.Metric {
		total += metric.GetCounter().GetValue()
	}
	if total != 2 {
		t.Fatalf("expected 2 increments across series, got %v", total)
	}
}

func TestObserveHistogram(t *testing.T) {
	registry := prometheus.NewRegistry()
	recorder := NewRecorder(
		WithRegisterer(registry),
		WithNamespace("walletsdk"),
		WithHistogramBuckets([]float64{0.1, 1, 10}),
	)

	recorder.ObserveHistogram(context.Background(), "operation.duration", 0.42, map[string]string{"operation": "bringup"})

	family := gatherFamily(t, registry, "walletsdk_operation_duration")
	histogram := family.Metric[0].GetHistogram()
	if histogram.GetSampleCount() != 1 {
		t.Fatalf("expected 1 sample, got %d", histogram.GetSampleCount())
	}
	if histogram.GetSampleSum() != 0.42 {
		t.Fatalf("expected sum 0.42, got %v", histogram.GetSampleSum())
	}
}

func TestSanitizeName(t *testing.T) {
	cases := map[string]string{
		"wallet.cards.load": "wallet_cards_load",
		"  spaced out  ":    "spaced_out",
		"1starts-numeric":   "_1starts_numeric",
		"":                  "",
	}
	for input, want := range cases {
		if got := sanitizeName(input); got != want {
			t.Fatalf("sanitizeName(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestZeroAndNegativeCountersIgnored(t *testing.T) {
	registry := prometheus.NewRegistry()
	recorder := NewRecorder(WithRegisterer(registry))

	recorder.IncCounter(context.Background(), "noop", 0, nil)
	recorder.IncCounter(context.Background(), "noop", -5, nil)

	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather failed: %v", err)
	}
	if len(families) != 0 {
		t.Fatalf("expected no registered metrics, got %d families", len(families))
	}
}
