package metrics

import (
	"testing"

	"go.opentelemetry.io/otel/attribute"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("method", "CASH"),
		attribute.String("encounter_id", "456"),
		attribute.String("entity_type", "lab_result"),
	)
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	if attrs[0].Key != "method" && attrs[1].Key != "method" {
		t.Fatalf("expected method to be retained")
	}
	if attrs[0].Key != "entity_type" && attrs[1].Key != "entity_type" {
		t.Fatalf("expected entity_type to be retained")
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.RecordPayment(t.Context(), "CASH")
	m.RecordAllocation(t.Context(), "CASH", 100)
	m.RecordGateFallback(t.Context(), "consultation", "outstanding_balance")
}
