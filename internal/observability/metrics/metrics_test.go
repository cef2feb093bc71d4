package metrics

import (
	"testing"

	"go.opentelemetry.io/otel/attribute"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("metric_name", "api_calls"),
		attribute.String("customer_id", "456"),
		attribute.String("kind", "period"),
	)
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	if attrs[0].Key != "metric_name" && attrs[1].Key != "metric_name" {
		t.Fatalf("expected metric_name to be retained")
	}
	if attrs[0].Key != "kind" && attrs[1].Key != "kind" {
		t.Fatalf("expected kind to be retained")
	}
}
