package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes application-level instruments.
type Metrics struct {
	lineItems       metric.Int64Counter
	payments        metric.Int64Counter
	allocatedAmount metric.Int64Counter
	leaksDetected   metric.Int64Counter
	reconciliations metric.Int64Counter
	gateFallbacks   metric.Int64Counter
	webhookEvents   metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "carebill"
	}
	meter := provider.Meter(name)

	lineItems, err := meter.Int64Counter("carebill_line_items_total")
	if err != nil {
		return nil, err
	}
	payments, err := meter.Int64Counter("carebill_payments_total")
	if err != nil {
		return nil, err
	}
	allocatedAmount, err := meter.Int64Counter("carebill_allocated_amount_total",
		metric.WithUnit("{kobo}"),
	)
	if err != nil {
		return nil, err
	}
	leaksDetected, err := meter.Int64Counter("carebill_leaks_detected_total")
	if err != nil {
		return nil, err
	}
	reconciliations, err := meter.Int64Counter("carebill_reconciliation_transitions_total")
	if err != nil {
		return nil, err
	}
	gateFallbacks, err := meter.Int64Counter("carebill_payment_gate_fallbacks_total")
	if err != nil {
		return nil, err
	}
	webhookEvents, err := meter.Int64Counter("carebill_webhook_events_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		lineItems:       lineItems,
		payments:        payments,
		allocatedAmount: allocatedAmount,
		leaksDetected:   leaksDetected,
		reconciliations: reconciliations,
		gateFallbacks:   gateFallbacks,
		webhookEvents:   webhookEvents,
	}, nil
}

// RecordLineItem counts line item lifecycle operations.
func (m *Metrics) RecordLineItem(ctx context.Context, operation string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("operation", strings.TrimSpace(operation)))
	m.lineItems.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordPayment counts appended payment records by method.
func (m *Metrics) RecordPayment(ctx context.Context, method string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("method", strings.TrimSpace(method)))
	m.payments.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordAllocation adds the amount distributed onto line items.
func (m *Metrics) RecordAllocation(ctx context.Context, method string, amount int64) {
	if m == nil || amount <= 0 {
		return
	}
	attrs := FilterAttributes(attribute.String("method", strings.TrimSpace(method)))
	m.allocatedAmount.Add(ctx, amount, metric.WithAttributes(attrs...))
}

// RecordLeakDetected counts newly flagged leaks by fulfillment entity type.
func (m *Metrics) RecordLeakDetected(ctx context.Context, entityType string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("entity_type", strings.TrimSpace(entityType)))
	m.leaksDetected.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordReconciliation counts reconciliation status transitions.
func (m *Metrics) RecordReconciliation(ctx context.Context, status string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("status", strings.TrimSpace(status)))
	m.reconciliations.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordGateFallback counts gates opened by a fallback rule rather than a PAID item.
func (m *Metrics) RecordGateFallback(ctx context.Context, gate, reason string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("gate", strings.TrimSpace(gate)),
		attribute.String("reason", strings.TrimSpace(reason)),
	)
	m.gateFallbacks.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordWebhookEvent counts gateway webhook deliveries.
func (m *Metrics) RecordWebhookEvent(ctx context.Context, provider, eventType string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("provider", strings.TrimSpace(provider)),
		attribute.String("event_type", strings.TrimSpace(eventType)),
	)
	m.webhookEvents.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"operation":   {},
	"method":      {},
	"entity_type": {},
	"status":      {},
	"gate":        {},
	"provider":    {},
	"event_type":  {},
	"reason":      {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
