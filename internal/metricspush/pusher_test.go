package metricspush

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang/snappy"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/prometheus/prompb"
	"github.com/smallbiznis/carebill/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/protoadapt"
)

func TestNewPusherSelectsExporter(t *testing.T) {
	log := zap.NewNop()
	base := config.Config{AppName: "carebill", Environment: "test"}

	assert.Nil(t, NewPusher(base, log))

	cfg := base
	cfg.Metrics = config.MetricsPushConfig{Enabled: true, Exporter: ExporterPushgateway}
	assert.Nil(t, NewPusher(cfg, log), "endpoint is required")

	cfg.Metrics.Endpoint = "http://pushgateway:9091"
	assert.IsType(t, &PushgatewayPusher{}, NewPusher(cfg, log))

	cfg.Metrics.Exporter = ExporterPrometheusRemoteWrite
	assert.IsType(t, &RemoteWritePusher{}, NewPusher(cfg, log))

	cfg.Metrics.Endpoint = "not a url"
	assert.Nil(t, NewPusher(cfg, log))

	cfg.Metrics.Exporter = ExporterOTLP
	cfg.Metrics.Endpoint = "https://collector:4317"
	p, ok := NewPusher(cfg, log).(*OTLPPusher)
	require.True(t, ok)
	assert.Equal(t, "collector:4317", p.address)
	assert.True(t, p.secure)

	cfg.Metrics.Exporter = "statsd"
	assert.Nil(t, NewPusher(cfg, log))
}

func TestRemoteWritePushSendsCountersAndGauges(t *testing.T) {
	var got prompb.WriteRequest
	var headers http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers = r.Header.Clone()
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		raw, err := snappy.Decode(nil, body)
		require.NoError(t, err)
		require.NoError(t, proto.Unmarshal(raw, protoadapt.MessageV2Of(&got)))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	registry := prometheus.NewRegistry()
	counter := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "carebill_leaks_total"}, []string{"department"})
	gauge := prometheus.NewGauge(prometheus.GaugeOpts{Name: "carebill_unresolved_leaks"})
	histogram := prometheus.NewHistogram(prometheus.HistogramOpts{Name: "carebill_latency_seconds"})
	registry.MustRegister(counter, gauge, histogram)
	counter.WithLabelValues("Radiology").Add(3)
	gauge.Set(2)
	histogram.Observe(0.2)

	p := NewRemoteWritePusher(srv.URL, "secret")
	require.NoError(t, p.Push(context.Background(), registry))

	assert.Equal(t, "snappy", headers.Get("Content-Encoding"))
	assert.Equal(t, "Bearer secret", headers.Get("Authorization"))
	require.Len(t, got.Timeseries, 2)

	values := map[string]float64{}
	for _, ts := range got.Timeseries {
		for _, l := range ts.Labels {
			if l.Name == "__name__" {
				values[l.Value] = ts.Samples[0].Value
			}
		}
	}
	assert.Equal(t, float64(3), values["carebill_leaks_total"])
	assert.Equal(t, float64(2), values["carebill_unresolved_leaks"])
}

func TestRemoteWritePushReportsRejectedWrite(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	registry := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "carebill_payments_total"})
	registry.MustRegister(c)
	c.Inc()

	err := NewRemoteWritePusher(srv.URL, "").Push(context.Background(), registry)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
}

func TestBuildOTLPMetricsSkipsHistograms(t *testing.T) {
	registry := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "carebill_payments_total"})
	g := prometheus.NewGauge(prometheus.GaugeOpts{Name: "carebill_outstanding_line_items"})
	h := prometheus.NewHistogram(prometheus.HistogramOpts{Name: "carebill_latency_seconds"})
	registry.MustRegister(c, g, h)
	c.Inc()
	g.Set(4)
	h.Observe(1)

	families, err := registry.Gather()
	require.NoError(t, err)
	metrics := buildOTLPMetrics(families, 1)
	require.Len(t, metrics, 2)
	for _, m := range metrics {
		switch m.GetName() {
		case "carebill_payments_total":
			assert.True(t, m.GetSum().GetIsMonotonic())
		case "carebill_outstanding_line_items":
			assert.Equal(t, float64(4), m.GetGauge().GetDataPoints()[0].GetAsDouble())
		default:
			t.Fatalf("unexpected metric %s", m.GetName())
		}
	}
}
