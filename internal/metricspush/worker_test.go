package metricspush

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/smallbiznis/carebill/internal/billingtest"
	"github.com/smallbiznis/carebill/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type capturePusher struct {
	families []*dto.MetricFamily
	calls    int
}

func (c *capturePusher) Push(_ context.Context, gatherer prometheus.Gatherer) error {
	c.calls++
	families, err := gatherer.Gather()
	c.families = families
	return err
}

func (c *capturePusher) gauge(name string) (float64, bool) {
	for _, f := range c.families {
		if f.GetName() == name && len(f.GetMetric()) > 0 {
			return f.GetMetric()[0].GetGauge().GetValue(), true
		}
	}
	return 0, false
}

func TestWorkerPushesBillingGauges(t *testing.T) {
	h := billingtest.New(t)
	enc := h.Encounter()
	h.LineItem(enc.ID, "LAB-FBC", "Laboratory", 120_000)
	h.LineItem(enc.ID, "XRAY-CHEST", "Radiology", 30_000)

	pusher := &capturePusher{}
	w := NewWorker(Params{Cfg: config.Config{}, Log: zap.NewNop(), DB: h.DB, Pusher: pusher})
	require.True(t, w.Enabled())
	require.NoError(t, w.PushOnce(context.Background()))

	assert.Equal(t, 1, pusher.calls)
	amount, ok := pusher.gauge("carebill_outstanding_amount_minor")
	require.True(t, ok)
	assert.Equal(t, float64(150_000), amount)
	items, _ := pusher.gauge("carebill_outstanding_line_items")
	assert.Equal(t, float64(2), items)
	leaks, ok := pusher.gauge("carebill_unresolved_leaks")
	require.True(t, ok)
	assert.Zero(t, leaks)
}

func TestWorkerWithoutPusherIsNoop(t *testing.T) {
	w := NewWorker(Params{Cfg: config.Config{}, Log: zap.NewNop()})
	assert.False(t, w.Enabled())
	assert.NoError(t, w.PushOnce(context.Background()))
}
