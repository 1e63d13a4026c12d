package core

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type metricsCall struct {
	op      string
	success bool
}

type captureMetricsRecorder struct {
	mu    sync.Mutex
	calls []metricsCall
}

func (c *captureMetricsRecorder) Observe(_ context.Context, op string, success bool, _ time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, metricsCall{op: op, success: success})
}

func (c *captureMetricsRecorder) has(op string, success bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, call := range c.calls {
		if call.op == op && call.success == success {
			return true
		}
	}
	return false
}

type spanRecord struct {
	op  string
	err error
}

type captureTracer struct {
	mu    sync.Mutex
	ended []spanRecord
}

func (c *captureTracer) Start(ctx context.Context, op string) (context.Context, TraceSpan) {
	return ctx, &captureSpan{tracer: c, op: op}
}

func (c *captureTracer) has(op string, success bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, record := range c.ended {
		if record.op == op && (record.err == nil) == success {
			return true
		}
	}
	return false
}

type captureSpan struct {
	tracer *captureTracer
	op     string
}

func (s *captureSpan) End(err error) {
	s.tracer.mu.Lock()
	defer s.tracer.mu.Unlock()
	s.tracer.ended = append(s.tracer.ended, spanRecord{op: s.op, err: err})
}

func TestServiceObservesEveryOperation(t *testing.T) {
	ctx := context.Background()
	metrics := &captureMetricsRecorder{}
	tracer := &captureTracer{}
	svc := newTestService(t, WithMetricsRecorder(metrics), WithTracer(tracer))

	farm := mustFarm(t, svc, "Domaine de la Source", 5, 5)
	_, err := svc.PlaceTree(ctx, farm.ID, "F1", TreeAttributes{Species: "Olivier"})
	require.Error(t, err)
	_, err = svc.ComputeStatistics(ctx, farm.ID)
	require.NoError(t, err)

	assert.True(t, metrics.has("create_farm", true))
	assert.True(t, metrics.has("place_tree", false))
	assert.True(t, metrics.has("compute_statistics", true))
	assert.True(t, tracer.has("create_farm", true))
	assert.True(t, tracer.has("place_tree", false))
	assert.True(t, tracer.has("compute_statistics", true))
}

func TestPrometheusMetricsRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec, err := NewPrometheusMetricsRecorder(reg)
	require.NoError(t, err)

	svc := newTestService(t, WithMetricsRecorder(rec))
	farm := mustFarm(t, svc, "Verger", 2, 2)
	_, err = svc.PlaceTree(context.Background(), farm.ID, "Z9", TreeAttributes{Species: "Poirier"})
	require.Error(t, err)
	rec.Observe(context.Background(), "", true, time.Second)

	assert.Equal(t, 1.0, testutil.ToFloat64(rec.operations.WithLabelValues("create_farm", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.operations.WithLabelValues("place_tree", "error")))
	assert.Equal(t, 2, testutil.CollectAndCount(rec.durations))

	_, err = NewPrometheusMetricsRecorder(reg)
	assert.ErrorContains(t, err, "register core metrics")
}

func TestJSONTracer(t *testing.T) {
	var buf bytes.Buffer
	tracer := NewJSONTracer(&buf)
	svc := newTestService(t, WithTracer(tracer))

	farm := mustFarm(t, svc, "Verger", 2, 2)
	_, err := svc.GetTree(context.Background(), "missing")
	require.Error(t, err)
	_, err = svc.GetFarm(context.Background(), farm.ID)
	require.NoError(t, err)

	entries := tracer.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, "create_farm", entries[0].Operation)
	assert.Equal(t, "error", entries[1].Status)
	assert.Contains(t, entries[1].Error, "missing")
	assert.Equal(t, "success", entries[2].Status)
	assert.Equal(t, 3, strings.Count(buf.String(), "\n"))

	silent := NewJSONTracer(nil)
	_, span := silent.Start(context.Background(), "noop")
	span.End(nil)
	assert.Len(t, silent.Entries(), 1)
}
