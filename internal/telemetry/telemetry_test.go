// ABOUTME: Tests for the operation wrapper
// ABOUTME: Verifies error passthrough, wrapping, panic recovery and metric labels

package telemetry

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/fanclub-gateway/internal/apperr"
)

func newTestInstrument(t *testing.T) (Instrument, *Metrics, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	metrics := NewMetrics(prometheus.NewRegistry())
	return NewInstrument("club", logger, metrics), metrics, &buf
}

func TestRun_Success(t *testing.T) {
	in, metrics, _ := newTestInstrument(t)

	got, err := Run(context.Background(), in, "Create", "c1", func(ctx context.Context) (string, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.operations.WithLabelValues("club", "Create", "OK")))
}

func TestRun_DomainErrorPassesThrough(t *testing.T) {
	in, metrics, buf := newTestInstrument(t)
	domain := apperr.NotFound("club not found")

	_, err := Run(context.Background(), in, "Get", "c1", func(ctx context.Context) (int, error) {
		return 0, domain
	})
	assert.Same(t, domain, err)
	assert.Contains(t, buf.String(), "level=WARN")
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.operations.WithLabelValues("club", "Get", "NOT_FOUND")))
}

func TestRun_InfraErrorIsPrefixed(t *testing.T) {
	in, _, buf := newTestInstrument(t)
	cause := errors.New("disk I/O error")

	_, err := Run(context.Background(), in, "Get", "c1", func(ctx context.Context) (int, error) {
		return 0, cause
	})
	require.ErrorIs(t, err, cause)
	assert.Equal(t, "Get: disk I/O error", err.Error())
	assert.Equal(t, apperr.CodeInternal, apperr.CodeOf(err))
	assert.Contains(t, buf.String(), "level=ERROR")
}

func TestRun_RecoversPanic(t *testing.T) {
	in, metrics, _ := newTestInstrument(t)

	got, err := Run(context.Background(), in, "Delete", "c1", func(ctx context.Context) (*int, error) {
		panic("nil map write")
	})
	assert.Nil(t, got)
	require.Error(t, err)
	assert.Equal(t, apperr.CodeInternal, apperr.CodeOf(err))
	assert.Equal(t, "internal error", apperr.PublicMessage(err))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.operations.WithLabelValues("club", "Delete", "INTERNAL")))
}

func TestRun_NilMetricsAndLogger(t *testing.T) {
	_, err := Run(context.Background(), Instrument{Component: "feed"}, "Like", "p1", func(ctx context.Context) (bool, error) {
		return true, nil
	})
	assert.NoError(t, err)
}
