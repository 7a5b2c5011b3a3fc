package instrument

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_SpanCountsByStatus(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	require.NoError(t, err)

	_, span := m.StartSpan(context.Background(), "store", "exec")
	span.SetEntity("Invoice")
	span.End()
	span.End()

	_, span = m.StartSpan(context.Background(), "store", "exec")
	span.SetEntity("Invoice")
	span.SetStatus(Status(errors.New("boom")))
	span.End()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.operations.WithLabelValues("store", "exec", "Invoice", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.operations.WithLabelValues("store", "exec", "Invoice", "error")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.duration))
}

func TestMetrics_Events(t *testing.T) {
	m, err := NewMetrics(nil)
	require.NoError(t, err)

	m.EmitEvent("keyvault", "issue", "Invoice")
	m.EmitEvent("keyvault", "issue", "Invoice")
	assert.Equal(t, 2.0, testutil.ToFloat64(m.events.WithLabelValues("keyvault", "issue", "Invoice")))
}

func TestMetrics_DoubleRegistrationFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewMetrics(reg)
	require.NoError(t, err)
	_, err = NewMetrics(reg)
	assert.Error(t, err)
}

func TestGetInstrumenter_DefaultsToNoop(t *testing.T) {
	ctx := context.Background()
	assert.IsType(t, &NoopInstrumenter{}, GetInstrumenter(ctx))

	m, err := NewMetrics(nil)
	require.NoError(t, err)
	assert.Same(t, m, GetInstrumenter(WithInstrumenter(ctx, m)))
}
