package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestEngineMetricsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Transition("payment", "ACCEPTED")
	m.Transition("payment", "ACCEPTED")
	m.Moved("contribution", 1000)
	m.SweepRecord("expirations", "expired")
	m.SweepRecord("", "failed")
	m.ObserveJob("settlements", 10*time.Millisecond, nil)
	m.ObserveJob("settlements", 10*time.Millisecond, errors.New("boom"))
	m.Notification(errors.New("smtp down"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.transitions.WithLabelValues("payment", "ACCEPTED")))
	assert.Equal(t, 1000.0, testutil.ToFloat64(m.moved.WithLabelValues("contribution")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sweepRecords.WithLabelValues("unknown", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.jobRuns.WithLabelValues("settlements", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.jobRuns.WithLabelValues("settlements", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.notifications.WithLabelValues("failed")))
}

func TestNilMetricsAreNoop(t *testing.T) {
	var m *EngineMetrics
	m.Transition("donation", "DENIED")
	m.ObserveJob("x", time.Second, nil)

	empty := New(nil)
	empty.SweepRecord("donations", "denied")
	empty.Notification(nil)
}
