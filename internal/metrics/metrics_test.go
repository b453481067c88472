package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	require.NoError(t, err)

	m.Batch("accepted")
	m.Encoded("/canine_chain.storage.MsgPostKey")
	m.Encoded("/canine_chain.storage.MsgPostKey")
	m.Dispatch("jackal", DispatchSent)
	m.Reply("dispatch_reply", "success")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.BatchesTotal.WithLabelValues("accepted")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.EncodedTotal.WithLabelValues("/canine_chain.storage.MsgPostKey")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DispatchesTotal.WithLabelValues("jackal", DispatchSent)))

	expected := `
# HELP usb_replies_total Completion notifications received, by reply action and outcome.
# TYPE usb_replies_total counter
usb_replies_total{action="dispatch_reply",outcome="success"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "usb_replies_total"))
}

func TestMetrics_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New(reg)
	require.NoError(t, err)
	_, err = New(reg)
	assert.Error(t, err)
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Batch("accepted")
		m.Encoded("/x")
		m.Dispatch("jackal", DispatchFailed)
		m.Reply("dispatch_reply", "failure")
	})
}
