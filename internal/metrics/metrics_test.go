package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func newTestCollector() *Collector {
	return New(prometheus.NewRegistry())
}

func TestSessionCreatedAndEnded_DriveActiveSessionsGauge(t *testing.T) {
	c := newTestCollector()
	c.SessionCreated()
	c.SessionCreated()
	assert.Equal(t, float64(2), testutil.ToFloat64(c.ActiveSessions))

	c.SessionEnded()
	assert.Equal(t, float64(1), testutil.ToFloat64(c.ActiveSessions))
}

func TestSubscriberJoinedAndLeft_DriveSubscribersGauge(t *testing.T) {
	c := newTestCollector()
	c.SubscriberJoined()
	c.SubscriberJoined()
	c.SubscriberLeft()
	assert.Equal(t, float64(1), testutil.ToFloat64(c.Subscribers))
}

func TestSubscriberDisconnected_DecrementsGaugeAndIncrementsCounter(t *testing.T) {
	c := newTestCollector()
	c.SubscriberJoined()
	c.SubscriberDisconnected("alice")

	assert.Equal(t, float64(0), testutil.ToFloat64(c.Subscribers))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.SubscriberDisconn))
}

func TestNew_RegistersEveryMetricAgainstTheGivenRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)

	families, err := reg.Gather()
	assert.NoError(t, err)
	assert.Len(t, families, 7)
}
