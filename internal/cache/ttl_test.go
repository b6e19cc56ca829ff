package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTTLExpiry(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2025, 11, 20, 6, 0, 0, 0, time.UTC))
	c := New[string]("test", clock)

	c.Put("forecast", "cold", 2*time.Hour)

	v, ok := c.Get("forecast")
	require.True(t, ok)
	assert.Equal(t, "cold", v)

	clock.Advance(2*time.Hour - time.Second)
	_, ok = c.Get("forecast")
	assert.True(t, ok, "entry should live until its ttl elapses")

	clock.Advance(time.Second)
	_, ok = c.Get("forecast")
	assert.False(t, ok, "entry should be absent once ttl elapses")
	assert.Equal(t, 0, c.Len(), "expired entry should be evicted on read")
}

func lookups(t *testing.T, name, result string) float64 {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != "huntstack_cache_lookups_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			labels := map[string]string{}
			for _, l := range m.GetLabel() {
				labels[l.GetName()] = l.GetValue()
			}
			if labels["cache"] == name && labels["result"] == result {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func TestTTLLookupMetrics(t *testing.T) {
	clock := clockwork.NewFakeClock()
	c := New[string]("lookup-metrics", clock)

	c.Get("absent")
	c.Put("k", "v", time.Minute)
	c.Get("k")
	clock.Advance(time.Minute)
	c.Get("k")
	c.Get("k")

	assert.Equal(t, 2.0, lookups(t, "lookup-metrics", "miss"))
	assert.Equal(t, 1.0, lookups(t, "lookup-metrics", "hit"))
	assert.Equal(t, 1.0, lookups(t, "lookup-metrics", "expired"))
}

func TestTTLPermanent(t *testing.T) {
	clock := clockwork.NewFakeClock()
	c := New[int]("test", clock)

	c.Put("grid", 42, Permanent)
	clock.Advance(365 * 24 * time.Hour)

	v, ok := c.Get("grid")
	require.True(t, ok)
	assert.Equal(t, 42, v)
}

func TestTTLOverwriteResetsExpiry(t *testing.T) {
	clock := clockwork.NewFakeClock()
	c := New[string]("test", clock)

	c.Put("k", "a", time.Minute)
	clock.Advance(50 * time.Second)
	c.Put("k", "b", time.Minute)
	clock.Advance(50 * time.Second)

	v, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, "b", v)
}

func TestTTLMissAndDelete(t *testing.T) {
	c := New[string]("test", nil)

	_, ok := c.Get("missing")
	assert.False(t, ok)

	c.Put("k", "v", time.Hour)
	c.Delete("k")
	_, ok = c.Get("k")
	assert.False(t, ok)
}

func TestTTLConcurrentAccess(t *testing.T) {
	c := New[int]("test", nil)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("k%d", i%5)
			c.Put(key, i, time.Hour)
			c.Get(key)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 5, c.Len())
}
