package metrics

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	wardenerr "github.com/mrz1836/warden/pkg/errors"
)

func TestMetrics_RecordHTTPCall(t *testing.T) {
	t.Parallel()
	m := &Metrics{}

	m.RecordHTTPCall(EndpointIssuer, 100*time.Millisecond, nil)
	m.RecordHTTPCall(EndpointBroadcast, 50*time.Millisecond, wardenerr.ErrNetworkError)
	m.RecordHTTPCall(EndpointRegistry, 30*time.Millisecond, nil)
	m.RecordHTTPCall("other", 20*time.Millisecond, nil)

	snap := m.Snapshot()
	assert.Equal(t, int64(4), snap.HTTPCallsTotal)
	assert.Equal(t, int64(1), snap.HTTPErrorsTotal)
	assert.Equal(t, int64(1), snap.IssuerCalls)
	assert.Equal(t, int64(1), snap.BroadcastCalls)
	assert.Equal(t, int64(1), snap.RegistryCalls)
	assert.InDelta(t, 50.0, m.HTTPLatencyAvgMs(), 0.001)
}

func TestMetrics_CustodyCounters(t *testing.T) {
	t.Parallel()
	m := &Metrics{}

	m.RecordUnlock(nil)
	m.RecordUnlock(wardenerr.ErrWrongPassword)
	m.RecordSign(nil)
	m.RecordSign(wardenerr.ErrWalletLocked)
	m.RecordSign(nil)
	m.RecordAuthFlow(wardenerr.ErrUserCancelled)

	snap := m.Snapshot()
	assert.Equal(t, int64(2), snap.UnlocksTotal)
	assert.Equal(t, int64(1), snap.UnlockFailures)
	assert.Equal(t, int64(3), snap.SignaturesTotal)
	assert.Equal(t, int64(1), snap.SignFailures)
	assert.Equal(t, int64(1), snap.AuthFlowsTotal)
	assert.Equal(t, int64(1), snap.AuthFlowFailures)
}

func TestMetrics_NoCalls(t *testing.T) {
	t.Parallel()
	m := &Metrics{}
	assert.InDelta(t, 0.0, m.HTTPLatencyAvgMs(), 0.001)
}

func TestMetrics_Reset(t *testing.T) {
	t.Parallel()
	m := &Metrics{}
	m.RecordHTTPCall(EndpointIssuer, time.Second, wardenerr.ErrGeneral)
	m.RecordUnlock(nil)
	m.RecordSign(nil)
	m.RecordAuthFlow(nil)
	m.RecordThrottle(time.Second)

	m.Reset()
	assert.Equal(t, Snapshot{}, m.Snapshot())
}

func TestMetrics_Concurrent(t *testing.T) {
	t.Parallel()
	m := &Metrics{}

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.RecordHTTPCall(EndpointIssuer, time.Millisecond, nil)
			m.RecordSign(nil)
		}()
	}
	wg.Wait()

	snap := m.Snapshot()
	assert.Equal(t, int64(50), snap.IssuerCalls)
	assert.Equal(t, int64(50), snap.SignaturesTotal)
}

func TestMetrics_RecordThrottle(t *testing.T) {
	t.Parallel()
	m := &Metrics{}

	m.RecordThrottle(0)
	m.RecordThrottle(250 * time.Millisecond)
	m.RecordThrottle(time.Second)

	snap := m.Snapshot()
	assert.Equal(t, int64(3), snap.ThrottledTotal)
	assert.Equal(t, 1250*time.Millisecond, snap.ThrottleWait)
}
