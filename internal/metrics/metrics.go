// Package metrics keeps process-wide counters using atomics.
package metrics

import (
	"sync/atomic"
	"time"
)

// Endpoint names accepted by RecordHTTPCall.
const (
	EndpointIssuer    = "issuer"
	EndpointBroadcast = "broadcast"
	EndpointRegistry  = "registry"
)

// Metrics holds counters for remote calls and custody operations.
type Metrics struct {
	httpCallsTotal   atomic.Int64
	httpErrorsTotal  atomic.Int64
	httpLatencyNanos atomic.Int64

	issuerCalls    atomic.Int64
	broadcastCalls atomic.Int64
	registryCalls  atomic.Int64

	unlocksTotal   atomic.Int64
	unlockFailures atomic.Int64

	signaturesTotal atomic.Int64
	signFailures    atomic.Int64

	authFlowsTotal   atomic.Int64
	authFlowFailures atomic.Int64

	throttledTotal    atomic.Int64
	throttleWaitNanos atomic.Int64
}

// Global is the process-wide instance.
//
//nolint:gochecknoglobals // Intentional global for metrics access
var Global = &Metrics{}

// RecordHTTPCall records one request to a remote endpoint.
func (m *Metrics) RecordHTTPCall(endpoint string, duration time.Duration, err error) {
	m.httpCallsTotal.Add(1)
	m.httpLatencyNanos.Add(duration.Nanoseconds())
	if err != nil {
		m.httpErrorsTotal.Add(1)
	}

	switch endpoint {
	case EndpointIssuer:
		m.issuerCalls.Add(1)
	case EndpointBroadcast:
		m.broadcastCalls.Add(1)
	case EndpointRegistry:
		m.registryCalls.Add(1)
	}
}

// RecordUnlock records an unlock attempt.
func (m *Metrics) RecordUnlock(err error) {
	m.unlocksTotal.Add(1)
	if err != nil {
		m.unlockFailures.Add(1)
	}
}

// RecordSign records a signing attempt.
func (m *Metrics) RecordSign(err error) {
	m.signaturesTotal.Add(1)
	if err != nil {
		m.signFailures.Add(1)
	}
}

// RecordAuthFlow records a finished login or link flow.
func (m *Metrics) RecordAuthFlow(err error) {
	m.authFlowsTotal.Add(1)
	if err != nil {
		m.authFlowFailures.Add(1)
	}
}

// RecordThrottle records a request the rate limiter held back. waited is how
// long it was made to sleep; 0 means it was refused outright.
func (m *Metrics) RecordThrottle(waited time.Duration) {
	m.throttledTotal.Add(1)
	m.throttleWaitNanos.Add(waited.Nanoseconds())
}

// Snapshot is a point-in-time copy of all counters.
type Snapshot struct {
	HTTPCallsTotal   int64
	HTTPErrorsTotal  int64
	HTTPLatencyNanos int64
	IssuerCalls      int64
	BroadcastCalls   int64
	RegistryCalls    int64
	UnlocksTotal     int64
	UnlockFailures   int64
	SignaturesTotal  int64
	SignFailures     int64
	AuthFlowsTotal   int64
	AuthFlowFailures int64
	ThrottledTotal   int64
	ThrottleWait     time.Duration
}

// Snapshot returns a point-in-time copy of all counters.
func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		HTTPCallsTotal:   m.httpCallsTotal.Load(),
		HTTPErrorsTotal:  m.httpErrorsTotal.Load(),
		HTTPLatencyNanos: m.httpLatencyNanos.Load(),
		IssuerCalls:      m.issuerCalls.Load(),
		BroadcastCalls:   m.broadcastCalls.Load(),
		RegistryCalls:    m.registryCalls.Load(),
		UnlocksTotal:     m.unlocksTotal.Load(),
		UnlockFailures:   m.unlockFailures.Load(),
		SignaturesTotal:  m.signaturesTotal.Load(),
		SignFailures:     m.signFailures.Load(),
		AuthFlowsTotal:   m.authFlowsTotal.Load(),
		AuthFlowFailures: m.authFlowFailures.Load(),
		ThrottledTotal:   m.throttledTotal.Load(),
		ThrottleWait:     time.Duration(m.throttleWaitNanos.Load()),
	}
}

// HTTPLatencyAvgMs returns the mean request latency, 0 with no calls.
func (m *Metrics) HTTPLatencyAvgMs() float64 {
	calls := m.httpCallsTotal.Load()
	if calls == 0 {
		return 0
	}
	return float64(m.httpLatencyNanos.Load()) / float64(calls) / 1e6
}

// Reset zeroes every counter. Tests only.
func (m *Metrics) Reset() {
	m.httpCallsTotal.Store(0)
	m.httpErrorsTotal.Store(0)
	m.httpLatencyNanos.Store(0)
	m.issuerCalls.Store(0)
	m.broadcastCalls.Store(0)
	m.registryCalls.Store(0)
	m.unlocksTotal.Store(0)
	m.unlockFailures.Store(0)
	m.signaturesTotal.Store(0)
	m.signFailures.Store(0)
	m.authFlowsTotal.Store(0)
	m.authFlowFailures.Store(0)
	m.throttledTotal.Store(0)
	m.throttleWaitNanos.Store(0)
}
