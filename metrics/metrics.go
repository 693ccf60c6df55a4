// Package metrics is mintpool's in-process counter/gauge registry. It
// mirrors the shape of the teacher's metrics usage in
// go-probe-master/probe/downloader/metrics.go (package-level named
// meters/counters registered once, read by whatever external layer wants
// them) generalized to a small explicit registry rather than a global
// package, since mintpool's metrics are read directly by the controller's
// caller (SPEC_FULL.md §4.2 expansion) instead of exported over a metrics
// HTTP endpoint.
package metrics

import (
	"sync"
	"sync/atomic"
)

// Counter is a monotonically increasing named counter.
type Counter struct {
	name  string
	value int64
}

func (c *Counter) Name() string  { return c.name }
func (c *Counter) Value() int64  { return atomic.LoadInt64(&c.value) }
func (c *Counter) Inc(delta int64) { atomic.AddInt64(&c.value, delta) }

// Registry is the full set of counters a running node exposes, grouped by
// the SPEC_FULL.md §4.2 expansion's named hooks: premints accepted/rejected
// (by rule), broadcasts sent, premints received, claims retired (by mode),
// sync ticks fired, sync premints pulled.
type Registry struct {
	PremintsAccepted  *Counter
	BroadcastsSent    *Counter
	PremintsReceived  *Counter
	SyncTicks         *Counter
	SyncPremintsPulled *Counter

	mu                sync.Mutex
	premintsRejected  map[string]*Counter
	claimsRetired     map[string]*Counter

	Process *ProcessGauges
}

// NewRegistry constructs an empty registry with its fixed counters
// allocated and its per-label maps ready for lazy registration.
func NewRegistry() *Registry {
	return &Registry{
		PremintsAccepted:   &Counter{name: "premints_accepted"},
		BroadcastsSent:     &Counter{name: "broadcasts_sent"},
		PremintsReceived:   &Counter{name: "premints_received"},
		SyncTicks:          &Counter{name: "sync_ticks"},
		SyncPremintsPulled: &Counter{name: "sync_premints_pulled"},
		premintsRejected:   make(map[string]*Counter),
		claimsRetired:      make(map[string]*Counter),
		Process:            NewProcessGauges(),
	}
}

// PremintRejected increments the per-rule-name rejection counter,
// registering it on first use.
func (r *Registry) PremintRejected(ruleName string) {
	r.mu.Lock()
	c, ok := r.premintsRejected[ruleName]
	if !ok {
		c = &Counter{name: "premints_rejected." + ruleName}
		r.premintsRejected[ruleName] = c
	}
	r.mu.Unlock()
	c.Inc(1)
}

// ClaimRetired increments the per-mode retirement counter ("check",
// "verify", or "trust"), registering it on first use.
func (r *Registry) ClaimRetired(mode string) {
	r.mu.Lock()
	c, ok := r.claimsRetired[mode]
	if !ok {
		c = &Counter{name: "claims_retired." + mode}
		r.claimsRetired[mode] = c
	}
	r.mu.Unlock()
	c.Inc(1)
}

// PremintsRejectedByRule returns a snapshot of every rule's rejection
// count, keyed by rule name.
func (r *Registry) PremintsRejectedByRule() map[string]int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]int64, len(r.premintsRejected))
	for name, c := range r.premintsRejected {
		out[name] = c.Value()
	}
	return out
}

// ClaimsRetiredByMode returns a snapshot of every mode's retirement count.
func (r *Registry) ClaimsRetiredByMode() map[string]int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]int64, len(r.claimsRetired))
	for mode, c := range r.claimsRetired {
		out[mode] = c.Value()
	}
	return out
}
