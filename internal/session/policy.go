package session

import (
	"fmt"
	"time"

	"github.com/mcuadros/go-defaults"
)

// Limit is an optional retry budget. The zero value is unlimited.
type Limit struct {
	n   uint32
	set bool
}

// Unlimited never gives up.
func Unlimited() Limit { return Limit{} }

// MaxRetries allows n retries; MaxRetries(0) gives up on the first occurrence.
func MaxRetries(n uint32) Limit { return Limit{n: n, set: true} }

// Value returns the budget; ok is false when unlimited.
func (l Limit) Value() (n uint32, ok bool) { return l.n, l.set }

// IsUnlimited reports whether the limit has no budget.
func (l Limit) IsUnlimited() bool { return !l.set }

// allows reports whether another retry fits once count retries were spent.
func (l Limit) allows(count uint32) bool {
	return !l.set || count < l.n
}

func (l Limit) String() string {
	if !l.set {
		return "unlimited"
	}
	return fmt.Sprintf("%d", l.n)
}

// ConnectionPolicy configures a connection attempt chain.
type ConnectionPolicy struct {
	// ConnectionTimeout bounds each attempt, measured from the adapter connect call.
	ConnectionTimeout time.Duration `default:"10s"`

	// DisconnectTimeout bounds how long a forced disconnect waits for the
	// adapter to confirm before ForceDisconnect is emitted anyway.
	DisconnectTimeout time.Duration `default:"5s"`

	// TimeoutRetryLimit bounds consecutive attempts that time out.
	TimeoutRetryLimit Limit

	// DisconnectRetryLimit bounds automatic reconnects after unexpected link loss.
	DisconnectRetryLimit Limit
}

// DefaultConnectionPolicy retries forever with the default timeouts.
func DefaultConnectionPolicy() ConnectionPolicy {
	var p ConnectionPolicy
	defaults.SetDefaults(&p)
	return p
}

// withDefaults fills zero durations from DefaultConnectionPolicy.
func (p ConnectionPolicy) withDefaults() ConnectionPolicy {
	d := DefaultConnectionPolicy()
	if p.ConnectionTimeout <= 0 {
		p.ConnectionTimeout = d.ConnectionTimeout
	}
	if p.DisconnectTimeout <= 0 {
		p.DisconnectTimeout = d.DisconnectTimeout
	}
	return p
}
