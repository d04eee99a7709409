package graph

import "time"

const (
	defaultRefreshInterval      = 20 * time.Minute
	defaultPresencePollInterval = 30 * time.Second
	defaultCallBufferWindow     = 50 * time.Millisecond
	defaultRetryInterval        = 10 * time.Second
	defaultPresenceThrottle     = 500 * time.Millisecond
	defaultMaxBatch             = 100
	defaultMaxMessagesPerTick   = 100

	// MaxUsersPerMessage bounds the ids carried by one queued message so a
	// single message never dominates a frame.
	MaxUsersPerMessage = 10
)

// Options tunes a social graph. Zero values select the defaults.
type Options struct {
	// RefreshInterval is the full graph refresh period.
	RefreshInterval time.Duration
	// PresencePollInterval is the rich presence poll period when polling
	// is enabled.
	PresencePollInterval time.Duration
	// CallBufferWindow is how long track requests are coalesced before a
	// batch fetch is issued.
	CallBufferWindow time.Duration
	// RetryInterval delays the next attempt after a failed fetch.
	RetryInterval time.Duration
	// PresenceThrottle is the minimum spacing between presence polls.
	PresenceThrottle time.Duration
	// MaxBatch caps the ids sent in one batch fetch.
	MaxBatch int
	// MaxMessagesPerTick caps inbox messages applied by one DoWork once
	// the graph is initialized.
	MaxMessagesPerTick int
	// Logf receives diagnostics. Nil is silent.
	Logf func(string, ...any)
	// Now overrides the clock.
	Now func() time.Time
}

func (o Options) normalized() Options {
	if o.RefreshInterval <= 0 {
		o.RefreshInterval = defaultRefreshInterval
	}
	if o.PresencePollInterval <= 0 {
		o.PresencePollInterval = defaultPresencePollInterval
	}
	if o.CallBufferWindow < 0 {
		o.CallBufferWindow = 0
	} else if o.CallBufferWindow == 0 {
		o.CallBufferWindow = defaultCallBufferWindow
	}
	if o.RetryInterval <= 0 {
		o.RetryInterval = defaultRetryInterval
	}
	if o.PresenceThrottle < 0 {
		o.PresenceThrottle = 0
	} else if o.PresenceThrottle == 0 {
		o.PresenceThrottle = defaultPresenceThrottle
	}
	if o.MaxBatch <= 0 {
		o.MaxBatch = defaultMaxBatch
	}
	if o.MaxMessagesPerTick <= 0 {
		o.MaxMessagesPerTick = defaultMaxMessagesPerTick
	}
	if o.Logf == nil {
		o.Logf = func(string, ...any) {}
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}
