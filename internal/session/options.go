package session

import (
	"io"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"github.com/srg/gattsession/internal/codec"
)

// Options holds the tunables of a session.
type Options struct {
	// OperationTimeout applies to characteristic and RSSI requests issued with
	// a zero timeout.
	OperationTimeout time.Duration `default:"10s"`

	// DiscoveryTimeout bounds a whole discovery run. Zero disables it.
	DiscoveryTimeout time.Duration `default:"10s"`

	// ManualDiscovery disables service discovery on connect.
	ManualDiscovery bool

	// RSSIPollPeriod is the polling interval used by StartPollingRSSI for
	// non-positive periods.
	RSSIPollPeriod time.Duration `default:"10s"`

	UpdateBuffer int    `default:"128"`
	EventBuffer  int    `default:"64"`
	RSSIBuffer   int    `default:"16"`
	HistorySize  uint32 `default:"64"`
}

type settings struct {
	Options
	logger *logrus.Logger
	clock  Clock
	codecs *codec.Registry
}

// Option configures a Session.
type Option func(*settings)

// WithOptions replaces every tunable at once.
func WithOptions(opts Options) Option {
	return func(s *settings) { s.Options = opts }
}

func WithOperationTimeout(d time.Duration) Option {
	return func(s *settings) { s.OperationTimeout = d }
}

func WithDiscoveryTimeout(d time.Duration) Option {
	return func(s *settings) { s.DiscoveryTimeout = d }
}

// WithManualDiscovery leaves discovery to explicit DiscoverServices calls.
func WithManualDiscovery() Option {
	return func(s *settings) { s.ManualDiscovery = true }
}

func WithUpdateBuffer(n int) Option {
	return func(s *settings) { s.UpdateBuffer = n }
}

func WithHistorySize(n uint32) Option {
	return func(s *settings) { s.HistorySize = n }
}

func WithLogger(logger *logrus.Logger) Option {
	return func(s *settings) { s.logger = logger }
}

// WithClock substitutes the time source, e.g. a manual clock in tests.
func WithClock(clock Clock) Option {
	return func(s *settings) { s.clock = clock }
}

// WithCodecs substitutes the codec registry.
func WithCodecs(r *codec.Registry) Option {
	return func(s *settings) { s.codecs = r }
}

// DefaultOptions returns the default tunables.
func DefaultOptions() Options {
	var o Options
	defaults.SetDefaults(&o)
	return o
}

func newSettings(opts []Option) settings {
	st := settings{Options: DefaultOptions()}
	for _, opt := range opts {
		opt(&st)
	}
	if st.logger == nil {
		st.logger = logrus.New()
		st.logger.SetOutput(io.Discard)
	}
	if st.clock == nil {
		st.clock = RealClock()
	}
	if st.codecs == nil {
		st.codecs = codec.DefaultRegistry()
	}
	if st.HistorySize == 0 {
		st.HistorySize = DefaultOptions().HistorySize
	}
	return st
}
