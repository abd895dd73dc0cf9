// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package mps

import (
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/rs/zerolog"
)

// Mode selects TLS or DTLS framing semantics for Layer 3: handshake
// header width (4 vs 13 bytes), fragmentation fields, and whether
// pause/resume applies (TLS only).
type Mode uint8

const (
	// TLS enables 4-byte handshake headers and pause/resume.
	TLS Mode = 1
	// DTLS enables 13-byte handshake headers with fragmentation fields
	// and disables pause/resume (handshake messages are not paused
	// across records in DTLS; they use frag_offset/frag_len instead).
	DTLS Mode = 2
)

// maxGroupDepth bounds how deeply Extended Writer/Reader groups may nest.
const maxGroupDepth = 5

// Options configures a Writer/Reader pair and the Layer 3 state machine
// built on top of them.
type Options struct {
	Mode Mode

	// GroupDepth bounds the nesting depth of Extended Writer/Reader
	// groups. Zero means the design default (maxGroupDepth).
	GroupDepth int

	// QueueCapacity sizes the Writer's externally-owned queue buffer
	// when none is supplied explicitly via NewWriter.
	QueueCapacity int

	// RetryDelay records a retry/wait policy for iox.ErrWouldBlock:
	//   - negative: nonblock, return the flow-control error immediately
	//   - zero: yield (runtime.Gosched) and retry
	//   - positive: sleep for the duration and retry
	// Nothing in this module reads it: the core state machine never
	// blocks or retries, and the mps-fuzz harness paces its retries with
	// its own exponential backoff.
	RetryDelay time.Duration

	// Logger receives structured, allocation-free-when-disabled traces
	// of state transitions. Defaults to a no-op logger.
	Logger zerolog.Logger

	// AllowInterleaving permits starting a non-handshake outgoing
	// message while a handshake message is paused, overriding the
	// default that forbids interleaving other content types with a
	// paused handshake. Off by default.
	AllowInterleaving bool

	// Metrics optionally instruments Reclaim/retry/dispatch counters. A
	// nil Metrics (the default) is a no-op.
	Metrics *Metrics
}

var defaultOptions = Options{
	Mode:          TLS,
	GroupDepth:    maxGroupDepth,
	QueueCapacity: 0,
	RetryDelay:    -1,
	Logger:        zerolog.Nop(),
}

// Option configures Options.
type Option func(*Options)

// WithMode selects TLS or DTLS framing semantics.
func WithMode(m Mode) Option { return func(o *Options) { o.Mode = m } }

// WithGroupDepth overrides the default nesting depth K for Extended
// Writer/Reader groups. A value <= 0 resets to the design default.
func WithGroupDepth(k int) Option {
	return func(o *Options) {
		if k <= 0 {
			k = maxGroupDepth
		}
		o.GroupDepth = k
	}
}

// WithQueueCapacity sizes the Writer's internal queue when the caller
// does not supply one directly.
func WithQueueCapacity(n int) Option { return func(o *Options) { o.QueueCapacity = n } }

// WithQueueCapacityString parses a human-readable size ("64KiB", "4KB")
// and sets the Writer's queue capacity. Malformed input leaves the
// existing capacity unchanged.
func WithQueueCapacityString(s string) Option {
	return func(o *Options) {
		var bs datasize.ByteSize
		if err := bs.UnmarshalText([]byte(s)); err != nil {
			return
		}
		o.QueueCapacity = int(bs.Bytes())
	}
}

// WithRetryDelay sets Options.RetryDelay (see its doc).
func WithRetryDelay(d time.Duration) Option { return func(o *Options) { o.RetryDelay = d } }

// WithBlock sets RetryDelay to 0, the yield-and-retry setting.
func WithBlock() Option { return func(o *Options) { o.RetryDelay = 0 } }

// WithNonblock sets RetryDelay to -1, the return-immediately setting.
func WithNonblock() Option { return func(o *Options) { o.RetryDelay = -1 } }

// WithLogger attaches a structured logger for state-transition tracing.
func WithLogger(l zerolog.Logger) Option { return func(o *Options) { o.Logger = l } }

// WithAllowInterleaving permits a non-handshake write while a handshake
// message is paused, overriding NO_INTERLEAVING.
func WithAllowInterleaving() Option { return func(o *Options) { o.AllowInterleaving = true } }

// WithMetrics attaches Prometheus instrumentation built by NewMetrics.
func WithMetrics(m *Metrics) Option { return func(o *Options) { o.Metrics = m } }

func newOptions(opts ...Option) Options {
	o := defaultOptions
	for _, fn := range opts {
		fn(&o)
	}
	return o
}
