package relic

import "time"

// Options configures engine behavior.
type Options struct {
	poolSize          int
	detectionInterval time.Duration
	syncWrites        bool
	logger            Logger
}

// DefaultOptions returns safe default configuration.
func DefaultOptions() Options {
	return Options{
		poolSize:          64,
		detectionInterval: 50 * time.Millisecond,
		syncWrites:        false,
		logger:            DiscardLogger{},
	}
}

// Option configures the engine using the functional options pattern.
type Option func(*Options)

// WithPoolSize sets the number of buffer pool frames. Memory use is
// poolSize * 4KB.
func WithPoolSize(frames int) Option {
	return func(opts *Options) {
		opts.poolSize = frames
	}
}

// WithCycleDetectionInterval sets how often the deadlock detector
// scans the wait-for graph. Zero disables detection.
func WithCycleDetectionInterval(d time.Duration) Option {
	return func(opts *Options) {
		opts.detectionInterval = d
	}
}

// WithSyncWrites makes every page write fdatasync before returning.
// Durable but slow; leave off for tests and bulk loads.
func WithSyncWrites() Option {
	return func(opts *Options) {
		opts.syncWrites = true
	}
}

// WithLogger routes engine logs somewhere. The default discards them.
func WithLogger(l Logger) Option {
	return func(opts *Options) {
		opts.logger = l
	}
}
