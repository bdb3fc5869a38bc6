package anyclass

import "github.com/rs/zerolog"

type options struct {
	logger           zerolog.Logger
	version          string
	legacySeedRecord bool
	lenientFilters   bool
}

// Option configures a Registry, Records layer or Dispatcher.
type Option func(*options)

func applyOptions(opts []Option) *options {
	o := &options{
		logger:  zerolog.Nop(),
		version: Version,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithLogger sets the logger; without it, nothing is logged.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithVersion overrides the version string reported by getServerInfo.
func WithVersion(version string) Option {
	return func(o *options) { o.version = version }
}

// WithLegacySeedRecord restores the historical createTable behavior: the
// schema argument is read as example field values and persisted as one live
// record so the engine infers the types from it. The record stays behind.
// Without this option createTable declares class metadata and writes no
// records.
func WithLegacySeedRecord() Option {
	return func(o *options) { o.legacySeedRecord = true }
}

// WithLenientFilters makes filter compilation skip unrecognized operator
// keys instead of rejecting the request.
func WithLenientFilters() Option {
	return func(o *options) { o.lenientFilters = true }
}
