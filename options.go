package compute

// Option configures a Runtime during creation.
// Use functional options to customize Runtime behavior.
//
// Example:
//
//	// Default runtime
//	rt, err := compute.New(dev, compiler)
//
//	// Runtime with per-launch profiling enabled
//	rt, err := compute.New(dev, compiler, compute.WithProfiling(true))
type Option func(*options)

// options holds optional configuration for Runtime creation.
type options struct {
	profiling     bool
	tableCapacity int
	maxThreads    int
}

// defaultOptions returns the default runtime options.
func defaultOptions() options {
	return options{
		profiling:     false,
		tableCapacity: DefaultBindingTableCapacity,
		maxThreads:    DefaultMaxThreadsPerGroup,
	}
}

// WithProfiling enables per-launch timestamp profiling. When enabled, every
// Launch records a start/stop timestamp pair around its dispatch and the
// elapsed device time is logged at debug level after synchronization.
func WithProfiling(enabled bool) Option {
	return func(o *options) {
		o.profiling = enabled
	}
}

// WithBindingTableCapacity overrides the capacity of each stream's shared
// binding table. The default is DefaultBindingTableCapacity; values below 1
// are ignored.
func WithBindingTableCapacity(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.tableCapacity = n
		}
	}
}

// WithMaxThreadsPerGroup overrides the per-group thread limit enforced at
// kernel creation. The default is DefaultMaxThreadsPerGroup; values below 1
// are ignored.
func WithMaxThreadsPerGroup(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxThreads = n
		}
	}
}
