package tracker

// Options configures a Recorder.
type Options struct {
	// NodeID is the snowflake node number of the generated record IDs (0-1023).
	NodeID int64
	// MaxHistory bounds the kept records. Zero keeps every record.
	MaxHistory int
}

// DefaultOptions returns the default recorder options.
func DefaultOptions() *Options {
	return &Options{
		NodeID:     1,
		MaxHistory: 0,
	}
}

// Option sets a recorder option.
type Option func(*Options)

// WithNodeID sets the snowflake node number.
func WithNodeID(id int64) Option {
	return func(o *Options) {
		o.NodeID = id
	}
}

// WithMaxHistory bounds the number of kept records; older records are dropped first.
func WithMaxHistory(n int) Option {
	return func(o *Options) {
		o.MaxHistory = n
	}
}
