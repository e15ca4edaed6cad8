package collection

// ArrayOptions configures an array type.
type ArrayOptions struct {
	// Name overrides the generated type name.
	Name string
}

// DefaultArrayOptions returns the default array options.
func DefaultArrayOptions() *ArrayOptions {
	return &ArrayOptions{}
}

// ArrayOption sets an array option.
type ArrayOption func(*ArrayOptions)

// WithName sets the type name used in descriptions and errors.
func WithName(name string) ArrayOption {
	return func(o *ArrayOptions) {
		o.Name = name
	}
}
