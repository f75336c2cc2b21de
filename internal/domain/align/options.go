package align

// DefaultMaxLagFraction bounds an accepted lag to this fraction of the
// sequence length.
const DefaultMaxLagFraction = 0.4

type settings struct {
	maxLagFraction float64
}

// Option applies a configuration option to an aligner.
type Option func(*settings)

// WithMaxLagFraction sets the largest accepted |lag| as a fraction of the
// sequence length. Zero or negative disables the bound.
func WithMaxLagFraction(f float64) Option {
	return func(s *settings) {
		s.maxLagFraction = f
	}
}

func newSettings(opts []Option) settings {
	s := settings{maxLagFraction: DefaultMaxLagFraction}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}
