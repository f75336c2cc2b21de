package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/okian/roundness/internal/adapters/repository"
	"github.com/okian/roundness/internal/domain/model"
	"github.com/okian/roundness/internal/domain/window"
	"github.com/okian/roundness/pkg/logger"
)

// FailurePolicy decides what a per-file failure does to the batch.
type FailurePolicy int

const (
	// Skip excludes failed files and keeps going. The batch fails only when
	// every file fails.
	Skip FailurePolicy = iota
	// FailFast aborts the run at the first stage with a failure, reporting
	// the lowest failing file index of that stage.
	FailFast
)

func (p FailurePolicy) String() string {
	if p == FailFast {
		return "fail_fast"
	}
	return "skip"
}

// ParseFailurePolicy parses "skip" or "fail_fast". Empty selects Skip.
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "skip":
		return Skip, nil
	case "fail_fast", "failfast", "fail-fast":
		return FailFast, nil
	default:
		return Skip, fmt.Errorf("unknown failure policy: %s", s)
	}
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithWorkerCount sets the number of worker goroutines per stage.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithKinematics sets the test program. The value is copied.
func WithKinematics(k model.Kinematics) Option {
	return func(s *Service) {
		s.kin = k.Clone()
	}
}

// WithFailurePolicy sets the per-file failure policy.
func WithFailurePolicy(p FailurePolicy) Option {
	return func(s *Service) {
		s.failurePolicy = p
	}
}

// WithLengthPolicy sets how captures shorter than the program are handled.
func WithLengthPolicy(p window.LengthPolicy) Option {
	return func(s *Service) {
		s.lengthPolicy = p
	}
}

// WithMaxLagFraction bounds accepted alignment lags to this fraction of
// the profile length. Zero or negative disables the bound.
func WithMaxLagFraction(f float64) Option {
	return func(s *Service) {
		s.maxLagFraction = f
	}
}

// WithStore persists every successful run.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		s.store = store
	}
}

// WithClock overrides the clock used to stamp runs.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}
