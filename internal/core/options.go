package core

import (
	"context"
	"time"

	"socialcore/pkg/domain"
)

// Logger is the structured logging surface used by the service. The method set
// matches *slog.Logger so a slog logger can be passed directly.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Clock supplies timestamps for change records.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// MetricsRecorder observes service operations and sink failures.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
	SinkFailure(sink string)
}

type noopMetrics struct{}

func (noopMetrics) Observe(context.Context, string, bool, time.Duration) {}
func (noopMetrics) SinkFailure(string)                                   {}

// ChangeJournal receives every committed change in order. Appending happens
// after the store mutation, so a failing journal never undoes it.
type ChangeJournal interface {
	Append(ctx context.Context, changes []domain.Change) error
}

// EventPublisher announces committed changes to interested parties.
type EventPublisher interface {
	Publish(ctx context.Context, change domain.Change) error
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger. Nil keeps the no-op default.
func WithLogger(logger Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides the clock used to stamp change records.
func WithClock(clock Clock) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithMetrics installs a metrics recorder.
func WithMetrics(m MetricsRecorder) Option {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithJournal appends a change journal. Several journals may be installed.
func WithJournal(j ChangeJournal) Option {
	return func(s *Service) {
		if j != nil {
			s.journals = append(s.journals, j)
		}
	}
}

// WithPublisher appends an event publisher.
func WithPublisher(p EventPublisher) Option {
	return func(s *Service) {
		if p != nil {
			s.publishers = append(s.publishers, p)
		}
	}
}

// WithIDGenerator overrides identifier generation for the store built by
// NewInMemoryService.
func WithIDGenerator(ids domain.IDGenerator) Option {
	return func(s *Service) {
		if ids != nil {
			s.ids = ids
		}
	}
}
