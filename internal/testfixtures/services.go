package testfixtures

import (
	"log/slog"
	"time"

	"github.com/example/chronopact/internal/application"
	"github.com/example/chronopact/internal/logging"
	"github.com/example/chronopact/internal/presence"
	"github.com/example/chronopact/internal/timeexpr"
)

// ServiceFactory assists tests with constructing application services that
// share a deterministic clock, identifiers and in-memory collaborators.
type ServiceFactory struct {
	Clock       *Clock
	IDGenerator *IDGenerator
	Registry    *application.Registry
	Notifier    *RecordingNotifier
	Insults     *ScriptedInsults
	Stats       *MemoryStats
	Presence    *presence.Memory
	Logger      *slog.Logger
}

// ServiceFactoryOption configures a ServiceFactory instance.
type ServiceFactoryOption func(*ServiceFactory)

// NewServiceFactory constructs a ServiceFactory with defaults.
func NewServiceFactory(opts ...ServiceFactoryOption) *ServiceFactory {
	factory := &ServiceFactory{
		Clock:       NewClock(time.Time{}),
		IDGenerator: NewIDGenerator("id"),
	}
	for _, opt := range opts {
		opt(factory)
	}
	if factory.Clock == nil {
		factory.Clock = NewClock(time.Time{})
	}
	if factory.IDGenerator == nil {
		factory.IDGenerator = NewIDGenerator("id")
	}
	if factory.Registry == nil {
		factory.Registry = application.NewRegistry(0)
	}
	if factory.Notifier == nil {
		factory.Notifier = &RecordingNotifier{}
	}
	if factory.Insults == nil {
		factory.Insults = &ScriptedInsults{}
	}
	if factory.Stats == nil {
		factory.Stats = &MemoryStats{}
	}
	if factory.Presence == nil {
		factory.Presence = presence.NewMemory()
	}
	if factory.Logger == nil {
		factory.Logger = logging.Discard()
	}
	return factory
}

// WithClock overrides the clock used by the factory.
func WithClock(clock *Clock) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Clock = clock
	}
}

// WithIDGenerator overrides the identifier generator used by the factory.
func WithIDGenerator(generator *IDGenerator) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.IDGenerator = generator
	}
}

// WithRegistry overrides the registry, e.g. to impose an active limit.
func WithRegistry(registry *application.Registry) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Registry = registry
	}
}

// WithLogger routes service logs to logger.
func WithLogger(logger *slog.Logger) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Logger = logger
	}
}

// NewAppointmentService builds an appointment service over the factory's
// collaborators. Time expressions are parsed in UTC.
func (f *ServiceFactory) NewAppointmentService() *application.AppointmentService {
	return application.NewAppointmentService(application.AppointmentServiceDeps{
		Registry:         f.Registry,
		Notifier:         f.Notifier,
		Presence:         f.Presence,
		Insults:          f.Insults,
		Stats:            f.Stats,
		Parser:           timeexpr.NewParser(time.UTC),
		Logger:           f.Logger,
		IDGenerator:      f.IDGenerator.NextFunc(),
		Now:              f.Clock.NowFunc(),
		StrictInvariants: true,
	})
}

// NewHarassmentService builds a harassment service over the factory's
// collaborators with the default insult interval.
func (f *ServiceFactory) NewHarassmentService() *application.HarassmentService {
	return application.NewHarassmentService(application.HarassmentServiceDeps{
		Registry:    f.Registry,
		Notifier:    f.Notifier,
		Presence:    f.Presence,
		Insults:     f.Insults,
		Stats:       f.Stats,
		Logger:      f.Logger,
		IDGenerator: f.IDGenerator.NextFunc(),
		Now:         f.Clock.NowFunc(),
	})
}
