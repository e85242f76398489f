package testfixtures

import (
	"testing"
	"time"

	"github.com/example/courtbooking/internal/application"
	"github.com/example/courtbooking/internal/persistence"
	"github.com/example/courtbooking/internal/persistence/memory"
	"github.com/example/courtbooking/internal/pricing"
)

// Callback URLs the payment service is configured with.
const (
	ReturnURL = "courtbooking://payment/return"
	CancelURL = "courtbooking://payment/cancel"
)

// ServiceFactory assists tests with constructing application services using
// deterministic identifiers and clocks.
type ServiceFactory struct {
	Clock       *Clock
	IDGenerator *IDGenerator
}

// ServiceFactoryOption configures a ServiceFactory instance.
type ServiceFactoryOption func(*ServiceFactory)

// NewServiceFactory constructs a ServiceFactory with defaults.
func NewServiceFactory(opts ...ServiceFactoryOption) *ServiceFactory {
	factory := &ServiceFactory{}
	for _, opt := range opts {
		opt(factory)
	}
	if factory.Clock == nil {
		factory.Clock = NewClock(time.Time{})
	}
	if factory.IDGenerator == nil {
		factory.IDGenerator = NewIDGenerator("id")
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

// ServiceDeps overrides collaborators of the service graph. Zero fields get
// a seeded four-court memory store, a fresh FakeGateway and the store as
// ledger.
type ServiceDeps struct {
	Store   *memory.Storage
	Ledger  persistence.PaymentLedger
	Gateway *FakeGateway
	Policy  application.PendingPolicy
	Options application.Options
}

// Services is a wired service graph over one store.
type Services struct {
	Store        *memory.Storage
	Ledger       persistence.PaymentLedger
	Gateway      *FakeGateway
	Availability *application.AvailabilityService
	Reservations *application.ReservationService
	Payments     *application.PaymentService
	Sessions     *application.SessionService
	Revenue      *application.RevenueService
}

// NewServices builds every application service with the factory's clock and
// identifiers.
func (f *ServiceFactory) NewServices(tb testing.TB, deps ServiceDeps) *Services {
	tb.Helper()

	if deps.Store == nil {
		deps.Store = NewMemoryStore(tb, NewVenue(4))
	}
	if deps.Ledger == nil {
		deps.Ledger = deps.Store
	}
	if deps.Gateway == nil {
		deps.Gateway = NewFakeGateway()
	}
	loc := deps.Options.Location
	if loc == nil {
		loc = time.UTC
	}

	now := f.Clock.NowFunc()
	ids := f.IDGenerator.NextFunc()
	exchange := pricing.Exchange{LocalCurrency: "VND", SettlementCurrency: "USD", Rate: 24000}

	availability := application.NewAvailabilityService(deps.Store, now, loc, deps.Options.Logger)
	return &Services{
		Store:        deps.Store,
		Ledger:       deps.Ledger,
		Gateway:      deps.Gateway,
		Availability: availability,
		Reservations: application.NewReservationService(deps.Store, deps.Ledger, availability, deps.Policy, ids, now, deps.Options),
		Payments: application.NewPaymentService(deps.Store, deps.Ledger, deps.Gateway, exchange,
			application.PaymentURLs{ReturnURL: ReturnURL, CancelURL: CancelURL}, ids, now, deps.Options),
		Sessions: application.NewSessionService(deps.Store, ids, now, deps.Options),
		Revenue:  application.NewRevenueService(deps.Store, now, deps.Options),
	}
}
