package application

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/atlascaucasus/service-booking/internal/common/domain"
	bookingDomain "github.com/atlascaucasus/service-booking/internal/domain/booking"
	"github.com/atlascaucasus/service-booking/internal/events"
	"github.com/atlascaucasus/service-booking/internal/repository"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []bookingDomain.Event
}

func (p *recordingPublisher) Publish(evt bookingDomain.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
}

func (p *recordingPublisher) published() []bookingDomain.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]bookingDomain.Event(nil), p.events...)
}

type sequenceReferences struct {
	mu   sync.Mutex
	refs []string
}

func (g *sequenceReferences) Next() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.refs) == 0 {
		return "", errors.New("exhausted")
	}
	ref := g.refs[0]
	g.refs = g.refs[1:]
	return ref, nil
}

// alwaysConflictingRepository simulates a booking that changes under every write.
type alwaysConflictingRepository struct {
	*repository.MemoryBookingRepository
	applies int
}

func (r *alwaysConflictingRepository) ApplyTransition(context.Context, bookingDomain.Transition) (*bookingDomain.Booking, error) {
	r.applies++
	return nil, bookingDomain.ErrVersionConflict
}

type stalledRepository struct {
	*repository.MemoryBookingRepository
}

func (r *stalledRepository) FindByID(ctx context.Context, _ uuid.UUID) (*bookingDomain.Booking, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

type fixture struct {
	svc       *BookingService
	repo      *repository.MemoryBookingRepository
	publisher *recordingPublisher
	customer  uuid.UUID
	provider  uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := repository.NewMemoryBookingRepository()
	pub := &recordingPublisher{}
	return &fixture{
		svc:       newService(repo, pub, bookingDomain.NewReferenceGenerator()),
		repo:      repo,
		publisher: pub,
		customer:  uuid.New(),
		provider:  uuid.New(),
	}
}

func newService(repo bookingDomain.BookingRepository, pub EventPublisher, refs bookingDomain.ReferenceGenerator) *BookingService {
	pricing := bookingDomain.NewStandardPricingStrategy(map[bookingDomain.EntityType]int64{
		bookingDomain.EntityTour:   15000,
		bookingDomain.EntityGuide:  8000,
		bookingDomain.EntityDriver: 6000,
	})
	return NewBookingService(repo, pricing, refs, pub, BookingServiceConfig{
		MaxTransitionAttempts: 3,
		RetryBaseDelay:        time.Millisecond,
		ActionTimeout:         time.Second,
	}, zap.NewNop())
}

func (f *fixture) createPending(t *testing.T) *BookingDTO {
	t.Helper()
	bk, err := f.svc.CreateBooking(context.Background(), f.customer, CreateBookingRequest{
		EntityType:     "tour",
		EntityID:       uuid.New(),
		ProviderUserID: f.provider,
		Guests:         2,
		ContactEmail:   "guest@example.ge",
	})
	require.NoError(t, err)
	return bk
}

func TestCreateBookingRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created := f.createPending(t)
	assert.Equal(t, "PENDING", created.Status)
	assert.Equal(t, "TOUR", created.EntityType)
	assert.True(t, bookingDomain.IsReference(created.ReferenceNumber))
	assert.Equal(t, int64(30000), created.TotalPriceCents)
	assert.Equal(t, domain.CurrencyGEL, created.Currency)

	read, err := f.svc.GetBooking(ctx, created.ID, f.customer, false)
	require.NoError(t, err)
	assert.Equal(t, "PENDING", read.Status)
	assert.Nil(t, read.ConfirmedAt)
	assert.Nil(t, read.CompletedAt)
	assert.Nil(t, read.CancelledAt)
	assert.Nil(t, read.DeclinedAt)

	evts := f.publisher.published()
	require.Len(t, evts, 1)
	assert.Equal(t, bookingDomain.EventBookingCreated, evts[0].Type)
	assert.Equal(t, created.ID, evts[0].BookingID)
}

func TestCreateBookingValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateBooking(ctx, f.customer, CreateBookingRequest{
		EntityType:     "HOTEL",
		EntityID:       uuid.New(),
		ProviderUserID: f.provider,
	})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.svc.CreateBooking(ctx, f.customer, CreateBookingRequest{
		EntityType:     "GUIDE",
		EntityID:       uuid.New(),
		ProviderUserID: f.customer,
	})
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Empty(t, f.publisher.published())
}

func TestCreateBookingRegeneratesCollidingReference(t *testing.T) {
	repo := repository.NewMemoryBookingRepository()
	refs := &sequenceReferences{refs: []string{"BK-AAAAAA", "BK-AAAAAA", "BK-BBBBBB"}}
	svc := newService(repo, &recordingPublisher{}, refs)
	ctx := context.Background()
	req := CreateBookingRequest{EntityType: "DRIVER", EntityID: uuid.New(), ProviderUserID: uuid.New()}

	first, err := svc.CreateBooking(ctx, uuid.New(), req)
	require.NoError(t, err)
	assert.Equal(t, "BK-AAAAAA", first.ReferenceNumber)

	second, err := svc.CreateBooking(ctx, uuid.New(), req)
	require.NoError(t, err)
	assert.Equal(t, "BK-BBBBBB", second.ReferenceNumber)
}

func TestConfirmThenCancelScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created := f.createPending(t)

	confirmed, err := f.svc.ConfirmBooking(ctx, created.ID, f.provider, "Bring water")
	require.NoError(t, err)
	assert.Equal(t, "CONFIRMED", confirmed.Status)
	require.NotNil(t, confirmed.ConfirmedAt)
	assert.Equal(t, "Bring water", confirmed.ProviderNotes)

	cancelled, err := f.svc.CancelBooking(ctx, created.ID, f.customer)
	require.NoError(t, err)
	assert.Equal(t, "CANCELLED", cancelled.Status)
	require.NotNil(t, cancelled.CancelledAt)
	assert.Equal(t, *confirmed.ConfirmedAt, *cancelled.ConfirmedAt)
	assert.Nil(t, cancelled.CompletedAt)
	assert.Nil(t, cancelled.DeclinedAt)

	evts := f.publisher.published()
	require.Len(t, evts, 3)
	assert.Equal(t, bookingDomain.EventBookingConfirmed, evts[1].Type)
	assert.Equal(t, bookingDomain.StatusPending, evts[1].PreviousStatus)
	assert.Equal(t, f.provider, evts[1].ActorUserID)
	assert.Equal(t, bookingDomain.EventBookingCancelled, evts[2].Type)
	assert.Equal(t, f.customer, evts[2].ActorUserID)

	_, err = f.svc.CompleteBooking(ctx, created.ID, f.provider)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestCompleteWhilePendingIsInvalid(t *testing.T) {
	f := newFixture(t)
	created := f.createPending(t)

	_, err := f.svc.CompleteBooking(context.Background(), created.ID, f.provider)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	read, err := f.svc.GetBooking(context.Background(), created.ID, f.provider, false)
	require.NoError(t, err)
	assert.Equal(t, "PENDING", read.Status)
	assert.Len(t, f.publisher.published(), 1)
}

func TestStrangerIsNotAuthorized(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created := f.createPending(t)
	stranger := uuid.New()

	for _, action := range bookingDomain.Actions {
		_, err := f.svc.PerformAction(ctx, created.ID, stranger, action, bookingDomain.Payload{DeclinedReason: "x"})
		assert.ErrorIs(t, err, domain.ErrNotAuthorized, "action %s", action)
	}

	_, err := f.svc.GetBooking(ctx, created.ID, stranger, false)
	assert.ErrorIs(t, err, domain.ErrNotAuthorized)
	_, err = f.svc.GetAllowedActions(ctx, created.ID, stranger)
	assert.ErrorIs(t, err, domain.ErrNotAuthorized)

	asAdmin, err := f.svc.GetBooking(ctx, created.ID, stranger, true)
	require.NoError(t, err)
	assert.Equal(t, "PENDING", asAdmin.Status)
}

func TestDeclineRequiresReason(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created := f.createPending(t)

	for _, reason := range []string{"", "   "} {
		_, err := f.svc.DeclineBooking(ctx, created.ID, f.provider, reason)
		assert.ErrorIs(t, err, domain.ErrMissingRequiredField)
	}

	read, err := f.svc.GetBooking(ctx, created.ID, f.provider, false)
	require.NoError(t, err)
	assert.Equal(t, "PENDING", read.Status)

	declined, err := f.svc.DeclineBooking(ctx, created.ID, f.provider, "  Fully booked  ")
	require.NoError(t, err)
	assert.Equal(t, "DECLINED", declined.Status)
	assert.Equal(t, "Fully booked", declined.DeclinedReason)
	require.NotNil(t, declined.DeclinedAt)
}

func TestUnknownBookingIsNotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.ConfirmBooking(context.Background(), uuid.New(), f.provider, "")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestConcurrentConfirmAndDeclineHaveOneWinner(t *testing.T) {
	for i := 0; i < 20; i++ {
		f := newFixture(t)
		created := f.createPending(t)

		var wg sync.WaitGroup
		results := make([]error, 2)
		start := make(chan struct{})
		wg.Add(2)
		go func() {
			defer wg.Done()
			<-start
			_, results[0] = f.svc.ConfirmBooking(context.Background(), created.ID, f.provider, "")
		}()
		go func() {
			defer wg.Done()
			<-start
			_, results[1] = f.svc.DeclineBooking(context.Background(), created.ID, f.provider, "double booked")
		}()
		close(start)
		wg.Wait()

		successes := 0
		for _, err := range results {
			if err == nil {
				successes++
				continue
			}
			assert.ErrorIs(t, err, domain.ErrInvalidTransition)
		}
		require.Equal(t, 1, successes)

		final, err := f.svc.GetBooking(context.Background(), created.ID, f.provider, false)
		require.NoError(t, err)
		if results[0] == nil {
			assert.Equal(t, "CONFIRMED", final.Status)
			assert.Nil(t, final.DeclinedAt)
		} else {
			assert.Equal(t, "DECLINED", final.Status)
			assert.Nil(t, final.ConfirmedAt)
		}
		assert.Len(t, f.publisher.published(), 2)
	}
}

func TestRetryExhaustionSurfacesConflict(t *testing.T) {
	mem := repository.NewMemoryBookingRepository()
	repo := &alwaysConflictingRepository{MemoryBookingRepository: mem}
	pub := &recordingPublisher{}
	svc := newService(repo, pub, bookingDomain.NewReferenceGenerator())
	provider := uuid.New()

	created, err := svc.CreateBooking(context.Background(), uuid.New(), CreateBookingRequest{
		EntityType: "GUIDE", EntityID: uuid.New(), ProviderUserID: provider,
	})
	require.NoError(t, err)

	_, err = svc.ConfirmBooking(context.Background(), created.ID, provider, "")
	assert.ErrorIs(t, err, domain.ErrConflict)
	assert.Equal(t, 3, repo.applies)
	assert.Len(t, pub.published(), 1)
}

func TestActionTimeoutSurfacesTimeout(t *testing.T) {
	repo := &stalledRepository{MemoryBookingRepository: repository.NewMemoryBookingRepository()}
	svc := NewBookingService(repo, bookingDomain.NewStandardPricingStrategy(nil), bookingDomain.NewReferenceGenerator(),
		&recordingPublisher{}, BookingServiceConfig{ActionTimeout: 20 * time.Millisecond}, zap.NewNop())

	_, err := svc.CancelBooking(context.Background(), uuid.New(), uuid.New())
	assert.ErrorIs(t, err, domain.ErrTimeout)
}

type failingSink struct{}

func (failingSink) Deliver(context.Context, bookingDomain.Event) error {
	return errors.New("broker down")
}

func TestSinkFailureDoesNotRevertTransition(t *testing.T) {
	repo := repository.NewMemoryBookingRepository()
	dispatcher := events.NewDispatcher(failingSink{}, events.DispatcherConfig{
		ResendInterval: time.Millisecond,
		MaxAttempts:    2,
	}, zap.NewNop())
	dispatcher.Start()
	svc := newService(repo, dispatcher, bookingDomain.NewReferenceGenerator())
	ctx := context.Background()
	provider := uuid.New()

	created, err := svc.CreateBooking(ctx, uuid.New(), CreateBookingRequest{
		EntityType: "TOUR", EntityID: uuid.New(), ProviderUserID: provider,
	})
	require.NoError(t, err)

	confirmed, err := svc.ConfirmBooking(ctx, created.ID, provider, "")
	require.NoError(t, err)
	assert.Equal(t, "CONFIRMED", confirmed.Status)

	require.Eventually(t, func() bool {
		return dispatcher.Stats().Dropped == 2
	}, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, dispatcher.Close(ctx))

	stored, err := repo.FindByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, bookingDomain.StatusConfirmed, stored.Status())
}

func TestAllowedActions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created := f.createPending(t)

	forProvider, err := f.svc.GetAllowedActions(ctx, created.ID, f.provider)
	require.NoError(t, err)
	assert.Equal(t, "provider", forProvider.Role)
	assert.ElementsMatch(t, []string{"confirm", "decline"}, forProvider.Actions)

	forCustomer, err := f.svc.GetAllowedActions(ctx, created.ID, f.customer)
	require.NoError(t, err)
	assert.Equal(t, []string{"cancel"}, forCustomer.Actions)

	_, err = f.svc.CancelBooking(ctx, created.ID, f.customer)
	require.NoError(t, err)
	terminal, err := f.svc.GetAllowedActions(ctx, created.ID, f.customer)
	require.NoError(t, err)
	assert.Empty(t, terminal.Actions)
}

func TestListingAndStats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		f.createPending(t)
	}
	first := f.createPending(t)
	_, err := f.svc.ConfirmBooking(ctx, first.ID, f.provider, "")
	require.NoError(t, err)

	asCustomer, err := f.svc.ListMyBookings(ctx, f.customer, "customer", "", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(4), asCustomer.Total)

	confirmed, err := f.svc.ListMyBookings(ctx, f.provider, "provider", "confirmed", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), confirmed.Total)

	_, err = f.svc.ListMyBookings(ctx, f.provider, "admin", "", 1, 10)
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = f.svc.ListAllBookings(ctx, "ARCHIVED", 1, 10)
	assert.ErrorIs(t, err, domain.ErrValidation)

	all, err := f.svc.ListAllBookings(ctx, "", 0, 0)
	require.NoError(t, err)
	assert.Len(t, all.Items, 4)

	stats, err := f.svc.GetBookingStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), stats.TotalBookings)
	assert.Equal(t, int64(3), stats.ByStatus["PENDING"])
	assert.Equal(t, int64(1), stats.ByStatus["CONFIRMED"])
}
