package application

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/atlascaucasus/service-booking/internal/common/domain"
	bookingDomain "github.com/atlascaucasus/service-booking/internal/domain/booking"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

// CreateBookingRequest holds the data needed to create a new booking.
type CreateBookingRequest struct {
	EntityType     string     `json:"entity_type" binding:"required"`
	EntityID       uuid.UUID  `json:"entity_id"`
	ProviderUserID uuid.UUID  `json:"provider_user_id"`
	Date           *time.Time `json:"date"`
	Guests         int        `json:"guests" binding:"omitempty,min=1,max=100"`
	Notes          string     `json:"notes" binding:"max=1000"`
	ContactPhone   string     `json:"contact_phone" binding:"max=32"`
	ContactEmail   string     `json:"contact_email" binding:"omitempty,email"`
}

// BookingDTO is the response representation of a booking.
type BookingDTO struct {
	ID              uuid.UUID  `json:"id"`
	ReferenceNumber string     `json:"reference_number"`
	EntityType      string     `json:"entity_type"`
	EntityID        uuid.UUID  `json:"entity_id"`
	UserID          uuid.UUID  `json:"user_id"`
	ProviderUserID  uuid.UUID  `json:"provider_user_id"`
	Status          string     `json:"status"`
	Date            *time.Time `json:"date,omitempty"`
	Guests          int        `json:"guests"`
	TotalPriceCents int64      `json:"total_price_cents"`
	Currency        string     `json:"currency"`
	ContactPhone    string     `json:"contact_phone,omitempty"`
	ContactEmail    string     `json:"contact_email,omitempty"`
	Notes           string     `json:"notes,omitempty"`
	ProviderNotes   string     `json:"provider_notes,omitempty"`
	DeclinedReason  string     `json:"declined_reason,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	ConfirmedAt     *time.Time `json:"confirmed_at"`
	CompletedAt     *time.Time `json:"completed_at"`
	CancelledAt     *time.Time `json:"cancelled_at"`
	DeclinedAt      *time.Time `json:"declined_at"`
	Version         int64      `json:"version"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// AllowedActionsDTO tells a party which actions it can currently take on a booking.
type AllowedActionsDTO struct {
	BookingID uuid.UUID `json:"booking_id"`
	Status    string    `json:"status"`
	Role      string    `json:"role"`
	Actions   []string  `json:"actions"`
}

// EventPublisher accepts booking events for asynchronous delivery. Publish must not block.
type EventPublisher interface {
	Publish(evt bookingDomain.Event)
}

// BookingServiceConfig tunes transition retries and creation defaults.
type BookingServiceConfig struct {
	MaxTransitionAttempts int
	RetryBaseDelay        time.Duration
	ActionTimeout         time.Duration
	MaxReferenceAttempts  int
	DefaultCurrency       string
}

func (c BookingServiceConfig) withDefaults() BookingServiceConfig {
	if c.MaxTransitionAttempts <= 0 {
		c.MaxTransitionAttempts = 3
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = 10 * time.Millisecond
	}
	if c.ActionTimeout <= 0 {
		c.ActionTimeout = 10 * time.Second
	}
	if c.MaxReferenceAttempts <= 0 {
		c.MaxReferenceAttempts = 5
	}
	if c.DefaultCurrency == "" {
		c.DefaultCurrency = domain.CurrencyGEL
	}
	return c
}

// BookingService is the application service orchestrating booking use cases.
type BookingService struct {
	repo      bookingDomain.BookingRepository
	pricing   bookingDomain.PricingStrategy
	refs      bookingDomain.ReferenceGenerator
	publisher EventPublisher
	cfg       BookingServiceConfig
	logger    *zap.Logger
}

// NewBookingService creates a new BookingService.
func NewBookingService(
	repo bookingDomain.BookingRepository,
	pricing bookingDomain.PricingStrategy,
	refs bookingDomain.ReferenceGenerator,
	publisher EventPublisher,
	cfg BookingServiceConfig,
	logger *zap.Logger,
) *BookingService {
	return &BookingService{
		repo:      repo,
		pricing:   pricing,
		refs:      refs,
		publisher: publisher,
		cfg:       cfg.withDefaults(),
		logger:    logger,
	}
}

// CreateBooking creates a PENDING booking with customerID as the customer.
func (s *BookingService) CreateBooking(ctx context.Context, customerID uuid.UUID, req CreateBookingRequest) (*BookingDTO, error) {
	entityType := bookingDomain.EntityType(strings.ToUpper(strings.TrimSpace(req.EntityType)))
	if !entityType.IsValid() {
		return nil, domain.NewValidationError("entity_type must be one of TOUR, GUIDE, DRIVER")
	}
	guests := req.Guests
	if guests == 0 {
		guests = 1
	}

	priceCents, err := s.pricing.Calculate(bookingDomain.PricingParams{
		EntityType: entityType,
		Guests:     guests,
	})
	if err != nil {
		return nil, domain.NewValidationError(fmt.Sprintf("pricing error: %v", err))
	}

	draft := bookingDomain.Draft{
		EntityType:      entityType,
		EntityID:        req.EntityID,
		UserID:          customerID,
		ProviderUserID:  req.ProviderUserID,
		Date:            req.Date,
		Guests:          guests,
		TotalPriceCents: priceCents,
		Currency:        s.cfg.DefaultCurrency,
		ContactPhone:    req.ContactPhone,
		ContactEmail:    req.ContactEmail,
		Notes:           req.Notes,
	}

	for attempt := 1; attempt <= s.cfg.MaxReferenceAttempts; attempt++ {
		ref, err := s.refs.Next()
		if err != nil {
			return nil, fmt.Errorf("failed to generate booking reference: %w", err)
		}

		bk, err := bookingDomain.NewBooking(draft, ref)
		if err != nil {
			return nil, err
		}

		err = s.repo.Save(ctx, bk)
		if errors.Is(err, bookingDomain.ErrDuplicateReference) {
			s.logger.Warn("booking reference collision, regenerating",
				zap.String("reference_number", ref),
				zap.Int("attempt", attempt),
			)
			continue
		}
		if err != nil {
			return nil, s.storeError("failed to save booking", err)
		}

		s.logger.Info("booking created",
			zap.String("booking_id", bk.ID().String()),
			zap.String("reference_number", bk.ReferenceNumber()),
			zap.String("entity_type", string(bk.EntityType())),
			zap.String("customer_user_id", customerID.String()),
		)
		s.publisher.Publish(bookingDomain.NewCreatedEvent(bk))

		result := toBookingDTO(bk)
		return &result, nil
	}

	return nil, domain.NewConflictError("could not allocate a unique booking reference, please retry")
}

// PerformAction runs a lifecycle action for actorID. The booking is re-read, re-guarded and
// re-written when another writer changes its status between read and write, up to
// MaxTransitionAttempts times; after that the caller gets CONFLICT. Exactly one event is
// emitted per committed transition and its delivery never affects the result.
func (s *BookingService) PerformAction(
	ctx context.Context,
	bookingID, actorID uuid.UUID,
	action bookingDomain.Action,
	payload bookingDomain.Payload,
) (*BookingDTO, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.ActionTimeout)
	defer cancel()

	for attempt := 1; ; attempt++ {
		bk, err := s.repo.FindByID(ctx, bookingID)
		if err != nil {
			return nil, s.storeError("failed to load booking", err)
		}

		t, err := bk.PlanTransition(actorID, action, payload, time.Now())
		if err != nil {
			s.logger.Debug("booking action rejected",
				zap.String("booking_id", bookingID.String()),
				zap.String("action", string(action)),
				zap.String("status", string(bk.Status())),
				zap.String("code", string(domain.CodeOf(err))),
			)
			return nil, err
		}

		updated, err := s.repo.ApplyTransition(ctx, t)
		if err == nil {
			s.logger.Info("booking transitioned",
				zap.String("booking_id", bookingID.String()),
				zap.String("action", string(action)),
				zap.String("previous_status", string(t.From)),
				zap.String("next_status", string(t.To)),
				zap.String("actor_user_id", actorID.String()),
				zap.Int("attempt", attempt),
			)
			s.publisher.Publish(bookingDomain.NewTransitionEvent(updated, t, actorID))

			result := toBookingDTO(updated)
			return &result, nil
		}
		if !errors.Is(err, bookingDomain.ErrVersionConflict) {
			return nil, s.storeError("failed to apply booking transition", err)
		}

		if attempt >= s.cfg.MaxTransitionAttempts {
			s.logger.Warn("booking transition retries exhausted",
				zap.String("booking_id", bookingID.String()),
				zap.String("action", string(action)),
				zap.Int("attempts", attempt),
			)
			return nil, domain.NewConflictError("booking was modified concurrently, please retry")
		}
		if err := s.backoff(ctx, attempt); err != nil {
			return nil, s.storeError("booking transition interrupted", err)
		}
	}
}

// ConfirmBooking accepts a pending booking (provider only).
func (s *BookingService) ConfirmBooking(ctx context.Context, bookingID, actorID uuid.UUID, providerNotes string) (*BookingDTO, error) {
	return s.PerformAction(ctx, bookingID, actorID, bookingDomain.ActionConfirm, bookingDomain.Payload{ProviderNotes: providerNotes})
}

// DeclineBooking rejects a pending booking with a mandatory reason (provider only).
func (s *BookingService) DeclineBooking(ctx context.Context, bookingID, actorID uuid.UUID, reason string) (*BookingDTO, error) {
	return s.PerformAction(ctx, bookingID, actorID, bookingDomain.ActionDecline, bookingDomain.Payload{DeclinedReason: reason})
}

// CancelBooking withdraws a pending or confirmed booking (customer only).
func (s *BookingService) CancelBooking(ctx context.Context, bookingID, actorID uuid.UUID) (*BookingDTO, error) {
	return s.PerformAction(ctx, bookingID, actorID, bookingDomain.ActionCancel, bookingDomain.Payload{})
}

// CompleteBooking marks a confirmed booking as delivered (provider only).
func (s *BookingService) CompleteBooking(ctx context.Context, bookingID, actorID uuid.UUID) (*BookingDTO, error) {
	return s.PerformAction(ctx, bookingID, actorID, bookingDomain.ActionComplete, bookingDomain.Payload{})
}

// GetBooking retrieves a booking visible to one of its parties, or to an admin.
func (s *BookingService) GetBooking(ctx context.Context, bookingID, actorID uuid.UUID, isAdmin bool) (*BookingDTO, error) {
	bk, err := s.repo.FindByID(ctx, bookingID)
	if err != nil {
		return nil, s.storeError("failed to load booking", err)
	}
	if !isAdmin && bk.RoleOf(actorID) == bookingDomain.RoleNone {
		return nil, domain.NewNotAuthorizedError("you are not a party to this booking")
	}
	result := toBookingDTO(bk)
	return &result, nil
}

// GetAllowedActions lists the actions actorID can take on the booking right now.
func (s *BookingService) GetAllowedActions(ctx context.Context, bookingID, actorID uuid.UUID) (*AllowedActionsDTO, error) {
	bk, err := s.repo.FindByID(ctx, bookingID)
	if err != nil {
		return nil, s.storeError("failed to load booking", err)
	}
	role := bk.RoleOf(actorID)
	if role == bookingDomain.RoleNone {
		return nil, domain.NewNotAuthorizedError("you are not a party to this booking")
	}

	allowed := bookingDomain.AllowedActions(bk.Status(), role)
	actions := make([]string, len(allowed))
	for i, a := range allowed {
		actions[i] = string(a)
	}
	return &AllowedActionsDTO{
		BookingID: bk.ID(),
		Status:    string(bk.Status()),
		Role:      string(role),
		Actions:   actions,
	}, nil
}

// ListMyBookings lists the caller's bookings as customer or as provider.
func (s *BookingService) ListMyBookings(ctx context.Context, userID uuid.UUID, as, status string, page, limit int) (*domain.PaginatedResult[BookingDTO], error) {
	filter, err := buildListFilter(status, page, limit)
	if err != nil {
		return nil, err
	}

	var (
		bookings []*bookingDomain.Booking
		total    int64
	)
	switch strings.ToLower(as) {
	case "", string(bookingDomain.RoleCustomer):
		bookings, total, err = s.repo.FindByCustomer(ctx, userID, filter)
	case string(bookingDomain.RoleProvider):
		bookings, total, err = s.repo.FindByProvider(ctx, userID, filter)
	default:
		return nil, domain.NewValidationError("as must be customer or provider")
	}
	if err != nil {
		return nil, s.storeError("failed to list bookings", err)
	}

	result := domain.NewPaginatedResult(toBookingDTOs(bookings), total, filter.Page, filter.Limit)
	return &result, nil
}

// --- Admin methods ---

// BookingStatsDTO holds booking statistics for the admin dashboard.
type BookingStatsDTO struct {
	TotalBookings int64            `json:"total_bookings"`
	ByStatus      map[string]int64 `json:"by_status"`
}

// ListAllBookings returns a paginated list of all bookings (admin).
func (s *BookingService) ListAllBookings(ctx context.Context, status string, page, limit int) (*domain.PaginatedResult[BookingDTO], error) {
	filter, err := buildListFilter(status, page, limit)
	if err != nil {
		return nil, err
	}

	bookings, total, err := s.repo.ListAll(ctx, filter)
	if err != nil {
		return nil, s.storeError("failed to list bookings", err)
	}

	result := domain.NewPaginatedResult(toBookingDTOs(bookings), total, filter.Page, filter.Limit)
	return &result, nil
}

// GetBookingStats returns aggregate booking statistics (admin).
func (s *BookingService) GetBookingStats(ctx context.Context) (*BookingStatsDTO, error) {
	counts, err := s.repo.CountByStatus(ctx)
	if err != nil {
		return nil, s.storeError("failed to get booking stats", err)
	}

	var total int64
	for _, c := range counts {
		total += c
	}

	return &BookingStatsDTO{
		TotalBookings: total,
		ByStatus:      counts,
	}, nil
}

// --- Helpers ---

// backoff sleeps for a jittered, exponentially growing delay unless ctx ends first.
func (s *BookingService) backoff(ctx context.Context, attempt int) error {
	base := s.cfg.RetryBaseDelay << (attempt - 1)
	delay := base + rand.N(s.cfg.RetryBaseDelay)

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// storeError passes domain errors through, turns deadline expiry into TIMEOUT and wraps
// everything else.
func (s *BookingService) storeError(msg string, err error) error {
	var domainErr *domain.Error
	switch {
	case errors.As(err, &domainErr):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return domain.NewTimeoutError("booking operation timed out")
	default:
		return fmt.Errorf("%s: %w", msg, err)
	}
}

func buildListFilter(status string, page, limit int) (bookingDomain.ListFilter, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}

	filter := bookingDomain.ListFilter{Page: page, Limit: limit}
	if status != "" {
		st, err := bookingDomain.ParseBookingStatus(strings.ToUpper(status))
		if err != nil {
			return bookingDomain.ListFilter{}, domain.NewValidationError(fmt.Sprintf("unknown status %q", status))
		}
		filter.Status = &st
	}
	return filter, nil
}

func toBookingDTOs(bookings []*bookingDomain.Booking) []BookingDTO {
	dtos := make([]BookingDTO, len(bookings))
	for i, bk := range bookings {
		dtos[i] = toBookingDTO(bk)
	}
	return dtos
}

func toBookingDTO(bk *bookingDomain.Booking) BookingDTO {
	return BookingDTO{
		ID:              bk.ID(),
		ReferenceNumber: bk.ReferenceNumber(),
		EntityType:      string(bk.EntityType()),
		EntityID:        bk.EntityID(),
		UserID:          bk.UserID(),
		ProviderUserID:  bk.ProviderUserID(),
		Status:          string(bk.Status()),
		Date:            bk.Date(),
		Guests:          bk.Guests(),
		TotalPriceCents: bk.TotalPriceCents(),
		Currency:        bk.Currency(),
		ContactPhone:    bk.ContactPhone(),
		ContactEmail:    bk.ContactEmail(),
		Notes:           bk.Notes(),
		ProviderNotes:   bk.ProviderNotes(),
		DeclinedReason:  bk.DeclinedReason(),
		CreatedAt:       bk.CreatedAt(),
		ConfirmedAt:     bk.ConfirmedAt(),
		CompletedAt:     bk.CompletedAt(),
		CancelledAt:     bk.CancelledAt(),
		DeclinedAt:      bk.DeclinedAt(),
		Version:         bk.Version(),
		UpdatedAt:       bk.UpdatedAt(),
	}
}
