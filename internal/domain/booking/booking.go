package booking

import (
	"net/mail"
	"strings"
	"time"

	"github.com/atlascaucasus/service-booking/internal/common/domain"
	"github.com/google/uuid"
)

const (
	maxGuests        = 100
	maxNotesLength   = 1000
	maxPhoneLength   = 32
	maxReasonLength  = 1000
	defaultGuestSize = 1
)

// Booking is the aggregate root for the booking domain.
type Booking struct {
	id              uuid.UUID
	referenceNumber string
	entityType      EntityType
	entityID        uuid.UUID
	userID          uuid.UUID
	providerUserID  uuid.UUID
	status          BookingStatus

	date            *time.Time
	guests          int
	totalPriceCents int64
	currency        string
	contactPhone    string
	contactEmail    string
	notes           string

	providerNotes  string
	declinedReason string

	createdAt   time.Time
	confirmedAt *time.Time
	completedAt *time.Time
	cancelledAt *time.Time
	declinedAt  *time.Time

	version   int64
	updatedAt time.Time
}

// Draft holds the customer-supplied data for a new booking.
type Draft struct {
	EntityType      EntityType
	EntityID        uuid.UUID
	UserID          uuid.UUID
	ProviderUserID  uuid.UUID
	Date            *time.Time
	Guests          int
	TotalPriceCents int64
	Currency        string
	ContactPhone    string
	ContactEmail    string
	Notes           string
}

// NewBooking validates a draft and creates a Booking with status=PENDING.
func NewBooking(d Draft, referenceNumber string) (*Booking, error) {
	if !d.EntityType.IsValid() {
		return nil, domain.NewValidationError("entity_type must be one of TOUR, GUIDE, DRIVER")
	}
	if d.EntityID == uuid.Nil {
		return nil, domain.NewValidationError("entity_id is required")
	}
	if d.UserID == uuid.Nil {
		return nil, domain.NewValidationError("customer ID is required")
	}
	if d.ProviderUserID == uuid.Nil {
		return nil, domain.NewValidationError("provider_user_id is required")
	}
	if d.UserID == d.ProviderUserID {
		return nil, domain.NewValidationError("you cannot book your own listing")
	}
	if d.Guests == 0 {
		d.Guests = defaultGuestSize
	}
	if d.Guests < 1 || d.Guests > maxGuests {
		return nil, domain.NewValidationError("guests must be between 1 and 100")
	}
	if d.TotalPriceCents < 0 {
		return nil, domain.NewValidationError("total price cannot be negative")
	}
	if len(d.Currency) != 3 {
		return nil, domain.NewValidationError("currency must be an ISO 4217 code")
	}
	email := strings.TrimSpace(d.ContactEmail)
	if email != "" {
		if _, err := mail.ParseAddress(email); err != nil {
			return nil, domain.NewValidationError("contact_email is not a valid address")
		}
	}
	phone := strings.TrimSpace(d.ContactPhone)
	if len(phone) > maxPhoneLength {
		return nil, domain.NewValidationError("contact_phone is too long")
	}
	if len(d.Notes) > maxNotesLength {
		return nil, domain.NewValidationError("notes must be at most 1000 characters")
	}
	if referenceNumber == "" {
		return nil, domain.NewValidationError("reference number is required")
	}

	now := time.Now().UTC()
	return &Booking{
		id:              uuid.New(),
		referenceNumber: referenceNumber,
		entityType:      d.EntityType,
		entityID:        d.EntityID,
		userID:          d.UserID,
		providerUserID:  d.ProviderUserID,
		status:          StatusPending,
		date:            d.Date,
		guests:          d.Guests,
		totalPriceCents: d.TotalPriceCents,
		currency:        strings.ToUpper(d.Currency),
		contactPhone:    phone,
		contactEmail:    email,
		notes:           d.Notes,
		createdAt:       now,
		version:         1,
		updatedAt:       now,
	}, nil
}

// Snapshot is the full persisted state of a booking, used to rebuild the aggregate.
type Snapshot struct {
	ID              uuid.UUID
	ReferenceNumber string
	EntityType      EntityType
	EntityID        uuid.UUID
	UserID          uuid.UUID
	ProviderUserID  uuid.UUID
	Status          BookingStatus
	Date            *time.Time
	Guests          int
	TotalPriceCents int64
	Currency        string
	ContactPhone    string
	ContactEmail    string
	Notes           string
	ProviderNotes   string
	DeclinedReason  string
	CreatedAt       time.Time
	ConfirmedAt     *time.Time
	CompletedAt     *time.Time
	CancelledAt     *time.Time
	DeclinedAt      *time.Time
	Version         int64
	UpdatedAt       time.Time
}

// ReconstructBooking rebuilds a Booking from persistence data (no validation).
func ReconstructBooking(s Snapshot) *Booking {
	return &Booking{
		id:              s.ID,
		referenceNumber: s.ReferenceNumber,
		entityType:      s.EntityType,
		entityID:        s.EntityID,
		userID:          s.UserID,
		providerUserID:  s.ProviderUserID,
		status:          s.Status,
		date:            s.Date,
		guests:          s.Guests,
		totalPriceCents: s.TotalPriceCents,
		currency:        s.Currency,
		contactPhone:    s.ContactPhone,
		contactEmail:    s.ContactEmail,
		notes:           s.Notes,
		providerNotes:   s.ProviderNotes,
		declinedReason:  s.DeclinedReason,
		createdAt:       s.CreatedAt,
		confirmedAt:     s.ConfirmedAt,
		completedAt:     s.CompletedAt,
		cancelledAt:     s.CancelledAt,
		declinedAt:      s.DeclinedAt,
		version:         s.Version,
		updatedAt:       s.UpdatedAt,
	}
}

// Snapshot returns the aggregate's full state.
func (b *Booking) Snapshot() Snapshot {
	return Snapshot{
		ID:              b.id,
		ReferenceNumber: b.referenceNumber,
		EntityType:      b.entityType,
		EntityID:        b.entityID,
		UserID:          b.userID,
		ProviderUserID:  b.providerUserID,
		Status:          b.status,
		Date:            b.date,
		Guests:          b.guests,
		TotalPriceCents: b.totalPriceCents,
		Currency:        b.currency,
		ContactPhone:    b.contactPhone,
		ContactEmail:    b.contactEmail,
		Notes:           b.notes,
		ProviderNotes:   b.providerNotes,
		DeclinedReason:  b.declinedReason,
		CreatedAt:       b.createdAt,
		ConfirmedAt:     b.confirmedAt,
		CompletedAt:     b.completedAt,
		CancelledAt:     b.cancelledAt,
		DeclinedAt:      b.declinedAt,
		Version:         b.version,
		UpdatedAt:       b.updatedAt,
	}
}

// --- Getters ---

// ID returns the booking's unique identifier.
func (b *Booking) ID() uuid.UUID { return b.id }

// ReferenceNumber returns the human-readable reference.
func (b *Booking) ReferenceNumber() string { return b.referenceNumber }

// EntityType returns what kind of listing is booked.
func (b *Booking) EntityType() EntityType { return b.entityType }

// EntityID returns the booked listing's ID.
func (b *Booking) EntityID() uuid.UUID { return b.entityID }

// UserID returns the customer's user ID.
func (b *Booking) UserID() uuid.UUID { return b.userID }

// ProviderUserID returns the provider's user ID.
func (b *Booking) ProviderUserID() uuid.UUID { return b.providerUserID }

// Status returns the current booking status.
func (b *Booking) Status() BookingStatus { return b.status }

// Date returns the requested service date, if any.
func (b *Booking) Date() *time.Time { return b.date }

// Guests returns the party size.
func (b *Booking) Guests() int { return b.guests }

// TotalPriceCents returns the quoted total in minor units.
func (b *Booking) TotalPriceCents() int64 { return b.totalPriceCents }

// Currency returns the currency code.
func (b *Booking) Currency() string { return b.currency }

func (b *Booking) ContactPhone() string   { return b.contactPhone }
func (b *Booking) ContactEmail() string   { return b.contactEmail }
func (b *Booking) Notes() string          { return b.notes }
func (b *Booking) ProviderNotes() string  { return b.providerNotes }
func (b *Booking) DeclinedReason() string { return b.declinedReason }

func (b *Booking) CreatedAt() time.Time    { return b.createdAt }
func (b *Booking) ConfirmedAt() *time.Time { return b.confirmedAt }
func (b *Booking) CompletedAt() *time.Time { return b.completedAt }
func (b *Booking) CancelledAt() *time.Time { return b.cancelledAt }
func (b *Booking) DeclinedAt() *time.Time  { return b.declinedAt }

// Version returns the entity version, bumped on each committed transition.
func (b *Booking) Version() int64 { return b.version }

// UpdatedAt returns the last-updated timestamp.
func (b *Booking) UpdatedAt() time.Time { return b.updatedAt }

// --- Behavior ---

// RoleOf resolves actorID's relationship to this booking.
func (b *Booking) RoleOf(actorID uuid.UUID) Role {
	switch actorID {
	case uuid.Nil:
		return RoleNone
	case b.userID:
		return RoleCustomer
	case b.providerUserID:
		return RoleProvider
	}
	return RoleNone
}

// Transition describes a guarded status change ready to be written atomically.
type Transition struct {
	BookingID      uuid.UUID
	Action         Action
	From           BookingStatus
	To             BookingStatus
	At             time.Time
	ProviderNotes  *string
	DeclinedReason *string
}

// PlanTransition runs the guard for actorID and returns the write to attempt.
func (b *Booking) PlanTransition(actorID uuid.UUID, action Action, payload Payload, at time.Time) (Transition, error) {
	next, err := Decide(b.status, action, b.RoleOf(actorID), payload)
	if err != nil {
		return Transition{}, err
	}

	t := Transition{
		BookingID: b.id,
		Action:    action,
		From:      b.status,
		To:        next,
		At:        at.UTC(),
	}
	switch action {
	case ActionConfirm:
		notes := strings.TrimSpace(payload.ProviderNotes)
		if len(notes) > maxNotesLength {
			return Transition{}, domain.NewValidationError("provider_notes must be at most 1000 characters")
		}
		t.ProviderNotes = &notes
	case ActionDecline:
		reason := strings.TrimSpace(payload.DeclinedReason)
		if len(reason) > maxReasonLength {
			return Transition{}, domain.NewValidationError("declined_reason must be at most 1000 characters")
		}
		t.DeclinedReason = &reason
	}
	return t, nil
}

// Apply mutates the aggregate according to t. It fails with ErrVersionConflict when the
// booking is no longer in t.From.
func (b *Booking) Apply(t Transition) error {
	if b.status != t.From {
		return ErrVersionConflict
	}
	if !t.From.CanTransitionTo(t.To) {
		return domain.NewInvalidStateError(string(t.From), string(t.Action))
	}

	at := t.At
	switch t.To {
	case StatusConfirmed:
		b.confirmedAt = &at
	case StatusDeclined:
		b.declinedAt = &at
	case StatusCompleted:
		b.completedAt = &at
	case StatusCancelled:
		b.cancelledAt = &at
	}
	if t.ProviderNotes != nil {
		b.providerNotes = *t.ProviderNotes
	}
	if t.DeclinedReason != nil {
		b.declinedReason = *t.DeclinedReason
	}
	b.status = t.To
	b.version++
	b.updatedAt = at
	return nil
}

// Clone returns an independent copy of the aggregate.
func (b *Booking) Clone() *Booking {
	return ReconstructBooking(b.Snapshot())
}
