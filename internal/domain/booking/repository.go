package booking

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	// ErrVersionConflict means the booking left the expected status between read and write.
	ErrVersionConflict = errors.New("booking status changed concurrently")

	// ErrDuplicateReference means the reference number is already taken.
	ErrDuplicateReference = errors.New("booking reference already exists")
)

// ListFilter narrows and pages booking listings.
type ListFilter struct {
	Status *BookingStatus
	Page   int
	Limit  int
}

// Offset returns the row offset for the page.
func (f ListFilter) Offset() int {
	if f.Page < 1 {
		return 0
	}
	return (f.Page - 1) * f.Limit
}

// BookingRepository defines the persistence contract for booking aggregates.
type BookingRepository interface {
	// FindByID retrieves a booking by its unique identifier.
	FindByID(ctx context.Context, id uuid.UUID) (*Booking, error)

	// FindByReference retrieves a booking by its human-readable reference number.
	FindByReference(ctx context.Context, reference string) (*Booking, error)

	// FindByCustomer retrieves bookings made by a customer with pagination.
	FindByCustomer(ctx context.Context, userID uuid.UUID, filter ListFilter) ([]*Booking, int64, error)

	// FindByProvider retrieves bookings addressed to a provider with pagination.
	FindByProvider(ctx context.Context, providerUserID uuid.UUID, filter ListFilter) ([]*Booking, int64, error)

	// ListAll retrieves all bookings with pagination (admin).
	ListAll(ctx context.Context, filter ListFilter) ([]*Booking, int64, error)

	// CountByStatus returns booking counts grouped by status (admin).
	CountByStatus(ctx context.Context) (map[string]int64, error)

	// Save persists a new booking. Returns ErrDuplicateReference on a reference collision.
	Save(ctx context.Context, booking *Booking) error

	// ApplyTransition atomically moves a booking from t.From to t.To, writing the matching
	// timestamp and notes in the same update. Returns ErrVersionConflict when the stored
	// status is no longer t.From, or a NOT_FOUND domain error if the booking is absent.
	ApplyTransition(ctx context.Context, t Transition) (*Booking, error)
}
