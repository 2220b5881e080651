package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/atlascaucasus/service-booking/internal/common/domain"
	bookingDomain "github.com/atlascaucasus/service-booking/internal/domain/booking"
	"github.com/google/uuid"
)

// MemoryBookingRepository keeps bookings in process memory with the same compare-and-swap
// contract as the PostgreSQL store. Used for local runs without a database and in tests.
type MemoryBookingRepository struct {
	mu          sync.RWMutex
	byID        map[uuid.UUID]*bookingDomain.Booking
	byReference map[string]uuid.UUID
}

// NewMemoryBookingRepository creates an empty in-memory store.
func NewMemoryBookingRepository() *MemoryBookingRepository {
	return &MemoryBookingRepository{
		byID:        make(map[uuid.UUID]*bookingDomain.Booking),
		byReference: make(map[string]uuid.UUID),
	}
}

// FindByID retrieves a copy of the booking.
func (r *MemoryBookingRepository) FindByID(ctx context.Context, id uuid.UUID) (*bookingDomain.Booking, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	bk, ok := r.byID[id]
	if !ok {
		return nil, domain.NewNotFoundError("Booking", id.String())
	}
	return bk.Clone(), nil
}

// FindByReference retrieves a copy of the booking with the given reference.
func (r *MemoryBookingRepository) FindByReference(ctx context.Context, reference string) (*bookingDomain.Booking, error) {
	r.mu.RLock()
	id, ok := r.byReference[reference]
	r.mu.RUnlock()
	if !ok {
		return nil, domain.NewNotFoundError("Booking", reference)
	}
	return r.FindByID(ctx, id)
}

// FindByCustomer retrieves bookings made by a customer with pagination.
func (r *MemoryBookingRepository) FindByCustomer(ctx context.Context, userID uuid.UUID, filter bookingDomain.ListFilter) ([]*bookingDomain.Booking, int64, error) {
	return r.list(ctx, filter, func(bk *bookingDomain.Booking) bool { return bk.UserID() == userID })
}

// FindByProvider retrieves bookings addressed to a provider with pagination.
func (r *MemoryBookingRepository) FindByProvider(ctx context.Context, providerUserID uuid.UUID, filter bookingDomain.ListFilter) ([]*bookingDomain.Booking, int64, error) {
	return r.list(ctx, filter, func(bk *bookingDomain.Booking) bool { return bk.ProviderUserID() == providerUserID })
}

// ListAll retrieves all bookings with pagination.
func (r *MemoryBookingRepository) ListAll(ctx context.Context, filter bookingDomain.ListFilter) ([]*bookingDomain.Booking, int64, error) {
	return r.list(ctx, filter, func(*bookingDomain.Booking) bool { return true })
}

func (r *MemoryBookingRepository) list(ctx context.Context, filter bookingDomain.ListFilter, match func(*bookingDomain.Booking) bool) ([]*bookingDomain.Booking, int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	r.mu.RLock()
	matched := make([]*bookingDomain.Booking, 0)
	for _, bk := range r.byID {
		if !match(bk) {
			continue
		}
		if filter.Status != nil && bk.Status() != *filter.Status {
			continue
		}
		matched = append(matched, bk.Clone())
	}
	r.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt().After(matched[j].CreatedAt())
	})

	total := int64(len(matched))
	start := filter.Offset()
	if start > len(matched) {
		start = len(matched)
	}
	end := len(matched)
	if filter.Limit > 0 && start+filter.Limit < end {
		end = start + filter.Limit
	}
	return matched[start:end], total, nil
}

// CountByStatus returns booking counts grouped by status.
func (r *MemoryBookingRepository) CountByStatus(ctx context.Context) (map[string]int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := make(map[string]int64)
	for _, bk := range r.byID {
		counts[string(bk.Status())]++
	}
	return counts, nil
}

// Save stores a copy of a new booking.
func (r *MemoryBookingRepository) Save(ctx context.Context, bk *bookingDomain.Booking) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byReference[bk.ReferenceNumber()]; exists {
		return bookingDomain.ErrDuplicateReference
	}
	if _, exists := r.byID[bk.ID()]; exists {
		return domain.NewConflictError("booking already exists")
	}
	r.byID[bk.ID()] = bk.Clone()
	r.byReference[bk.ReferenceNumber()] = bk.ID()
	return nil
}

// ApplyTransition applies t under the write lock only if the stored status equals t.From.
func (r *MemoryBookingRepository) ApplyTransition(ctx context.Context, t bookingDomain.Transition) (*bookingDomain.Booking, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.byID[t.BookingID]
	if !ok {
		return nil, domain.NewNotFoundError("Booking", t.BookingID.String())
	}

	next := current.Clone()
	if err := next.Apply(t); err != nil {
		return nil, err
	}
	r.byID[t.BookingID] = next
	return next.Clone(), nil
}
