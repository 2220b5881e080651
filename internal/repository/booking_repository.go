package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/atlascaucasus/service-booking/internal/common/domain"
	bookingDomain "github.com/atlascaucasus/service-booking/internal/domain/booking"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// BookingModel is the GORM model for the bookings table.
type BookingModel struct {
	ID              uuid.UUID  `gorm:"type:uuid;primaryKey"`
	ReferenceNumber string     `gorm:"uniqueIndex;not null;size:20"`
	EntityType      string     `gorm:"not null;size:10"`
	EntityID        uuid.UUID  `gorm:"type:uuid;index;not null"`
	UserID          uuid.UUID  `gorm:"type:uuid;index;not null"`
	ProviderUserID  uuid.UUID  `gorm:"type:uuid;index;not null"`
	Status          string     `gorm:"not null;size:20;index"`
	Date            *time.Time `gorm:""`
	Guests          int        `gorm:"not null;default:1"`
	TotalPriceCents int64      `gorm:"not null;default:0"`
	Currency        string     `gorm:"not null;size:3;default:'GEL'"`
	ContactPhone    string     `gorm:"size:32"`
	ContactEmail    string     `gorm:"size:254"`
	Notes           string     `gorm:"size:1000"`
	ProviderNotes   string     `gorm:"size:1000"`
	DeclinedReason  string     `gorm:"size:1000"`
	CreatedAt       time.Time  `gorm:"not null"`
	ConfirmedAt     *time.Time `gorm:""`
	CompletedAt     *time.Time `gorm:""`
	CancelledAt     *time.Time `gorm:""`
	DeclinedAt      *time.Time `gorm:""`
	Version         int64      `gorm:"not null;default:1"`
	UpdatedAt       time.Time  `gorm:"not null"`
}

// TableName returns the table name for the GORM model.
func (BookingModel) TableName() string {
	return "bookings"
}

// GormBookingRepository is the GORM-based implementation of BookingRepository.
type GormBookingRepository struct {
	db *gorm.DB
}

// NewGormBookingRepository creates a new GormBookingRepository.
func NewGormBookingRepository(db *gorm.DB) *GormBookingRepository {
	return &GormBookingRepository{db: db}
}

// FindByID retrieves a booking by its unique identifier.
func (r *GormBookingRepository) FindByID(ctx context.Context, id uuid.UUID) (*bookingDomain.Booking, error) {
	var model BookingModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.NewNotFoundError("Booking", id.String())
		}
		return nil, fmt.Errorf("failed to find booking by ID: %w", err)
	}
	return toDomainBooking(&model)
}

// FindByReference retrieves a booking by its reference number.
func (r *GormBookingRepository) FindByReference(ctx context.Context, reference string) (*bookingDomain.Booking, error) {
	var model BookingModel
	if err := r.db.WithContext(ctx).Where("reference_number = ?", reference).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.NewNotFoundError("Booking", reference)
		}
		return nil, fmt.Errorf("failed to find booking by reference: %w", err)
	}
	return toDomainBooking(&model)
}

// FindByCustomer retrieves bookings made by a customer with pagination.
func (r *GormBookingRepository) FindByCustomer(ctx context.Context, userID uuid.UUID, filter bookingDomain.ListFilter) ([]*bookingDomain.Booking, int64, error) {
	return r.list(ctx, r.db.WithContext(ctx).Where("user_id = ?", userID), filter)
}

// FindByProvider retrieves bookings addressed to a provider with pagination.
func (r *GormBookingRepository) FindByProvider(ctx context.Context, providerUserID uuid.UUID, filter bookingDomain.ListFilter) ([]*bookingDomain.Booking, int64, error) {
	return r.list(ctx, r.db.WithContext(ctx).Where("provider_user_id = ?", providerUserID), filter)
}

// ListAll retrieves all bookings with pagination (admin).
func (r *GormBookingRepository) ListAll(ctx context.Context, filter bookingDomain.ListFilter) ([]*bookingDomain.Booking, int64, error) {
	return r.list(ctx, r.db.WithContext(ctx), filter)
}

func (r *GormBookingRepository) list(ctx context.Context, scope *gorm.DB, filter bookingDomain.ListFilter) ([]*bookingDomain.Booking, int64, error) {
	query := scope.Model(&BookingModel{})
	if filter.Status != nil {
		query = query.Where("status = ?", string(*filter.Status))
	}

	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count bookings: %w", err)
	}

	var models []BookingModel
	if err := query.Session(&gorm.Session{}).
		Order("created_at DESC").
		Offset(filter.Offset()).
		Limit(filter.Limit).
		Find(&models).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list bookings: %w", err)
	}

	bookings := make([]*bookingDomain.Booking, len(models))
	for i := range models {
		bk, err := toDomainBooking(&models[i])
		if err != nil {
			return nil, 0, err
		}
		bookings[i] = bk
	}
	return bookings, total, nil
}

// CountByStatus returns booking counts grouped by status (admin).
func (r *GormBookingRepository) CountByStatus(ctx context.Context) (map[string]int64, error) {
	type statusCount struct {
		Status string
		Count  int64
	}
	var results []statusCount
	if err := r.db.WithContext(ctx).Model(&BookingModel{}).
		Select("status, count(*) as count").
		Group("status").
		Find(&results).Error; err != nil {
		return nil, fmt.Errorf("failed to count by status: %w", err)
	}

	counts := make(map[string]int64)
	for _, sc := range results {
		counts[sc.Status] = sc.Count
	}
	return counts, nil
}

// Save persists a new booking.
func (r *GormBookingRepository) Save(ctx context.Context, bk *bookingDomain.Booking) error {
	model := toBookingModel(bk)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return bookingDomain.ErrDuplicateReference
		}
		return fmt.Errorf("failed to save booking: %w", err)
	}
	return nil
}

// ApplyTransition performs the compare-and-swap:
//
//	UPDATE bookings SET status = ?, <ts> = ?, ... WHERE id = ? AND status = ?
//
// Zero affected rows means either the booking is gone or its status moved on; a follow-up
// existence check tells the two apart.
func (r *GormBookingRepository) ApplyTransition(ctx context.Context, t bookingDomain.Transition) (*bookingDomain.Booking, error) {
	column, ok := timestampColumn(t.To)
	if !ok {
		return nil, fmt.Errorf("no timestamp column for status %s", t.To)
	}

	updates := map[string]interface{}{
		"status":     string(t.To),
		column:       t.At,
		"version":    gorm.Expr("version + 1"),
		"updated_at": t.At,
	}
	if t.ProviderNotes != nil {
		updates["provider_notes"] = *t.ProviderNotes
	}
	if t.DeclinedReason != nil {
		updates["declined_reason"] = *t.DeclinedReason
	}

	var model BookingModel
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&BookingModel{}).
			Where("id = ? AND status = ?", t.BookingID, string(t.From)).
			Updates(updates)
		if result.Error != nil {
			return fmt.Errorf("failed to apply booking transition: %w", result.Error)
		}

		if result.RowsAffected == 0 {
			var count int64
			if err := tx.Model(&BookingModel{}).Where("id = ?", t.BookingID).Count(&count).Error; err != nil {
				return fmt.Errorf("failed to check booking existence: %w", err)
			}
			if count == 0 {
				return domain.NewNotFoundError("Booking", t.BookingID.String())
			}
			return bookingDomain.ErrVersionConflict
		}

		if err := tx.Where("id = ?", t.BookingID).First(&model).Error; err != nil {
			return fmt.Errorf("failed to reload booking: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return toDomainBooking(&model)
}

func timestampColumn(status bookingDomain.BookingStatus) (string, bool) {
	switch status {
	case bookingDomain.StatusConfirmed:
		return "confirmed_at", true
	case bookingDomain.StatusDeclined:
		return "declined_at", true
	case bookingDomain.StatusCompleted:
		return "completed_at", true
	case bookingDomain.StatusCancelled:
		return "cancelled_at", true
	}
	return "", false
}

// --- Conversion Helpers ---

func toBookingModel(bk *bookingDomain.Booking) *BookingModel {
	s := bk.Snapshot()
	return &BookingModel{
		ID:              s.ID,
		ReferenceNumber: s.ReferenceNumber,
		EntityType:      string(s.EntityType),
		EntityID:        s.EntityID,
		UserID:          s.UserID,
		ProviderUserID:  s.ProviderUserID,
		Status:          string(s.Status),
		Date:            s.Date,
		Guests:          s.Guests,
		TotalPriceCents: s.TotalPriceCents,
		Currency:        s.Currency,
		ContactPhone:    s.ContactPhone,
		ContactEmail:    s.ContactEmail,
		Notes:           s.Notes,
		ProviderNotes:   s.ProviderNotes,
		DeclinedReason:  s.DeclinedReason,
		CreatedAt:       s.CreatedAt,
		ConfirmedAt:     s.ConfirmedAt,
		CompletedAt:     s.CompletedAt,
		CancelledAt:     s.CancelledAt,
		DeclinedAt:      s.DeclinedAt,
		Version:         s.Version,
		UpdatedAt:       s.UpdatedAt,
	}
}

func toDomainBooking(m *BookingModel) (*bookingDomain.Booking, error) {
	status, err := bookingDomain.ParseBookingStatus(m.Status)
	if err != nil {
		return nil, err
	}

	return bookingDomain.ReconstructBooking(bookingDomain.Snapshot{
		ID:              m.ID,
		ReferenceNumber: m.ReferenceNumber,
		EntityType:      bookingDomain.EntityType(m.EntityType),
		EntityID:        m.EntityID,
		UserID:          m.UserID,
		ProviderUserID:  m.ProviderUserID,
		Status:          status,
		Date:            m.Date,
		Guests:          m.Guests,
		TotalPriceCents: m.TotalPriceCents,
		Currency:        m.Currency,
		ContactPhone:    m.ContactPhone,
		ContactEmail:    m.ContactEmail,
		Notes:           m.Notes,
		ProviderNotes:   m.ProviderNotes,
		DeclinedReason:  m.DeclinedReason,
		CreatedAt:       m.CreatedAt,
		ConfirmedAt:     m.ConfirmedAt,
		CompletedAt:     m.CompletedAt,
		CancelledAt:     m.CancelledAt,
		DeclinedAt:      m.DeclinedAt,
		Version:         m.Version,
		UpdatedAt:       m.UpdatedAt,
	}), nil
}
