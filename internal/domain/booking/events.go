package booking

import (
	"time"

	"github.com/google/uuid"
)

// Event types published for booking side effects.
const (
	EventBookingCreated   = "booking.created"
	EventBookingConfirmed = "booking.confirmed"
	EventBookingDeclined  = "booking.declined"
	EventBookingCancelled = "booking.cancelled"
	EventBookingCompleted = "booking.completed"
)

// ActionCreate labels the creation event; it is not a guarded transition.
const ActionCreate Action = "create"

// Event is the side-effect record emitted once per committed booking change, consumed by
// notification and audit services.
type Event struct {
	ID              uuid.UUID     `json:"event_id"`
	Type            string        `json:"type"`
	BookingID       uuid.UUID     `json:"booking_id"`
	ReferenceNumber string        `json:"reference_number"`
	EntityType      EntityType    `json:"entity_type"`
	EntityID        uuid.UUID     `json:"entity_id"`
	Action          Action        `json:"action"`
	PreviousStatus  BookingStatus `json:"previous_status,omitempty"`
	NextStatus      BookingStatus `json:"next_status"`
	ActorUserID     uuid.UUID     `json:"actor_user_id"`
	CustomerUserID  uuid.UUID     `json:"customer_user_id"`
	ProviderUserID  uuid.UUID     `json:"provider_user_id"`
	DeclinedReason  string        `json:"declined_reason,omitempty"`
	OccurredAt      time.Time     `json:"occurred_at"`
}

var eventTypeByStatus = map[BookingStatus]string{
	StatusConfirmed: EventBookingConfirmed,
	StatusDeclined:  EventBookingDeclined,
	StatusCancelled: EventBookingCancelled,
	StatusCompleted: EventBookingCompleted,
}

// NewTransitionEvent builds the event for a committed transition.
func NewTransitionEvent(bk *Booking, t Transition, actorID uuid.UUID) Event {
	return Event{
		ID:              uuid.New(),
		Type:            eventTypeByStatus[t.To],
		BookingID:       bk.ID(),
		ReferenceNumber: bk.ReferenceNumber(),
		EntityType:      bk.EntityType(),
		EntityID:        bk.EntityID(),
		Action:          t.Action,
		PreviousStatus:  t.From,
		NextStatus:      t.To,
		ActorUserID:     actorID,
		CustomerUserID:  bk.UserID(),
		ProviderUserID:  bk.ProviderUserID(),
		DeclinedReason:  bk.DeclinedReason(),
		OccurredAt:      t.At,
	}
}

// NewCreatedEvent builds the event for a newly created booking.
func NewCreatedEvent(bk *Booking) Event {
	return Event{
		ID:              uuid.New(),
		Type:            EventBookingCreated,
		BookingID:       bk.ID(),
		ReferenceNumber: bk.ReferenceNumber(),
		EntityType:      bk.EntityType(),
		EntityID:        bk.EntityID(),
		Action:          ActionCreate,
		NextStatus:      bk.Status(),
		ActorUserID:     bk.UserID(),
		CustomerUserID:  bk.UserID(),
		ProviderUserID:  bk.ProviderUserID(),
		OccurredAt:      bk.CreatedAt(),
	}
}
