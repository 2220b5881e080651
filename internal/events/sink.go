package events

import (
	"context"
	"errors"

	"github.com/atlascaucasus/service-booking/internal/common/kafka"
	bookingDomain "github.com/atlascaucasus/service-booking/internal/domain/booking"
	"go.uber.org/zap"
)

// TopicBookingEvents is the topic notification and audit consumers subscribe to.
const TopicBookingEvents = "booking.events"

// Sink delivers a booking event to downstream consumers.
type Sink interface {
	Deliver(ctx context.Context, evt bookingDomain.Event) error
}

// Publisher is the subset of kafka.Producer the Kafka sink needs.
type Publisher interface {
	PublishEvent(ctx context.Context, topic string, event kafka.CloudEvent) error
}

// KafkaSink publishes booking events as CloudEvents keyed by booking ID, so every event of
// one booking stays ordered on its partition.
type KafkaSink struct {
	publisher Publisher
	topic     string
	source    string
}

// NewKafkaSink creates a KafkaSink.
func NewKafkaSink(publisher Publisher, topic, source string) *KafkaSink {
	return &KafkaSink{publisher: publisher, topic: topic, source: source}
}

// Deliver implements Sink. The CloudEvent ID is the booking event ID so consumers can
// de-duplicate resends.
func (s *KafkaSink) Deliver(ctx context.Context, evt bookingDomain.Event) error {
	ce, err := kafka.NewCloudEvent(s.source, evt.Type, evt)
	if err != nil {
		return err
	}
	ce.ID = evt.ID.String()
	ce.Subject = evt.BookingID.String()
	ce.Time = evt.OccurredAt
	return s.publisher.PublishEvent(ctx, s.topic, ce)
}

// LogSink writes events to the log. Used when no broker is configured.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink creates a LogSink.
func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Deliver implements Sink.
func (s *LogSink) Deliver(_ context.Context, evt bookingDomain.Event) error {
	s.logger.Info("booking event",
		zap.String("event_id", evt.ID.String()),
		zap.String("type", evt.Type),
		zap.String("booking_id", evt.BookingID.String()),
		zap.String("action", string(evt.Action)),
		zap.String("previous_status", string(evt.PreviousStatus)),
		zap.String("next_status", string(evt.NextStatus)),
		zap.String("actor_user_id", evt.ActorUserID.String()),
	)
	return nil
}

// FanoutSink delivers to every sink and joins their errors.
type FanoutSink []Sink

// Deliver implements Sink.
func (f FanoutSink) Deliver(ctx context.Context, evt bookingDomain.Event) error {
	var errs []error
	for _, s := range f {
		if err := s.Deliver(ctx, evt); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
