package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/AnatolyKozmin/Shend/internal/models"
	appErrors "github.com/AnatolyKozmin/Shend/pkg/errors"
	"github.com/AnatolyKozmin/Shend/pkg/jobs"
)

const deliverJobPrefix = "deliver:"

// Sink receives committed booking events.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, event models.BookingEvent) error
}

type jobQueue interface {
	Handle(jobType string, handler jobs.Handler)
	Enqueue(job jobs.Job) error
}

type deliveryMetrics interface {
	ObserveDelivery(sink, outcome string)
}

// NotificationService fans booking events out to sinks through the job
// queue, one job per sink so a slow or failing sink never blocks the others.
type NotificationService struct {
	queue   jobQueue
	sinks   []Sink
	metrics deliveryMetrics
	logger  *zap.Logger
}

// NewNotificationService registers a queue handler per sink.
func NewNotificationService(queue jobQueue, sinks []Sink, metrics deliveryMetrics, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &NotificationService{queue: queue, sinks: sinks, metrics: metrics, logger: logger}
	for _, sink := range sinks {
		queue.Handle(deliverJobPrefix+sink.Name(), svc.handler(sink))
	}
	return svc
}

// Publish enqueues the event for every sink.
func (s *NotificationService) Publish(ctx context.Context, event models.BookingEvent) error {
	var errs []error
	for _, sink := range s.sinks {
		job := jobs.Job{
			ID:      event.ID + ":" + sink.Name(),
			Type:    deliverJobPrefix + sink.Name(),
			Payload: event,
		}
		if err := s.queue.Enqueue(job); err != nil {
			errs = append(errs, fmt.Errorf("enqueue %s: %w", sink.Name(), err))
		}
	}
	return errors.Join(errs...)
}

func (s *NotificationService) handler(sink Sink) jobs.Handler {
	return func(ctx context.Context, job jobs.Job) error {
		event, ok := job.Payload.(models.BookingEvent)
		if !ok {
			s.logger.Error("unexpected notification payload", zap.String("job_id", job.ID), zap.String("type", job.Type))
			return nil
		}
		if err := sink.Deliver(ctx, event); err != nil {
			return err
		}
		s.observe(sink.Name(), OutcomeDelivered)
		s.logger.Debug("booking event delivered",
			zap.String("sink", sink.Name()),
			zap.String("booking_id", event.BookingID),
			zap.String("event_type", string(event.Type)),
		)
		return nil
	}
}

// DeliveryFailed is the queue's exhausted hook. The booking stays committed;
// the failure is only recorded.
func (s *NotificationService) DeliveryFailed(job jobs.Job, err error) {
	sink := job.Type
	if len(sink) > len(deliverJobPrefix) {
		sink = sink[len(deliverJobPrefix):]
	}
	s.observe(sink, OutcomeFailed)

	fields := []zap.Field{
		zap.String("code", appErrors.ErrSinkDeliveryFailed.Code),
		zap.String("sink", sink),
		zap.String("job_id", job.ID),
		zap.Int("attempts", job.Attempt),
		zap.Error(err),
	}
	if event, ok := job.Payload.(models.BookingEvent); ok {
		fields = append(fields,
			zap.String("booking_id", event.BookingID),
			zap.String("event_type", string(event.Type)),
			zap.String("candidate_id", event.CandidateID),
		)
	}
	s.logger.Error(appErrors.ErrSinkDeliveryFailed.Message, fields...)
}

func (s *NotificationService) observe(sink, outcome string) {
	if s.metrics != nil {
		s.metrics.ObserveDelivery(sink, outcome)
	}
}
