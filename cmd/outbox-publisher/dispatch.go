package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"gorm.io/gorm"

	"github.com/tillstock/tillstock-backend/pkg/db/models"
	"github.com/tillstock/tillstock-backend/pkg/enums"
	"github.com/tillstock/tillstock-backend/pkg/outbox/registry"
)

// verdict is the fate of an outbox row once its publishes have been awaited.
type verdict int

const (
	verdictPublished verdict = iota
	verdictRetry
	verdictDeadLetter
)

type pendingPublish struct {
	topic  string
	result publishResult
}

// delivery tracks one outbox row through stage, await and settle.
type delivery struct {
	event    models.OutboxEvent
	resolved *registry.ResolvedEvent
	pending  []pendingPublish
	err      error
}

// routes lists the topics a resolved event goes to. Analytics events are
// copied to the shared analytics topic when one is configured.
func (s *Service) routes(resolved *registry.ResolvedEvent) []string {
	topics := []string{resolved.Descriptor.Topic}
	if resolved.Descriptor.Analytics && s.cfg.PubSub.AnalyticsTopic != "" {
		topics = append(topics, s.cfg.PubSub.AnalyticsTopic)
	}
	return topics
}

// stage resolves the row and hands its messages to publishers without
// waiting for the server acknowledgement.
func (s *Service) stage(ctx context.Context, event models.OutboxEvent) *delivery {
	d := &delivery{event: event}

	resolved, err := s.registry.Resolve(event)
	if err != nil {
		var nonRetry registry.NonRetryableError
		if !errors.As(err, &nonRetry) {
			err = registry.NewNonRetryableError(err)
		}
		d.err = err
		return d
	}
	d.resolved = resolved

	msg := newMessage(event, resolved)
	for _, topic := range s.routes(resolved) {
		pub := s.publisherFactory(topic)
		if pub == nil {
			d.err = registry.NewNonRetryableError(fmt.Errorf("publisher not configured for topic %s", topic))
			return d
		}
		result := pub.Publish(ctx, msg)
		if result == nil {
			d.err = registry.NewNonRetryableError(fmt.Errorf("publisher returned nil for topic %s", topic))
			return d
		}
		d.pending = append(d.pending, pendingPublish{topic: topic, result: result})
	}
	return d
}

// await blocks until every staged publish for the row has resolved. A failure
// on any topic fails the row; a retry re-sends to all of them and consumers
// drop the duplicates by event id.
func (d *delivery) await(ctx context.Context) {
	if d.err != nil {
		return
	}
	for _, p := range d.pending {
		if _, err := p.result.Get(ctx); err != nil {
			d.err = fmt.Errorf("publish to %s: %w", p.topic, err)
			return
		}
	}
}

func (s *Service) judge(d *delivery) (verdict, enums.OutboxDLQErrorReason) {
	if d.err == nil {
		return verdictPublished, ""
	}
	var nonRetry registry.NonRetryableError
	if errors.As(d.err, &nonRetry) {
		return verdictDeadLetter, enums.OutboxDLQReasonNonRetryable
	}
	if d.event.AttemptCount+1 >= s.maxAttempts {
		return verdictDeadLetter, enums.OutboxDLQReasonMaxAttempts
	}
	return verdictRetry, ""
}

func (s *Service) settle(ctx context.Context, tx *gorm.DB, d *delivery) error {
	fields := d.logFields()
	fields["batch_size"] = s.batchSize

	v, reason := s.judge(d)
	switch v {
	case verdictPublished:
		if err := s.repo.MarkPublishedTx(tx, d.event.ID); err != nil {
			return fmt.Errorf("mark published %s: %w", d.event.ID, err)
		}
		s.logg.Info(s.logg.WithFields(ctx, fields), "outbox event published")
		return nil

	case verdictRetry:
		fields["attempt_count"] = d.event.AttemptCount + 1
		logCtx := s.logg.WithField(s.logg.WithFields(ctx, fields), "error", d.err.Error())
		s.logg.Warn(logCtx, "outbox publish failed")
		if err := s.repo.MarkFailedTx(tx, d.event.ID, d.err); err != nil {
			return fmt.Errorf("mark failure %s: %w", d.event.ID, err)
		}
		return nil
	}

	cause := d.err
	if reason == enums.OutboxDLQReasonMaxAttempts {
		fields["attempt_count"] = d.event.AttemptCount + 1
		cause = fmt.Errorf("max publish attempts reached: %w", d.err)
	}
	fields["error_reason"] = reason
	logCtx := s.logg.WithField(s.logg.WithFields(ctx, fields), "error", cause.Error())
	s.logg.Warn(logCtx, "outbox event will not be retried")

	msg := cause.Error()
	entry := models.OutboxDLQ{
		EventID:       d.event.ID,
		EventType:     d.event.EventType,
		AggregateType: d.event.AggregateType,
		AggregateID:   d.event.AggregateID,
		Payload:       d.event.Payload,
		ErrorReason:   reason,
		ErrorMessage:  &msg,
		AttemptCount:  d.event.AttemptCount,
		FailedAt:      time.Now().UTC(),
	}
	if err := s.dlq.InsertTx(tx, entry); err != nil {
		return fmt.Errorf("insert dlq %s: %w", d.event.ID, err)
	}
	if err := s.repo.MarkTerminalTx(tx, d.event.ID, cause); err != nil {
		return fmt.Errorf("mark terminal %s: %w", d.event.ID, err)
	}
	return nil
}

func (d *delivery) logFields() map[string]any {
	fields := map[string]any{
		"outbox_id":      d.event.ID.String(),
		"event_type":     d.event.EventType,
		"aggregate_type": d.event.AggregateType,
		"aggregate_id":   d.event.AggregateID.String(),
		"attempt_count":  d.event.AttemptCount,
	}
	if d.event.LastError != nil {
		fields["last_error"] = *d.event.LastError
	}
	if d.resolved == nil {
		return fields
	}
	fields["topic"] = d.resolved.Descriptor.Topic
	if d.resolved.Envelope.EventID != "" {
		fields["event_id"] = d.resolved.Envelope.EventID
		fields["occurred_at"] = d.resolved.Envelope.OccurredAt.Format(time.RFC3339Nano)
	}
	return fields
}

// newMessage carries the stored envelope verbatim; attributes let
// subscribers filter without decoding the body.
func newMessage(event models.OutboxEvent, resolved *registry.ResolvedEvent) *gcppubsub.Message {
	return &gcppubsub.Message{
		Data: event.Payload,
		Attributes: map[string]string{
			"event_id":       resolved.Envelope.EventID,
			"event_type":     string(event.EventType),
			"aggregate_type": string(event.AggregateType),
			"aggregate_id":   event.AggregateID.String(),
			"version":        strconv.Itoa(resolved.Envelope.Version),
			"occurred_at":    resolved.Envelope.OccurredAt.Format(time.RFC3339Nano),
		},
	}
}
