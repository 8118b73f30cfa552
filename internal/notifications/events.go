package notifications

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/eternisai/devotional-push/internal/logger"
	"github.com/nats-io/nats.go"
)

const (
	// SubjectSubscriptionDropped carries one event per subscription removed after a 404/410.
	SubjectSubscriptionDropped = "push.subscription.dropped"
	// SubjectDispatchCompleted carries the summary of every scheduled run.
	SubjectDispatchCompleted = "push.dispatch.completed"
)

// SubscriptionDroppedEvent is published after a dead subscription is deleted.
type SubscriptionDroppedEvent struct {
	Key        string    `json:"key"`
	DispatchID string    `json:"dispatch_id,omitempty"`
	DroppedAt  time.Time `json:"dropped_at"`
	InstanceID string    `json:"instance_id"`
}

// DispatchCompletedEvent summarizes one run.
type DispatchCompletedEvent struct {
	DispatchID    string    `json:"dispatch_id"`
	StartedAt     time.Time `json:"started_at"`
	Subscriptions int       `json:"subscriptions"`
	Skipped       int       `json:"skipped"`
	Sends         int       `json:"sends"`
	Delivered     int       `json:"delivered"`
	Dropped       int       `json:"dropped"`
	Failed        int       `json:"failed"`
	InstanceID    string    `json:"instance_id"`
}

// EventPublisher publishes delivery events over NATS. A nil *EventPublisher
// is valid and publishes nothing.
type EventPublisher struct {
	nc     *nats.Conn
	logger *logger.Logger
}

// NewEventPublisher returns nil when nc is nil.
func NewEventPublisher(nc *nats.Conn, logger *logger.Logger) *EventPublisher {
	if nc == nil {
		return nil
	}
	return &EventPublisher{
		nc:     nc,
		logger: logger.WithComponent("push-events"),
	}
}

func (p *EventPublisher) publish(subject string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", subject, err)
	}
	if err := p.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}
	return nil
}

// SubscriptionDropped announces that key was removed.
func (p *EventPublisher) SubscriptionDropped(key, dispatchID string) {
	if p == nil {
		return
	}
	event := SubscriptionDroppedEvent{
		Key:        key,
		DispatchID: dispatchID,
		DroppedAt:  time.Now().UTC(),
		InstanceID: logger.GetInstanceID(),
	}
	if err := p.publish(SubjectSubscriptionDropped, event); err != nil {
		p.logger.Warn("event not published", slog.String("error", err.Error()))
	}
}

// DispatchCompleted announces the summary of report.
func (p *EventPublisher) DispatchCompleted(report *Report) {
	if p == nil || report == nil {
		return
	}
	event := DispatchCompletedEvent{
		DispatchID:    report.DispatchID,
		StartedAt:     report.StartedAt,
		Subscriptions: report.Subscriptions,
		Skipped:       report.Skipped,
		Sends:         len(report.Attempts),
		Delivered:     report.Delivered,
		Dropped:       report.Dropped,
		Failed:        report.Failed,
		InstanceID:    logger.GetInstanceID(),
	}
	if err := p.publish(SubjectDispatchCompleted, event); err != nil {
		p.logger.Warn("event not published", slog.String("error", err.Error()))
	}
}
