package notifications

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/eternisai/devotional-push/internal/logger"
	"github.com/eternisai/devotional-push/internal/subscriptions"
	"github.com/eternisai/devotional-push/internal/webpush"
)

// PushSender is a Sender that also exposes the VAPID public key.
type PushSender interface {
	Sender
	PublicKey() string
}

// ServiceConfig configures a Service.
type ServiceConfig struct {
	Dispatcher      DispatcherConfig
	Catalog         Catalog
	SubscriptionTTL time.Duration
}

// Service owns the subscription store. It registers subscribers, runs the
// scheduled dispatcher and removes subscriptions the push service reports gone.
type Service struct {
	store      subscriptions.Store
	sender     PushSender
	dispatcher *Dispatcher
	catalog    Catalog
	ttl        time.Duration
	events     *EventPublisher
	metrics    *Metrics
	now        func() time.Time
	logger     *logger.Logger
}

// NewService creates a Service. sender may be nil when VAPID keys are not
// configured; delivery operations then return webpush.ErrNotConfigured.
func NewService(store subscriptions.Store, sender PushSender, cfg ServiceConfig, logger *logger.Logger) *Service {
	if cfg.Catalog == nil {
		cfg.Catalog = DefaultCatalog()
	}
	if cfg.SubscriptionTTL <= 0 {
		cfg.SubscriptionTTL = subscriptions.DefaultTTL
	}

	return &Service{
		store:      store,
		sender:     sender,
		dispatcher: NewDispatcher(store, sender, cfg.Catalog, cfg.Dispatcher, logger),
		catalog:    cfg.Catalog,
		ttl:        cfg.SubscriptionTTL,
		now:        time.Now,
		logger:     logger.WithComponent("push-service"),
	}
}

// WithEvents attaches a NATS publisher.
func (s *Service) WithEvents(events *EventPublisher) *Service {
	s.events = events
	return s
}

// WithMetrics attaches Prometheus collectors.
func (s *Service) WithMetrics(metrics *Metrics) *Service {
	s.metrics = metrics
	return s
}

// Dispatcher exposes the underlying dispatcher, mainly so tests can fix its clock.
func (s *Service) Dispatcher() *Dispatcher {
	return s.dispatcher
}

// Configured reports whether push delivery is possible.
func (s *Service) Configured() bool {
	return s.sender != nil
}

// PublicKey returns the VAPID public key for clients to subscribe with.
func (s *Service) PublicKey() (string, error) {
	if s.sender == nil {
		return "", webpush.ErrNotConfigured
	}
	return s.sender.PublicKey(), nil
}

// Subscribe validates and stores a subscription with its preferences,
// replacing any earlier record for the same endpoint.
func (s *Service) Subscribe(ctx context.Context, sub webpush.Subscription, prefs subscriptions.Preferences) (subscriptions.Record, error) {
	rec, err := subscriptions.NewRecord(sub, prefs, s.now(), s.ttl)
	if err != nil {
		return subscriptions.Record{}, err
	}
	if err := s.store.Put(ctx, rec); err != nil {
		return subscriptions.Record{}, fmt.Errorf("store subscription: %w", err)
	}

	s.logger.WithContext(logger.WithEndpointKey(ctx, rec.Key)).Info("subscription stored",
		slog.String("timezone", rec.Preferences.Timezone),
		slog.Bool("sunday_reminder", rec.Preferences.SundayReminderEnabled))
	return rec, nil
}

// Unsubscribe removes the record for endpoint. Unknown endpoints are not an error.
func (s *Service) Unsubscribe(ctx context.Context, endpoint string) error {
	key := subscriptions.RecordKey(endpoint)
	if err := s.store.Delete(ctx, key); err != nil {
		return fmt.Errorf("delete subscription: %w", err)
	}
	s.logger.WithContext(logger.WithEndpointKey(ctx, key)).Info("subscription removed")
	return nil
}

// TestSend delivers the fixed test message to the subscription for endpoint,
// or to the most recently updated subscription when endpoint is empty.
func (s *Service) TestSend(ctx context.Context, endpoint string) (webpush.Result, error) {
	if s.sender == nil {
		return webpush.Result{}, webpush.ErrNotConfigured
	}

	var (
		rec subscriptions.Record
		err error
	)
	if endpoint != "" {
		rec, err = s.store.Get(ctx, subscriptions.RecordKey(endpoint))
	} else {
		rec, err = subscriptions.Latest(ctx, s.store)
	}
	if err != nil {
		return webpush.Result{}, err
	}

	ctx = logger.WithEndpointKey(ctx, rec.Key)
	res := s.sender.Send(ctx, rec.Subscription, s.catalog.Message(KindTest))
	if res.Outcome == webpush.OutcomeDrop {
		s.removeDropped(ctx, []string{rec.Key}, "")
	}
	return res, nil
}

// RunScheduled runs one dispatcher batch, then deletes every subscription the
// push service reported gone.
func (s *Service) RunScheduled(ctx context.Context) (*Report, error) {
	var report *Report
	start := time.Now()

	err := s.logger.LogOperation(ctx, "scheduled_dispatch", func() error {
		var err error
		report, err = s.dispatcher.Run(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.removeDropped(context.WithoutCancel(ctx), report.DroppedKeys(), report.DispatchID)
	s.metrics.ObserveDispatch(report, time.Since(start))
	s.events.DispatchCompleted(report)
	return report, nil
}

func (s *Service) removeDropped(ctx context.Context, keys []string, dispatchID string) {
	removed := 0
	for _, key := range keys {
		log := s.logger.WithContext(logger.WithEndpointKey(ctx, key))
		if err := s.store.Delete(ctx, key); err != nil && !errors.Is(err, subscriptions.ErrNotFound) {
			log.Error("failed to delete dropped subscription", slog.String("error", err.Error()))
			continue
		}
		removed++
		log.Info("dropped subscription deleted")
		s.events.SubscriptionDropped(key, dispatchID)
	}
	s.metrics.ObserveDropped(removed)
}
