package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/eternisai/devotional-push/internal/config"
	"github.com/eternisai/devotional-push/internal/logger"
	"github.com/eternisai/devotional-push/internal/notifications"
	fsclient "github.com/eternisai/devotional-push/internal/storage/firestore"
	"github.com/eternisai/devotional-push/internal/storage/pg"
	"github.com/eternisai/devotional-push/internal/subscriptions"
	"github.com/eternisai/devotional-push/internal/webpush"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// App holds the wired push delivery components shared by the binaries.
type App struct {
	Store    subscriptions.Store
	Service  *notifications.Service
	Registry *prometheus.Registry

	closers []func()
}

// Close releases connections in reverse order of creation.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// New wires the subscription store, the sender, metrics and optional NATS
// events from cfg. Missing VAPID keys are not an error; delivery operations
// then report webpush.ErrNotConfigured.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	a := &App{Registry: prometheus.NewRegistry()}
	a.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	store, err := a.openStore(ctx, cfg, log)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Store = store

	metrics := notifications.NewMetrics(a.Registry)

	var sender notifications.PushSender
	if cfg.Vapid().Configured() {
		s, err := webpush.NewSender(cfg.Vapid(), webpush.SenderConfig{
			TTL:            cfg.PushTTL,
			RequestTimeout: cfg.PushRequestTimeout,
		}, log)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("invalid VAPID configuration: %w", err)
		}
		sender = s.OnResult(metrics.ObserveSend)
		log.Info("push delivery configured", slog.String("vapid_subject", cfg.VapidSubject))
	} else {
		log.Warn("VAPID keys not set, push delivery disabled")
	}

	a.Service = notifications.NewService(store, sender, notifications.ServiceConfig{
		Dispatcher: notifications.DispatcherConfig{
			Window:      cfg.SendWindow,
			Concurrency: cfg.DispatchConcurrency,
			Timeout:     cfg.DispatchTimeout,
		},
		Catalog:         notifications.NewCatalog(cfg.Notifications, cfg.AppBaseURL),
		SubscriptionTTL: cfg.SubscriptionTTL,
	}, log).WithMetrics(metrics)

	if cfg.NatsURL != "" {
		nc, err := nats.Connect(cfg.NatsURL,
			nats.Name("devotional-push-"+logger.GetInstanceID()),
			nats.MaxReconnects(-1),
			nats.ReconnectWait(2*time.Second),
		)
		if err != nil {
			log.Warn("NATS unavailable, push events disabled", slog.String("error", err.Error()))
		} else {
			a.closers = append(a.closers, func() { _ = nc.Drain() })
			a.Service.WithEvents(notifications.NewEventPublisher(nc, log))
			log.Info("push events enabled", slog.String("nats_url", nc.ConnectedUrlRedacted()))
		}
	}

	return a, nil
}

func (a *App) openStore(ctx context.Context, cfg *config.Config, log *logger.Logger) (subscriptions.Store, error) {
	log = log.WithComponent("subscription-store")

	switch cfg.SubscriptionStore {
	case config.StorePostgres:
		db, err := pg.InitDatabase(cfg.DatabaseURL, pg.PoolConfig{
			MaxOpenConns:    cfg.DBMaxOpenConns,
			MaxIdleConns:    cfg.DBMaxIdleConns,
			ConnMaxIdleTime: time.Duration(cfg.DBConnMaxIdleTimeMins) * time.Minute,
			ConnMaxLifetime: time.Duration(cfg.DBConnMaxLifetimeMins) * time.Minute,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		a.closers = append(a.closers, func() { _ = db.Close() })
		log.Info("using postgres subscription store")
		return subscriptions.NewPostgresStore(db.DB), nil

	case config.StoreFirestore:
		client, err := fsclient.NewClient(ctx, cfg.FirebaseProjectID, cfg.FirebaseCredJSON)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = client.Close() })
		log.Info("using firestore subscription store", slog.String("collection", cfg.FirestoreCollection))
		return subscriptions.NewFirestoreStore(client, cfg.FirestoreCollection)

	default:
		log.Warn("using in-memory subscription store, subscriptions are lost on restart")
		return subscriptions.NewMemoryStore(), nil
	}
}
