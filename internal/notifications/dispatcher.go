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
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Sender delivers one message to one subscription. *webpush.Sender implements it.
type Sender interface {
	Send(ctx context.Context, sub webpush.Subscription, msg webpush.Message) webpush.Result
}

// DispatcherConfig tunes a batch run.
type DispatcherConfig struct {
	// Window is the half-width of each send window.
	Window time.Duration
	// Concurrency caps in-flight sends.
	Concurrency int
	// Timeout bounds a whole run. Sends still pending at the deadline are transient.
	Timeout time.Duration
}

// Attempt is the outcome of one (subscriber, kind) send.
type Attempt struct {
	Key        string          `json:"key"`
	Kind       Kind            `json:"kind"`
	Outcome    webpush.Outcome `json:"outcome"`
	StatusCode int             `json:"status,omitempty"`
	Error      string          `json:"error,omitempty"`
}

// Report summarizes one dispatcher run.
type Report struct {
	DispatchID    string    `json:"dispatchId"`
	StartedAt     time.Time `json:"startedAt"`
	Duration      string    `json:"duration"`
	Subscriptions int       `json:"subscriptions"`
	Skipped       int       `json:"skipped"`
	Attempts      []Attempt `json:"attempts"`
	Delivered     int       `json:"delivered"`
	Dropped       int       `json:"dropped"`
	Failed        int       `json:"failed"`
}

// DroppedKeys returns the record keys the push service reported as gone.
func (r *Report) DroppedKeys() []string {
	var keys []string
	seen := make(map[string]bool)
	for _, a := range r.Attempts {
		if a.Outcome == webpush.OutcomeDrop && !seen[a.Key] {
			seen[a.Key] = true
			keys = append(keys, a.Key)
		}
	}
	return keys
}

// Dispatcher runs one scheduled batch: it reads every subscription, works out
// which windows are open in each subscriber's zone, and sends concurrently.
// It never writes to the store.
type Dispatcher struct {
	store   subscriptions.Store
	sender  Sender
	catalog Catalog
	cfg     DispatcherConfig
	resolve LocalTimeResolver
	now     func() time.Time
	logger  *logger.Logger
}

// NewDispatcher creates a Dispatcher with the IANA resolver and the wall clock.
func NewDispatcher(store subscriptions.Store, sender Sender, catalog Catalog, cfg DispatcherConfig, logger *logger.Logger) *Dispatcher {
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 16
	}
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	return &Dispatcher{
		store:   store,
		sender:  sender,
		catalog: catalog,
		cfg:     cfg,
		resolve: ResolveIANA,
		now:     time.Now,
		logger:  logger.WithComponent("dispatcher"),
	}
}

// WithClock replaces the clock, for tests.
func (d *Dispatcher) WithClock(now func() time.Time) *Dispatcher {
	d.now = now
	return d
}

// WithResolver replaces the timezone resolver, for tests.
func (d *Dispatcher) WithResolver(resolve LocalTimeResolver) *Dispatcher {
	d.resolve = resolve
	return d
}

type sendTask struct {
	rec  subscriptions.Record
	kind Kind
}

// Run executes one batch. It only returns an error when the store cannot be
// read; per-send failures are reported in the Report.
func (d *Dispatcher) Run(ctx context.Context) (*Report, error) {
	started := d.now()
	report := &Report{
		DispatchID: uuid.New().String(),
		StartedAt:  started.UTC(),
	}
	ctx = logger.WithDispatchID(ctx, report.DispatchID)
	log := d.logger.WithContext(ctx)

	if d.sender == nil {
		return nil, webpush.ErrNotConfigured
	}

	if d.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.cfg.Timeout)
		defer cancel()
	}

	records, err := d.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	report.Subscriptions = len(records)

	var tasks []sendTask
	for _, rec := range records {
		local, err := d.resolve(started, rec.Preferences.Timezone)
		if err != nil {
			report.Skipped++
			log.Warn("skipping subscriber, timezone unresolved",
				slog.String("endpoint_key", rec.Key),
				slog.String("timezone", rec.Preferences.Timezone),
				slog.String("error", err.Error()))
			continue
		}
		for _, kind := range MatchKinds(local, rec.Preferences, d.cfg.Window) {
			tasks = append(tasks, sendTask{rec: rec, kind: kind})
		}
	}

	log.Info("dispatch started",
		slog.Int("subscriptions", len(records)),
		slog.Int("sends", len(tasks)),
		slog.Int("skipped", report.Skipped))

	report.Attempts = make([]Attempt, len(tasks))
	g := new(errgroup.Group)
	g.SetLimit(d.cfg.Concurrency)
	for i, task := range tasks {
		i, task := i, task
		g.Go(func() error {
			report.Attempts[i] = d.send(ctx, task)
			return nil
		})
	}
	_ = g.Wait()

	for _, a := range report.Attempts {
		switch a.Outcome {
		case webpush.OutcomeDelivered:
			report.Delivered++
		case webpush.OutcomeDrop:
			report.Dropped++
		default:
			report.Failed++
		}
	}
	report.Duration = d.now().Sub(started).String()

	log.Info("dispatch completed",
		slog.Int("sends", len(tasks)),
		slog.Int("delivered", report.Delivered),
		slog.Int("dropped", report.Dropped),
		slog.Int("failed", report.Failed),
		slog.String("duration", report.Duration))

	return report, nil
}

// send performs one attempt. A panic in the sender is confined to this attempt.
func (d *Dispatcher) send(ctx context.Context, task sendTask) (attempt Attempt) {
	attempt = Attempt{Key: task.rec.Key, Kind: task.kind}
	ctx = logger.WithEndpointKey(ctx, task.rec.Key)
	log := d.logger.WithContext(ctx)

	defer func() {
		if r := recover(); r != nil {
			log.Error("send panicked", slog.String("kind", string(task.kind)), slog.Any("panic", r))
			attempt.Outcome = webpush.OutcomeTransient
			attempt.Error = fmt.Sprintf("panic: %v", r)
		}
	}()

	if err := ctx.Err(); err != nil {
		attempt.Outcome = webpush.OutcomeTransient
		attempt.Error = err.Error()
		return attempt
	}

	res := d.sender.Send(ctx, task.rec.Subscription, d.catalog.Message(task.kind))
	attempt.Outcome = res.Outcome
	attempt.StatusCode = res.StatusCode
	if res.Err != nil {
		attempt.Error = res.Err.Error()
	}

	switch res.Outcome {
	case webpush.OutcomeDelivered:
		log.Debug("notification delivered", slog.String("kind", string(task.kind)))
	case webpush.OutcomeDrop:
		log.Info("subscription gone", slog.String("kind", string(task.kind)), slog.Int("status", res.StatusCode))
	default:
		log.Warn("notification not delivered",
			slog.String("kind", string(task.kind)),
			slog.Int("status", res.StatusCode),
			slog.String("error", attempt.Error),
			slog.Bool("deadline", errors.Is(res.Err, context.DeadlineExceeded)))
	}
	return attempt
}
