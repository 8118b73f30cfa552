package notifications

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/eternisai/devotional-push/internal/logger"
	"github.com/eternisai/devotional-push/internal/subscriptions"
	"github.com/eternisai/devotional-push/internal/webpush"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(store subscriptions.Store, sender PushSender, now time.Time) *Service {
	svc := NewService(store, sender, ServiceConfig{}, logger.Discard())
	svc.Dispatcher().WithClock(func() time.Time { return now })
	return svc
}

func TestRunScheduledDeletesDroppedSubscriptions(t *testing.T) {
	store := subscriptions.NewMemoryStore()
	gone := putRecord(t, store, "https://push.example.com/gone", prefsAt(6, 30, "UTC"))
	alive := putRecord(t, store, "https://push.example.com/alive", prefsAt(6, 30, "UTC"))
	flaky := putRecord(t, store, "https://push.example.com/flaky", prefsAt(6, 30, "UTC"))

	sender := &fakeSender{respond: func(sub webpush.Subscription, msg webpush.Message) webpush.Result {
		switch sub.Endpoint {
		case gone.Subscription.Endpoint:
			return webpush.Result{Outcome: webpush.OutcomeDrop, StatusCode: http.StatusNotFound}
		case flaky.Subscription.Endpoint:
			return webpush.Result{Outcome: webpush.OutcomeTransient, StatusCode: http.StatusTooManyRequests}
		}
		return webpush.Result{Outcome: webpush.OutcomeDelivered, StatusCode: http.StatusCreated}
	}}

	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	svc := newTestService(store, sender, monday0630UTC).WithMetrics(metrics)

	report, err := svc.RunScheduled(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Delivered)
	assert.Equal(t, 1, report.Dropped)
	assert.Equal(t, 1, report.Failed)

	_, err = store.Get(context.Background(), gone.Key)
	assert.ErrorIs(t, err, subscriptions.ErrNotFound)
	_, err = store.Get(context.Background(), alive.Key)
	assert.NoError(t, err)
	_, err = store.Get(context.Background(), flaky.Key)
	assert.NoError(t, err, "transient failures keep the subscription")

	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.Dropped))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.DispatchRuns))
	assert.Equal(t, float64(3), testutil.ToFloat64(metrics.Subscriptions))
}

func TestRunScheduledNotConfigured(t *testing.T) {
	svc := newTestService(subscriptions.NewMemoryStore(), nil, monday0630UTC)
	_, err := svc.RunScheduled(context.Background())
	assert.ErrorIs(t, err, webpush.ErrNotConfigured)
	assert.False(t, svc.Configured())

	_, err = svc.PublicKey()
	assert.ErrorIs(t, err, webpush.ErrNotConfigured)
}

func TestTestSend(t *testing.T) {
	ctx := context.Background()

	t.Run("latest subscription receives the test message", func(t *testing.T) {
		store := subscriptions.NewMemoryStore()
		putRecord(t, store, "https://push.example.com/old", subscriptions.DefaultPreferences())
		time.Sleep(time.Millisecond)
		latest := putRecord(t, store, "https://push.example.com/new", subscriptions.DefaultPreferences())

		sender := &fakeSender{}
		res, err := newTestService(store, sender, monday0630UTC).TestSend(ctx, "")
		require.NoError(t, err)
		assert.True(t, res.Delivered())

		sent := sender.messages()
		require.Len(t, sent, 1)
		assert.Equal(t, latest.Subscription.Endpoint, sent[0].Endpoint)
		assert.Equal(t, webpush.Message{
			Title: "Test notification",
			Body:  "Push notifications are working.",
			Tag:   "test",
			URL:   "/",
		}, sent[0].Message)
	})

	t.Run("named endpoint", func(t *testing.T) {
		store := subscriptions.NewMemoryStore()
		target := putRecord(t, store, "https://push.example.com/target", subscriptions.DefaultPreferences())
		putRecord(t, store, "https://push.example.com/other", subscriptions.DefaultPreferences())

		sender := &fakeSender{}
		_, err := newTestService(store, sender, monday0630UTC).TestSend(ctx, target.Subscription.Endpoint)
		require.NoError(t, err)
		assert.Equal(t, target.Subscription.Endpoint, sender.messages()[0].Endpoint)
	})

	t.Run("drop deletes the subscription", func(t *testing.T) {
		store := subscriptions.NewMemoryStore()
		rec := putRecord(t, store, "https://push.example.com/gone", subscriptions.DefaultPreferences())

		sender := &fakeSender{respond: func(webpush.Subscription, webpush.Message) webpush.Result {
			return webpush.Result{Outcome: webpush.OutcomeDrop, StatusCode: http.StatusGone}
		}}
		res, err := newTestService(store, sender, monday0630UTC).TestSend(ctx, "")
		require.NoError(t, err)
		assert.False(t, res.Delivered())

		_, err = store.Get(ctx, rec.Key)
		assert.ErrorIs(t, err, subscriptions.ErrNotFound)
	})

	t.Run("no subscriptions", func(t *testing.T) {
		_, err := newTestService(subscriptions.NewMemoryStore(), &fakeSender{}, monday0630UTC).TestSend(ctx, "")
		assert.ErrorIs(t, err, subscriptions.ErrNotFound)
	})

	t.Run("not configured", func(t *testing.T) {
		_, err := newTestService(subscriptions.NewMemoryStore(), nil, monday0630UTC).TestSend(ctx, "")
		assert.ErrorIs(t, err, webpush.ErrNotConfigured)
	})
}

func TestSubscribeAndUnsubscribe(t *testing.T) {
	ctx := context.Background()
	store := subscriptions.NewMemoryStore()
	svc := newTestService(store, &fakeSender{}, monday0630UTC)

	sub := newSubscriber(t, "https://push.example.com/me").sub
	rec, err := svc.Subscribe(ctx, sub, subscriptions.DefaultPreferences())
	require.NoError(t, err)
	assert.Equal(t, subscriptions.RecordKey(sub.Endpoint), rec.Key)

	stored, err := store.Get(ctx, rec.Key)
	require.NoError(t, err)
	assert.Equal(t, sub, stored.Subscription)

	require.NoError(t, svc.Unsubscribe(ctx, sub.Endpoint))
	require.NoError(t, svc.Unsubscribe(ctx, sub.Endpoint))
	_, err = store.Get(ctx, rec.Key)
	assert.ErrorIs(t, err, subscriptions.ErrNotFound)

	sub.Keys.P256dh = "not-a-key"
	_, err = svc.Subscribe(ctx, sub, subscriptions.DefaultPreferences())
	assert.ErrorIs(t, err, webpush.ErrInvalidSubscription)
}
