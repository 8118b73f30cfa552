package notifications

import (
	"context"
	"crypto/ecdh"
	"crypto/rand"
	"sync"
	"testing"
	"time"

	"github.com/eternisai/devotional-push/internal/subscriptions"
	"github.com/eternisai/devotional-push/internal/webpush"
	"github.com/stretchr/testify/require"
)

type sentMessage struct {
	Endpoint string
	Message  webpush.Message
}

// fakeSender records every send and answers through respond.
type fakeSender struct {
	mu      sync.Mutex
	sent    []sentMessage
	respond func(sub webpush.Subscription, msg webpush.Message) webpush.Result
}

func (f *fakeSender) Send(ctx context.Context, sub webpush.Subscription, msg webpush.Message) webpush.Result {
	f.mu.Lock()
	f.sent = append(f.sent, sentMessage{Endpoint: sub.Endpoint, Message: msg})
	respond := f.respond
	f.mu.Unlock()

	if respond == nil {
		return webpush.Result{Outcome: webpush.OutcomeDelivered, StatusCode: 201}
	}
	return respond(sub, msg)
}

func (f *fakeSender) PublicKey() string {
	return "BPublicKeyForTests"
}

func (f *fakeSender) messages() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.sent...)
}

// subscriber holds the browser side of a subscription.
type subscriber struct {
	key  *ecdh.PrivateKey
	auth []byte
	sub  webpush.Subscription
}

func newSubscriber(t *testing.T, endpoint string) subscriber {
	t.Helper()
	key, err := ecdh.P256().GenerateKey(rand.Reader)
	require.NoError(t, err)
	auth := make([]byte, 16)
	_, err = rand.Read(auth)
	require.NoError(t, err)

	return subscriber{
		key:  key,
		auth: auth,
		sub: webpush.Subscription{
			Endpoint: endpoint,
			Keys: webpush.Keys{
				P256dh: webpush.ToBase64URL(key.PublicKey().Bytes()),
				Auth:   webpush.ToBase64URL(auth),
			},
		},
	}
}

func putRecord(t *testing.T, store subscriptions.Store, endpoint string, prefs subscriptions.Preferences) subscriptions.Record {
	t.Helper()
	rec, err := subscriptions.NewRecord(newSubscriber(t, endpoint).sub, prefs, time.Now(), 0)
	require.NoError(t, err)
	require.NoError(t, store.Put(context.Background(), rec))
	return rec
}

func prefsAt(morningHour, morningMinute int, tz string) subscriptions.Preferences {
	prefs := subscriptions.DefaultPreferences()
	prefs.MorningHour = morningHour
	prefs.MorningMinute = morningMinute
	prefs.Timezone = tz
	return prefs
}

func attemptFor(t *testing.T, report *Report, key string, kind Kind) Attempt {
	t.Helper()
	for _, a := range report.Attempts {
		if a.Key == key && a.Kind == kind {
			return a
		}
	}
	t.Fatalf("no %s attempt for %s", kind, key)
	return Attempt{}
}

// monday0630UTC is Monday 2026-01-12 06:30 UTC.
var monday0630UTC = time.Date(2026, 1, 12, 6, 30, 0, 0, time.UTC)
