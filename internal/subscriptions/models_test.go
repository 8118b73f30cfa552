package subscriptions

import (
	"crypto/ecdh"
	"crypto/rand"
	"encoding/json"
	"testing"
	"time"

	"github.com/eternisai/devotional-push/internal/webpush"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSubscription(t *testing.T, endpoint string) webpush.Subscription {
	t.Helper()
	key, err := ecdh.P256().GenerateKey(rand.Reader)
	require.NoError(t, err)
	auth := make([]byte, 16)
	_, err = rand.Read(auth)
	require.NoError(t, err)
	return webpush.Subscription{
		Endpoint: endpoint,
		Keys: webpush.Keys{
			P256dh: webpush.ToBase64URL(key.PublicKey().Bytes()),
			Auth:   webpush.ToBase64URL(auth),
		},
	}
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 0, ClampHour(-5))
	assert.Equal(t, 23, ClampHour(30))
	assert.Equal(t, 59, ClampMinute(75))
	assert.Equal(t, 0, ClampMinute(-1))
	assert.Equal(t, 7, ClampHour(7.9))
	assert.Equal(t, 7, ClampHour("7"))
	assert.Equal(t, 45, ClampMinute(json.Number("45")))

	assert.Equal(t, DefaultMorningHour, ClampHour("soon"))
	assert.Equal(t, DefaultMorningHour, ClampHour(nil))
	assert.Equal(t, DefaultMorningHour, ClampHour(true))
	assert.Equal(t, DefaultMinute, ClampMinute("half past"))
	assert.Equal(t, DefaultMinute, ClampMinute(nil))
}

func TestPreferencesInputNormalize(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		assert.Equal(t, DefaultPreferences(), PreferencesInput{}.Normalize())
	})

	t.Run("decoded from JSON", func(t *testing.T) {
		var in PreferencesInput
		require.NoError(t, json.Unmarshal([]byte(`{
			"morningHour": 5, "morningMinute": "45",
			"eveningHour": 99, "eveningMinute": -3,
			"timezone": "America/Chicago",
			"sundayReminderEnabled": false
		}`), &in))

		assert.Equal(t, Preferences{
			MorningHour:           5,
			MorningMinute:         45,
			EveningHour:           23,
			EveningMinute:         0,
			Timezone:              "America/Chicago",
			SundayReminderEnabled: false,
		}, in.Normalize())
	})

	t.Run("unknown timezone falls back to UTC", func(t *testing.T) {
		prefs := PreferencesInput{Timezone: "Mars/Olympus_Mons"}.Normalize()
		assert.Equal(t, "UTC", prefs.Timezone)
	})

	t.Run("non-numeric evening hour uses evening default", func(t *testing.T) {
		prefs := PreferencesInput{EveningHour: "late"}.Normalize()
		assert.Equal(t, DefaultEveningHour, prefs.EveningHour)
	})
}

func TestRecordKey(t *testing.T) {
	a := RecordKey("https://fcm.googleapis.com/fcm/send/aaa")
	b := RecordKey("https://fcm.googleapis.com/fcm/send/aab")

	assert.Len(t, a, 43)
	assert.NotEqual(t, a, b)
	assert.Equal(t, a, RecordKey("https://fcm.googleapis.com/fcm/send/aaa"))
	assert.NotContains(t, a, "/")
}

func TestNewRecord(t *testing.T) {
	now := time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC)
	sub := testSubscription(t, "https://push.example.com/a")

	rec, err := NewRecord(sub, DefaultPreferences(), now, 0)
	require.NoError(t, err)
	assert.Equal(t, RecordKey(sub.Endpoint), rec.Key)
	assert.Equal(t, now.Add(DefaultTTL), rec.ExpiresAt)
	assert.False(t, rec.Expired(now))
	assert.True(t, rec.Expired(now.Add(DefaultTTL)))

	sub.Keys.Auth = ""
	_, err = NewRecord(sub, DefaultPreferences(), now, 0)
	assert.ErrorIs(t, err, ErrInvalidRecord)
	assert.ErrorIs(t, err, webpush.ErrInvalidSubscription)
}
