package subscriptions

import (
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/eternisai/devotional-push/internal/webpush"
)

const (
	DefaultMorningHour = 6
	DefaultEveningHour = 20
	DefaultMinute      = 0
	DefaultTimezone    = "UTC"

	// DefaultTTL keeps a subscription for about a year unless the subscriber refreshes it.
	DefaultTTL = 365 * 24 * time.Hour
)

var (
	// ErrNotFound is returned when no record exists for a key.
	ErrNotFound = errors.New("subscription not found")
	// ErrInvalidRecord is returned when a record fails validation before a write.
	ErrInvalidRecord = errors.New("invalid subscription record")
	// ErrNoStore is returned when no subscription store is configured.
	ErrNoStore = errors.New("subscription store not configured")
)

// Preferences holds when and where a subscriber wants to be reminded.
type Preferences struct {
	MorningHour           int    `json:"morningHour" firestore:"morningHour"`
	MorningMinute         int    `json:"morningMinute" firestore:"morningMinute"`
	EveningHour           int    `json:"eveningHour" firestore:"eveningHour"`
	EveningMinute         int    `json:"eveningMinute" firestore:"eveningMinute"`
	Timezone              string `json:"timezone" firestore:"timezone"`
	SundayReminderEnabled bool   `json:"sundayReminderEnabled" firestore:"sundayReminderEnabled"`
}

// DefaultPreferences returns 06:00 / 20:00 UTC with the Sunday reminder on.
func DefaultPreferences() Preferences {
	return Preferences{
		MorningHour:           DefaultMorningHour,
		MorningMinute:         DefaultMinute,
		EveningHour:           DefaultEveningHour,
		EveningMinute:         DefaultMinute,
		Timezone:              DefaultTimezone,
		SundayReminderEnabled: true,
	}
}

// Record is one stored subscription, keyed by RecordKey(Subscription.Endpoint).
type Record struct {
	Key          string               `json:"key"`
	Subscription webpush.Subscription `json:"subscription"`
	Preferences  Preferences          `json:"preferences"`
	UpdatedAt    time.Time            `json:"updatedAt"`
	ExpiresAt    time.Time            `json:"expiresAt"`
}

// Expired reports whether the record outlived its TTL at now.
func (r Record) Expired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && !now.Before(r.ExpiresAt)
}

// Validate checks the record is safe to persist.
func (r Record) Validate() error {
	if err := r.Subscription.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRecord, err)
	}
	if r.Key != RecordKey(r.Subscription.Endpoint) {
		return fmt.Errorf("%w: key does not match endpoint", ErrInvalidRecord)
	}
	return nil
}

// NewRecord builds a validated record for sub, expiring ttl after now.
func NewRecord(sub webpush.Subscription, prefs Preferences, now time.Time, ttl time.Duration) (Record, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	rec := Record{
		Key:          RecordKey(sub.Endpoint),
		Subscription: sub,
		Preferences:  prefs,
		UpdatedAt:    now.UTC(),
		ExpiresAt:    now.UTC().Add(ttl),
	}
	if err := rec.Validate(); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// RecordKey derives the storage key for an endpoint: unpadded base64url of its
// SHA-256, always 43 characters and safe as a Firestore document ID.
func RecordKey(endpoint string) string {
	sum := sha256.Sum256([]byte(endpoint))
	return webpush.ToBase64URL(sum[:])
}

// ClampHour coerces v into [0,23]. Non-numeric input yields DefaultMorningHour.
func ClampHour(v any) int {
	return clampInt(v, DefaultMorningHour, 23)
}

// ClampMinute coerces v into [0,59]. Non-numeric input yields DefaultMinute.
func ClampMinute(v any) int {
	return clampInt(v, DefaultMinute, 59)
}

func clampInt(v any, def, max int) int {
	n, ok := toNumber(v)
	if !ok {
		return def
	}
	i := int(math.Trunc(n))
	switch {
	case i < 0:
		return 0
	case i > max:
		return max
	}
	return i
}

func toNumber(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case int:
		f = float64(n)
	case int32:
		f = float64(n)
	case int64:
		f = float64(n)
	case float32:
		f = float64(n)
	case float64:
		f = n
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// NormalizeTimezone returns tz if it names a loadable IANA zone, otherwise UTC.
func NormalizeTimezone(tz string) string {
	tz = strings.TrimSpace(tz)
	if tz == "" {
		return DefaultTimezone
	}
	if _, err := time.LoadLocation(tz); err != nil {
		return DefaultTimezone
	}
	return tz
}

// PreferencesInput is the loosely typed shape clients send. Numeric fields may be
// numbers, numeric strings, or absent.
type PreferencesInput struct {
	MorningHour           any    `json:"morningHour"`
	MorningMinute         any    `json:"morningMinute"`
	EveningHour           any    `json:"eveningHour"`
	EveningMinute         any    `json:"eveningMinute"`
	Timezone              string `json:"timezone"`
	SundayReminderEnabled *bool  `json:"sundayReminderEnabled"`
}

// Normalize clamps every field and fills defaults.
func (in PreferencesInput) Normalize() Preferences {
	prefs := Preferences{
		MorningHour:           ClampHour(in.MorningHour),
		MorningMinute:         ClampMinute(in.MorningMinute),
		EveningHour:           clampInt(in.EveningHour, DefaultEveningHour, 23),
		EveningMinute:         ClampMinute(in.EveningMinute),
		Timezone:              NormalizeTimezone(in.Timezone),
		SundayReminderEnabled: true,
	}
	if in.SundayReminderEnabled != nil {
		prefs.SundayReminderEnabled = *in.SundayReminderEnabled
	}
	return prefs
}
