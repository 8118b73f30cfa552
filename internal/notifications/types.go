package notifications

import (
	"strings"

	"github.com/eternisai/devotional-push/internal/webpush"
)

// Kind names one notification a subscriber can receive.
type Kind string

const (
	KindMorning    Kind = "morning"
	KindEvening    Kind = "evening"
	KindSundayPlan Kind = "sunday_plan"
	KindTest       Kind = "test"
)

// Catalog maps each kind to the message the service worker displays.
type Catalog map[Kind]webpush.Message

// DefaultCatalog returns the built-in messages.
func DefaultCatalog() Catalog {
	return Catalog{
		KindMorning: {
			Title: "Good morning",
			Body:  "Your morning devotion is ready. Start the day with God.",
			Tag:   "morning",
			URL:   "/",
		},
		KindEvening: {
			Title: "Good evening",
			Body:  "Take a quiet moment to reflect on today's reading.",
			Tag:   "evening",
			URL:   "/",
		},
		KindSundayPlan: {
			Title: "Plan your week",
			Body:  "Build next week's reading plan.",
			Tag:   "sunday-plan",
			URL:   "/#/plan",
		},
		KindTest: {
			Title: "Test notification",
			Body:  "Push notifications are working.",
			Tag:   "test",
			URL:   "/",
		},
	}
}

// NewCatalog starts from the defaults, applies non-empty fields from overrides
// (keyed by kind name) and prefixes relative URLs with baseURL when set.
func NewCatalog(overrides map[string]webpush.Message, baseURL string) Catalog {
	c := DefaultCatalog()
	for name, o := range overrides {
		kind := Kind(name)
		msg, ok := c[kind]
		if !ok {
			continue
		}
		if o.Title != "" {
			msg.Title = o.Title
		}
		if o.Body != "" {
			msg.Body = o.Body
		}
		if o.Tag != "" {
			msg.Tag = o.Tag
		}
		if o.URL != "" {
			msg.URL = o.URL
		}
		c[kind] = msg
	}

	baseURL = strings.TrimRight(baseURL, "/")
	if baseURL != "" {
		for kind, msg := range c {
			if strings.HasPrefix(msg.URL, "/") {
				msg.URL = baseURL + msg.URL
				c[kind] = msg
			}
		}
	}
	return c
}

// Message returns the message for kind, falling back to the built-in default.
func (c Catalog) Message(kind Kind) webpush.Message {
	if msg, ok := c[kind]; ok {
		return msg
	}
	return DefaultCatalog()[kind]
}
