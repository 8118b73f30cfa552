package notifications

import (
	"time"

	"github.com/eternisai/devotional-push/internal/subscriptions"
)

// DefaultWindow is how far either side of a preferred time a dispatch still sends.
const DefaultWindow = 20 * time.Minute

const minutesPerDay = 24 * 60

// minutesApart is the distance between two minute-of-day values on the 24-hour circle.
func minutesApart(a, b int) int {
	d := (a - b) % minutesPerDay
	if d < 0 {
		d += minutesPerDay
	}
	if d > minutesPerDay/2 {
		d = minutesPerDay - d
	}
	return d
}

// InWindow reports whether local is within window of hour:minute, inclusive.
func InWindow(local LocalTime, hour, minute int, window time.Duration) bool {
	if window <= 0 {
		window = DefaultWindow
	}
	target := hour*60 + minute
	now := local.Hour*60 + local.Minute
	return minutesApart(now, target) <= int(window/time.Minute)
}

// MatchKinds returns the kinds due for a subscriber at local. Morning and
// evening never fire together; morning wins when both windows contain local.
// A Sunday morning match adds the weekly plan reminder when enabled.
func MatchKinds(local LocalTime, prefs subscriptions.Preferences, window time.Duration) []Kind {
	switch {
	case InWindow(local, prefs.MorningHour, prefs.MorningMinute, window):
		kinds := []Kind{KindMorning}
		if local.Weekday == time.Sunday && prefs.SundayReminderEnabled {
			kinds = append(kinds, KindSundayPlan)
		}
		return kinds
	case InWindow(local, prefs.EveningHour, prefs.EveningMinute, window):
		return []Kind{KindEvening}
	}
	return nil
}
