package notifications

import (
	"fmt"
	"sync"
	"time"
)

// LocalTime is a subscriber's wall clock at dispatch time.
type LocalTime struct {
	Weekday time.Weekday
	Hour    int
	Minute  int
}

func (l LocalTime) String() string {
	return fmt.Sprintf("%s %02d:%02d", l.Weekday, l.Hour, l.Minute)
}

// LocalTimeResolver converts an instant into the wall clock of an IANA zone.
// It returns an error when the zone cannot be resolved.
type LocalTimeResolver func(now time.Time, timezone string) (LocalTime, error)

var zoneCache sync.Map // map[string]*time.Location

// ResolveIANA is the default resolver, backed by the system tz database.
func ResolveIANA(now time.Time, timezone string) (LocalTime, error) {
	loc, err := loadLocation(timezone)
	if err != nil {
		return LocalTime{}, err
	}
	t := now.In(loc)
	return LocalTime{Weekday: t.Weekday(), Hour: t.Hour(), Minute: t.Minute()}, nil
}

func loadLocation(name string) (*time.Location, error) {
	if name == "" {
		name = "UTC"
	}
	if loc, ok := zoneCache.Load(name); ok {
		return loc.(*time.Location), nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("resolve timezone %q: %w", name, err)
	}
	zoneCache.Store(name, loc)
	return loc, nil
}
