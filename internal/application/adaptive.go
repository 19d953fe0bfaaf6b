package application

import (
	"time"

	"github.com/ericfisherdev/dsbpanel/internal/domain/model"
)

// ActivityTier classifies how recently the school published a plan, which
// decides how often the background refresh polls.
type ActivityTier int

const (
	// TierHot indicates a plan published within the last hour. Polls every
	// 10 minutes and bypasses the session cache.
	TierHot ActivityTier = iota
	// TierActive indicates a publication within the last day. Polls on the
	// configured base interval.
	TierActive
	// TierWarm indicates a publication within the last 7 days. Polls every 2 hours.
	TierWarm
	// TierStale indicates nothing published for 7+ days. Polls every 6 hours.
	TierStale
)

// Polling intervals per activity tier. TierActive uses the base interval.
const (
	intervalHot   = 10 * time.Minute
	intervalWarm  = 2 * time.Hour
	intervalStale = 6 * time.Hour
)

// String returns a human-readable name for the activity tier.
func (t ActivityTier) String() string {
	switch t {
	case TierHot:
		return "hot"
	case TierActive:
		return "active"
	case TierWarm:
		return "warm"
	case TierStale:
		return "stale"
	default:
		return "unknown"
	}
}

// tierInterval returns the polling interval for the given activity tier.
func tierInterval(tier ActivityTier, base time.Duration) time.Duration {
	switch tier {
	case TierHot:
		return intervalHot
	case TierWarm:
		return intervalWarm
	case TierStale:
		return intervalStale
	default:
		return base
	}
}

// classifyActivity determines the activity tier from the time elapsed since
// the last publication. A zero-value time is treated as TierStale.
func classifyActivity(lastPublished, now time.Time) ActivityTier {
	if lastPublished.IsZero() {
		return TierStale
	}

	elapsed := now.Sub(lastPublished)

	switch {
	case elapsed < 1*time.Hour:
		return TierHot
	case elapsed < 24*time.Hour:
		return TierActive
	case elapsed < 7*24*time.Hour:
		return TierWarm
	default:
		return TierStale
	}
}

// ScheduleInfo is an exported view of the adaptive refresh schedule, used
// for observability and testing.
type ScheduleInfo struct {
	Tier          ActivityTier
	LastPublished time.Time
	NextRunAt     time.Time
	LastRunAt     time.Time
}

// freshestPublication finds the most recent PublishedAt across timetables.
// Returns the zero time if none carries a stamp, which classifies as TierStale.
func freshestPublication(timetables []model.Timetable) time.Time {
	var newest time.Time
	for _, t := range timetables {
		if t.PublishedAt != nil && t.PublishedAt.After(newest) {
			newest = *t.PublishedAt
		}
	}
	return newest
}
