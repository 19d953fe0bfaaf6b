package model

import "time"

// SessionState is the observable state of the retrieval session.
type SessionState struct {
	IsLoading       bool
	IsAuthenticated bool
	Error           string
	LastUpdated     *time.Time
}

// CachedEntry is the result of the most recent successful discovery pass.
// It is time-boxed independently of the per-date plan store.
type CachedEntry struct {
	Timetables []Timetable `json:"timetables"`
	CapturedAt time.Time   `json:"captured_at"`
}

// Fresh reports whether the entry is younger than ttl at now.
func (e CachedEntry) Fresh(now time.Time, ttl time.Duration) bool {
	return now.Sub(e.CapturedAt) < ttl
}
