// Package memory provides in-process implementations of driven ports.
package memory

import (
	"context"
	"sync"

	"github.com/ericfisherdev/dsbpanel/internal/domain/model"
	"github.com/ericfisherdev/dsbpanel/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.SessionCache = (*SessionCache)(nil)

// SessionCache keeps the last discovery result in memory. It never expires
// entries itself; the caller judges freshness from CapturedAt.
type SessionCache struct {
	mu    sync.RWMutex
	entry *model.CachedEntry
}

// NewSessionCache returns an empty cache.
func NewSessionCache() *SessionCache {
	return &SessionCache{}
}

// Get returns a copy of the cached entry, or (nil, nil) when empty.
func (c *SessionCache) Get(_ context.Context) (*model.CachedEntry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.entry == nil {
		return nil, nil
	}
	entry := cloneEntry(*c.entry)
	return &entry, nil
}

// Put replaces the cached entry.
func (c *SessionCache) Put(_ context.Context, entry model.CachedEntry) error {
	stored := cloneEntry(entry)

	c.mu.Lock()
	c.entry = &stored
	c.mu.Unlock()
	return nil
}

// Clear drops the cached entry.
func (c *SessionCache) Clear(_ context.Context) error {
	c.mu.Lock()
	c.entry = nil
	c.mu.Unlock()
	return nil
}

// cloneEntry copies the timetable and lesson slices so callers cannot mutate
// the cached value.
func cloneEntry(e model.CachedEntry) model.CachedEntry {
	out := model.CachedEntry{CapturedAt: e.CapturedAt}
	if e.Timetables == nil {
		return out
	}

	out.Timetables = make([]model.Timetable, len(e.Timetables))
	for i, t := range e.Timetables {
		out.Timetables[i] = t
		if t.Lessons != nil {
			out.Timetables[i].Lessons = make([]model.Lesson, len(t.Lessons))
			copy(out.Timetables[i].Lessons, t.Lessons)
		}
	}
	return out
}
