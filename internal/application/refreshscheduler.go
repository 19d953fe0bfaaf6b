package application

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/ericfisherdev/dsbpanel/internal/domain/model"
	"github.com/ericfisherdev/dsbpanel/internal/domain/port/driven"
)

// recentPlanWindow is how many of the newest stored plans are inspected to
// find the freshest publication stamp.
const recentPlanWindow = 7

// SessionRefresher is the part of SessionService the scheduler drives.
type SessionRefresher interface {
	State() model.SessionState
	Refresh(ctx context.Context) error
	ForceRefresh(ctx context.Context) error
}

// refreshRequest represents a manual refresh trigger.
type refreshRequest struct {
	force bool
	done  chan error
}

// RefreshScheduler re-runs discovery in the background. The delay between
// runs follows the activity tier of the freshest stored plan, and manual
// refreshes are serialized through the same loop.
type RefreshScheduler struct {
	session   SessionRefresher
	plans     driven.PlanStore
	base      time.Duration
	now       func() time.Time
	refreshCh chan refreshRequest

	mu   sync.RWMutex
	info ScheduleInfo
}

// NewRefreshScheduler creates a scheduler polling on base while plans are
// being published daily.
func NewRefreshScheduler(session SessionRefresher, plans driven.PlanStore, base time.Duration) *RefreshScheduler {
	return &RefreshScheduler{
		session:   session,
		plans:     plans,
		base:      base,
		now:       time.Now,
		refreshCh: make(chan refreshRequest),
	}
}

// Start runs an immediate refresh, then keeps refreshing on the adaptive
// schedule and serves manual refresh requests. Start blocks until the
// context is canceled.
func (s *RefreshScheduler) Start(ctx context.Context) {
	timer := time.NewTimer(s.tick(ctx))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("refresh scheduler stopped")
			return
		case <-timer.C:
			timer.Reset(s.tick(ctx))
		case req := <-s.refreshCh:
			req.done <- s.run(ctx, req.force)
			tier, last := s.classify(ctx)
			timer.Reset(s.schedule(tier, last))
		}
	}
}

// RefreshNow triggers a refresh through the scheduler loop, bypassing the
// timer. It blocks until the refresh completes or the context is canceled.
func (s *RefreshScheduler) RefreshNow(ctx context.Context, force bool) error {
	done := make(chan error, 1)

	select {
	case s.refreshCh <- refreshRequest{force: force, done: done}:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Schedule returns the current adaptive schedule.
func (s *RefreshScheduler) Schedule() ScheduleInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.info
}

// tick runs one scheduled refresh and returns the delay until the next one.
// A hot plan is refreshed past the session cache since it is likely to be
// republished soon.
func (s *RefreshScheduler) tick(ctx context.Context) time.Duration {
	tier, last := s.classify(ctx)

	if s.session.State().IsAuthenticated {
		if err := s.run(ctx, tier == TierHot); err == nil {
			tier, last = s.classify(ctx)
		}
	} else {
		slog.Debug("scheduled refresh skipped, not authenticated")
	}

	return s.schedule(tier, last)
}

func (s *RefreshScheduler) run(ctx context.Context, force bool) error {
	start := s.now()

	var err error
	if force {
		err = s.session.ForceRefresh(ctx)
	} else {
		err = s.session.Refresh(ctx)
	}

	s.mu.Lock()
	s.info.LastRunAt = start
	s.mu.Unlock()

	switch {
	case err == nil:
		slog.Debug("refresh complete", "forced", force)
	case errors.Is(err, model.ErrRefreshInProgress):
		slog.Debug("refresh skipped, already running")
	default:
		slog.Error("refresh failed", "forced", force, "error", err)
	}

	return err
}

// classify finds the freshest publication stamp among the newest stored plans.
func (s *RefreshScheduler) classify(ctx context.Context) (ActivityTier, time.Time) {
	dates, err := s.plans.Dates(ctx)
	if err != nil {
		slog.Error("list plan dates failed", "error", err)
		return TierActive, time.Time{}
	}
	if len(dates) > recentPlanWindow {
		dates = dates[len(dates)-recentPlanWindow:]
	}

	timetables := make([]model.Timetable, 0, len(dates))
	for _, date := range dates {
		t, err := s.plans.Load(ctx, date)
		if err != nil {
			slog.Error("load plan failed", "date", date, "error", err)
			continue
		}
		if t != nil {
			timetables = append(timetables, *t)
		}
	}

	last := freshestPublication(timetables)
	return classifyActivity(last, s.now()), last
}

func (s *RefreshScheduler) schedule(tier ActivityTier, last time.Time) time.Duration {
	delay := tierInterval(tier, s.base)

	s.mu.Lock()
	s.info.Tier = tier
	s.info.LastPublished = last
	s.info.NextRunAt = s.now().Add(delay)
	s.mu.Unlock()

	slog.Debug("next refresh scheduled", "tier", tier.String(), "in", delay)
	return delay
}
