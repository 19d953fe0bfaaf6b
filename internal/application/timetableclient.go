// Package application contains use-case orchestration services.
package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ericfisherdev/dsbpanel/internal/domain/model"
	"github.com/ericfisherdev/dsbpanel/internal/domain/port/driven"
)

// PlanFailure records one plan that could not be fetched, parsed or saved
// during a discovery pass.
type PlanFailure struct {
	Ref  model.PlanRef
	Date string // set when the failure happened while saving
	Err  error
}

// DiscoveryResult summarizes one discovery pass.
type DiscoveryResult struct {
	// Discovered is the number of plan documents the menu listed.
	Discovered int
	// Saved holds the stored timetables in discovery order, one per date.
	Saved []model.Timetable
	// Failed holds the documents that were skipped.
	Failed []PlanFailure
}

// Dates returns the dates of the saved timetables.
func (r DiscoveryResult) Dates() []string {
	dates := make([]string, 0, len(r.Saved))
	for _, t := range r.Saved {
		dates = append(dates, t.Date)
	}
	return dates
}

// TimetableClient owns one login's view of the remote service: it discovers
// every published plan, parses each document and fans the results out to the
// per-date plan store.
type TimetableClient struct {
	source driven.TimetableSource
	parser driven.PlanParser
	plans  driven.PlanStore
}

// NewTimetableClient creates a new TimetableClient with all required dependencies.
func NewTimetableClient(source driven.TimetableSource, parser driven.PlanParser, plans driven.PlanStore) *TimetableClient {
	return &TimetableClient{source: source, parser: parser, plans: plans}
}

// AuthenticateAndDiscoverAllPlans logs in, lists every published plan and
// stores each one under its date. A plan that fails to fetch, parse or save
// is logged and recorded in the result; the pass continues with the next one.
// Only failures of the login and menu request abort the pass.
func (c *TimetableClient) AuthenticateAndDiscoverAllPlans(ctx context.Context) (DiscoveryResult, error) {
	start := time.Now()

	refs, err := c.source.DiscoverPlans(ctx)
	if err != nil {
		return DiscoveryResult{}, err
	}

	result := DiscoveryResult{Discovered: len(refs)}

	var merged []model.Timetable
	byDate := make(map[string]int)

	for _, ref := range refs {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}

		timetable, err := c.fetchPlan(ctx, ref)
		if err != nil {
			slog.Error("plan skipped", "title", ref.Title, "url", ref.URL, "error", err)
			result.Failed = append(result.Failed, PlanFailure{Ref: ref, Err: err})
			continue
		}

		if i, ok := byDate[timetable.Date]; ok {
			merged[i] = mergeTimetables(merged[i], timetable)
			continue
		}
		byDate[timetable.Date] = len(merged)
		merged = append(merged, timetable)
	}

	for _, timetable := range merged {
		if err := c.plans.Save(ctx, timetable); err != nil {
			slog.Error("plan save failed", "date", timetable.Date, "error", err)
			result.Failed = append(result.Failed, PlanFailure{Date: timetable.Date, Err: err})
			continue
		}
		result.Saved = append(result.Saved, timetable)
	}

	slog.Info("discovery complete",
		"documents", result.Discovered,
		"saved", len(result.Saved),
		"failed", len(result.Failed),
		"duration", time.Since(start).Round(time.Millisecond),
	)

	return result, nil
}

func (c *TimetableClient) fetchPlan(ctx context.Context, ref model.PlanRef) (model.Timetable, error) {
	html, err := c.source.FetchDocument(ctx, ref)
	if err != nil {
		return model.Timetable{}, fmt.Errorf("fetch plan: %w", err)
	}

	timetable, err := c.parser.Parse(html)
	if err != nil {
		return model.Timetable{}, fmt.Errorf("parse plan: %w", err)
	}

	return timetable, nil
}

// GetTimetable returns the stored plan for date without touching the network.
func (c *TimetableClient) GetTimetable(ctx context.Context, date string) (model.Timetable, error) {
	date, err := model.ParseDate(date)
	if err != nil {
		return model.Timetable{}, err
	}

	timetable, err := c.plans.Load(ctx, date)
	if err != nil {
		return model.Timetable{}, fmt.Errorf("load plan %s: %w", date, err)
	}
	if timetable == nil {
		return model.Timetable{}, fmt.Errorf("%w: %s", model.ErrPlanNotFound, date)
	}

	return *timetable, nil
}

// mergeTimetables appends the lessons of next to base for documents that
// cover the same date (multi-page plans). Ordinals are renumbered in the
// merged order and the later publication stamp wins.
func mergeTimetables(base, next model.Timetable) model.Timetable {
	out := model.Timetable{
		Date:        base.Date,
		PublishedAt: base.PublishedAt,
		Lessons:     make([]model.Lesson, 0, len(base.Lessons)+len(next.Lessons)),
	}

	if next.PublishedAt != nil && (out.PublishedAt == nil || next.PublishedAt.After(*out.PublishedAt)) {
		out.PublishedAt = next.PublishedAt
	}

	out.Lessons = append(out.Lessons, base.Lessons...)
	out.Lessons = append(out.Lessons, next.Lessons...)
	for i := range out.Lessons {
		out.Lessons[i].Ordinal = i + 1
	}

	return out
}
