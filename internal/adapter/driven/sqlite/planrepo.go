package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ericfisherdev/dsbpanel/internal/domain/model"
	"github.com/ericfisherdev/dsbpanel/internal/domain/port/driven"
)

// planKeyPrefix is prepended to the ISO date to form a plan's key.
const planKeyPrefix = "plan_"

// Compile-time interface satisfaction check.
var _ driven.PlanStore = (*PlanRepo)(nil)

// PlanRepo is the SQLite implementation of the PlanStore port interface.
// Each plan is one JSON document under "plan_<YYYY-MM-DD>".
type PlanRepo struct {
	kv keyValues
}

// NewPlanRepo creates a new PlanRepo backed by the given database.
func NewPlanRepo(db *DB) *PlanRepo {
	return &PlanRepo{kv: keyValues{db: db}}
}

// PlanKey returns the storage key for a plan date.
func PlanKey(date string) string {
	return planKeyPrefix + date
}

// Save stores timetable under its date, replacing any previous plan for that date.
func (r *PlanRepo) Save(ctx context.Context, timetable model.Timetable) error {
	if _, err := model.ParseDate(timetable.Date); err != nil {
		return fmt.Errorf("save plan: %w", err)
	}

	data, err := json.Marshal(timetable)
	if err != nil {
		return fmt.Errorf("marshal plan %s: %w", timetable.Date, err)
	}

	if err := r.kv.put(ctx, PlanKey(timetable.Date), string(data)); err != nil {
		return fmt.Errorf("save plan %s: %w", timetable.Date, err)
	}

	slog.Debug("plan saved", "date", timetable.Date, "lessons", len(timetable.Lessons))
	return nil
}

// Load returns the plan stored for date, or (nil, nil) if there is none.
func (r *PlanRepo) Load(ctx context.Context, date string) (*model.Timetable, error) {
	data, ok, err := r.kv.get(ctx, PlanKey(date))
	if err != nil {
		return nil, fmt.Errorf("load plan %s: %w", date, err)
	}
	if !ok {
		return nil, nil
	}

	var timetable model.Timetable
	if err := json.Unmarshal([]byte(data), &timetable); err != nil {
		return nil, fmt.Errorf("unmarshal plan %s: %w", date, err)
	}

	return &timetable, nil
}

// Dates returns the dates of all stored plans in ascending order.
func (r *PlanRepo) Dates(ctx context.Context) ([]string, error) {
	keys, err := r.kv.keys(ctx, planKeyPrefix)
	if err != nil {
		return nil, fmt.Errorf("list plan dates: %w", err)
	}

	dates := make([]string, 0, len(keys))
	for _, key := range keys {
		dates = append(dates, strings.TrimPrefix(key, planKeyPrefix))
	}
	return dates, nil
}

// DeleteAll removes every stored plan.
func (r *PlanRepo) DeleteAll(ctx context.Context) error {
	n, err := r.kv.deletePrefix(ctx, planKeyPrefix)
	if err != nil {
		return fmt.Errorf("delete plans: %w", err)
	}

	slog.Debug("plans deleted", "count", n)
	return nil
}
