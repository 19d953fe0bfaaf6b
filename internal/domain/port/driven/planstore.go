package driven

import (
	"context"

	"github.com/ericfisherdev/dsbpanel/internal/domain/model"
)

// PlanStore defines the driven port for per-date plan persistence.
// Plans never expire; Save replaces whatever was stored for the same date.
type PlanStore interface {
	Save(ctx context.Context, timetable model.Timetable) error
	// Load returns (nil, nil) if no plan is stored for date.
	Load(ctx context.Context, date string) (*model.Timetable, error)
	// Dates returns the stored plan dates in ascending order.
	Dates(ctx context.Context) ([]string, error)
	DeleteAll(ctx context.Context) error
}
