package driven

import (
	"context"

	"github.com/ericfisherdev/dsbpanel/internal/domain/model"
)

// TimetableSource defines the driven port for the remote timetable service.
// An implementation is bound to one credential pair for its whole lifetime.
type TimetableSource interface {
	// DiscoverPlans authenticates and walks the remote menu, returning every
	// published plan document. Fails with model.ErrAuthentication,
	// model.ErrNetwork, model.ErrRemoteService, model.ErrCodec or
	// model.ErrIncompatiblePlan.
	DiscoverPlans(ctx context.Context) ([]model.PlanRef, error)

	// FetchDocument retrieves the raw markup of one plan document as UTF-8.
	FetchDocument(ctx context.Context, ref model.PlanRef) (string, error)
}
