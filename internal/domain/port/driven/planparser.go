package driven

import "github.com/ericfisherdev/dsbpanel/internal/domain/model"

// PlanParser turns one plan document into a Timetable. Implementations are
// pure: no I/O, identical input yields structurally equal output.
type PlanParser interface {
	Parse(html string) (model.Timetable, error)
}
