package model

// PlanRef points at one downloadable plan document found in the remote menu.
// It lives for a single discovery pass and is never persisted.
type PlanRef struct {
	Title string
	URL   string
	// Published is the upstream's own publication label, kept verbatim for logging.
	Published string
}
