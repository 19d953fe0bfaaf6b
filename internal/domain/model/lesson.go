package model

import "strconv"

// Lesson is one row of a published plan. Ordinal is assigned in document order
// and is only meaningful within the plan it was parsed from.
type Lesson struct {
	Ordinal     int    `json:"ordinal"`
	Class       string `json:"class"`
	PeriodStart int    `json:"period_start"`
	PeriodEnd   int    `json:"period_end"`
	Teacher     string `json:"teacher"`
	Subject     string `json:"subject"`
	Room        string `json:"room"`
	Message     string `json:"message"`
}

// IsRange reports whether the lesson spans more than one period.
func (l Lesson) IsRange() bool {
	return l.PeriodEnd > l.PeriodStart
}

// PeriodLabel renders the period descriptor the way plans print it ("3" or "3 - 4").
func (l Lesson) PeriodLabel() string {
	if l.IsRange() {
		return strconv.Itoa(l.PeriodStart) + " - " + strconv.Itoa(l.PeriodEnd)
	}
	return strconv.Itoa(l.PeriodStart)
}
