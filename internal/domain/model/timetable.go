package model

import (
	"strings"
	"time"
)

// Timetable is one institution-published plan: the lessons that apply to Date.
// PublishedAt is nil when the source document carried no recognizable stamp.
type Timetable struct {
	Date        string     `json:"date"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	Lessons     []Lesson   `json:"lessons"`
}

// ForClass returns the lessons of the given class, preserving document order.
// An empty class returns every lesson.
func (t Timetable) ForClass(class string) []Lesson {
	if class == "" {
		out := make([]Lesson, len(t.Lessons))
		copy(out, t.Lessons)
		return out
	}

	out := make([]Lesson, 0, len(t.Lessons))
	for _, l := range t.Lessons {
		if strings.EqualFold(l.Class, class) {
			out = append(out, l)
		}
	}
	return out
}

// Classes returns the distinct class identifiers in order of first appearance.
func (t Timetable) Classes() []string {
	seen := make(map[string]bool)
	var classes []string
	for _, l := range t.Lessons {
		if seen[l.Class] {
			continue
		}
		seen[l.Class] = true
		classes = append(classes, l.Class)
	}
	return classes
}
