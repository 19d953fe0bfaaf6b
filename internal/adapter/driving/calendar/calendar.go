// Package calendar renders a day's lessons as an iCalendar feed.
package calendar

import (
	"fmt"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"

	"github.com/ericfisherdev/dsbpanel/internal/domain/model"
)

const productID = "-//dsbpanel//substitution plan//DE"

// PeriodClock maps period numbers to wall-clock times. Period 1 starts at
// FirstStart after midnight; every period lasts Length and is followed by Gap.
type PeriodClock struct {
	FirstStart time.Duration
	Length     time.Duration
	Gap        time.Duration
	Location   *time.Location
}

// DefaultPeriodClock is 45 minute periods from 08:00 with 5 minute breaks.
func DefaultPeriodClock(loc *time.Location) PeriodClock {
	return PeriodClock{
		FirstStart: 8 * time.Hour,
		Length:     45 * time.Minute,
		Gap:        5 * time.Minute,
		Location:   loc,
	}
}

// Bounds returns when the lesson starts and ends on date.
func (c PeriodClock) Bounds(date string, l model.Lesson) (time.Time, time.Time, error) {
	loc := c.Location
	if loc == nil {
		loc = time.Local
	}

	day, err := time.ParseInLocation(model.DateLayout, date, loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: %q", model.ErrInvalidDate, date)
	}

	start := wallClock(day, c.periodOffset(l.PeriodStart))
	end := wallClock(day, c.periodOffset(l.PeriodEnd)+c.Length)
	return start, end, nil
}

// wallClock returns the local time offset after midnight of day, read off
// the wall clock so a DST switch on that day does not shift it.
func wallClock(day time.Time, offset time.Duration) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, 0, 0, 0, int(offset), day.Location())
}

func (c PeriodClock) periodOffset(period int) time.Duration {
	return c.FirstStart + time.Duration(period-1)*(c.Length+c.Gap)
}

// Exporter renders timetables as iCalendar documents.
type Exporter struct {
	clock PeriodClock
	now   func() time.Time
}

// NewExporter creates an Exporter using clock for lesson times.
func NewExporter(clock PeriodClock) *Exporter {
	return &Exporter{clock: clock, now: time.Now}
}

// Export renders the lessons of class (all lessons when class is empty) as
// one VEVENT each. Event UIDs are stable for a date, ordinal and class so
// calendar clients replace rather than duplicate events on re-import.
func (e *Exporter) Export(t model.Timetable, class string) (string, error) {
	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId(productID)
	cal.SetXWRCalName(calendarName(t.Date, class))

	stamp := e.now().UTC()
	if t.PublishedAt != nil {
		stamp = t.PublishedAt.UTC()
	}

	for _, l := range t.ForClass(class) {
		start, end, err := e.clock.Bounds(t.Date, l)
		if err != nil {
			return "", err
		}

		event := cal.AddEvent(eventUID(t.Date, l))
		event.SetDtStampTime(stamp)
		event.SetStartAt(start)
		event.SetEndAt(end)
		event.SetSummary(summary(l))
		if l.Room != "" {
			event.SetLocation(l.Room)
		}
		event.SetDescription(description(l))
	}

	return cal.Serialize(), nil
}

func calendarName(date, class string) string {
	if class == "" {
		return "Vertretungsplan " + date
	}
	return "Vertretungsplan " + class + " " + date
}

func eventUID(date string, l model.Lesson) string {
	class := strings.Map(func(r rune) rune {
		if r == ' ' || r == '@' {
			return '_'
		}
		return r
	}, l.Class)
	return fmt.Sprintf("%s-%d-%s@dsbpanel", date, l.Ordinal, class)
}

// summary reads like "10A: Mathe (fällt aus)".
func summary(l model.Lesson) string {
	var b strings.Builder
	if l.Class != "" {
		b.WriteString(l.Class)
		b.WriteString(": ")
	}
	if l.Subject != "" {
		b.WriteString(l.Subject)
	} else {
		b.WriteString("Stunde ")
		b.WriteString(l.PeriodLabel())
	}
	if l.Message != "" {
		b.WriteString(" (")
		b.WriteString(l.Message)
		b.WriteString(")")
	}
	return b.String()
}

func description(l model.Lesson) string {
	lines := []string{"Stunde " + l.PeriodLabel()}
	if l.Teacher != "" {
		lines = append(lines, "Vertretung: "+l.Teacher)
	}
	if l.Room != "" {
		lines = append(lines, "Raum: "+l.Room)
	}
	if l.Message != "" {
		lines = append(lines, l.Message)
	}
	return strings.Join(lines, "\n")
}
