// Package untis parses the server-rendered substitution plans ("Monitor"
// exports) that schools publish through the timetable service.
//
// Structure is walked with goquery; regular expressions are only applied to
// the extracted text of the title and publication stamp.
package untis

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/ericfisherdev/dsbpanel/internal/domain/model"
	"github.com/ericfisherdev/dsbpanel/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.PlanParser = (*Parser)(nil)

var (
	// titleDatePattern matches "15.7.2025" in "15.7.2025 Dienstag, Woche A".
	titleDatePattern = regexp.MustCompile(`(\d{1,2})\.(\d{1,2})\.(\d{4})`)

	// stampPattern matches "Stand: 15.07.2025 11:37".
	stampPattern = regexp.MustCompile(`Stand:\s*(\d{2})\.(\d{2})\.(\d{4})\s+(\d{2}):(\d{2})`)

	// periodOnlyPattern matches a cell holding nothing but "5" or "3 - 4".
	periodOnlyPattern = regexp.MustCompile(`^\d+(?:\s*[-–]\s*\d+)?$`)

	integerPattern = regexp.MustCompile(`\d+`)
)

// columnLabels are first-cell texts of the column title row.
var columnLabels = map[string]bool{
	"stunde":    true,
	"std.":      true,
	"std":       true,
	"period":    true,
	"klasse":    true,
	"klasse(n)": true,
}

// Parser converts plan documents into Timetables. The zero value is not
// usable; construct with NewParser.
type Parser struct {
	now      func() time.Time
	location *time.Location
}

// Option configures a Parser.
type Option func(*Parser)

// WithClock sets the clock used for the default plan date.
func WithClock(now func() time.Time) Option {
	return func(p *Parser) { p.now = now }
}

// WithLocation sets the location plan dates and stamps are interpreted in.
func WithLocation(loc *time.Location) Option {
	return func(p *Parser) { p.location = loc }
}

// NewParser creates a Parser using the local clock and location unless overridden.
func NewParser(opts ...Option) *Parser {
	p := &Parser{now: time.Now, location: time.Local}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Parse extracts the plan date, publication stamp and lessons from html.
// Missing markers fall back to defaults (today, no stamp, no lessons); only
// a document that cannot be tokenized at all is an error.
func (p *Parser) Parse(html string) (model.Timetable, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return model.Timetable{}, fmt.Errorf("%w: tokenize document: %v", model.ErrIncompatiblePlan, err)
	}

	timetable := model.Timetable{
		Date:    model.FormatDate(p.now().In(p.location)),
		Lessons: []model.Lesson{},
	}

	if date, ok := p.planDate(doc); ok {
		timetable.Date = date
	}
	if stamp, ok := p.publishedAt(doc); ok {
		timetable.PublishedAt = &stamp
	}

	table := doc.Find("table.mon_list").First()
	if table.Length() == 0 {
		return timetable, nil
	}

	timetable.Lessons = parseRows(table)

	return timetable, nil
}

// planDate reads the day the plan applies to from the first mon_title block.
func (p *Parser) planDate(doc *goquery.Document) (string, bool) {
	title := doc.Find("div.mon_title").First()
	if title.Length() == 0 {
		return "", false
	}

	m := titleDatePattern.FindStringSubmatch(cleanText(title.Text()))
	if m == nil {
		return "", false
	}

	day, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	year, _ := strconv.Atoi(m[3])

	t, ok := validDate(year, month, day, 0, 0, p.location)
	if !ok {
		return "", false
	}
	return model.FormatDate(t), true
}

// publishedAt reads the "Stand:" stamp anywhere in the document text.
func (p *Parser) publishedAt(doc *goquery.Document) (time.Time, bool) {
	m := stampPattern.FindStringSubmatch(cleanText(doc.Text()))
	if m == nil {
		return time.Time{}, false
	}

	day, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	year, _ := strconv.Atoi(m[3])
	hour, _ := strconv.Atoi(m[4])
	minute, _ := strconv.Atoi(m[5])

	return validDate(year, month, day, hour, minute, p.location)
}

// parseRows walks the table rows in document order, tracking the current class.
func parseRows(table *goquery.Selection) []model.Lesson {
	lessons := []model.Lesson{}
	currentClass := ""
	ordinal := 0

	table.Find("tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() == 0 {
			// Column title row rendered with <th>.
			return
		}

		texts := make([]string, 0, cells.Length())
		cells.Each(func(_ int, cell *goquery.Selection) {
			texts = append(texts, cleanText(cell.Text()))
		})

		if isClassHeader(cells, texts) {
			currentClass = firstMeaningful(texts)
			return
		}

		if len(texts) < 2 || columnLabels[strings.ToLower(texts[0])] {
			return
		}

		start, end, ok := parsePeriod(texts[0])
		if !ok {
			return
		}

		ordinal++
		lessons = append(lessons, model.Lesson{
			Ordinal:     ordinal,
			Class:       currentClass,
			PeriodStart: start,
			PeriodEnd:   end,
			Teacher:     column(texts, 1),
			Subject:     column(texts, 2),
			Room:        column(texts, 3),
			Message:     column(texts, 4),
		})
	})

	return lessons
}

// isClassHeader reports whether a row names a class rather than a lesson:
// an inline_header cell, or exactly one non-empty cell.
func isClassHeader(cells *goquery.Selection, texts []string) bool {
	if cells.Filter(".inline_header").Length() > 0 {
		return firstMeaningful(texts) != ""
	}

	meaningful := 0
	for _, t := range texts {
		if t != "" {
			meaningful++
		}
	}
	return meaningful == 1 && (len(texts) == 1 || !periodOnlyPattern.MatchString(texts[0]))
}

// parsePeriod extracts "5" or "3 - 4". Without a range separator start equals end.
func parsePeriod(text string) (int, int, bool) {
	nums := integerPattern.FindAllString(text, 2)
	if len(nums) == 0 {
		return 0, 0, false
	}

	start, err := strconv.Atoi(nums[0])
	if err != nil {
		return 0, 0, false
	}
	end := start

	if len(nums) == 2 && hasRangeSeparator(text) {
		if n, err := strconv.Atoi(nums[1]); err == nil && n >= start {
			end = n
		}
	}

	return start, end, true
}

func hasRangeSeparator(text string) bool {
	return strings.ContainsAny(text, "-–")
}

func column(texts []string, i int) string {
	if i < len(texts) {
		return texts[i]
	}
	return ""
}

func firstMeaningful(texts []string) string {
	for _, t := range texts {
		if t != "" {
			return t
		}
	}
	return ""
}

// cleanText collapses every run of whitespace (including non-breaking spaces
// from &nbsp;) into a single space and trims the result. goquery has already
// stripped tags and decoded entities.
func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// validDate builds a time and rejects values that time.Date would normalize
// (for example 31.02.).
func validDate(year, month, day, hour, minute int, loc *time.Location) (time.Time, bool) {
	t := time.Date(year, time.Month(month), day, hour, minute, 0, 0, loc)
	if t.Year() != year || int(t.Month()) != month || t.Day() != day || t.Hour() != hour || t.Minute() != minute {
		return time.Time{}, false
	}
	return t, true
}
