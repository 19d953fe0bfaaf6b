package httphandler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/ericfisherdev/dsbpanel/internal/domain/model"
)

// writeJSON marshals v to JSON and writes it to the response with the given
// status code. If marshaling fails, a 500 error is written instead.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError writes a JSON error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// errorResponse is the standard error response body.
type errorResponse struct {
	Error string `json:"error"`
}

// HealthResponse is the JSON representation of the health check endpoint.
type HealthResponse struct {
	Status string `json:"status"`
	Time   string `json:"time"`
}

// LoginRequest is the JSON body for the login endpoint.
type LoginRequest struct {
	Identifier string `json:"identifier"`
	Secret     string `json:"secret"`
}

// SessionResponse is the JSON representation of the session state.
type SessionResponse struct {
	IsLoading       bool    `json:"is_loading"`
	IsAuthenticated bool    `json:"is_authenticated"`
	Identifier      string  `json:"identifier,omitempty"`
	Error           string  `json:"error,omitempty"`
	LastUpdated     *string `json:"last_updated"`
}

// LessonResponse is the JSON representation of one lesson record.
type LessonResponse struct {
	Ordinal     int    `json:"ordinal"`
	Class       string `json:"class"`
	Period      string `json:"period"`
	PeriodStart int    `json:"period_start"`
	PeriodEnd   int    `json:"period_end"`
	Teacher     string `json:"teacher"`
	Subject     string `json:"subject"`
	Room        string `json:"room"`
	Message     string `json:"message"`
}

// TimetableResponse is the JSON representation of a stored plan.
type TimetableResponse struct {
	Date        string           `json:"date"`
	PublishedAt *string          `json:"published_at"`
	Classes     []string         `json:"classes"`
	Lessons     []LessonResponse `json:"lessons"`
}

// PlansResponse lists the dates with a stored plan.
type PlansResponse struct {
	Dates []string `json:"dates"`
}

// LatestResponse is the result of the last discovery pass.
type LatestResponse struct {
	CapturedAt string              `json:"captured_at"`
	Timetables []TimetableResponse `json:"timetables"`
}

// ScheduleResponse is the lesson list for one date.
type ScheduleResponse struct {
	Date    string           `json:"date"`
	Class   string           `json:"class,omitempty"`
	Lessons []LessonResponse `json:"lessons"`
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339)
	return &s
}

func toSessionResponse(state model.SessionState, identifier string) SessionResponse {
	return SessionResponse{
		IsLoading:       state.IsLoading,
		IsAuthenticated: state.IsAuthenticated,
		Identifier:      identifier,
		Error:           state.Error,
		LastUpdated:     formatTime(state.LastUpdated),
	}
}

func toLessonResponse(l model.Lesson) LessonResponse {
	return LessonResponse{
		Ordinal:     l.Ordinal,
		Class:       l.Class,
		Period:      l.PeriodLabel(),
		PeriodStart: l.PeriodStart,
		PeriodEnd:   l.PeriodEnd,
		Teacher:     l.Teacher,
		Subject:     l.Subject,
		Room:        l.Room,
		Message:     l.Message,
	}
}

func toLessonResponses(lessons []model.Lesson) []LessonResponse {
	resp := make([]LessonResponse, 0, len(lessons))
	for _, l := range lessons {
		resp = append(resp, toLessonResponse(l))
	}
	return resp
}

func toTimetableResponse(t model.Timetable) TimetableResponse {
	classes := t.Classes()
	if classes == nil {
		classes = []string{}
	}

	return TimetableResponse{
		Date:        t.Date,
		PublishedAt: formatTime(t.PublishedAt),
		Classes:     classes,
		Lessons:     toLessonResponses(t.Lessons),
	}
}

func toLatestResponse(e model.CachedEntry) LatestResponse {
	timetables := make([]TimetableResponse, 0, len(e.Timetables))
	for _, t := range e.Timetables {
		timetables = append(timetables, toTimetableResponse(t))
	}

	return LatestResponse{
		CapturedAt: e.CapturedAt.Format(time.RFC3339),
		Timetables: timetables,
	}
}
