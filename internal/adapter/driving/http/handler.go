// Package httphandler is the REST driving adapter: the session operations
// and stored plans exposed as JSON, plus an iCalendar export per day.
package httphandler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ericfisherdev/dsbpanel/internal/adapter/driving/calendar"
	"github.com/ericfisherdev/dsbpanel/internal/domain/model"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 64 << 10

// Session is the orchestrator surface the API depends on.
type Session interface {
	State() model.SessionState
	Identifier() string
	Today() string
	Authenticate(ctx context.Context, identifier, secret string) error
	Logout(ctx context.Context) error
	Timetable(ctx context.Context, date string) (model.Timetable, error)
	ScheduleForClass(ctx context.Context, date, class string) ([]model.Lesson, error)
	PlanDates(ctx context.Context) ([]string, error)
	LatestPlans(ctx context.Context) (*model.CachedEntry, error)
}

// Refresher runs a refresh, bypassing the session cache when force is set.
type Refresher interface {
	RefreshNow(ctx context.Context, force bool) error
}

// Handler is the HTTP driving adapter that serves the REST API.
type Handler struct {
	session   Session
	refresher Refresher
	exporter  *calendar.Exporter
	logger    *slog.Logger
}

// NewHandler creates a Handler with all required dependencies.
func NewHandler(session Session, refresher Refresher, exporter *calendar.Exporter, logger *slog.Logger) *Handler {
	return &Handler{
		session:   session,
		refresher: refresher,
		exporter:  exporter,
		logger:    logger,
	}
}

// NewServeMux creates an http.Handler with all routes registered and wrapped
// with logging and recovery middleware.
func NewServeMux(h *Handler, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/health", h.Health)
	mux.HandleFunc("GET /api/v1/session", h.GetSession)
	mux.HandleFunc("POST /api/v1/session", h.Login)
	mux.HandleFunc("DELETE /api/v1/session", h.Logout)
	mux.HandleFunc("POST /api/v1/refresh", h.Refresh)
	mux.HandleFunc("GET /api/v1/plans", h.ListPlans)
	mux.HandleFunc("GET /api/v1/plans/latest", h.LatestPlans)
	mux.HandleFunc("GET /api/v1/plans/{date}", h.GetPlan)
	mux.HandleFunc("GET /api/v1/plans/{date}/calendar.ics", h.ExportCalendar)
	mux.HandleFunc("GET /api/v1/schedule/{date}", h.GetSchedule)

	// Recovery innermost so panics are caught before logging.
	wrapped := recoveryMiddleware(logger, mux)
	wrapped = loggingMiddleware(logger, wrapped)

	return wrapped
}

// Health returns a simple health check response.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
		Time:   time.Now().UTC().Format(time.RFC3339),
	})
}

// GetSession returns the observable session state.
func (h *Handler) GetSession(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.sessionResponse())
}

// Login authenticates with the remote service and runs the first discovery.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.session.Authenticate(r.Context(), req.Identifier, req.Secret); err != nil {
		h.writeRemoteError(w, "login", err)
		return
	}

	writeJSON(w, http.StatusOK, h.sessionResponse())
}

// Logout clears credentials, cache and stored plans.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.session.Logout(r.Context()); err != nil {
		h.logger.Error("logout incomplete", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Refresh re-runs discovery. ?force=true bypasses the session cache.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	force := r.URL.Query().Get("force") == "true"

	if err := h.refresher.RefreshNow(r.Context(), force); err != nil {
		h.writeRemoteError(w, "refresh", err)
		return
	}

	writeJSON(w, http.StatusOK, h.sessionResponse())
}

// ListPlans returns the dates with a stored plan.
func (h *Handler) ListPlans(w http.ResponseWriter, r *http.Request) {
	dates, err := h.session.PlanDates(r.Context())
	if err != nil {
		h.writeSessionError(w, "list plans", err)
		return
	}

	writeJSON(w, http.StatusOK, PlansResponse{Dates: dates})
}

// LatestPlans returns the timetables of the last discovery pass while it is
// still within the cache TTL.
func (h *Handler) LatestPlans(w http.ResponseWriter, r *http.Request) {
	entry, err := h.session.LatestPlans(r.Context())
	if err != nil {
		h.writeSessionError(w, "latest plans", err)
		return
	}
	if entry == nil {
		writeError(w, http.StatusNotFound, "no recent discovery, refresh first")
		return
	}

	writeJSON(w, http.StatusOK, toLatestResponse(*entry))
}

// GetPlan returns the stored timetable for a date.
func (h *Handler) GetPlan(w http.ResponseWriter, r *http.Request) {
	date := h.resolveDate(r.PathValue("date"))

	timetable, err := h.session.Timetable(r.Context(), date)
	if err != nil {
		h.writeSessionError(w, "get plan", err)
		return
	}

	writeJSON(w, http.StatusOK, toTimetableResponse(timetable))
}

// ExportCalendar renders a stored plan as iCalendar, optionally for one class.
func (h *Handler) ExportCalendar(w http.ResponseWriter, r *http.Request) {
	date := h.resolveDate(r.PathValue("date"))
	class := strings.TrimSpace(r.URL.Query().Get("class"))

	timetable, err := h.session.Timetable(r.Context(), date)
	if err != nil {
		h.writeSessionError(w, "export calendar", err)
		return
	}

	body, err := h.exporter.Export(timetable, class)
	if err != nil {
		h.logger.Error("calendar export failed", "date", date, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="plan-`+timetable.Date+`.ics"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}

// GetSchedule returns the lessons for a date, optionally for one class.
// A date without a stored plan yields an empty list.
func (h *Handler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	date := h.resolveDate(r.PathValue("date"))
	class := strings.TrimSpace(r.URL.Query().Get("class"))

	lessons, err := h.session.ScheduleForClass(r.Context(), date, class)
	if err != nil {
		h.writeSessionError(w, "get schedule", err)
		return
	}

	writeJSON(w, http.StatusOK, ScheduleResponse{
		Date:    date,
		Class:   class,
		Lessons: toLessonResponses(lessons),
	})
}

// resolveDate maps the "today" alias to the current date.
func (h *Handler) resolveDate(date string) string {
	if strings.EqualFold(date, "today") {
		return h.session.Today()
	}
	return date
}

func (h *Handler) sessionResponse() SessionResponse {
	return toSessionResponse(h.session.State(), h.session.Identifier())
}

// writeSessionError translates domain errors to status codes.
func (h *Handler) writeSessionError(w http.ResponseWriter, op string, err error) {
	status, message := classifyError(err)
	h.logRejection(op, status, err)
	writeError(w, status, message)
}

// writeRemoteError is writeSessionError for operations that talk to the
// remote service. The message comes from the session state so the API shows
// the same text a UI would.
func (h *Handler) writeRemoteError(w http.ResponseWriter, op string, err error) {
	status, message := classifyError(err)
	if status != http.StatusConflict && status != http.StatusUnprocessableEntity {
		if msg := h.session.State().Error; msg != "" {
			message = msg
		}
	}
	h.logRejection(op, status, err)
	writeError(w, status, message)
}

func (h *Handler) logRejection(op string, status int, err error) {
	if status == http.StatusInternalServerError {
		h.logger.Error(op+" failed", "error", err)
		return
	}
	h.logger.Debug(op+" rejected", "status", status, "error", err)
}

func classifyError(err error) (int, string) {
	switch {
	case errors.Is(err, model.ErrInvalidDate):
		return http.StatusBadRequest, "invalid date, expected YYYY-MM-DD or today"
	case errors.Is(err, model.ErrInvalidCredentials):
		return http.StatusUnprocessableEntity, "identifier and secret are required"
	case errors.Is(err, model.ErrNotAuthenticated):
		return http.StatusUnauthorized, "not authenticated"
	case errors.Is(err, model.ErrAuthentication):
		return http.StatusUnauthorized, "authentication failed"
	case errors.Is(err, model.ErrPlanNotFound):
		return http.StatusNotFound, "no plan stored for this date"
	case errors.Is(err, model.ErrRefreshInProgress):
		return http.StatusConflict, "a refresh is already running"
	case errors.Is(err, model.ErrNetwork):
		if isTimeout(err) {
			return http.StatusGatewayTimeout, "remote service timed out"
		}
		return http.StatusServiceUnavailable, "remote service unreachable"
	case errors.Is(err, model.ErrRemoteService),
		errors.Is(err, model.ErrIncompatiblePlan),
		errors.Is(err, model.ErrCodec):
		return http.StatusBadGateway, "remote service error"
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable, "request canceled"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}
