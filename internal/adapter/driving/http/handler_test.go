package httphandler_test

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/dsbpanel/internal/adapter/driving/calendar"
	httphandler "github.com/ericfisherdev/dsbpanel/internal/adapter/driving/http"
	"github.com/ericfisherdev/dsbpanel/internal/domain/model"
)

// --- Mock implementations ---

type mockSession struct {
	state      model.SessionState
	identifier string
	today      string

	plans    map[string]model.Timetable
	planErr  error
	latest   *model.CachedEntry
	authErr  error
	authMsg  string
	logoutFn func() error

	authCalls []string
}

func (m *mockSession) State() model.SessionState { return m.state }
func (m *mockSession) Identifier() string        { return m.identifier }
func (m *mockSession) Today() string             { return m.today }

func (m *mockSession) Authenticate(_ context.Context, identifier, secret string) error {
	m.authCalls = append(m.authCalls, identifier+":"+secret)
	if identifier == "" || secret == "" {
		return model.ErrInvalidCredentials
	}
	if m.authErr != nil {
		m.state = model.SessionState{Error: m.authMsg}
		return m.authErr
	}
	m.identifier = identifier
	m.state = model.SessionState{IsAuthenticated: true, LastUpdated: &testTime}
	return nil
}

func (m *mockSession) Logout(_ context.Context) error {
	m.state = model.SessionState{}
	if m.logoutFn != nil {
		return m.logoutFn()
	}
	return nil
}

func (m *mockSession) Timetable(_ context.Context, date string) (model.Timetable, error) {
	if m.planErr != nil {
		return model.Timetable{}, m.planErr
	}
	if _, err := model.ParseDate(date); err != nil {
		return model.Timetable{}, err
	}
	t, ok := m.plans[date]
	if !ok {
		return model.Timetable{}, fmt.Errorf("%w: %s", model.ErrPlanNotFound, date)
	}
	return t, nil
}

func (m *mockSession) ScheduleForClass(ctx context.Context, date, class string) ([]model.Lesson, error) {
	t, err := m.Timetable(ctx, date)
	if err != nil {
		if strings.Contains(err.Error(), model.ErrPlanNotFound.Error()) {
			return []model.Lesson{}, nil
		}
		return nil, err
	}
	return t.ForClass(class), nil
}

func (m *mockSession) PlanDates(_ context.Context) ([]string, error) {
	if m.planErr != nil {
		return nil, m.planErr
	}
	dates := make([]string, 0, len(m.plans))
	for d := range m.plans {
		dates = append(dates, d)
	}
	return dates, nil
}

func (m *mockSession) LatestPlans(_ context.Context) (*model.CachedEntry, error) {
	if m.planErr != nil {
		return nil, m.planErr
	}
	return m.latest, nil
}

type mockRefresher struct {
	err    error
	forced []bool
}

func (m *mockRefresher) RefreshNow(_ context.Context, force bool) error {
	m.forced = append(m.forced, force)
	return m.err
}

// --- Helpers ---

var testTime = time.Date(2025, 7, 15, 11, 37, 0, 0, time.UTC)

func samplePlan() model.Timetable {
	return model.Timetable{
		Date:        "2025-07-15",
		PublishedAt: &testTime,
		Lessons: []model.Lesson{
			{Ordinal: 1, Class: "10A", PeriodStart: 3, PeriodEnd: 4, Teacher: "MUE", Subject: "Mathe", Room: "R101", Message: "Vertretung"},
			{Ordinal: 2, Class: "10A", PeriodStart: 5, PeriodEnd: 5, Teacher: "SCH", Subject: "Deutsch", Room: "R102"},
			{Ordinal: 3, Class: "10B", PeriodStart: 1, PeriodEnd: 1, Subject: "Englisch", Message: "fällt aus"},
		},
	}
}

func authenticatedSession() *mockSession {
	return &mockSession{
		state:      model.SessionState{IsAuthenticated: true, LastUpdated: &testTime},
		identifier: "school-1",
		today:      "2025-07-15",
		plans:      map[string]model.Timetable{"2025-07-15": samplePlan()},
	}
}

func setupMux(session *mockSession, refresher *mockRefresher) http.Handler {
	exporter := calendar.NewExporter(calendar.DefaultPeriodClock(time.UTC))
	h := httphandler.NewHandler(session, refresher, exporter, slog.Default())
	return httphandler.NewServeMux(h, slog.Default())
}

func serve(mux http.Handler, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))
	err := json.NewDecoder(rec.Body).Decode(v)
	require.NoError(t, err)
}

// --- Tests ---

func TestHealth(t *testing.T) {
	mux := setupMux(&mockSession{}, &mockRefresher{})

	rec := serve(mux, http.MethodGet, "/api/v1/health", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	decodeJSON(t, rec, &resp)
	assert.Equal(t, "ok", resp["status"])
	assert.NotEmpty(t, resp["time"])
}

func TestRequestIDHeader(t *testing.T) {
	mux := setupMux(&mockSession{}, &mockRefresher{})

	rec := serve(mux, http.MethodGet, "/api/v1/health", "")
	assert.Len(t, rec.Header().Get("X-Request-ID"), 36)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "trace-42")
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, "trace-42", rec.Header().Get("X-Request-ID"))
}

func TestGetSession(t *testing.T) {
	mux := setupMux(authenticatedSession(), &mockRefresher{})

	rec := serve(mux, http.MethodGet, "/api/v1/session", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	decodeJSON(t, rec, &resp)
	assert.Equal(t, true, resp["is_authenticated"])
	assert.Equal(t, false, resp["is_loading"])
	assert.Equal(t, "school-1", resp["identifier"])
	assert.Equal(t, "2025-07-15T11:37:00Z", resp["last_updated"])
	assert.NotContains(t, resp, "error")
}

func TestGetSession_Unauthenticated(t *testing.T) {
	mux := setupMux(&mockSession{}, &mockRefresher{})

	rec := serve(mux, http.MethodGet, "/api/v1/session", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	decodeJSON(t, rec, &resp)
	assert.Equal(t, false, resp["is_authenticated"])
	assert.Nil(t, resp["last_updated"])
}

func TestLogin(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		session    *mockSession
		wantStatus int
		wantError  string
	}{
		{
			name:       "success",
			body:       `{"identifier":"school-1","secret":"pw"}`,
			session:    &mockSession{},
			wantStatus: http.StatusOK,
		},
		{
			name:       "invalid JSON",
			body:       `not json`,
			session:    &mockSession{},
			wantStatus: http.StatusBadRequest,
			wantError:  "invalid request body",
		},
		{
			name:       "missing secret",
			body:       `{"identifier":"school-1"}`,
			session:    &mockSession{},
			wantStatus: http.StatusUnprocessableEntity,
			wantError:  "identifier and secret are required",
		},
		{
			name: "rejected credentials",
			body: `{"identifier":"school-1","secret":"wrong"}`,
			session: &mockSession{
				authErr: fmt.Errorf("%w: bad login", model.ErrAuthentication),
				authMsg: "invalid username or password",
			},
			wantStatus: http.StatusUnauthorized,
			wantError:  "invalid username or password",
		},
		{
			name: "remote unreachable",
			body: `{"identifier":"school-1","secret":"pw"}`,
			session: &mockSession{
				authErr: fmt.Errorf("%w: connection refused", model.ErrNetwork),
				authMsg: "network error - check your internet connection",
			},
			wantStatus: http.StatusServiceUnavailable,
			wantError:  "network error - check your internet connection",
		},
		{
			name: "remote timeout",
			body: `{"identifier":"school-1","secret":"pw"}`,
			session: &mockSession{
				authErr: fmt.Errorf("%w: %w", model.ErrNetwork, context.DeadlineExceeded),
				authMsg: "network error - check your internet connection",
			},
			wantStatus: http.StatusGatewayTimeout,
			wantError:  "network error - check your internet connection",
		},
		{
			name: "remote service error",
			body: `{"identifier":"school-1","secret":"pw"}`,
			session: &mockSession{
				authErr: &model.RemoteServiceError{Code: 3, Message: "maintenance"},
				authMsg: "maintenance",
			},
			wantStatus: http.StatusBadGateway,
			wantError:  "maintenance",
		},
		{
			name:       "already running",
			body:       `{"identifier":"school-1","secret":"pw"}`,
			session:    &mockSession{authErr: model.ErrRefreshInProgress, authMsg: "stale"},
			wantStatus: http.StatusConflict,
			wantError:  "a refresh is already running",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := setupMux(tt.session, &mockRefresher{})

			rec := serve(mux, http.MethodPost, "/api/v1/session", tt.body)

			assert.Equal(t, tt.wantStatus, rec.Code)
			var resp map[string]any
			decodeJSON(t, rec, &resp)

			if tt.wantError != "" {
				assert.Equal(t, tt.wantError, resp["error"])
				return
			}
			assert.Equal(t, true, resp["is_authenticated"])
			assert.Equal(t, "school-1", resp["identifier"])
			assert.Equal(t, []string{"school-1:pw"}, tt.session.authCalls)
		})
	}
}

func TestLogout(t *testing.T) {
	session := authenticatedSession()
	mux := setupMux(session, &mockRefresher{})

	rec := serve(mux, http.MethodDelete, "/api/v1/session", "")

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())
	assert.False(t, session.state.IsAuthenticated)
}

func TestLogout_PartialFailure(t *testing.T) {
	session := authenticatedSession()
	session.logoutFn = func() error { return fmt.Errorf("delete credentials: disk full") }
	mux := setupMux(session, &mockRefresher{})

	rec := serve(mux, http.MethodDelete, "/api/v1/session", "")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var resp map[string]any
	decodeJSON(t, rec, &resp)
	assert.Equal(t, "internal server error", resp["error"])
}

func TestRefresh(t *testing.T) {
	tests := []struct {
		name       string
		target     string
		refresher  *mockRefresher
		wantForce  bool
		wantStatus int
	}{
		{
			name:       "cached",
			target:     "/api/v1/refresh",
			refresher:  &mockRefresher{},
			wantStatus: http.StatusOK,
		},
		{
			name:       "forced",
			target:     "/api/v1/refresh?force=true",
			refresher:  &mockRefresher{},
			wantForce:  true,
			wantStatus: http.StatusOK,
		},
		{
			name:       "not authenticated",
			target:     "/api/v1/refresh",
			refresher:  &mockRefresher{err: model.ErrNotAuthenticated},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "incompatible plan",
			target:     "/api/v1/refresh",
			refresher:  &mockRefresher{err: fmt.Errorf("%w: no table", model.ErrIncompatiblePlan)},
			wantStatus: http.StatusBadGateway,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := setupMux(authenticatedSession(), tt.refresher)

			rec := serve(mux, http.MethodPost, tt.target, "")

			assert.Equal(t, tt.wantStatus, rec.Code)
			require.Len(t, tt.refresher.forced, 1)
			assert.Equal(t, tt.wantForce, tt.refresher.forced[0])
		})
	}
}

func TestListPlans(t *testing.T) {
	mux := setupMux(authenticatedSession(), &mockRefresher{})

	rec := serve(mux, http.MethodGet, "/api/v1/plans", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Dates []string `json:"dates"`
	}
	decodeJSON(t, rec, &resp)
	assert.Equal(t, []string{"2025-07-15"}, resp.Dates)
}

func TestListPlans_NotAuthenticated(t *testing.T) {
	mux := setupMux(&mockSession{planErr: model.ErrNotAuthenticated}, &mockRefresher{})

	rec := serve(mux, http.MethodGet, "/api/v1/plans", "")

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	var resp map[string]any
	decodeJSON(t, rec, &resp)
	assert.Equal(t, "not authenticated", resp["error"])
}

func TestLatestPlans(t *testing.T) {
	session := authenticatedSession()
	mux := setupMux(session, &mockRefresher{})

	rec := serve(mux, http.MethodGet, "/api/v1/plans/latest", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	session.latest = &model.CachedEntry{Timetables: []model.Timetable{samplePlan()}, CapturedAt: testTime}
	rec = serve(mux, http.MethodGet, "/api/v1/plans/latest", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		CapturedAt string `json:"captured_at"`
		Timetables []struct {
			Date    string `json:"date"`
			Lessons []any  `json:"lessons"`
		} `json:"timetables"`
	}
	decodeJSON(t, rec, &resp)
	assert.Equal(t, "2025-07-15T11:37:00Z", resp.CapturedAt)
	require.Len(t, resp.Timetables, 1)
	assert.Equal(t, "2025-07-15", resp.Timetables[0].Date)
	assert.Len(t, resp.Timetables[0].Lessons, 3)
}

func TestGetPlan(t *testing.T) {
	tests := []struct {
		name       string
		target     string
		wantStatus int
		wantError  string
	}{
		{name: "by date", target: "/api/v1/plans/2025-07-15", wantStatus: http.StatusOK},
		{name: "today alias", target: "/api/v1/plans/today", wantStatus: http.StatusOK},
		{name: "missing", target: "/api/v1/plans/2025-07-16", wantStatus: http.StatusNotFound, wantError: "no plan stored for this date"},
		{name: "invalid date", target: "/api/v1/plans/15.07.2025", wantStatus: http.StatusBadRequest, wantError: "invalid date, expected YYYY-MM-DD or today"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := setupMux(authenticatedSession(), &mockRefresher{})

			rec := serve(mux, http.MethodGet, tt.target, "")

			assert.Equal(t, tt.wantStatus, rec.Code)
			var resp map[string]any
			decodeJSON(t, rec, &resp)
			if tt.wantError != "" {
				assert.Equal(t, tt.wantError, resp["error"])
				return
			}

			assert.Equal(t, "2025-07-15", resp["date"])
			assert.Equal(t, "2025-07-15T11:37:00Z", resp["published_at"])
			assert.Equal(t, []any{"10A", "10B"}, resp["classes"])

			lessons, ok := resp["lessons"].([]any)
			require.True(t, ok)
			require.Len(t, lessons, 3)
			first := lessons[0].(map[string]any)
			assert.Equal(t, "3 - 4", first["period"])
			assert.Equal(t, float64(3), first["period_start"])
			assert.Equal(t, float64(4), first["period_end"])
			assert.Equal(t, "Mathe", first["subject"])
		})
	}
}

func TestGetPlan_EmptyPlanHasEmptyArrays(t *testing.T) {
	session := authenticatedSession()
	session.plans["2025-07-16"] = model.Timetable{Date: "2025-07-16"}
	mux := setupMux(session, &mockRefresher{})

	rec := serve(mux, http.MethodGet, "/api/v1/plans/2025-07-16", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"classes":[]`)
	assert.Contains(t, rec.Body.String(), `"lessons":[]`)
	assert.Contains(t, rec.Body.String(), `"published_at":null`)
}

func TestGetSchedule(t *testing.T) {
	tests := []struct {
		name     string
		target   string
		wantLen  int
		wantDate string
	}{
		{name: "all classes", target: "/api/v1/schedule/2025-07-15", wantLen: 3, wantDate: "2025-07-15"},
		{name: "one class", target: "/api/v1/schedule/2025-07-15?class=10A", wantLen: 2, wantDate: "2025-07-15"},
		{name: "unknown class", target: "/api/v1/schedule/2025-07-15?class=5C", wantLen: 0, wantDate: "2025-07-15"},
		{name: "today", target: "/api/v1/schedule/today?class=10B", wantLen: 1, wantDate: "2025-07-15"},
		{name: "no plan stored", target: "/api/v1/schedule/2025-07-20", wantLen: 0, wantDate: "2025-07-20"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := setupMux(authenticatedSession(), &mockRefresher{})

			rec := serve(mux, http.MethodGet, tt.target, "")

			assert.Equal(t, http.StatusOK, rec.Code)
			var resp struct {
				Date    string `json:"date"`
				Lessons []any  `json:"lessons"`
			}
			decodeJSON(t, rec, &resp)
			assert.Equal(t, tt.wantDate, resp.Date)
			assert.NotNil(t, resp.Lessons)
			assert.Len(t, resp.Lessons, tt.wantLen)
		})
	}
}

func TestExportCalendar(t *testing.T) {
	mux := setupMux(authenticatedSession(), &mockRefresher{})

	rec := serve(mux, http.MethodGet, "/api/v1/plans/2025-07-15/calendar.ics?class=10A", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/calendar; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "plan-2025-07-15.ics")

	body := rec.Body.String()
	assert.True(t, strings.HasPrefix(body, "BEGIN:VCALENDAR"))
	assert.Equal(t, 2, strings.Count(body, "BEGIN:VEVENT"))
	assert.Contains(t, body, "SUMMARY:10A: Mathe")
}

func TestExportCalendar_NotAuthenticated(t *testing.T) {
	mux := setupMux(&mockSession{planErr: model.ErrNotAuthenticated}, &mockRefresher{})

	rec := serve(mux, http.MethodGet, "/api/v1/plans/2025-07-15/calendar.ics", "")

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUnexpectedErrorIsInternal(t *testing.T) {
	mux := setupMux(&mockSession{planErr: fmt.Errorf("sql: database is closed")}, &mockRefresher{})

	rec := serve(mux, http.MethodGet, "/api/v1/plans", "")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var resp map[string]any
	decodeJSON(t, rec, &resp)
	assert.Equal(t, "internal server error", resp["error"])
}

func TestMethodNotAllowed(t *testing.T) {
	mux := setupMux(authenticatedSession(), &mockRefresher{})

	rec := serve(mux, http.MethodPut, "/api/v1/session", "")

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
