package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ericfisherdev/dsbpanel/internal/domain/model"
	"github.com/ericfisherdev/dsbpanel/internal/domain/port/driven"
)

// DefaultCacheTTL is how long a discovery result short-circuits Refresh.
const DefaultCacheTTL = 30 * time.Minute

// User-facing messages published through SessionState.Error.
const (
	msgInvalidLogin      = "invalid username or password"
	msgLoginExpired      = "authentication expired - please login again"
	msgNetwork           = "network error - check your internet connection"
	msgIncompatible      = "timetable format not supported"
	msgAuthFailed        = "authentication failed"
	msgFetchFailed       = "failed to fetch timetable"
	msgNotAuthenticated  = "not authenticated"
	msgStoredPlansFailed = "failed to read stored timetable"
)

// SourceFactory builds the remote source for one login.
type SourceFactory func(creds model.Credentials) driven.TimetableSource

// SessionDeps groups the collaborators of a SessionService.
type SessionDeps struct {
	NewSource   SourceFactory
	Parser      driven.PlanParser
	Plans       driven.PlanStore
	Credentials driven.CredentialStore
	Cache       driven.SessionCache
	Provider    *ClientProvider

	// CacheTTL defaults to DefaultCacheTTL.
	CacheTTL time.Duration
	// DiscoveryTimeout bounds one login or refresh pass. Zero means the
	// caller's context is the only limit.
	DiscoveryTimeout time.Duration
	// Location decides what "today" is. Defaults to time.Local.
	Location *time.Location
	// Now defaults to time.Now.
	Now func() time.Time
}

// SessionService drives the login state machine and serves schedules from
// the local plan store. Authenticate and Refresh share one in-flight flag;
// an overlapping call fails fast with model.ErrRefreshInProgress. Logout
// cancels a running pass and waits for it before clearing anything.
type SessionService struct {
	newSource SourceFactory
	parser    driven.PlanParser
	plans     driven.PlanStore
	creds     driven.CredentialStore
	cache     driven.SessionCache
	provider  *ClientProvider
	ttl       time.Duration
	location  *time.Location
	now       func() time.Time
	timeout   time.Duration

	inFlight atomic.Bool
	// opMu is held for the whole of a discovery pass and of Logout.
	opMu sync.Mutex

	mu       sync.RWMutex
	state    model.SessionState
	cancelOp context.CancelFunc
}

// NewSessionService creates an unauthenticated SessionService.
func NewSessionService(deps SessionDeps) *SessionService {
	s := &SessionService{
		newSource: deps.NewSource,
		parser:    deps.Parser,
		plans:     deps.Plans,
		creds:     deps.Credentials,
		cache:     deps.Cache,
		provider:  deps.Provider,
		ttl:       deps.CacheTTL,
		location:  deps.Location,
		now:       deps.Now,
		timeout:   deps.DiscoveryTimeout,
	}
	if s.provider == nil {
		s.provider = NewClientProvider()
	}
	if s.ttl <= 0 {
		s.ttl = DefaultCacheTTL
	}
	if s.location == nil {
		s.location = time.Local
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// State returns a snapshot of the observable session state.
func (s *SessionService) State() model.SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state := s.state
	if state.LastUpdated != nil {
		t := *state.LastUpdated
		state.LastUpdated = &t
	}
	return state
}

// Identifier returns the identifier of the active login, if any.
func (s *SessionService) Identifier() string {
	return s.provider.Identifier()
}

// Authenticate verifies the login by running a full discovery pass. On
// success the credentials are persisted for Restore and the discovery result
// is cached. A nil error means the session is authenticated.
func (s *SessionService) Authenticate(ctx context.Context, identifier, secret string) error {
	creds := model.Credentials{Identifier: strings.TrimSpace(identifier), Secret: secret}
	if !creds.Valid() {
		return model.ErrInvalidCredentials
	}

	if !s.inFlight.CompareAndSwap(false, true) {
		return model.ErrRefreshInProgress
	}
	defer s.inFlight.Store(false)

	ctx, done := s.beginOp(ctx)
	defer done()

	s.beginLoading()

	client := NewTimetableClient(s.newSource(creds), s.parser, s.plans)
	result, err := client.AuthenticateAndDiscoverAllPlans(ctx)
	if err != nil {
		// A failed re-login leaves the previous session, its stored
		// credentials and its plans in place.
		previous := s.provider.HasClient()
		s.update(func(st *model.SessionState) {
			st.IsLoading = false
			st.IsAuthenticated = previous
			st.Error = loginMessage(err)
		})
		slog.Warn("login failed", "identifier", creds.Identifier, "kept_session", previous, "error", err)
		return err
	}

	if err := s.creds.Save(ctx, creds); err != nil {
		// The session stays usable; only the cold-start restore is lost.
		slog.Warn("credentials not persisted", "identifier", creds.Identifier, "error", err)
	}

	s.provider.Replace(client, creds.Identifier)
	s.finishDiscovery(ctx, result)

	slog.Info("logged in", "identifier", creds.Identifier, "plans", len(result.Saved))
	return nil
}

// Restore re-enters the authenticated state from stored credentials without
// any network I/O. It is a no-op when nothing is stored.
func (s *SessionService) Restore(ctx context.Context) error {
	creds, err := s.creds.Load(ctx)
	if err != nil {
		return fmt.Errorf("load stored credentials: %w", err)
	}
	if creds == nil || !creds.Valid() {
		return nil
	}

	client := NewTimetableClient(s.newSource(*creds), s.parser, s.plans)
	s.provider.Replace(client, creds.Identifier)

	var lastUpdated *time.Time
	if entry := s.freshEntry(ctx); entry != nil {
		t := entry.CapturedAt
		lastUpdated = &t
	}

	s.update(func(st *model.SessionState) {
		st.IsAuthenticated = true
		st.Error = ""
		st.LastUpdated = lastUpdated
	})

	slog.Info("session restored", "identifier", creds.Identifier)
	return nil
}

// Refresh re-runs discovery unless the cached result is still fresh.
func (s *SessionService) Refresh(ctx context.Context) error {
	return s.refresh(ctx, false)
}

// ForceRefresh re-runs discovery regardless of the cache.
func (s *SessionService) ForceRefresh(ctx context.Context) error {
	return s.refresh(ctx, true)
}

// RefreshNow runs Refresh, or ForceRefresh when force is set.
func (s *SessionService) RefreshNow(ctx context.Context, force bool) error {
	return s.refresh(ctx, force)
}

func (s *SessionService) refresh(ctx context.Context, force bool) error {
	client := s.provider.Get()
	if client == nil {
		s.update(func(st *model.SessionState) { st.Error = msgNotAuthenticated })
		return model.ErrNotAuthenticated
	}

	if !s.inFlight.CompareAndSwap(false, true) {
		return model.ErrRefreshInProgress
	}
	defer s.inFlight.Store(false)

	ctx, done := s.beginOp(ctx)
	defer done()

	// A Logout that ran before the lock was taken dropped this client.
	if s.provider.Get() != client {
		return model.ErrNotAuthenticated
	}

	if !force {
		if entry := s.freshEntry(ctx); entry != nil {
			slog.Debug("refresh skipped, cache fresh", "captured_at", entry.CapturedAt)
			captured := entry.CapturedAt
			s.update(func(st *model.SessionState) { st.LastUpdated = &captured })
			return nil
		}
	}

	s.beginLoading()

	result, err := client.AuthenticateAndDiscoverAllPlans(ctx)
	if err != nil {
		s.failRefresh(ctx, err)
		return err
	}

	s.finishDiscovery(ctx, result)
	return nil
}

// failRefresh publishes a refresh error. A rejected login drops the client
// and the stored credentials so the user has to log in again.
func (s *SessionService) failRefresh(ctx context.Context, err error) {
	if errors.Is(err, model.ErrAuthentication) {
		identifier := s.provider.Identifier()
		s.provider.Clear()
		if delErr := s.creds.Delete(ctx); delErr != nil {
			slog.Error("delete rejected credentials failed", "error", delErr)
		}
		if clrErr := s.cache.Clear(ctx); clrErr != nil {
			slog.Warn("clear session cache failed", "error", clrErr)
		}
		slog.Warn("login expired", "identifier", identifier)
	} else {
		slog.Error("refresh failed", "error", err)
	}

	s.update(func(st *model.SessionState) {
		st.IsLoading = false
		st.Error = refreshMessage(err)
		if errors.Is(err, model.ErrAuthentication) {
			st.IsAuthenticated = false
		}
	})
}

// finishDiscovery caches a successful pass and marks the session fresh.
func (s *SessionService) finishDiscovery(ctx context.Context, result DiscoveryResult) {
	captured := s.now()

	entry := model.CachedEntry{Timetables: result.Saved, CapturedAt: captured}
	if err := s.cache.Put(ctx, entry); err != nil {
		slog.Warn("session cache write failed", "error", err)
	}

	s.update(func(st *model.SessionState) {
		st.IsLoading = false
		st.IsAuthenticated = true
		st.Error = ""
		st.LastUpdated = &captured
	})
}

// beginOp takes the operation lock and derives the context of one discovery
// pass. Logout cancels that context. The returned func releases both.
func (s *SessionService) beginOp(ctx context.Context) (context.Context, func()) {
	s.opMu.Lock()

	var cancel context.CancelFunc
	if s.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}

	s.mu.Lock()
	s.cancelOp = cancel
	s.mu.Unlock()

	return ctx, func() {
		s.mu.Lock()
		s.cancelOp = nil
		s.mu.Unlock()
		cancel()
		s.opMu.Unlock()
	}
}

// Logout clears the stored credentials, the session cache and every stored
// plan, and returns to the unauthenticated state. A running login or refresh
// is canceled first; Logout returns once it has unwound.
func (s *SessionService) Logout(ctx context.Context) error {
	s.mu.RLock()
	cancel := s.cancelOp
	s.mu.RUnlock()
	if cancel != nil {
		cancel()
	}

	s.opMu.Lock()
	defer s.opMu.Unlock()

	identifier := s.provider.Identifier()
	s.provider.Clear()

	var errs []error
	if err := s.creds.Delete(ctx); err != nil {
		errs = append(errs, fmt.Errorf("delete credentials: %w", err))
	}
	if err := s.cache.Clear(ctx); err != nil {
		errs = append(errs, fmt.Errorf("clear session cache: %w", err))
	}
	if err := s.plans.DeleteAll(ctx); err != nil {
		errs = append(errs, fmt.Errorf("delete plans: %w", err))
	}

	s.update(func(st *model.SessionState) {
		*st = model.SessionState{}
	})

	slog.Info("logged out", "identifier", identifier)
	return errors.Join(errs...)
}

// ScheduleForDate returns the stored lessons for date in document order.
// A date without a stored plan yields an empty list, not an error.
func (s *SessionService) ScheduleForDate(ctx context.Context, date string) ([]model.Lesson, error) {
	timetable, err := s.Timetable(ctx, date)
	if errors.Is(err, model.ErrPlanNotFound) {
		return []model.Lesson{}, nil
	}
	if err != nil {
		return nil, err
	}
	return timetable.ForClass(""), nil
}

// ScheduleForClass is ScheduleForDate restricted to one class.
func (s *SessionService) ScheduleForClass(ctx context.Context, date, class string) ([]model.Lesson, error) {
	lessons, err := s.ScheduleForDate(ctx, date)
	if err != nil {
		return nil, err
	}
	return model.Timetable{Lessons: lessons}.ForClass(class), nil
}

// TodaysSchedule returns the stored lessons for the current day.
func (s *SessionService) TodaysSchedule(ctx context.Context) ([]model.Lesson, error) {
	return s.ScheduleForDate(ctx, s.Today())
}

// Today returns the current date in the configured location.
func (s *SessionService) Today() string {
	return model.FormatDate(s.now().In(s.location))
}

// Timetable returns the full stored plan for date. It never performs network
// I/O; model.ErrPlanNotFound is returned when no plan is stored.
func (s *SessionService) Timetable(ctx context.Context, date string) (model.Timetable, error) {
	client := s.provider.Get()
	if client == nil {
		return model.Timetable{}, model.ErrNotAuthenticated
	}

	timetable, err := client.GetTimetable(ctx, date)
	if err != nil && !errors.Is(err, model.ErrPlanNotFound) && !errors.Is(err, model.ErrInvalidDate) {
		s.update(func(st *model.SessionState) { st.Error = msgStoredPlansFailed })
		slog.Error("read stored plan failed", "date", date, "error", err)
	}
	return timetable, err
}

// PlanDates lists the dates with a stored plan.
func (s *SessionService) PlanDates(ctx context.Context) ([]string, error) {
	if !s.provider.HasClient() {
		return nil, model.ErrNotAuthenticated
	}

	dates, err := s.plans.Dates(ctx)
	if err != nil {
		return nil, fmt.Errorf("list plan dates: %w", err)
	}
	if dates == nil {
		dates = []string{}
	}
	return dates, nil
}

// LatestPlans returns the result of the last discovery pass if it is still
// within the cache TTL, or nil.
func (s *SessionService) LatestPlans(ctx context.Context) (*model.CachedEntry, error) {
	if !s.provider.HasClient() {
		return nil, model.ErrNotAuthenticated
	}
	return s.freshEntry(ctx), nil
}

// freshEntry returns the cached entry when it is younger than the TTL.
// Cache read failures are logged and treated as a miss.
func (s *SessionService) freshEntry(ctx context.Context) *model.CachedEntry {
	entry, err := s.cache.Get(ctx)
	if err != nil {
		slog.Warn("session cache read failed", "error", err)
		return nil
	}
	if entry == nil || !entry.Fresh(s.now(), s.ttl) {
		return nil
	}
	return entry
}

func (s *SessionService) beginLoading() {
	s.update(func(st *model.SessionState) {
		st.IsLoading = true
		st.Error = ""
	})
}

func (s *SessionService) update(fn func(*model.SessionState)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.state)
}

// loginMessage maps a failed login to the text shown to the user.
func loginMessage(err error) string {
	var remote *model.RemoteServiceError
	switch {
	case errors.Is(err, model.ErrAuthentication):
		return msgInvalidLogin
	case errors.Is(err, model.ErrNetwork), errors.Is(err, context.DeadlineExceeded):
		return msgNetwork
	case errors.Is(err, model.ErrIncompatiblePlan):
		return msgIncompatible
	case errors.As(err, &remote) && remote.Message != "":
		return remote.Message
	default:
		return msgAuthFailed
	}
}

// refreshMessage maps a failed refresh to the text shown to the user.
func refreshMessage(err error) string {
	var remote *model.RemoteServiceError
	switch {
	case errors.Is(err, model.ErrAuthentication):
		return msgLoginExpired
	case errors.Is(err, model.ErrNetwork), errors.Is(err, context.DeadlineExceeded):
		return msgNetwork
	case errors.Is(err, model.ErrIncompatiblePlan):
		return msgIncompatible
	case errors.As(err, &remote) && remote.Message != "":
		return remote.Message
	default:
		return msgFetchFailed
	}
}
