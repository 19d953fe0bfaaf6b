package application_test

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/ericfisherdev/dsbpanel/internal/domain/model"
)

// --- Mock implementations ---

type mockSource struct {
	mu        sync.Mutex
	refs      []model.PlanRef
	docs      map[string]string
	docErrs   map[string]error
	err       error
	discovers int
	fetches   []string
}

func (m *mockSource) DiscoverPlans(_ context.Context) ([]model.PlanRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.discovers++
	if m.err != nil {
		return nil, m.err
	}
	return append([]model.PlanRef(nil), m.refs...), nil
}

func (m *mockSource) FetchDocument(_ context.Context, ref model.PlanRef) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetches = append(m.fetches, ref.URL)
	if err := m.docErrs[ref.URL]; err != nil {
		return "", err
	}
	return m.docs[ref.URL], nil
}

func (m *mockSource) discoverCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.discovers
}

func (m *mockSource) setErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// mockParser maps a document body to a canned parse result.
type mockParser struct {
	results map[string]model.Timetable
	errs    map[string]error
}

func (m *mockParser) Parse(html string) (model.Timetable, error) {
	if err := m.errs[html]; err != nil {
		return model.Timetable{}, err
	}
	t, ok := m.results[html]
	if !ok {
		return model.Timetable{}, errors.New("unexpected document")
	}
	return t, nil
}

type mockPlanStore struct {
	mu      sync.Mutex
	plans   map[string]model.Timetable
	saves   []string
	saveErr map[string]error
}

func newMockPlanStore() *mockPlanStore {
	return &mockPlanStore{plans: make(map[string]model.Timetable)}
}

func (m *mockPlanStore) Save(_ context.Context, t model.Timetable) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.saveErr[t.Date]; err != nil {
		return err
	}
	m.saves = append(m.saves, t.Date)
	m.plans[t.Date] = t
	return nil
}

func (m *mockPlanStore) Load(_ context.Context, date string) (*model.Timetable, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.plans[date]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (m *mockPlanStore) Dates(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	dates := make([]string, 0, len(m.plans))
	for d := range m.plans {
		dates = append(dates, d)
	}
	sort.Strings(dates)
	return dates, nil
}

func (m *mockPlanStore) DeleteAll(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.plans = make(map[string]model.Timetable)
	return nil
}

type mockCredentialStore struct {
	mu      sync.Mutex
	creds   *model.Credentials
	saveErr error
	deletes int
}

func (m *mockCredentialStore) Save(_ context.Context, creds model.Credentials) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.creds = &creds
	return nil
}

func (m *mockCredentialStore) Load(_ context.Context) (*model.Credentials, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.creds == nil {
		return nil, nil
	}
	c := *m.creds
	return &c, nil
}

func (m *mockCredentialStore) Delete(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletes++
	m.creds = nil
	return nil
}

func (m *mockCredentialStore) stored() *model.Credentials {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.creds
}

type mockSessionCache struct {
	mu    sync.Mutex
	entry *model.CachedEntry
}

func (m *mockSessionCache) Get(_ context.Context) (*model.CachedEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.entry == nil {
		return nil, nil
	}
	e := *m.entry
	return &e, nil
}

func (m *mockSessionCache) Put(_ context.Context, entry model.CachedEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entry = &entry
	return nil
}

func (m *mockSessionCache) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entry = nil
	return nil
}

// --- Fixtures ---

func lesson(class string, period int, subject string) model.Lesson {
	return model.Lesson{Class: class, PeriodStart: period, PeriodEnd: period, Subject: subject}
}

func numbered(lessons ...model.Lesson) []model.Lesson {
	for i := range lessons {
		lessons[i].Ordinal = i + 1
	}
	return lessons
}
