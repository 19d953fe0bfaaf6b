// Package dsbtest provides an in-process fake of the remote timetable service
// for tests that exercise the full login and discovery path.
package dsbtest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/ericfisherdev/dsbpanel/internal/adapter/driven/dsb"
)

// RejectedLogin is the status text returned for unknown credentials.
const RejectedLogin = "Benutzername oder Passwort falsch"

// Page is one plan document listed in the content menu.
type Page struct {
	Title     string
	Published string
	// Name is the document path below /plans/.
	Name string
	HTML string
}

// Server is a running fake service accepting a single account.
type Server struct {
	*httptest.Server

	identifier string
	secret     string

	mu    sync.RWMutex
	pages []Page

	logins    atomic.Int32
	documents atomic.Int32
}

// NewServer starts a fake service that lists pages for identifier/secret and
// rejects every other login. It is closed when the test ends.
func NewServer(t testing.TB, identifier, secret string, pages ...Page) *Server {
	t.Helper()

	s := &Server{identifier: identifier, secret: secret, pages: pages}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /JsonHandler.ashx/GetData", s.serveData)
	mux.HandleFunc("GET /plans/{name}", s.serveDocument)

	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

// SetPages replaces the listed documents.
func (s *Server) SetPages(pages ...Page) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages = pages
}

// Logins returns how many data requests were received.
func (s *Server) Logins() int {
	return int(s.logins.Load())
}

// Documents returns how many plan documents were served.
func (s *Server) Documents() int {
	return int(s.documents.Load())
}

func (s *Server) serveData(w http.ResponseWriter, r *http.Request) {
	s.logins.Add(1)

	var env struct {
		Req struct {
			Data string `json:"Data"`
		} `json:"req"`
	}
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	inner, err := dsb.Decode(env.Req.Data)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var req struct {
		UserID string `json:"UserId"`
		UserPw string `json:"UserPw"`
	}
	if err := json.Unmarshal([]byte(inner), &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	result := map[string]any{"Resultcode": 1, "ResultStatusInfo": RejectedLogin}
	if req.UserID == s.identifier && req.UserPw == s.secret {
		result = s.menu()
	}

	raw, err := json.Marshal(result)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	encoded, err := dsb.Encode(string(raw))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_ = json.NewEncoder(w).Encode(map[string]string{"d": encoded})
}

func (s *Server) menu() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]any, 0, len(s.pages))
	for _, p := range s.pages {
		entries = append(entries, map[string]any{
			"Title": p.Title,
			"Date":  p.Published,
			"Childs": []any{map[string]any{
				"Title":   p.Title,
				"Detail":  s.URL + "/plans/" + p.Name,
				"ConType": 6,
			}},
		})
	}

	return map[string]any{
		"Resultcode":       0,
		"ResultStatusInfo": "",
		"ResultMenuItems": []any{map[string]any{
			"Title": "Inhalte",
			"Childs": []any{map[string]any{
				"Title": "Pläne",
				"Root":  map[string]any{"Title": "Pläne", "Childs": entries},
			}},
		}},
	}
}

func (s *Server) serveDocument(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.pages {
		if p.Name == name {
			s.documents.Add(1)
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			_, _ = w.Write([]byte(p.HTML))
			return
		}
	}
	http.NotFound(w, r)
}
