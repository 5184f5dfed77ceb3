// Package api provides the HTTP API for observing dynasties.
// GET endpoints read the views the runner publishes after each turn. The
// one POST endpoint queues actions for a dynasty's next turn and never
// touches its state directly.
package api

import (
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/talgya/dynasty/internal/engine"
	"github.com/talgya/dynasty/internal/family"
	"github.com/talgya/dynasty/internal/llm"
	"github.com/talgya/dynasty/internal/persistence"
)

const (
	defaultEventLimit = 100
	maxEventLimit     = 1000
	maxDeeds          = 12
	maxActionBytes    = 64 << 10
)

// Server serves published dynasty views over HTTP.
type Server struct {
	Registry *engine.Registry
	LLM      *llm.Client     // Optional; biographies are disabled without it
	DB       *persistence.DB // Optional; the chronicle is empty without it
	Port     int
	AdminKey string // Bearer token for POST endpoints. Empty = POST disabled.

	// Cached biographies, keyed by dynasty and person.
	bioMu    sync.Mutex
	bioCache map[bioKey]cachedBio
}

type bioKey struct {
	dynasty uuid.UUID
	person  family.PersonID
}

type cachedBio struct {
	Name        string `json:"name"`
	Biography   string `json:"biography"`
	GeneratedAt int    `json:"generated_at"` // In-world year
}

// Handler returns the API routes wrapped in CORS handling.
func (s *Server) Handler() http.Handler {
	storyLimiter := NewRateLimiter(10, time.Hour)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/dynasties", s.handleDynasties)
	mux.HandleFunc("GET /api/v1/dynasty/{id}", s.withView(s.handleStatus))
	mux.HandleFunc("GET /api/v1/dynasty/{id}/members", s.withView(s.handleMembers))
	mux.HandleFunc("GET /api/v1/dynasty/{id}/titles", s.withView(s.handleTitles))
	mux.HandleFunc("GET /api/v1/dynasty/{id}/events", s.withView(s.handleEvents))
	mux.HandleFunc("GET /api/v1/dynasty/{id}/chronicle", s.withView(s.handleChronicle))
	mux.HandleFunc("GET /api/v1/dynasty/{id}/person/{pid}", s.withPerson(s.handlePerson))
	mux.HandleFunc("GET /api/v1/dynasty/{id}/person/{pid}/ancestors", s.withPerson(s.handleAncestors))
	mux.HandleFunc("GET /api/v1/dynasty/{id}/person/{pid}/descendants", s.withPerson(s.handleDescendants))
	mux.HandleFunc("GET /api/v1/dynasty/{id}/person/{pid}/story",
		RateLimitMiddleware(storyLimiter, s.withPerson(s.handleStory)))
	mux.HandleFunc("POST /api/v1/dynasty/{id}/actions", s.adminOnly(s.withView(s.handleSubmitAction)))
	return corsMiddleware(mux)
}

// Start begins serving the HTTP API in a goroutine.
func (s *Server) Start() {
	addr := fmt.Sprintf(":%d", s.Port)
	slog.Info("HTTP API starting", "addr", addr, "admin_auth", s.AdminKey != "",
		"biographies", s.LLM.Enabled(), "chronicle", s.DB != nil)

	go func() {
		if err := http.ListenAndServe(addr, s.Handler()); err != nil {
			slog.Error("HTTP server error", "error", err)
		}
	}()
}

// corsMiddleware adds CORS headers for allowed frontend origins.
// Set CORS_ORIGINS env var to a comma-separated list of allowed origins.
// Localhost dev servers are always allowed.
func corsMiddleware(next http.Handler) http.Handler {
	allowedOrigins := map[string]bool{
		"http://localhost:5173": true,
		"http://localhost:4173": true,
		"http://localhost:3000": true,
	}
	if env := os.Getenv("CORS_ORIGINS"); env != "" {
		for _, origin := range strings.Split(env, ",") {
			origin = strings.TrimSpace(origin)
			if origin != "" {
				allowedOrigins[origin] = true
			}
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) checkBearerToken(r *http.Request) bool {
	auth := r.Header.Get("Authorization")
	return strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.AdminKey
}

// adminOnly wraps a handler to require bearer token auth.
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.AdminKey == "" {
			http.Error(w, "admin endpoints disabled (no DYNASTY_ADMIN_KEY set)", http.StatusForbidden)
			return
		}
		if !s.checkBearerToken(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

type viewHandler func(w http.ResponseWriter, r *http.Request, v *engine.View)

type personHandler func(w http.ResponseWriter, r *http.Request, v *engine.View, p *family.Person)

// withView resolves {id} to a published view.
func (s *Server) withView(next viewHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(r.PathValue("id"))
		if err != nil {
			http.Error(w, "invalid dynasty id", http.StatusBadRequest)
			return
		}
		v, ok := s.Registry.Get(id)
		if !ok {
			http.Error(w, "dynasty not found", http.StatusNotFound)
			return
		}
		next(w, r, v)
	}
}

// withPerson resolves {id} and {pid} to a person of a published view.
func (s *Server) withPerson(next personHandler) http.HandlerFunc {
	return s.withView(func(w http.ResponseWriter, r *http.Request, v *engine.View) {
		pid, err := strconv.ParseUint(r.PathValue("pid"), 10, 64)
		if err != nil {
			http.Error(w, "invalid person id", http.StatusBadRequest)
			return
		}
		p, ok := v.Tree.Person(family.PersonID(pid))
		if !ok {
			http.Error(w, "person not found", http.StatusNotFound)
			return
		}
		next(w, r, v, p)
	})
}

func (s *Server) handleDynasties(w http.ResponseWriter, r *http.Request) {
	views := s.Registry.List()
	out := make([]engine.Status, 0, len(views))
	for _, v := range views {
		out = append(out, v.Status())
	}
	writeJSON(w, out)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request, v *engine.View) {
	writeJSON(w, v.Status())
}

// member is a person as the API presents them.
type member struct {
	family.PersonRecord
	Name  string `json:"name"`
	Age   int    `json:"age"`
	Blood bool   `json:"blood"`
}

func newMember(v *engine.View, p *family.Person) member {
	return member{
		PersonRecord: p.Record(),
		Name:         p.Name(),
		Age:          p.Age(v.Year),
		Blood:        v.Tree.IsBlood(p.ID),
	}
}

func (s *Server) handleMembers(w http.ResponseWriter, r *http.Request, v *engine.View) {
	people := v.Tree.All()
	if r.URL.Query().Get("living") == "true" {
		people = v.Tree.Living()
	}
	out := make([]member, 0, len(people))
	for _, p := range people {
		out = append(out, newMember(v, p))
	}
	writeJSON(w, out)
}

func (s *Server) handleTitles(w http.ResponseWriter, r *http.Request, v *engine.View) {
	writeJSON(w, v.Titles())
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request, v *engine.View) {
	q := r.URL.Query()
	var since uint64
	if raw := q.Get("since"); raw != "" {
		n, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			http.Error(w, "invalid since", http.StatusBadRequest)
			return
		}
		since = n
	}
	limit := defaultEventLimit
	if l := q.Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 && n <= maxEventLimit {
			limit = n
		}
	}

	events := v.Events(since)
	if cat := q.Get("category"); cat != "" {
		events = slices.DeleteFunc(events, func(e engine.TurnEvent) bool {
			return string(e.Category) != cat
		})
	}
	if len(events) > limit {
		events = events[:limit]
	}
	if events == nil {
		events = []engine.TurnEvent{}
	}
	writeJSON(w, events)
}

func (s *Server) handleChronicle(w http.ResponseWriter, r *http.Request, v *engine.View) {
	entries := []persistence.ChronicleEntry{}
	if s.DB != nil {
		limit := 20
		if l := r.URL.Query().Get("limit"); l != "" {
			if n, err := strconv.Atoi(l); err == nil && n > 0 && n <= 200 {
				limit = n
			}
		}
		stored, err := s.DB.Chronicle(v.ID, limit)
		if err != nil {
			slog.Error("chronicle query failed", "house", v.House, "error", err)
			http.Error(w, "chronicle unavailable", http.StatusInternalServerError)
			return
		}
		entries = append(entries, stored...)
	}
	writeJSON(w, entries)
}

func (s *Server) handlePerson(w http.ResponseWriter, r *http.Request, v *engine.View, p *family.Person) {
	writeJSON(w, newMember(v, p))
}

// kin is a relative with their generational distance.
type kin struct {
	member
	Generation int `json:"generation"`
}

func (s *Server) handleAncestors(w http.ResponseWriter, r *http.Request, v *engine.View, p *family.Person) {
	depth, _ := strconv.Atoi(r.URL.Query().Get("depth"))
	var out []kin
	for id, gen := range v.Tree.Ancestors(p.ID, depth) {
		a, _ := v.Tree.Person(id)
		out = append(out, kin{member: newMember(v, a), Generation: gen})
	}
	slices.SortFunc(out, func(a, b kin) int {
		return cmp.Or(cmp.Compare(a.Generation, b.Generation), cmp.Compare(a.ID, b.ID))
	})
	if out == nil {
		out = []kin{}
	}
	writeJSON(w, out)
}

func (s *Server) handleDescendants(w http.ResponseWriter, r *http.Request, v *engine.View, p *family.Person) {
	living := r.URL.Query().Get("living") == "true"
	out := []kin{}
	for d, gen := range v.Tree.Descendants(p.ID) {
		if living && !d.Alive() {
			continue
		}
		out = append(out, kin{member: newMember(v, d), Generation: gen})
	}
	writeJSON(w, out)
}

func (s *Server) handleStory(w http.ResponseWriter, r *http.Request, v *engine.View, p *family.Person) {
	key := bioKey{dynasty: v.ID, person: p.ID}

	s.bioMu.Lock()
	if s.bioCache == nil {
		s.bioCache = make(map[bioKey]cachedBio)
	}
	cached, hasCached := s.bioCache[key]
	s.bioMu.Unlock()

	// A living person's story is rewritten once the world has moved on.
	if hasCached && (!p.Alive() || cached.GeneratedAt == v.Year) {
		writeJSON(w, cached)
		return
	}
	if !s.LLM.Enabled() {
		http.Error(w, "biographies are disabled", http.StatusServiceUnavailable)
		return
	}

	bio, err := llm.GenerateBiography(r.Context(), s.LLM, biographyContext(v, p))
	if err != nil {
		slog.Error("biography generation failed", "error", err, "person", p.Name())
		http.Error(w, "biography generation failed", http.StatusInternalServerError)
		return
	}

	entry := cachedBio{Name: p.Name(), Biography: bio, GeneratedAt: v.Year}
	s.bioMu.Lock()
	s.bioCache[key] = entry
	s.bioMu.Unlock()

	writeJSON(w, entry)
}

func biographyContext(v *engine.View, p *family.Person) llm.BiographyContext {
	name := func(id family.PersonID) string {
		if q, ok := v.Tree.Person(id); ok {
			return q.Name()
		}
		return ""
	}

	bio := llm.BiographyContext{
		Name:      p.Name(),
		House:     v.House,
		Sex:       p.Sex.String(),
		BirthYear: p.BirthYear,
		DeathYear: p.DeathYear,
		Age:       p.Age(v.Year),
		Traits:    p.Traits.Names(),
		Titles:    p.Titles,
		Skills: fmt.Sprintf("diplomacy %d, stewardship %d, martial %d, intrigue %d",
			p.Skills.Diplomacy, p.Skills.Stewardship, p.Skills.Martial, p.Skills.Intrigue),
	}
	for _, id := range p.Parents() {
		bio.Parents = append(bio.Parents, name(id))
	}
	if p.Spouse != nil {
		bio.Spouse = name(*p.Spouse)
	}
	for _, id := range p.Children {
		bio.Children = append(bio.Children, name(id))
	}
	for _, e := range v.Events(0) {
		if slices.Contains(e.Subjects, p.ID) {
			bio.Deeds = append(bio.Deeds, fmt.Sprintf("%d: %s", e.Year, e.Narrative))
		}
	}
	if len(bio.Deeds) > maxDeeds {
		bio.Deeds = bio.Deeds[len(bio.Deeds)-maxDeeds:]
	}
	return bio
}

// handleSubmitAction queues one action for the dynasty's next turn. The
// action's outcome is reported by the turn's events, not here.
func (s *Server) handleSubmitAction(w http.ResponseWriter, r *http.Request, v *engine.View) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxActionBytes))
	if err != nil {
		http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
		return
	}
	action, err := engine.DecodeAction(body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.Registry.Submit(v.ID, action); err != nil {
		if errors.Is(err, engine.ErrUnknownDynasty) {
			http.Error(w, "dynasty is not running", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	slog.Info("action queued", "house", v.House, "action", action.Kind())

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]any{
		"queued":    action.Kind(),
		"dynasty":   v.ID,
		"next_year": v.Year,
	})
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}
