package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/dynasty/internal/engine"
	"github.com/talgya/dynasty/internal/family"
	"github.com/talgya/dynasty/internal/llm"
	"github.com/talgya/dynasty/internal/persistence"
	"github.com/talgya/dynasty/internal/theme"
)

// quiet never lets a chance event happen.
type quiet struct{}

func (quiet) Float64() float64     { return 0.9999 }
func (quiet) Intn(int) int         { return 0 }
func (quiet) NormFloat64() float64 { return 0 }

type fixture struct {
	srv    *httptest.Server
	d      *engine.Dynasty
	p      *engine.Pipeline
	heir   family.PersonID
	prefix string
}

func newFixture(t *testing.T, s *Server) *fixture {
	t.Helper()
	d, err := engine.NewDynasty("Voss", theme.Default(), 42, engine.Founding{
		Year:    1220,
		Founder: &family.Person{GivenName: "Aldric", FamilyName: "Voss", Sex: family.SexMale, BirthYear: 1170},
		Spouse:  &family.Person{GivenName: "Astrid", FamilyName: "Thornwood", Sex: family.SexFemale, BirthYear: 1172},
	})
	require.NoError(t, err)
	founder, _ := d.Tree.Founder()
	heir, err := d.Tree.RecordBirth(founder.ID, *founder.Spouse,
		&family.Person{GivenName: "Cedric", FamilyName: "Voss", Sex: family.SexMale, BirthYear: 1200})
	require.NoError(t, err)
	_, err = d.Tree.RecordDeath(founder.ID, 1219)
	require.NoError(t, err)
	for _, title := range []string{"Duchy of Ashford", "County of Dunmore"} {
		require.NoError(t, d.Tree.SetTitleHolder(title, heir))
	}

	p := engine.NewPipeline(d, quiet{})
	for range 3 {
		_, err := p.RunTurn()
		require.NoError(t, err)
	}

	s.Registry = engine.NewRegistry()
	s.Registry.Attach(p)
	s.Registry.Publish(d)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return &fixture{srv: srv, d: d, p: p, heir: heir, prefix: srv.URL + "/api/v1/dynasty/" + d.ID.String()}
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestDynastyEndpoints(t *testing.T) {
	f := newFixture(t, &Server{})

	var list []engine.Status
	require.Equal(t, http.StatusOK, getJSON(t, f.srv.URL+"/api/v1/dynasties", &list))
	require.Len(t, list, 1)
	assert.Equal(t, "Voss", list[0].House)
	assert.Equal(t, 3, list[0].Turn)

	var st engine.Status
	require.Equal(t, http.StatusOK, getJSON(t, f.prefix, &st))
	assert.Equal(t, f.d.ID, st.ID)
	assert.Equal(t, 1223, st.Year)

	var titles []engine.TitleStatus
	require.Equal(t, http.StatusOK, getJSON(t, f.prefix+"/titles", &titles))
	require.Len(t, titles, 2)
	assert.Equal(t, "Duchy of Ashford", titles[0].Name)

	var all, living []member
	require.Equal(t, http.StatusOK, getJSON(t, f.prefix+"/members", &all))
	require.Equal(t, http.StatusOK, getJSON(t, f.prefix+"/members?living=true", &living))
	assert.Equal(t, f.d.Tree.Len(), len(all))
	assert.Equal(t, len(f.d.Tree.Living()), len(living))
	assert.Less(t, len(living), len(all))

	var events []engine.TurnEvent
	require.Equal(t, http.StatusOK, getJSON(t, f.prefix+"/events?since=0", &events))
	assert.Len(t, events, f.d.Log.Len())

	var chronicle []persistence.ChronicleEntry
	require.Equal(t, http.StatusOK, getJSON(t, f.prefix+"/chronicle", &chronicle))
	assert.Empty(t, chronicle)
}

func TestPersonEndpoints(t *testing.T) {
	f := newFixture(t, &Server{})
	founder, _ := f.d.Tree.Founder()

	var heir member
	require.Equal(t, http.StatusOK, getJSON(t, fmt.Sprintf("%s/person/%d", f.prefix, f.heir), &heir))
	assert.Equal(t, "Cedric Voss", heir.Name)
	assert.Equal(t, 23, heir.Age)
	assert.True(t, heir.Blood)
	assert.Equal(t, []string{"Duchy of Ashford", "County of Dunmore"}, heir.Titles)

	var ancestors []kin
	require.Equal(t, http.StatusOK, getJSON(t, fmt.Sprintf("%s/person/%d/ancestors", f.prefix, f.heir), &ancestors))
	require.Len(t, ancestors, 2)
	assert.Equal(t, founder.ID, ancestors[0].ID)
	assert.Equal(t, 1, ancestors[0].Generation)

	var descendants []kin
	require.Equal(t, http.StatusOK, getJSON(t, fmt.Sprintf("%s/person/%d/descendants", f.prefix, founder.ID), &descendants))
	require.NotEmpty(t, descendants)
	assert.Equal(t, f.heir, descendants[0].ID)
}

func TestLookupErrors(t *testing.T) {
	f := newFixture(t, &Server{})

	assert.Equal(t, http.StatusBadRequest, getJSON(t, f.srv.URL+"/api/v1/dynasty/not-a-uuid", nil))
	assert.Equal(t, http.StatusNotFound, getJSON(t, f.srv.URL+"/api/v1/dynasty/"+engine.DynastyID("Nobody", 1).String(), nil))
	assert.Equal(t, http.StatusBadRequest, getJSON(t, f.prefix+"/person/abc", nil))
	assert.Equal(t, http.StatusNotFound, getJSON(t, f.prefix+"/person/9999", nil))
	assert.Equal(t, http.StatusBadRequest, getJSON(t, f.prefix+"/events?since=-1", nil))
	assert.Equal(t, http.StatusServiceUnavailable, getJSON(t, fmt.Sprintf("%s/person/%d/story", f.prefix, f.heir), nil))

	resp, err := http.Post(f.prefix, "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func postAction(t *testing.T, url, token, body string) int {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	return resp.StatusCode
}

func TestSubmitAction(t *testing.T) {
	f := newFixture(t, &Server{AdminKey: "steward"})
	url := f.prefix + "/actions"
	create := fmt.Sprintf(`{"kind": "title_creation", "title": "Barony of Fenwick", "holder": %d}`, f.heir)

	t.Run("requires the admin token", func(t *testing.T) {
		assert.Equal(t, http.StatusUnauthorized, postAction(t, url, "", create))
		assert.Equal(t, http.StatusUnauthorized, postAction(t, url, "usurper", create))
		assert.Zero(t, f.p.Pending())
	})

	t.Run("rejects malformed actions", func(t *testing.T) {
		assert.Equal(t, http.StatusBadRequest, postAction(t, url, "steward", `{"kind": "coronation"}`))
		assert.Equal(t, http.StatusBadRequest, postAction(t, url, "steward", `not json`))
		assert.Zero(t, f.p.Pending())
	})

	t.Run("unknown dynasty", func(t *testing.T) {
		other := f.srv.URL + "/api/v1/dynasty/" + uuid.NewString() + "/actions"
		assert.Equal(t, http.StatusNotFound, postAction(t, other, "steward", create))
	})

	t.Run("queues for the next turn", func(t *testing.T) {
		assert.Equal(t, http.StatusAccepted, postAction(t, url, "steward", create))
		law := `{"kind": "law_change", "title": "Duchy of Ashford", "law": {"kind": "gavelkind", "max_degree": 3}}`
		assert.Equal(t, http.StatusAccepted, postAction(t, url, "steward", law))
		assert.Equal(t, 2, f.p.Pending())

		report, err := f.p.RunTurn()
		require.NoError(t, err)
		assert.Equal(t, 2, report.Actions)
		assert.Zero(t, report.Failed)

		holder, ok := f.d.Tree.TitleHolder("Barony of Fenwick")
		require.True(t, ok)
		assert.Equal(t, f.heir, holder.ID)
		assert.Equal(t, "gavelkind", f.d.LawFor("Duchy of Ashford").Kind.String())
	})
}

func TestSubmitActionDisabledWithoutKey(t *testing.T) {
	f := newFixture(t, &Server{})
	body := `{"kind": "marriage_proposal", "a": 1, "b": 2}`
	assert.Equal(t, http.StatusForbidden, postAction(t, f.prefix+"/actions", "", body))
	assert.Zero(t, f.p.Pending())
}

func TestStoryIsCached(t *testing.T) {
	calls := 0
	fake := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		json.NewEncoder(w).Encode(map[string]any{
			"content": []map[string]string{{"text": "Cedric ruled wisely."}},
		})
	}))
	t.Cleanup(fake.Close)

	f := newFixture(t, &Server{LLM: llm.NewClient("test-key").WithEndpoint(fake.URL)})
	url := fmt.Sprintf("%s/person/%d/story", f.prefix, f.heir)

	for range 2 {
		var bio cachedBio
		require.Equal(t, http.StatusOK, getJSON(t, url, &bio))
		assert.Equal(t, "Cedric ruled wisely.", bio.Biography)
		assert.Equal(t, 1223, bio.GeneratedAt)
	}
	assert.Equal(t, 1, calls)
}

func TestChronicleFromStore(t *testing.T) {
	db, err := persistence.Open(filepath.Join(t.TempDir(), "dynasty.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	f := newFixture(t, &Server{DB: db})
	require.NoError(t, db.SaveChronicle(f.d.ID, 1, "The house endures."))

	var chronicle []persistence.ChronicleEntry
	require.Equal(t, http.StatusOK, getJSON(t, f.prefix+"/chronicle", &chronicle))
	assert.Equal(t, []persistence.ChronicleEntry{{Seq: 1, Text: "The house endures."}}, chronicle)
}

func TestRateLimiter(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(2, time.Minute)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("10.0.0.1"))
	assert.True(t, rl.Allow("10.0.0.1"))
	assert.False(t, rl.Allow("10.0.0.1"))
	assert.True(t, rl.Allow("10.0.0.2"))
	assert.Equal(t, 61, rl.RetryAfter("10.0.0.1"))

	now = now.Add(time.Minute)
	assert.True(t, rl.Allow("10.0.0.1"))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "192.0.2.7:5555"
	assert.Equal(t, "192.0.2.7", clientIP(r))
	r.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	assert.Equal(t, "203.0.113.9", clientIP(r))
}
