// Package persistence provides SQLite-based dynasty storage.
package persistence

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/dynasty/internal/engine"
	"github.com/talgya/dynasty/internal/family"
	"github.com/talgya/dynasty/internal/theme"
)

// ErrNotFound is returned when a dynasty is not stored.
var ErrNotFound = errors.New("dynasty not found")

// DB wraps a SQLite connection for dynasty persistence.
type DB struct {
	conn *sqlx.DB
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// Dynasties save from their own goroutines; SQLite takes one writer.
	conn.SetMaxOpenConns(1)

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS dynasties (
		id TEXT PRIMARY KEY,
		house TEXT NOT NULL,
		seed INTEGER NOT NULL,
		theme TEXT NOT NULL,
		year INTEGER NOT NULL,
		turn INTEGER NOT NULL,
		founder_id INTEGER NOT NULL,
		next_id INTEGER NOT NULL,
		default_law_json TEXT NOT NULL,
		laws_json TEXT NOT NULL,
		interregnum_json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS persons (
		dynasty_id TEXT NOT NULL,
		id INTEGER NOT NULL,
		given_name TEXT NOT NULL,
		family_name TEXT NOT NULL,
		sex TEXT NOT NULL,
		birth_year INTEGER NOT NULL,
		death_year INTEGER,
		mother_id INTEGER,
		father_id INTEGER,
		spouse_id INTEGER,
		traits_json TEXT NOT NULL,
		skills_json TEXT NOT NULL,
		extra_json TEXT NOT NULL,
		former_spouses_json TEXT NOT NULL,
		children_json TEXT NOT NULL,
		titles_json TEXT NOT NULL,
		PRIMARY KEY (dynasty_id, id)
	);

	CREATE TABLE IF NOT EXISTS titles (
		dynasty_id TEXT NOT NULL,
		name TEXT NOT NULL,
		rank INTEGER NOT NULL,
		holder_id INTEGER,
		last_holder_id INTEGER,
		reigns INTEGER NOT NULL,
		PRIMARY KEY (dynasty_id, name)
	);

	CREATE TABLE IF NOT EXISTS events (
		dynasty_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		id TEXT NOT NULL,
		turn INTEGER NOT NULL,
		year INTEGER NOT NULL,
		category TEXT NOT NULL,
		narrative TEXT NOT NULL,
		subjects_json TEXT NOT NULL,
		payload_json TEXT NOT NULL,
		failure_json TEXT,
		PRIMARY KEY (dynasty_id, seq)
	);

	CREATE TABLE IF NOT EXISTS chronicle (
		dynasty_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		text TEXT NOT NULL,
		PRIMARY KEY (dynasty_id, seq)
	);

	CREATE TABLE IF NOT EXISTS world_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_events_category ON events(dynasty_id, category);
	CREATE INDEX IF NOT EXISTS idx_persons_alive ON persons(dynasty_id, death_year);
	`
	_, err := db.conn.Exec(schema)
	return err
}

type dynastyRow struct {
	ID              uuid.UUID       `db:"id"`
	House           string          `db:"house"`
	Seed            int64           `db:"seed"`
	Theme           string          `db:"theme"`
	Year            int             `db:"year"`
	Turn            int             `db:"turn"`
	FounderID       family.PersonID `db:"founder_id"`
	NextID          family.PersonID `db:"next_id"`
	DefaultLawJSON  string          `db:"default_law_json"`
	LawsJSON        string          `db:"laws_json"`
	InterregnumJSON string          `db:"interregnum_json"`
}

func (r dynastyRow) meta() (engine.Meta, error) {
	m := engine.Meta{ID: r.ID, House: r.House, Seed: r.Seed, Theme: r.Theme, Year: r.Year, Turn: r.Turn}
	if err := json.Unmarshal([]byte(r.DefaultLawJSON), &m.DefaultLaw); err != nil {
		return m, fmt.Errorf("default law: %w", err)
	}
	if err := json.Unmarshal([]byte(r.LawsJSON), &m.Laws); err != nil {
		return m, fmt.Errorf("laws: %w", err)
	}
	if err := json.Unmarshal([]byte(r.InterregnumJSON), &m.Interregnum); err != nil {
		return m, fmt.Errorf("interregnum: %w", err)
	}
	return m, nil
}

type personRow struct {
	family.PersonRecord
	TraitsJSON        string `db:"traits_json"`
	SkillsJSON        string `db:"skills_json"`
	ExtraJSON         string `db:"extra_json"`
	FormerSpousesJSON string `db:"former_spouses_json"`
	ChildrenJSON      string `db:"children_json"`
	TitlesJSON        string `db:"titles_json"`
}

func (r personRow) record() (family.PersonRecord, error) {
	rec := r.PersonRecord
	for _, col := range []struct {
		name string
		src  string
		dst  any
	}{
		{"traits", r.TraitsJSON, &rec.Traits},
		{"skills", r.SkillsJSON, &rec.Skills},
		{"extra", r.ExtraJSON, &rec.Extra},
		{"former spouses", r.FormerSpousesJSON, &rec.FormerSpouses},
		{"children", r.ChildrenJSON, &rec.Children},
		{"titles", r.TitlesJSON, &rec.Titles},
	} {
		if err := json.Unmarshal([]byte(col.src), col.dst); err != nil {
			return rec, fmt.Errorf("person %d %s: %w", rec.ID, col.name, err)
		}
	}
	return rec, nil
}

type eventRow struct {
	Seq          uint64          `db:"seq"`
	ID           uuid.UUID       `db:"id"`
	Turn         int             `db:"turn"`
	Year         int             `db:"year"`
	Category     engine.Category `db:"category"`
	Narrative    string          `db:"narrative"`
	SubjectsJSON string          `db:"subjects_json"`
	PayloadJSON  string          `db:"payload_json"`
	FailureJSON  sql.NullString  `db:"failure_json"`
}

func (r eventRow) event() (engine.TurnEvent, error) {
	e := engine.TurnEvent{
		ID:        r.ID,
		Seq:       r.Seq,
		Turn:      r.Turn,
		Year:      r.Year,
		Category:  r.Category,
		Narrative: r.Narrative,
	}
	if err := json.Unmarshal([]byte(r.SubjectsJSON), &e.Subjects); err != nil {
		return e, fmt.Errorf("event %d subjects: %w", r.Seq, err)
	}
	if err := json.Unmarshal([]byte(r.PayloadJSON), &e.Payload); err != nil {
		return e, fmt.Errorf("event %d payload: %w", r.Seq, err)
	}
	if r.FailureJSON.Valid {
		e.Failure = &engine.Failure{}
		if err := json.Unmarshal([]byte(r.FailureJSON.String), e.Failure); err != nil {
			return e, fmt.Errorf("event %d failure: %w", r.Seq, err)
		}
	}
	return e, nil
}

func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("marshal %T: %v", v, err))
	}
	return string(b)
}

// SaveDynasty writes the dynasty's scalar state, tree and titles (full
// replace) and appends the events not yet stored, in one transaction.
func (db *DB) SaveDynasty(d *engine.Dynasty) error {
	meta := d.Meta()
	snap := d.Tree.Snapshot()

	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`INSERT OR REPLACE INTO dynasties
		(id, house, seed, theme, year, turn, founder_id, next_id,
		 default_law_json, laws_json, interregnum_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		meta.ID, meta.House, meta.Seed, meta.Theme, meta.Year, meta.Turn,
		snap.Founder, snap.NextID,
		mustJSON(meta.DefaultLaw), mustJSON(meta.Laws), mustJSON(meta.Interregnum),
	)
	if err != nil {
		return fmt.Errorf("save dynasty %s: %w", meta.House, err)
	}

	if err := savePersons(tx, meta.ID, snap.Persons); err != nil {
		return err
	}
	if err := saveTitles(tx, meta.ID, snap.Titles); err != nil {
		return err
	}

	var stored uint64
	if err := tx.Get(&stored, "SELECT COALESCE(MAX(seq), 0) FROM events WHERE dynasty_id = ?", meta.ID); err != nil {
		return fmt.Errorf("last stored event: %w", err)
	}
	if err := saveEvents(tx, meta.ID, d.Log.Since(stored)); err != nil {
		return err
	}

	return tx.Commit()
}

func savePersons(tx *sqlx.Tx, id uuid.UUID, persons []family.PersonRecord) error {
	if _, err := tx.Exec("DELETE FROM persons WHERE dynasty_id = ?", id); err != nil {
		return err
	}

	stmt, err := tx.Preparex(`INSERT INTO persons
		(dynasty_id, id, given_name, family_name, sex, birth_year, death_year,
		 mother_id, father_id, spouse_id, traits_json, skills_json, extra_json,
		 former_spouses_json, children_json, titles_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, p := range persons {
		_, err := stmt.Exec(
			id, p.ID, p.GivenName, p.FamilyName, p.Sex, p.BirthYear, p.DeathYear,
			p.Mother, p.Father, p.Spouse,
			mustJSON(p.Traits), mustJSON(p.Skills), mustJSON(p.Extra),
			mustJSON(p.FormerSpouses), mustJSON(p.Children), mustJSON(p.Titles),
		)
		if err != nil {
			return fmt.Errorf("insert person %d: %w", p.ID, err)
		}
	}
	return nil
}

func saveTitles(tx *sqlx.Tx, id uuid.UUID, titles []family.TitleRecord) error {
	if _, err := tx.Exec("DELETE FROM titles WHERE dynasty_id = ?", id); err != nil {
		return err
	}
	for _, t := range titles {
		_, err := tx.Exec(`INSERT INTO titles
			(dynasty_id, name, rank, holder_id, last_holder_id, reigns)
			VALUES (?, ?, ?, ?, ?, ?)`,
			id, t.Name, t.Rank, t.Holder, t.LastHolder, t.Reigns,
		)
		if err != nil {
			return fmt.Errorf("insert title %q: %w", t.Name, err)
		}
	}
	return nil
}

func saveEvents(tx *sqlx.Tx, id uuid.UUID, events []engine.TurnEvent) error {
	for _, e := range events {
		var failure *string
		if e.Failure != nil {
			f := mustJSON(e.Failure)
			failure = &f
		}
		_, err := tx.Exec(`INSERT INTO events
			(dynasty_id, seq, id, turn, year, category, narrative,
			 subjects_json, payload_json, failure_json)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, e.Seq, e.ID, e.Turn, e.Year, e.Category, e.Narrative,
			mustJSON(e.Subjects), mustJSON(e.Payload), failure,
		)
		if err != nil {
			return fmt.Errorf("insert event %d: %w", e.Seq, err)
		}
	}
	return nil
}

// Dynasties returns the scalar state of every stored dynasty, ordered by
// house name.
func (db *DB) Dynasties() ([]engine.Meta, error) {
	var rows []dynastyRow
	if err := db.conn.Select(&rows, "SELECT * FROM dynasties ORDER BY house"); err != nil {
		return nil, err
	}
	out := make([]engine.Meta, 0, len(rows))
	for _, r := range rows {
		m, err := r.meta()
		if err != nil {
			return nil, fmt.Errorf("dynasty %s: %w", r.House, err)
		}
		out = append(out, m)
	}
	return out, nil
}

// LoadDynasty rebuilds a stored dynasty under cfg, which must be the theme
// it was founded with.
func (db *DB) LoadDynasty(id uuid.UUID, cfg *theme.Config) (*engine.Dynasty, error) {
	var row dynastyRow
	if err := db.conn.Get(&row, "SELECT * FROM dynasties WHERE id = ?", id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
		}
		return nil, err
	}
	meta, err := row.meta()
	if err != nil {
		return nil, fmt.Errorf("dynasty %s: %w", row.House, err)
	}

	snap := family.Snapshot{Founder: row.FounderID, NextID: row.NextID}
	var persons []personRow
	if err := db.conn.Select(&persons, `SELECT id, given_name, family_name, sex, birth_year,
		death_year, mother_id, father_id, spouse_id, traits_json, skills_json, extra_json,
		former_spouses_json, children_json, titles_json
		FROM persons WHERE dynasty_id = ? ORDER BY id`, id); err != nil {
		return nil, fmt.Errorf("load persons: %w", err)
	}
	for _, p := range persons {
		rec, err := p.record()
		if err != nil {
			return nil, err
		}
		snap.Persons = append(snap.Persons, rec)
	}
	if err := db.conn.Select(&snap.Titles, `SELECT name, rank, holder_id, last_holder_id, reigns
		FROM titles WHERE dynasty_id = ? ORDER BY rank`, id); err != nil {
		return nil, fmt.Errorf("load titles: %w", err)
	}

	events, err := db.Events(id, 0, -1)
	if err != nil {
		return nil, err
	}

	d, err := engine.Resume(meta, snap, cfg, events)
	if err != nil {
		return nil, err
	}
	slog.Info("dynasty loaded", "house", d.House, "year", d.Year, "persons", d.Tree.Len(), "events", len(events))
	return d, nil
}

// Events returns up to limit stored events after seq, oldest first. A
// negative limit returns them all.
func (db *DB) Events(id uuid.UUID, since uint64, limit int) ([]engine.TurnEvent, error) {
	var rows []eventRow
	err := db.conn.Select(&rows, `SELECT seq, id, turn, year, category, narrative,
		subjects_json, payload_json, failure_json
		FROM events WHERE dynasty_id = ? AND seq > ? ORDER BY seq LIMIT ?`,
		id, since, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("load events: %w", err)
	}
	out := make([]engine.TurnEvent, 0, len(rows))
	for _, r := range rows {
		e, err := r.event()
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// ChronicleEntry is a prose rendering of one event.
type ChronicleEntry struct {
	Seq  uint64 `db:"seq" json:"seq"`
	Text string `db:"text" json:"text"`
}

// SaveChronicle stores the prose for one event, replacing any earlier text.
func (db *DB) SaveChronicle(id uuid.UUID, seq uint64, text string) error {
	_, err := db.conn.Exec(
		"INSERT OR REPLACE INTO chronicle (dynasty_id, seq, text) VALUES (?, ?, ?)",
		id, seq, text,
	)
	return err
}

// Chronicle returns the most recent N chronicle entries, newest first.
func (db *DB) Chronicle(id uuid.UUID, limit int) ([]ChronicleEntry, error) {
	var entries []ChronicleEntry
	err := db.conn.Select(&entries,
		"SELECT seq, text FROM chronicle WHERE dynasty_id = ? ORDER BY seq DESC LIMIT ?",
		id, limit,
	)
	return entries, err
}

// SaveMeta stores a key-value pair in world metadata.
func (db *DB) SaveMeta(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT OR REPLACE INTO world_meta (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// GetMeta retrieves a metadata value.
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM world_meta WHERE key = ?", key)
	return value, err
}
