// Package engine advances dynasties through the four-phase turn pipeline:
// planning, execution, resolution and advancement.
package engine

import (
	"fmt"
	"maps"

	"github.com/google/uuid"

	"github.com/talgya/dynasty/internal/entropy"
	"github.com/talgya/dynasty/internal/family"
	"github.com/talgya/dynasty/internal/lifecycle"
	"github.com/talgya/dynasty/internal/succession"
	"github.com/talgya/dynasty/internal/theme"
)

// Namespace roots the name-based identifiers of dynasties and their events.
var Namespace = uuid.MustParse("6f1c2a4e-8d0b-5c7e-9a3f-2b1d4e6f8a90")

// DefaultFoundingYear is used when a founding names no year.
const DefaultFoundingYear = 1200

// Dynasty is one simulated house: its family tree, its laws and its history.
// A Dynasty is advanced by a single Pipeline and must not be shared between
// goroutines while a turn runs.
type Dynasty struct {
	ID    uuid.UUID
	House string
	Seed  int64

	Tree  *family.Tree
	Theme *theme.Config
	Rules *lifecycle.Rules

	DefaultLaw  succession.Law
	Laws        map[string]succession.Law // Per-title overrides
	Interregnum map[string]int            // Vacant title -> year its crisis began

	Year int
	Turn int
	Log  *EventLog
}

// Founding describes the first couple. Nil people are generated from the
// theme.
type Founding struct {
	Year    int
	Founder *family.Person
	Spouse  *family.Person
}

// DynastyID returns the stable identifier of a house founded from seed.
func DynastyID(house string, seed int64) uuid.UUID {
	return uuid.NewSHA1(Namespace, []byte(fmt.Sprintf("dynasty/%s/%d", house, seed)))
}

// NewDynasty founds a house: the founder and spouse are wed and the founder
// holds every title of the theme.
func NewDynasty(house string, cfg *theme.Config, seed int64, founding Founding) (*Dynasty, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("dynasty %s: %w", house, err)
	}
	law, err := succession.LawFromTheme(cfg.Succession, seed+entropy.StreamSuccession)
	if err != nil {
		return nil, fmt.Errorf("dynasty %s: %w", house, err)
	}
	d := &Dynasty{
		ID:          DynastyID(house, seed),
		House:       house,
		Seed:        seed,
		Tree:        family.NewTree(),
		Theme:       cfg,
		Rules:       lifecycle.New(cfg, seed),
		DefaultLaw:  law,
		Laws:        make(map[string]succession.Law),
		Interregnum: make(map[string]int),
		Year:        founding.Year,
		Log:         NewEventLog(),
	}
	if d.Year == 0 {
		d.Year = DefaultFoundingYear
	}

	src := entropy.Derive(seed, entropy.StreamNames)
	founder := founding.Founder
	if founder == nil {
		founder = d.generateFounder(src)
	}
	if err := d.Tree.AddFounder(founder); err != nil {
		return nil, fmt.Errorf("dynasty %s: %w", house, err)
	}
	spouse := founding.Spouse
	if spouse == nil {
		spouse = d.Rules.Suitor(founder, d.Year, src)
	}
	if _, err := d.Tree.MarryIn(founder.ID, spouse); err != nil {
		return nil, fmt.Errorf("dynasty %s: %w", house, err)
	}
	for _, name := range cfg.Titles {
		if err := d.Tree.CreateTitle(name); err != nil {
			return nil, fmt.Errorf("dynasty %s: %w", house, err)
		}
		if err := d.Tree.SetTitleHolder(name, founder.ID); err != nil {
			return nil, fmt.Errorf("dynasty %s: %w", house, err)
		}
	}
	return d, nil
}

func (d *Dynasty) generateFounder(src entropy.Source) *family.Person {
	names := d.Theme.Names.Male
	return &family.Person{
		GivenName:  names[src.Intn(len(names))],
		FamilyName: d.House,
		Sex:        family.SexMale,
		BirthYear:  d.Year - 20 - src.Intn(10),
		Skills: family.Skills{
			Diplomacy:   6 + src.Intn(9),
			Stewardship: 6 + src.Intn(9),
			Martial:     6 + src.Intn(9),
			Intrigue:    6 + src.Intn(9),
		},
	}
}

// LawFor returns the succession law governing a title.
func (d *Dynasty) LawFor(title string) succession.Law {
	if law, ok := d.Laws[title]; ok {
		return law
	}
	return d.DefaultLaw
}

// Meta is the scalar state of a dynasty outside its tree and log.
type Meta struct {
	ID          uuid.UUID                 `json:"id" db:"id"`
	House       string                    `json:"house" db:"house"`
	Seed        int64                     `json:"seed" db:"seed"`
	Theme       string                    `json:"theme" db:"theme"`
	Year        int                       `json:"year" db:"year"`
	Turn        int                       `json:"turn" db:"turn"`
	DefaultLaw  succession.Law            `json:"default_law"`
	Laws        map[string]succession.Law `json:"laws,omitempty"`
	Interregnum map[string]int            `json:"interregnum,omitempty"`
}

// Meta returns a copy of the dynasty's scalar state.
func (d *Dynasty) Meta() Meta {
	return Meta{
		ID:          d.ID,
		House:       d.House,
		Seed:        d.Seed,
		Theme:       d.Theme.Name,
		Year:        d.Year,
		Turn:        d.Turn,
		DefaultLaw:  d.DefaultLaw,
		Laws:        maps.Clone(d.Laws),
		Interregnum: maps.Clone(d.Interregnum),
	}
}

// Resume rebuilds a dynasty from stored state. The tree snapshot is
// validated; events must be in sequence order.
func Resume(meta Meta, snap family.Snapshot, cfg *theme.Config, events []TurnEvent) (*Dynasty, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("dynasty %s: %w", meta.House, err)
	}
	if cfg.Name != meta.Theme {
		return nil, fmt.Errorf("dynasty %s was founded under theme %q, not %q", meta.House, meta.Theme, cfg.Name)
	}
	tree, err := family.Restore(snap)
	if err != nil {
		return nil, fmt.Errorf("dynasty %s: %w", meta.House, err)
	}
	d := &Dynasty{
		ID:          meta.ID,
		House:       meta.House,
		Seed:        meta.Seed,
		Tree:        tree,
		Theme:       cfg,
		Rules:       lifecycle.New(cfg, meta.Seed),
		DefaultLaw:  meta.DefaultLaw,
		Laws:        maps.Clone(meta.Laws),
		Interregnum: maps.Clone(meta.Interregnum),
		Year:        meta.Year,
		Turn:        meta.Turn,
		Log:         NewEventLog(events...),
	}
	if d.Laws == nil {
		d.Laws = make(map[string]succession.Law)
	}
	if d.Interregnum == nil {
		d.Interregnum = make(map[string]int)
	}
	return d, nil
}

// Clone returns an independent copy sharing only the immutable theme and
// rules.
func (d *Dynasty) Clone() *Dynasty {
	c := *d
	c.Tree = d.Tree.Clone()
	c.Laws = maps.Clone(d.Laws)
	c.Interregnum = maps.Clone(d.Interregnum)
	c.Log = NewEventLog(d.Log.Events()...)
	return &c
}
