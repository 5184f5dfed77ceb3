// Package family provides the person entity and the family tree that owns
// every person of one dynasty.
//
// Relationships between people are stored as identifiers into the tree's
// arena, never as pointers, so the graph of parents, children and spouses
// stays trivially serialisable.
package family

import (
	"fmt"
	"slices"
)

// PersonID is a unique identifier for a person within one dynasty.
type PersonID uint64

// Sex represents biological sex for demographic simulation.
type Sex uint8

const (
	SexMale   Sex = 0
	SexFemale Sex = 1
)

func (s Sex) String() string {
	if s == SexFemale {
		return "female"
	}
	return "male"
}

// Opposite returns the other sex.
func (s Sex) Opposite() Sex {
	if s == SexFemale {
		return SexMale
	}
	return SexFemale
}

// ParseSex converts a sex name back to a Sex.
func ParseSex(name string) (Sex, error) {
	switch name {
	case "male":
		return SexMale, nil
	case "female":
		return SexFemale, nil
	}
	return SexMale, fmt.Errorf("unknown sex %q", name)
}

// Skills are a person's numeric attributes on a 0–20 scale.
type Skills struct {
	Diplomacy   int `json:"diplomacy"`
	Stewardship int `json:"stewardship"`
	Martial     int `json:"martial"`
	Intrigue    int `json:"intrigue"`
}

// MaxSkill is the top of the skill scale.
const MaxSkill = 20

// Clamp limits every skill to the 0–MaxSkill range.
func (s Skills) Clamp() Skills {
	c := func(v int) int {
		if v < 0 {
			return 0
		}
		if v > MaxSkill {
			return MaxSkill
		}
		return v
	}
	return Skills{
		Diplomacy:   c(s.Diplomacy),
		Stewardship: c(s.Stewardship),
		Martial:     c(s.Martial),
		Intrigue:    c(s.Intrigue),
	}
}

// Person is a node in the family graph.
type Person struct {
	ID         PersonID `json:"id"`
	GivenName  string   `json:"given_name"`
	FamilyName string   `json:"family_name"`
	Sex        Sex      `json:"sex"`

	BirthYear int  `json:"birth_year"`
	DeathYear *int `json:"death_year,omitempty"` // nil while alive

	Traits TraitSet          `json:"traits"`
	Extra  map[string]string `json:"extra,omitempty"` // Theme-specific tags
	Skills Skills            `json:"skills"`

	// Relationships, by identifier.
	Mother        *PersonID  `json:"mother,omitempty"`
	Father        *PersonID  `json:"father,omitempty"`
	Spouse        *PersonID  `json:"spouse,omitempty"`
	FormerSpouses []PersonID `json:"former_spouses,omitempty"` // Widowed marriages
	Children      []PersonID `json:"children,omitempty"`       // Birth order

	// Titles currently held, most senior first.
	Titles []string `json:"titles,omitempty"`
}

// Alive reports whether the person has no recorded death.
func (p *Person) Alive() bool {
	return p.DeathYear == nil
}

// Age returns the person's age in the given year, or at death if earlier.
func (p *Person) Age(year int) int {
	if p.DeathYear != nil && *p.DeathYear < year {
		year = *p.DeathYear
	}
	age := year - p.BirthYear
	if age < 0 {
		return 0
	}
	return age
}

// Name returns the full display name.
func (p *Person) Name() string {
	if p.FamilyName == "" {
		return p.GivenName
	}
	return p.GivenName + " " + p.FamilyName
}

// HasTrait reports whether the person carries the trait.
func (p *Person) HasTrait(t Trait) bool {
	return p.Traits.Has(t)
}

// Married reports whether the person has a living spouse.
func (p *Person) Married() bool {
	return p.Spouse != nil
}

func (p *Person) clone() *Person {
	c := *p
	c.DeathYear = clonePtr(p.DeathYear)
	c.Mother = clonePtr(p.Mother)
	c.Father = clonePtr(p.Father)
	c.Spouse = clonePtr(p.Spouse)
	c.Traits = slices.Clone(p.Traits)
	c.FormerSpouses = slices.Clone(p.FormerSpouses)
	c.Children = slices.Clone(p.Children)
	c.Titles = slices.Clone(p.Titles)
	if p.Extra != nil {
		c.Extra = make(map[string]string, len(p.Extra))
		for k, v := range p.Extra {
			c.Extra[k] = v
		}
	}
	return &c
}

func clonePtr[T any](v *T) *T {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func ptr[T any](v T) *T {
	return &v
}
