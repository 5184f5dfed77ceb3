// Package succession selects the next holder of a vacant title from the
// surviving family graph under one of several succession laws.
package succession

import (
	"fmt"

	"github.com/talgya/dynasty/internal/theme"
)

// Kind is the succession law variant.
type Kind uint8

const (
	Primogeniture  Kind = iota // Eldest of the nearest generation
	Ultimogeniture             // Youngest of the nearest generation
	Gavelkind                  // Title divided among the nearest generation
	Tanistry                   // Ablest adult of the dynasty
	Elective                   // Weighted vote with a random factor
)

var kindNames = [...]string{"primogeniture", "ultimogeniture", "gavelkind", "tanistry", "elective"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("law(%d)", uint8(k))
}

// ParseKind converts a law name to a Kind.
func ParseKind(name string) (Kind, error) {
	for i, n := range kindNames {
		if n == name {
			return Kind(i), nil
		}
	}
	return 0, fmt.Errorf("unknown succession law %q", name)
}

func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Gender is the gender preference of a family-based law.
type Gender uint8

const (
	MalePreference Gender = iota
	FemalePreference
	Absolute // Gender-neutral
)

var genderNames = [...]string{"male", "female", "absolute"}

func (g Gender) String() string {
	if int(g) < len(genderNames) {
		return genderNames[g]
	}
	return fmt.Sprintf("gender(%d)", uint8(g))
}

// ParseGender converts a preference name to a Gender.
func ParseGender(name string) (Gender, error) {
	for i, n := range genderNames {
		if n == name {
			return Gender(i), nil
		}
	}
	return 0, fmt.Errorf("unknown gender preference %q", name)
}

func (g Gender) MarshalText() ([]byte, error) { return []byte(g.String()), nil }

func (g *Gender) UnmarshalText(text []byte) error {
	parsed, err := ParseGender(string(text))
	if err != nil {
		return err
	}
	*g = parsed
	return nil
}

// DefaultMaxDegree bounds the collateral search: three ancestor generations
// reach second cousins of the last holder.
const DefaultMaxDegree = 3

// Law is a succession policy plus its parameters. A Law is a value; changing
// a title's law replaces it between turns.
type Law struct {
	Kind          Kind    `json:"kind"`
	Gender        Gender  `json:"gender"`
	MaxDegree     int     `json:"max_degree"`     // Ancestor generations searched for collaterals
	DivisionCount int     `json:"division_count"` // Gavelkind co-heir cap, 0 = unlimited
	MinAge        int     `json:"min_age"`        // Tanistry and elective
	MinSkill      int     `json:"min_skill"`      // Tanistry: martial + stewardship
	RandomFactor  float64 `json:"random_factor"`  // Elective
	Seed          int64   `json:"seed"`           // Elective fallback seed
}

// LawFromTheme builds the theme's default law.
func LawFromTheme(s theme.Succession, seed int64) (Law, error) {
	kind, err := ParseKind(s.Law)
	if err != nil {
		return Law{}, err
	}
	gender, err := ParseGender(s.Gender)
	if err != nil {
		return Law{}, err
	}
	law := Law{
		Kind:          kind,
		Gender:        gender,
		MaxDegree:     s.MaxDegree,
		DivisionCount: s.DivisionCount,
		MinAge:        s.MinAge,
		MinSkill:      s.MinSkill,
		RandomFactor:  s.RandomFactor,
		Seed:          seed,
	}
	return law, law.Validate()
}

// Validate checks the law's parameters.
func (l Law) Validate() error {
	if int(l.Kind) >= len(kindNames) {
		return fmt.Errorf("unknown succession law %d", l.Kind)
	}
	if int(l.Gender) >= len(genderNames) {
		return fmt.Errorf("unknown gender preference %d", l.Gender)
	}
	if l.MaxDegree < 0 || l.DivisionCount < 0 || l.MinAge < 0 || l.MinSkill < 0 || l.RandomFactor < 0 {
		return fmt.Errorf("succession law %s has negative parameters", l.Kind)
	}
	return nil
}

func (l Law) maxDegree() int {
	if l.MaxDegree <= 0 {
		return DefaultMaxDegree
	}
	return l.MaxDegree
}

func (l Law) String() string {
	switch l.Kind {
	case Primogeniture, Ultimogeniture:
		if l.Gender == Absolute {
			return "absolute " + l.Kind.String()
		}
		return l.Gender.String() + "-preference " + l.Kind.String()
	}
	return l.Kind.String()
}
