package family

import (
	"encoding/json"
	"fmt"
	"slices"
)

// Trait is one of the known personality or physical trait tags.
type Trait uint8

const (
	TraitStrong Trait = iota
	TraitFrail
	TraitGenius
	TraitSlow
	TraitBrave
	TraitCraven
	TraitAmbitious
	TraitContent
	TraitFertile
	TraitBarren
	TraitSickly
	TraitRobust
)

// NumTraits is the number of known trait tags.
const NumTraits = 12

var traitNames = [NumTraits]string{
	"strong", "frail", "genius", "slow", "brave", "craven",
	"ambitious", "content", "fertile", "barren", "sickly", "robust",
}

func (t Trait) String() string {
	if int(t) < len(traitNames) {
		return traitNames[t]
	}
	return fmt.Sprintf("trait(%d)", uint8(t))
}

// ParseTrait converts a trait name back to a Trait.
func ParseTrait(name string) (Trait, error) {
	for i, n := range traitNames {
		if n == name {
			return Trait(i), nil
		}
	}
	return 0, fmt.Errorf("unknown trait %q", name)
}

// AllTraits returns every known trait in enum order.
func AllTraits() []Trait {
	out := make([]Trait, NumTraits)
	for i := range out {
		out[i] = Trait(i)
	}
	return out
}

// opposites are mutually exclusive trait pairs.
var opposites = map[Trait]Trait{
	TraitStrong: TraitFrail, TraitFrail: TraitStrong,
	TraitGenius: TraitSlow, TraitSlow: TraitGenius,
	TraitBrave: TraitCraven, TraitCraven: TraitBrave,
	TraitAmbitious: TraitContent, TraitContent: TraitAmbitious,
	TraitFertile: TraitBarren, TraitBarren: TraitFertile,
	TraitSickly: TraitRobust, TraitRobust: TraitSickly,
}

// Opposite returns the trait that excludes t.
func (t Trait) Opposite() (Trait, bool) {
	o, ok := opposites[t]
	return o, ok
}

// TraitSet is an ordered set of traits, kept in enum order.
type TraitSet []Trait

// NewTraitSet builds a set from traits, dropping duplicates.
func NewTraitSet(traits ...Trait) TraitSet {
	var s TraitSet
	for _, t := range traits {
		s = s.With(t)
	}
	return s
}

// Has reports membership.
func (s TraitSet) Has(t Trait) bool {
	_, found := slices.BinarySearch(s, t)
	return found
}

// With returns a set that also contains t. Adding a trait removes its
// opposite.
func (s TraitSet) With(t Trait) TraitSet {
	if o, ok := t.Opposite(); ok && s.Has(o) {
		s = s.Without(o)
	}
	i, found := slices.BinarySearch(s, t)
	if found {
		return s
	}
	return slices.Insert(slices.Clone(s), i, t)
}

// Without returns a set lacking t.
func (s TraitSet) Without(t Trait) TraitSet {
	i, found := slices.BinarySearch(s, t)
	if !found {
		return s
	}
	return slices.Delete(slices.Clone(s), i, i+1)
}

// Names returns the trait names in set order.
func (s TraitSet) Names() []string {
	out := make([]string, len(s))
	for i, t := range s {
		out[i] = t.String()
	}
	return out
}

// ParseTraitSet builds a set from trait names.
func ParseTraitSet(names []string) (TraitSet, error) {
	var s TraitSet
	for _, n := range names {
		t, err := ParseTrait(n)
		if err != nil {
			return nil, err
		}
		s = s.With(t)
	}
	return s, nil
}

func (s TraitSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Names())
}

func (s *TraitSet) UnmarshalJSON(data []byte) error {
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return err
	}
	parsed, err := ParseTraitSet(names)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
