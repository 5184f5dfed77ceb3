package lifecycle

import (
	"fmt"
	"math"

	"github.com/talgya/dynasty/internal/entropy"
	"github.com/talgya/dynasty/internal/family"
)

// skillNoise is the standard deviation of a child's skills around the
// parents' average.
const skillNoise = 2.0

// FertileCouple reports whether mother and father may have a child in year:
// both alive, of the theme's fertile ages and married to each other unless
// the theme allows otherwise.
func (r *Rules) FertileCouple(mother, father *family.Person, year int) bool {
	f := r.Theme.Fertility
	if !mother.Alive() || !father.Alive() {
		return false
	}
	if mother.Sex != family.SexFemale || father.Sex != family.SexMale {
		return false
	}
	if age := mother.Age(year); age < f.MotherMinAge || age > f.MotherMaxAge {
		return false
	}
	if age := father.Age(year); age < f.FatherMinAge || age > f.FatherMaxAge {
		return false
	}
	wed := mother.Spouse != nil && *mother.Spouse == father.ID
	return wed || f.AllowUnwed
}

// BirthChance returns the chance that an eligible couple has a child during
// one turn.
func (r *Rules) BirthChance(mother, father *family.Person) float64 {
	rate := r.Theme.Fertility.BirthRate
	for _, p := range []*family.Person{mother, father} {
		for _, t := range p.Traits {
			rate *= modifier(r.Theme.TraitRule(t.String()).Fertility)
		}
	}
	return compound(math.Min(rate, 1), r.years())
}

// CheckBirth decides whether the couple has a child in year. When one is
// born the returned Person is ready for family.Tree.RecordBirth; it is not
// yet in the tree. An ineligible couple consumes no draws.
func (r *Rules) CheckBirth(tree *family.Tree, motherID, fatherID family.PersonID, year int, src entropy.Source) (*family.Person, bool, error) {
	mother, ok := tree.Person(motherID)
	if !ok {
		return nil, false, fmt.Errorf("mother %d: %w", motherID, family.ErrUnknownParent)
	}
	father, ok := tree.Person(fatherID)
	if !ok {
		return nil, false, fmt.Errorf("father %d: %w", fatherID, family.ErrUnknownParent)
	}
	if !r.FertileCouple(mother, father, year) {
		return nil, false, nil
	}
	if !entropy.Chance(src, r.BirthChance(mother, father)) {
		return nil, false, nil
	}
	return r.newborn(mother, father, year, src), true, nil
}

func (r *Rules) newborn(mother, father *family.Person, year int, src entropy.Source) *family.Person {
	sex := family.SexFemale
	if src.Float64() < r.Theme.Fertility.MaleRatio {
		sex = family.SexMale
	}

	familyName := father.FamilyName
	if r.Theme.Inheritance.FamilyName == "mother" {
		familyName = mother.FamilyName
	}

	return &family.Person{
		GivenName:  r.givenName(sex, src),
		FamilyName: familyName,
		Sex:        sex,
		BirthYear:  year,
		Traits:     r.inheritTraits(mother.Traits, father.Traits, src),
		Skills:     inheritSkills(mother.Skills, father.Skills, src),
	}
}

func (r *Rules) givenName(sex family.Sex, src entropy.Source) string {
	names := r.Theme.Names.Female
	if sex == family.SexMale {
		names = r.Theme.Names.Male
	}
	return names[src.Intn(len(names))]
}

// inheritTraits samples each known trait from the theme's inheritance table.
// Traits are visited in a fixed order, one draw each; a later trait replaces
// its opposite.
func (r *Rules) inheritTraits(a, b family.TraitSet, src entropy.Source) family.TraitSet {
	var out family.TraitSet
	for _, t := range family.AllTraits() {
		rule := r.Theme.TraitRule(t.String())
		p := rule.Spontaneous
		switch {
		case a.Has(t) && b.Has(t):
			p = rule.InheritBoth
		case a.Has(t) || b.Has(t):
			p = rule.InheritOne
		}
		if entropy.Chance(src, p) {
			out = out.With(t)
		}
	}
	return out
}

func inheritSkills(a, b family.Skills, src entropy.Source) family.Skills {
	mix := func(x, y int) int {
		avg := float64(x+y) / 2
		return int(math.Round(avg + src.NormFloat64()*skillNoise))
	}
	return family.Skills{
		Diplomacy:   mix(a.Diplomacy, b.Diplomacy),
		Stewardship: mix(a.Stewardship, b.Stewardship),
		Martial:     mix(a.Martial, b.Martial),
		Intrigue:    mix(a.Intrigue, b.Intrigue),
	}.Clamp()
}
