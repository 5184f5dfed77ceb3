package lifecycle

import (
	"slices"

	"github.com/talgya/dynasty/internal/entropy"
	"github.com/talgya/dynasty/internal/family"
)

// Match is a marriage decided by CheckMarriage.
type Match struct {
	A family.PersonID `json:"a"`
	B family.PersonID `json:"b"`
}

// Marriageable reports whether p may wed in year: alive, single and within
// the theme's marriage ages.
func (r *Rules) Marriageable(p *family.Person, year int) bool {
	m := r.Theme.Marriage
	if !p.Alive() || p.Married() {
		return false
	}
	age := p.Age(year)
	return age >= m.MinAge && age <= m.MaxAge
}

// CheckMarriage pairs eligible singles from the pool. Men are visited in
// ascending identifier order; each draws once against the marriage rate and,
// on success, once more to choose among the women still free who are not
// within the forbidden degree of kinship.
func (r *Rules) CheckMarriage(tree *family.Tree, pool []family.PersonID, year int, src entropy.Source) []Match {
	var men, women []*family.Person
	for _, id := range sortedUnique(pool) {
		p, ok := tree.Person(id)
		if !ok || !r.Marriageable(p, year) {
			continue
		}
		if p.Sex == family.SexMale {
			men = append(men, p)
		} else {
			women = append(women, p)
		}
	}

	taken := make(map[family.PersonID]bool)
	var out []Match
	for _, man := range men {
		var candidates []*family.Person
		for _, w := range women {
			if taken[w.ID] || tree.Related(man.ID, w.ID, r.Theme.Marriage.KinshipDegree) {
				continue
			}
			candidates = append(candidates, w)
		}
		if len(candidates) == 0 {
			continue
		}
		if !entropy.Chance(src, compound(r.Theme.Marriage.Rate, r.years())) {
			continue
		}
		bride := candidates[src.Intn(len(candidates))]
		taken[bride.ID] = true
		out = append(out, Match{A: man.ID, B: bride.ID})
	}
	return out
}

// SeeksOutsider reports whether an unmatched single marries outside the
// dynasty this turn.
func (r *Rules) SeeksOutsider(p *family.Person, year int, src entropy.Source) bool {
	if !r.Marriageable(p, year) {
		return false
	}
	return entropy.Chance(src, compound(r.Theme.Marriage.OutsiderRate, r.years()))
}

// Suitor generates an outsider of the opposite sex, of marriageable age and
// close in age to member, carrying a family name from the theme.
func (r *Rules) Suitor(member *family.Person, year int, src entropy.Source) *family.Person {
	m := r.Theme.Marriage
	age := member.Age(year) + src.Intn(11) - 5
	age = min(max(age, m.MinAge), m.MaxAge)

	sex := member.Sex.Opposite()
	families := r.Theme.Names.Family
	return &family.Person{
		GivenName:  r.givenName(sex, src),
		FamilyName: families[src.Intn(len(families))],
		Sex:        sex,
		BirthYear:  year - age,
		Traits:     r.inheritTraits(nil, nil, src),
		Skills: family.Skills{
			Diplomacy:   src.Intn(family.MaxSkill/2 + 1),
			Stewardship: src.Intn(family.MaxSkill/2 + 1),
			Martial:     src.Intn(family.MaxSkill/2 + 1),
			Intrigue:    src.Intn(family.MaxSkill/2 + 1),
		},
	}
}

func sortedUnique(ids []family.PersonID) []family.PersonID {
	out := slices.Clone(ids)
	slices.Sort(out)
	return slices.Compact(out)
}
