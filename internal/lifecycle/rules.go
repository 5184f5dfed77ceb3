// Package lifecycle holds the probabilistic rules that age a dynasty: who
// dies, who is born and who marries in a given year. Every rule is a pure
// function of the tree state, the theme and an injected random source.
package lifecycle

import (
	"math"

	"github.com/talgya/dynasty/internal/entropy"
	"github.com/talgya/dynasty/internal/family"
	"github.com/talgya/dynasty/internal/theme"
)

// Rules binds a theme to a dynasty's hardship curve.
type Rules struct {
	Theme    *theme.Config
	Hardship *Hardship
}

// New returns the rules for one dynasty. The hardship curve is seeded from
// the dynasty seed so that famine years replay.
func New(cfg *theme.Config, seed int64) *Rules {
	return &Rules{
		Theme:    cfg,
		Hardship: NewHardship(cfg.Hardship, seed+entropy.StreamHardship),
	}
}

// years is the number of simulated years a single check covers.
func (r *Rules) years() int {
	return max(r.Theme.TurnLength, 1)
}

// DeathChance returns the annual probability that p dies in year.
// Past the baseline age it grows with every year of age; traits and the
// year's hardship scale it, and the result never exceeds the theme cap.
func (r *Rules) DeathChance(p *family.Person, year int) float64 {
	if !p.Alive() {
		return 0
	}
	m := r.Theme.Mortality
	age := p.Age(year)

	rate := m.BaseRate
	switch {
	case age < m.ChildAge:
		rate = m.ChildRate
	case age > m.BaselineAge:
		rate += m.GrowthPerYear * float64(age-m.BaselineAge)
	}
	for _, t := range p.Traits {
		rate *= modifier(r.Theme.TraitRule(t.String()).Mortality)
	}
	rate *= r.Hardship.Multiplier(year)
	return math.Min(rate, m.MaxRate)
}

// CheckDeath reports whether p dies during the turn starting in year.
// One draw is consumed for every living person.
func (r *Rules) CheckDeath(p *family.Person, year int, src entropy.Source) bool {
	if !p.Alive() {
		return false
	}
	return entropy.Chance(src, compound(r.DeathChance(p, year), r.years()))
}

// compound turns an annual probability into the probability of at least one
// occurrence over n years.
func compound(annual float64, n int) float64 {
	if n <= 1 {
		return annual
	}
	return 1 - math.Pow(1-annual, float64(n))
}

// modifier treats an unset trait multiplier as neutral.
func modifier(v float64) float64 {
	if v == 0 {
		return 1
	}
	return v
}
