package succession

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/talgya/dynasty/internal/entropy"
	"github.com/talgya/dynasty/internal/family"
)

// Outcome is the result of resolving a title. Exactly one of Heir or Crisis
// is set; a crisis is a modelled result, not an error.
type Outcome struct {
	Title       string            `json:"title"`
	Law         Law               `json:"law"`
	Predecessor *family.PersonID  `json:"predecessor,omitempty"`
	Heir        *family.PersonID  `json:"heir,omitempty"`
	CoHeirs     []family.PersonID `json:"co_heirs,omitempty"`  // Gavelkind division, heir first
	Claimants   []family.PersonID `json:"claimants,omitempty"` // Full ranking, heir first
	Crisis      bool              `json:"crisis"`
	Reason      string            `json:"reason,omitempty"`
}

// Resolve computes the next holder of a title under law.
//
// The predecessor is the current holder when the title is held (giving the
// heir presumptive) and the last holder when it is vacant. src is consulted
// only by the elective law; when nil, a source seeded from law.Seed is used.
func Resolve(tree *family.Tree, title string, law Law, year int, src entropy.Source) (Outcome, error) {
	info, ok := tree.Title(title)
	if !ok {
		return Outcome{}, family.ErrUnknownTitle
	}
	if err := law.Validate(); err != nil {
		return Outcome{}, fmt.Errorf("resolve %q: %w", title, err)
	}

	out := Outcome{Title: title, Law: law}
	pred := info.Holder
	if pred == nil {
		pred = info.LastHolder
	}
	if pred != nil {
		out.Predecessor = ptr(*pred)
	}

	var ranked []*family.Person
	switch law.Kind {
	case Primogeniture, Ultimogeniture:
		ranked = rankKin(tree, pred, law)
	case Gavelkind:
		ranked = divideKin(tree, pred, law)
	case Tanistry:
		ranked = rankTanistry(tree, pred, law, year)
	case Elective:
		if src == nil {
			src = entropy.New(law.Seed)
		}
		ranked = rankElective(tree, pred, law, year, src)
	}

	if len(ranked) == 0 {
		out.Crisis = true
		out.Reason = crisisReason(law, pred)
		return out, nil
	}
	for _, p := range ranked {
		out.Claimants = append(out.Claimants, p.ID)
	}
	out.Heir = ptr(ranked[0].ID)
	if law.Kind == Gavelkind {
		out.CoHeirs = slices.Clone(out.Claimants)
	}
	return out, nil
}

func crisisReason(law Law, pred *family.PersonID) string {
	switch {
	case law.Kind == Tanistry || law.Kind == Elective:
		return "no eligible member of the dynasty"
	case pred == nil:
		return "title has never been held"
	}
	return fmt.Sprintf("no living relative within %d degrees", law.maxDegree())
}

// kin is a living relative found by the family search.
type kin struct {
	p     *family.Person
	tier  int // 0 for descendants, d for collaterals through ancestors d generations up
	gen   int // generations below the tier's root
	order int // discovery order, which follows birth order within a family
}

// kinGroups searches outward from the predecessor: its descendants first,
// then the lines of its parents, grandparents and so on up to the law's
// maximum degree. Each group holds the living relatives of one generation of
// one tier, in discovery order; groups are ordered nearest first.
func kinGroups(tree *family.Tree, pred *family.PersonID, law Law) [][]kin {
	if pred == nil {
		return nil
	}
	seen := map[family.PersonID]bool{*pred: true}
	order := 0
	var groups [][]kin

	collect := func(tier int, roots []family.PersonID) {
		byGen := map[int][]kin{}
		maxGen := 0
		for _, root := range roots {
			for p, gen := range tree.Descendants(root) {
				if seen[p.ID] {
					continue
				}
				seen[p.ID] = true
				order++
				if !p.Alive() {
					continue
				}
				byGen[gen] = append(byGen[gen], kin{p: p, tier: tier, gen: gen, order: order})
				maxGen = max(maxGen, gen)
			}
		}
		for gen := 1; gen <= maxGen; gen++ {
			if len(byGen[gen]) > 0 {
				groups = append(groups, byGen[gen])
			}
		}
	}

	collect(0, []family.PersonID{*pred})
	for degree := 1; degree <= law.maxDegree(); degree++ {
		ancestors := tree.AncestorsAt(*pred, degree)
		if len(ancestors) == 0 {
			break
		}
		for _, a := range ancestors {
			seen[a] = true
		}
		collect(degree, ancestors)
	}
	return groups
}

// rankKin orders every relative for primogeniture and ultimogeniture:
// nearest group first, then gender bucket, then birth order.
func rankKin(tree *family.Tree, pred *family.PersonID, law Law) []*family.Person {
	var out []*family.Person
	for _, group := range kinGroups(tree, pred, law) {
		sorted := slices.Clone(group)
		slices.SortStableFunc(sorted, func(a, b kin) int {
			if c := cmp.Compare(genderBucket(law.Gender, a.p), genderBucket(law.Gender, b.p)); c != 0 {
				return c
			}
			return compareBirth(law.Kind == Ultimogeniture, a, b)
		})
		for _, k := range sorted {
			out = append(out, k.p)
		}
	}
	return out
}

// divideKin returns the co-heirs under gavelkind: every living relative of
// the nearest group, in birth order, capped by the division count.
func divideKin(tree *family.Tree, pred *family.PersonID, law Law) []*family.Person {
	groups := kinGroups(tree, pred, law)
	if len(groups) == 0 {
		return nil
	}
	sorted := slices.Clone(groups[0])
	slices.SortStableFunc(sorted, func(a, b kin) int { return compareBirth(false, a, b) })
	if law.DivisionCount > 0 && len(sorted) > law.DivisionCount {
		sorted = sorted[:law.DivisionCount]
	}
	out := make([]*family.Person, len(sorted))
	for i, k := range sorted {
		out[i] = k.p
	}
	return out
}

func genderBucket(g Gender, p *family.Person) int {
	switch {
	case g == MalePreference && p.Sex == family.SexFemale:
		return 1
	case g == FemalePreference && p.Sex == family.SexMale:
		return 1
	}
	return 0
}

// compareBirth orders by birth year, then by discovery order; reversed puts
// the latest-born first. Siblings are recorded in birth order, so among them
// this is the order of the children sequence.
func compareBirth(reversed bool, a, b kin) int {
	c := cmp.Or(cmp.Compare(a.p.BirthYear, b.p.BirthYear), cmp.Compare(a.order, b.order))
	if reversed {
		return -c
	}
	return c
}

// members returns living blood members of the dynasty other than the
// predecessor who are at least minAge in year.
func members(tree *family.Tree, pred *family.PersonID, minAge, year int) []*family.Person {
	var out []*family.Person
	for _, p := range tree.Living() {
		if pred != nil && p.ID == *pred {
			continue
		}
		if !tree.IsBlood(p.ID) || p.Age(year) < minAge {
			continue
		}
		out = append(out, p)
	}
	return out
}

// rankTanistry orders adult members above the skill threshold by martial plus
// stewardship, the elder winning ties.
func rankTanistry(tree *family.Tree, pred *family.PersonID, law Law, year int) []*family.Person {
	var out []*family.Person
	for _, p := range members(tree, pred, law.MinAge, year) {
		if tanistScore(p) >= law.MinSkill {
			out = append(out, p)
		}
	}
	slices.SortStableFunc(out, func(a, b *family.Person) int {
		return cmp.Or(
			cmp.Compare(tanistScore(b), tanistScore(a)),
			cmp.Compare(a.BirthYear, b.BirthYear),
			cmp.Compare(a.ID, b.ID),
		)
	})
	return out
}

func tanistScore(p *family.Person) int {
	return p.Skills.Martial + p.Skills.Stewardship
}

// Elective vote weights.
const (
	weightDiplomacy   = 1.5
	weightStewardship = 1.0
	weightMartial     = 1.0
	weightIntrigue    = 0.5
)

// rankElective scores every eligible member; draws happen in ascending ID
// order so a fixed source yields a fixed result.
func rankElective(tree *family.Tree, pred *family.PersonID, law Law, year int, src entropy.Source) []*family.Person {
	type scored struct {
		p     *family.Person
		score float64
	}
	var all []scored
	for _, p := range members(tree, pred, law.MinAge, year) {
		s := p.Skills
		score := weightDiplomacy*float64(s.Diplomacy) +
			weightStewardship*float64(s.Stewardship) +
			weightMartial*float64(s.Martial) +
			weightIntrigue*float64(s.Intrigue)
		score += law.RandomFactor * src.Float64()
		all = append(all, scored{p, score})
	}
	slices.SortStableFunc(all, func(a, b scored) int {
		return cmp.Or(cmp.Compare(b.score, a.score), cmp.Compare(a.p.ID, b.p.ID))
	})
	out := make([]*family.Person, len(all))
	for i, s := range all {
		out[i] = s.p
	}
	return out
}

func ptr[T any](v T) *T {
	return &v
}
