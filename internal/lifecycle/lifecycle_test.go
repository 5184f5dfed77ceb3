package lifecycle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/dynasty/internal/entropy"
	"github.com/talgya/dynasty/internal/family"
	"github.com/talgya/dynasty/internal/theme"
)

// stubSource returns the same value for every draw and counts draws.
type stubSource struct {
	value float64
	draws int
}

func (s *stubSource) Float64() float64     { s.draws++; return s.value }
func (s *stubSource) Intn(int) int         { s.draws++; return 0 }
func (s *stubSource) NormFloat64() float64 { s.draws++; return 0 }

func flatRules(t *testing.T) *Rules {
	t.Helper()
	r := New(theme.Default(), 1)
	r.Hardship = nil
	return r
}

func couple(t *testing.T) (*family.Tree, family.PersonID, family.PersonID) {
	t.Helper()
	tree := family.NewTree()
	require.NoError(t, tree.AddFounder(&family.Person{
		GivenName: "Aldric", FamilyName: "Voss", Sex: family.SexMale, BirthYear: 1170,
		Skills: family.Skills{Diplomacy: 10, Stewardship: 14, Martial: 8, Intrigue: 4},
	}))
	founder, _ := tree.Founder()
	wife, err := tree.MarryIn(founder.ID, &family.Person{
		GivenName: "Astrid", FamilyName: "Thornwood", Sex: family.SexFemale, BirthYear: 1172,
		Skills: family.Skills{Diplomacy: 12, Stewardship: 10, Martial: 4, Intrigue: 8},
	})
	require.NoError(t, err)
	return tree, founder.ID, wife
}

func TestDeathChanceGrowsWithAge(t *testing.T) {
	r := flatRules(t)
	m := r.Theme.Mortality
	p := &family.Person{BirthYear: 1100}

	assert.InDelta(t, m.ChildRate, r.DeathChance(p, 1102), 1e-9)
	assert.InDelta(t, m.BaseRate, r.DeathChance(p, 1120), 1e-9)

	prev := 0.0
	for age := m.BaselineAge; age <= 150; age++ {
		chance := r.DeathChance(p, 1100+age)
		assert.GreaterOrEqual(t, chance, prev, "age %d", age)
		assert.LessOrEqual(t, chance, m.MaxRate)
		prev = chance
	}
	assert.InDelta(t, m.MaxRate, prev, 1e-9)
}

func TestDeathChanceTraitModifiers(t *testing.T) {
	r := flatRules(t)
	plain := &family.Person{BirthYear: 1100}
	sickly := &family.Person{BirthYear: 1100, Traits: family.NewTraitSet(family.TraitSickly)}
	robust := &family.Person{BirthYear: 1100, Traits: family.NewTraitSet(family.TraitRobust)}

	base := r.DeathChance(plain, 1150)
	assert.InDelta(t, base*2.0, r.DeathChance(sickly, 1150), 1e-9)
	assert.InDelta(t, base*0.7, r.DeathChance(robust, 1150), 1e-9)
}

func TestDeathChanceOfTheDead(t *testing.T) {
	r := flatRules(t)
	died := 1140
	p := &family.Person{BirthYear: 1100, DeathYear: &died}
	assert.Zero(t, r.DeathChance(p, 1150))

	src := &stubSource{}
	assert.False(t, r.CheckDeath(p, 1150, src))
	assert.Zero(t, src.draws)
}

func TestCheckDeath(t *testing.T) {
	r := flatRules(t)
	p := &family.Person{BirthYear: 1100}

	assert.True(t, r.CheckDeath(p, 1150, &stubSource{value: 0}))
	assert.False(t, r.CheckDeath(p, 1150, &stubSource{value: 0.99}))
}

func TestCheckDeathCompoundsLongTurns(t *testing.T) {
	cfg := theme.Default()
	cfg.TurnLength = 10
	r := New(cfg, 1)
	r.Hardship = nil

	p := &family.Person{BirthYear: 1100}
	annual := r.DeathChance(p, 1150)
	// A draw just above the annual chance still kills over a decade.
	assert.True(t, r.CheckDeath(p, 1150, &stubSource{value: annual * 1.5}))
}

func TestHardship(t *testing.T) {
	cfg := theme.Hardship{Amplitude: 0.4, Frequency: 0.08}
	a := NewHardship(cfg, 99)
	b := NewHardship(cfg, 99)

	severe := 0
	for year := 1000; year < 1400; year++ {
		m := a.Multiplier(year)
		require.Equal(t, m, b.Multiplier(year), "year %d", year)
		assert.GreaterOrEqual(t, m, 0.6)
		assert.LessOrEqual(t, m, 1.4)
		if a.Severe(year) {
			severe++
		}
	}
	assert.Less(t, severe, 400)

	flat := NewHardship(theme.Hardship{}, 99)
	assert.Equal(t, 1.0, flat.Multiplier(1200))
	var none *Hardship
	assert.Equal(t, 1.0, none.Multiplier(1200))
}

func TestCheckBirth(t *testing.T) {
	r := flatRules(t)

	t.Run("eligible couple has a child", func(t *testing.T) {
		tree, father, mother := couple(t)
		child, born, err := r.CheckBirth(tree, mother, father, 1200, &stubSource{value: 0})
		require.NoError(t, err)
		require.True(t, born)
		require.NotNil(t, child)

		assert.Equal(t, 1200, child.BirthYear)
		assert.Equal(t, "Voss", child.FamilyName, "family name follows the father")
		assert.Equal(t, family.SexMale, child.Sex)
		assert.Equal(t, r.Theme.Names.Male[0], child.GivenName)
		assert.Equal(t, family.Skills{Diplomacy: 11, Stewardship: 12, Martial: 6, Intrigue: 6}, child.Skills)

		id, err := tree.RecordBirth(mother, father, child)
		require.NoError(t, err)
		assert.NotZero(t, id)
	})

	t.Run("past fertile age consumes no draws", func(t *testing.T) {
		tree, father, mother := couple(t)
		src := &stubSource{}
		child, born, err := r.CheckBirth(tree, mother, father, 1242, src)
		require.NoError(t, err)
		assert.False(t, born)
		assert.Nil(t, child)
		assert.Zero(t, src.draws)
	})

	t.Run("unwed couple", func(t *testing.T) {
		tree, father, mother := couple(t)
		son, err := tree.RecordBirth(father, mother, &family.Person{GivenName: "Cedric", Sex: family.SexMale, BirthYear: 1195})
		require.NoError(t, err)
		daughterInLaw, err := tree.MarryIn(son, &family.Person{GivenName: "Wenna", Sex: family.SexFemale, BirthYear: 1196})
		require.NoError(t, err)

		_, born, err := r.CheckBirth(tree, daughterInLaw, father, 1215, &stubSource{})
		require.NoError(t, err)
		assert.False(t, born)

		cfg := *r.Theme
		cfg.Fertility.AllowUnwed = true
		lax := &Rules{Theme: &cfg}
		_, born, err = lax.CheckBirth(tree, daughterInLaw, father, 1215, &stubSource{})
		require.NoError(t, err)
		assert.True(t, born)
	})

	t.Run("unknown parent", func(t *testing.T) {
		tree, father, _ := couple(t)
		_, _, err := r.CheckBirth(tree, 404, father, 1200, &stubSource{})
		assert.ErrorIs(t, err, family.ErrUnknownParent)
	})
}

func TestCheckBirthIsReproducible(t *testing.T) {
	r := New(theme.Default(), 5)
	tree, father, mother := couple(t)

	var first, second []*family.Person
	for _, out := range []*[]*family.Person{&first, &second} {
		src := entropy.New(17)
		for year := 1190; year < 1215; year++ {
			child, born, err := r.CheckBirth(tree, mother, father, year, src)
			require.NoError(t, err)
			if born {
				*out = append(*out, child)
			}
		}
	}
	assert.Equal(t, first, second)
	assert.NotEmpty(t, first)
}

func TestInheritTraits(t *testing.T) {
	cfg := theme.Default()
	cfg.Traits = map[string]theme.TraitRule{
		"strong": {InheritOne: 1, InheritBoth: 1},
		"genius": {InheritBoth: 1},
	}
	r := New(cfg, 1)
	strongGenius := family.NewTraitSet(family.TraitStrong, family.TraitGenius)

	got := r.inheritTraits(strongGenius, nil, &stubSource{value: 0.5})
	assert.Equal(t, family.NewTraitSet(family.TraitStrong), got)

	got = r.inheritTraits(strongGenius, strongGenius, &stubSource{value: 0.5})
	assert.Equal(t, strongGenius, got)
}

func TestCheckMarriage(t *testing.T) {
	r := flatRules(t)
	tree, father, mother := couple(t)
	son, err := tree.RecordBirth(father, mother, &family.Person{GivenName: "Cedric", Sex: family.SexMale, BirthYear: 1195})
	require.NoError(t, err)
	daughter, err := tree.RecordBirth(father, mother, &family.Person{GivenName: "Calla", Sex: family.SexFemale, BirthYear: 1197})
	require.NoError(t, err)

	t.Run("siblings never wed", func(t *testing.T) {
		matches := r.CheckMarriage(tree, []family.PersonID{daughter, son}, 1215, &stubSource{value: 0})
		assert.Empty(t, matches)
	})

	t.Run("married and minors are skipped", func(t *testing.T) {
		matches := r.CheckMarriage(tree, []family.PersonID{father, mother, son}, 1205, &stubSource{value: 0})
		assert.Empty(t, matches)
	})

	t.Run("unrelated singles wed", func(t *testing.T) {
		clone := tree.Clone()
		ward, err := clone.MarryIn(son, &family.Person{GivenName: "Wenna", Sex: family.SexFemale, BirthYear: 1196})
		require.NoError(t, err)
		_, err = clone.RecordDeath(son, 1214)
		require.NoError(t, err)

		pool := []family.PersonID{daughter, son, ward, ward}
		assert.Empty(t, r.CheckMarriage(clone, pool, 1215, &stubSource{value: 0}), "no living single man")

		suitor := r.Suitor(mustPerson(t, clone, daughter), 1215, &stubSource{value: 0})
		groom, err := clone.MarryIn(ward, suitor)
		require.NoError(t, err)
		_, err = clone.RecordDeath(ward, 1216)
		require.NoError(t, err)

		matches := r.CheckMarriage(clone, []family.PersonID{groom, daughter}, 1217, &stubSource{value: 0})
		assert.Equal(t, []Match{{A: groom, B: daughter}}, matches)

		cfg := *r.Theme
		cfg.Marriage.Rate = 0
		strict := &Rules{Theme: &cfg}
		assert.Empty(t, strict.CheckMarriage(clone, []family.PersonID{groom, daughter}, 1217, &stubSource{value: 0}))
	})

	t.Run("kinship degree zero forbids no match", func(t *testing.T) {
		cfg := *r.Theme
		cfg.Marriage.KinshipDegree = 0
		open := &Rules{Theme: &cfg}
		matches := open.CheckMarriage(tree, []family.PersonID{daughter, son}, 1215, &stubSource{value: 0})
		assert.Equal(t, []Match{{A: son, B: daughter}}, matches)
	})
}

func TestSuitor(t *testing.T) {
	r := flatRules(t)
	bride := &family.Person{GivenName: "Calla", Sex: family.SexFemale, BirthYear: 1197}

	for seed := range int64(5) {
		s := r.Suitor(bride, 1215, entropy.New(seed))
		assert.Equal(t, family.SexMale, s.Sex)
		assert.True(t, r.Marriageable(s, 1215))
		assert.Contains(t, r.Theme.Names.Family, s.FamilyName)
		assert.Contains(t, r.Theme.Names.Male, s.GivenName)
	}
}

func mustPerson(t *testing.T, tree *family.Tree, id family.PersonID) *family.Person {
	t.Helper()
	p, ok := tree.Person(id)
	require.True(t, ok)
	return p
}
