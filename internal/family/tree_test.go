package family

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func person(given string, sex Sex, born int) *Person {
	return &Person{GivenName: given, FamilyName: "Voss", Sex: sex, BirthYear: born}
}

// foundedTree returns a tree with a married founding couple.
func foundedTree(t *testing.T) (*Tree, PersonID, PersonID) {
	t.Helper()
	tree := NewTree()
	require.NoError(t, tree.AddFounder(person("Aldric", SexMale, 1170)))
	founder, _ := tree.Founder()
	wife, err := tree.MarryIn(founder.ID, person("Astrid", SexFemale, 1172))
	require.NoError(t, err)
	return tree, founder.ID, wife
}

func birth(t *testing.T, tree *Tree, a, b PersonID, given string, sex Sex, born int) PersonID {
	t.Helper()
	id, err := tree.RecordBirth(a, b, person(given, sex, born))
	require.NoError(t, err)
	return id
}

func TestAddFounder(t *testing.T) {
	tree := NewTree()
	require.NoError(t, tree.AddFounder(person("Aldric", SexMale, 1170)))

	err := tree.AddFounder(person("Bram", SexMale, 1171))
	assert.ErrorIs(t, err, ErrAlreadyFounded)
	assert.Equal(t, 1, tree.Len())
}

func TestRecordBirth(t *testing.T) {
	tree, father, mother := foundedTree(t)

	t.Run("links both parents in birth order", func(t *testing.T) {
		first := birth(t, tree, father, mother, "Cedric", SexMale, 1195)
		second := birth(t, tree, mother, father, "Calla", SexFemale, 1197)

		f, _ := tree.Person(father)
		m, _ := tree.Person(mother)
		assert.Equal(t, []PersonID{first, second}, f.Children)
		assert.Equal(t, []PersonID{first, second}, m.Children)

		c, _ := tree.Person(second)
		require.NotNil(t, c.Mother)
		require.NotNil(t, c.Father)
		assert.Equal(t, mother, *c.Mother)
		assert.Equal(t, father, *c.Father)
	})

	t.Run("child born before a recorded sibling", func(t *testing.T) {
		before := tree.Len()
		_, err := tree.RecordBirth(father, mother, person("X", SexMale, 1196))
		assert.ErrorIs(t, err, ErrBirthOrder)
		assert.Equal(t, before, tree.Len())

		f, _ := tree.Person(father)
		assert.Len(t, f.Children, 2)

		twin := birth(t, tree, father, mother, "Corwin", SexMale, 1197)
		assert.Equal(t, twin, f.Children[2], "same-year births keep insertion order")
	})

	t.Run("unknown parent", func(t *testing.T) {
		_, err := tree.RecordBirth(father, 999, person("X", SexMale, 1199))
		assert.ErrorIs(t, err, ErrUnknownParent)
	})

	t.Run("dead parent", func(t *testing.T) {
		clone := tree.Clone()
		_, err := clone.RecordDeath(mother, 1198)
		require.NoError(t, err)
		_, err = clone.RecordBirth(father, mother, person("X", SexMale, 1199))
		assert.ErrorIs(t, err, ErrUnknownParent)
	})

	t.Run("same-sex parents", func(t *testing.T) {
		_, err := tree.RecordBirth(father, father, person("X", SexMale, 1199))
		assert.ErrorIs(t, err, ErrInvalidParents)
	})
}

func TestRecordMarriage(t *testing.T) {
	tree, father, mother := foundedTree(t)
	son := birth(t, tree, father, mother, "Cedric", SexMale, 1195)
	daughter := birth(t, tree, father, mother, "Calla", SexFemale, 1197)

	sonWife, err := tree.MarryIn(son, person("Elara", SexFemale, 1196))
	require.NoError(t, err)
	daughterHusband, err := tree.MarryIn(daughter, person("Doran", SexMale, 1194))
	require.NoError(t, err)

	t.Run("already married to others", func(t *testing.T) {
		err := tree.RecordMarriage(son, daughterHusband)
		assert.ErrorIs(t, err, ErrAlreadyMarried)

		s, _ := tree.Person(son)
		h, _ := tree.Person(daughterHusband)
		assert.Equal(t, sonWife, *s.Spouse)
		assert.Equal(t, daughter, *h.Spouse)
	})

	t.Run("same person", func(t *testing.T) {
		assert.ErrorIs(t, tree.RecordMarriage(son, son), ErrSamePerson)
	})

	t.Run("unknown person", func(t *testing.T) {
		assert.ErrorIs(t, tree.RecordMarriage(son, 4242), ErrUnknownPerson)
	})

	t.Run("dead party", func(t *testing.T) {
		clone := tree.Clone()
		_, err := clone.RecordDeath(sonWife, 1220)
		require.NoError(t, err)
		assert.ErrorIs(t, clone.RecordMarriage(sonWife, father), ErrDeadParty)
	})
}

func TestRecordDeath(t *testing.T) {
	tree, father, mother := foundedTree(t)
	require.NoError(t, tree.CreateTitle("Duchy of Ashford"))
	require.NoError(t, tree.CreateTitle("County of Dunmore"))
	require.NoError(t, tree.SetTitleHolder("County of Dunmore", father))
	require.NoError(t, tree.SetTitleHolder("Duchy of Ashford", father))

	f, _ := tree.Person(father)
	assert.Equal(t, []string{"Duchy of Ashford", "County of Dunmore"}, f.Titles)

	t.Run("before birth", func(t *testing.T) {
		_, err := tree.RecordDeath(father, 1100)
		assert.ErrorIs(t, err, ErrDeathBeforeBirth)
		assert.True(t, f.Alive())
	})

	vacated, err := tree.RecordDeath(father, 1230)
	require.NoError(t, err)
	assert.Equal(t, []string{"Duchy of Ashford", "County of Dunmore"}, vacated)

	m, _ := tree.Person(mother)
	assert.Nil(t, m.Spouse)
	assert.True(t, m.Alive())
	assert.Equal(t, []PersonID{father}, m.FormerSpouses)

	_, held := tree.TitleHolder("Duchy of Ashford")
	assert.False(t, held)
	last, ok := tree.LastHolder("Duchy of Ashford")
	require.True(t, ok)
	assert.Equal(t, father, last.ID)
	assert.Equal(t, []string{"Duchy of Ashford", "County of Dunmore"}, tree.VacantTitles())

	_, err = tree.RecordDeath(father, 1231)
	assert.ErrorIs(t, err, ErrAlreadyDead)
	_, err = tree.RecordDeath(777, 1231)
	assert.ErrorIs(t, err, ErrUnknownPerson)

	require.NoError(t, tree.Validate())
}

func TestSetTitleHolderRejectsDeadHeir(t *testing.T) {
	tree, father, mother := foundedTree(t)
	require.NoError(t, tree.CreateTitle("Duchy of Ashford"))
	_, err := tree.RecordDeath(mother, 1210)
	require.NoError(t, err)

	err = tree.SetTitleHolder("Duchy of Ashford", mother)
	assert.ErrorIs(t, err, ErrDeadHeir)
	assert.ErrorIs(t, tree.SetTitleHolder("Kingdom", father), ErrUnknownTitle)

	require.NoError(t, tree.SetTitleHolder("Duchy of Ashford", father))
	holder, ok := tree.TitleHolder("Duchy of Ashford")
	require.True(t, ok)
	assert.Equal(t, father, holder.ID)
}

func TestDeathYearNeverPrecedesBirth(t *testing.T) {
	tree, father, mother := foundedTree(t)
	kids := []PersonID{
		birth(t, tree, father, mother, "Cedric", SexMale, 1195),
		birth(t, tree, father, mother, "Calla", SexFemale, 1197),
		birth(t, tree, father, mother, "Doran", SexMale, 1199),
	}
	years := []int{1160, 1196, 1250, 1190, 1199}
	ids := append([]PersonID{father, mother}, kids...)
	for i, id := range ids {
		_, _ = tree.RecordDeath(id, years[i])
	}
	for _, p := range tree.All() {
		if p.DeathYear != nil {
			assert.GreaterOrEqual(t, *p.DeathYear, p.BirthYear, "person %d", p.ID)
		}
	}
}

func TestLivingDescendantsOrder(t *testing.T) {
	tree, father, mother := foundedTree(t)
	a := birth(t, tree, father, mother, "Cedric", SexMale, 1195)
	b := birth(t, tree, father, mother, "Calla", SexFemale, 1197)
	aw, err := tree.MarryIn(a, person("Elara", SexFemale, 1196))
	require.NoError(t, err)
	bh, err := tree.MarryIn(b, person("Doran", SexMale, 1194))
	require.NoError(t, err)
	a1 := birth(t, tree, a, aw, "Erik", SexMale, 1215)
	b1 := birth(t, tree, b, bh, "Freya", SexFemale, 1214)
	a2 := birth(t, tree, a, aw, "Finn", SexMale, 1217)

	_, err = tree.RecordDeath(a, 1220)
	require.NoError(t, err)

	collect := func() []PersonID {
		var out []PersonID
		for p := range tree.LivingDescendants(father) {
			out = append(out, p.ID)
		}
		return out
	}
	want := []PersonID{b, a1, a2, b1}
	assert.Equal(t, want, collect())
	assert.Equal(t, want, collect(), "sequence must be restartable")

	var first []PersonID
	for p := range tree.LivingDescendants(father) {
		first = append(first, p.ID)
		break
	}
	assert.Equal(t, []PersonID{b}, first)
}

func TestRelated(t *testing.T) {
	tree, father, mother := foundedTree(t)
	a := birth(t, tree, father, mother, "Cedric", SexMale, 1195)
	b := birth(t, tree, father, mother, "Calla", SexFemale, 1197)
	aw, _ := tree.MarryIn(a, person("Elara", SexFemale, 1196))

	assert.True(t, tree.Related(a, b, 3))
	assert.True(t, tree.Related(father, a, 3))
	assert.False(t, tree.Related(aw, b, 3))
	assert.False(t, tree.Related(father, mother, 3))

	assert.False(t, tree.Related(a, b, 0), "depth zero ignores shared parents")
	assert.True(t, tree.Related(a, a, 0))
}

func TestIndexEqualsTraversal(t *testing.T) {
	tree, father, mother := foundedTree(t)
	a := birth(t, tree, father, mother, "Cedric", SexMale, 1195)
	aw, _ := tree.MarryIn(a, person("Elara", SexFemale, 1196))
	birth(t, tree, a, aw, "Erik", SexMale, 1215)
	childless, _ := tree.MarryIn(birth(t, tree, father, mother, "Calla", SexFemale, 1197), person("Doran", SexMale, 1194))
	_, err := tree.RecordDeath(a, 1230)
	require.NoError(t, err)
	_, err = tree.RecordDeath(childless, 1231)
	require.NoError(t, err)

	reachable := tree.Reachable()
	assert.Len(t, reachable, tree.Len())
	for _, p := range tree.All() {
		assert.True(t, reachable[p.ID], "person %d", p.ID)
	}
	require.NoError(t, tree.Validate())
}

func TestSnapshotRoundTrip(t *testing.T) {
	tree, father, mother := foundedTree(t)
	require.NoError(t, tree.CreateTitle("Duchy of Ashford"))
	require.NoError(t, tree.SetTitleHolder("Duchy of Ashford", father))
	a := birth(t, tree, father, mother, "Cedric", SexMale, 1195)
	p, _ := tree.Person(a)
	p.Traits = NewTraitSet(TraitBrave, TraitStrong)
	_, err := tree.RecordDeath(father, 1230)
	require.NoError(t, err)
	require.NoError(t, tree.SetTitleHolder("Duchy of Ashford", a))

	data, err := json.Marshal(tree.Snapshot())
	require.NoError(t, err)
	var snap Snapshot
	require.NoError(t, json.Unmarshal(data, &snap))

	restored, err := Restore(snap)
	require.NoError(t, err)
	assert.Equal(t, tree.Snapshot(), restored.Snapshot())

	holder, ok := restored.TitleHolder("Duchy of Ashford")
	require.True(t, ok)
	assert.Equal(t, a, holder.ID)
	assert.True(t, holder.HasTrait(TraitBrave))
}

func TestRestoreRejectsBrokenSnapshot(t *testing.T) {
	tree, father, _ := foundedTree(t)
	snap := tree.Snapshot()
	stray := father + 100
	snap.Persons[0].Children = append(snap.Persons[0].Children, stray)

	_, err := Restore(snap)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvariant))
}

func TestRestoreRejectsAncestryCycle(t *testing.T) {
	tree, father, mother := foundedTree(t)
	son := birth(t, tree, father, mother, "Cedric", SexMale, 1195)
	snap := tree.Snapshot()
	for i := range snap.Persons {
		switch snap.Persons[i].ID {
		case father:
			snap.Persons[i].Father = &son
		case son:
			snap.Persons[i].Children = append(snap.Persons[i].Children, father)
		}
	}

	_, err := Restore(snap)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvariant))
	assert.Contains(t, err.Error(), "is their own ancestor")
}

func TestCloneIsIndependent(t *testing.T) {
	tree, father, mother := foundedTree(t)
	clone := tree.Clone()
	birth(t, clone, father, mother, "Cedric", SexMale, 1195)

	f, _ := tree.Person(father)
	assert.Empty(t, f.Children)
	assert.Equal(t, 2, tree.Len())
	assert.Equal(t, 3, clone.Len())
}
