package persistence

import (
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/dynasty/internal/engine"
	"github.com/talgya/dynasty/internal/succession"
	"github.com/talgya/dynasty/internal/theme"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "dynasty.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func advance(t *testing.T, p *engine.Pipeline, turns int) {
	t.Helper()
	for range turns {
		_, err := p.RunTurn()
		require.NoError(t, err)
	}
}

func TestSaveAndLoadDynasty(t *testing.T) {
	db := openTestDB(t)
	d, err := engine.NewDynasty("Voss", theme.Default(), 42, engine.Founding{Year: 1190})
	require.NoError(t, err)
	d.Laws["County of Dunmore"] = succession.Law{Kind: succession.Gavelkind, DivisionCount: 2}

	p := engine.NewPipeline(d, nil)
	advance(t, p, 10)
	require.NoError(t, db.SaveDynasty(d))
	advance(t, p, 10)
	require.NoError(t, db.SaveDynasty(d))
	require.NoError(t, db.SaveDynasty(d), "saving twice appends nothing")

	loaded, err := db.LoadDynasty(d.ID, theme.Default())
	require.NoError(t, err)
	assert.Equal(t, d.Meta(), loaded.Meta())
	assert.Equal(t, d.Tree.Snapshot(), loaded.Tree.Snapshot())
	assert.Equal(t, d.Log.LastSeq(), loaded.Log.LastSeq())

	want, err := d.Log.MarshalJSONL()
	require.NoError(t, err)
	got, err := loaded.Log.MarshalJSONL()
	require.NoError(t, err)
	assert.Equal(t, string(want), string(got))

	// The stored dynasty continues exactly as the one left in memory.
	advance(t, p, 10)
	advance(t, engine.NewPipeline(loaded, nil), 10)
	want, err = d.Log.MarshalJSONL()
	require.NoError(t, err)
	got, err = loaded.Log.MarshalJSONL()
	require.NoError(t, err)
	assert.Equal(t, string(want), string(got))
}

func TestLoadDynastyErrors(t *testing.T) {
	db := openTestDB(t)
	_, err := db.LoadDynasty(uuid.New(), theme.Default())
	assert.ErrorIs(t, err, ErrNotFound)

	d, err := engine.NewDynasty("Voss", theme.Default(), 1, engine.Founding{})
	require.NoError(t, err)
	require.NoError(t, db.SaveDynasty(d))

	other := *theme.Default()
	other.Name = "steppe"
	_, err = db.LoadDynasty(d.ID, &other)
	assert.Error(t, err)
}

func TestDynastiesAndEvents(t *testing.T) {
	db := openTestDB(t)
	for _, house := range []string{"Voss", "Blackwood"} {
		d, err := engine.NewDynasty(house, theme.Default(), 9, engine.Founding{Year: 1190})
		require.NoError(t, err)
		advance(t, engine.NewPipeline(d, nil), 15)
		require.NoError(t, db.SaveDynasty(d))
	}

	metas, err := db.Dynasties()
	require.NoError(t, err)
	require.Len(t, metas, 2)
	assert.Equal(t, "Blackwood", metas[0].House)
	assert.Equal(t, 15, metas[1].Turn)

	all, err := db.Events(metas[1].ID, 0, -1)
	require.NoError(t, err)
	if len(all) > 2 {
		page, err := db.Events(metas[1].ID, all[0].Seq, 2)
		require.NoError(t, err)
		assert.Equal(t, all[1:3], page)
	}
}

func TestChronicleAndMeta(t *testing.T) {
	db := openTestDB(t)
	id := engine.DynastyID("Voss", 1)
	require.NoError(t, db.SaveChronicle(id, 1, "A son is born."))
	require.NoError(t, db.SaveChronicle(id, 2, "The old duke dies."))
	require.NoError(t, db.SaveChronicle(id, 2, "The old duke is dead."))

	entries, err := db.Chronicle(id, 10)
	require.NoError(t, err)
	assert.Equal(t, []ChronicleEntry{{Seq: 2, Text: "The old duke is dead."}, {Seq: 1, Text: "A son is born."}}, entries)

	require.NoError(t, db.SaveMeta("schema", "1"))
	v, err := db.GetMeta("schema")
	require.NoError(t, err)
	assert.Equal(t, "1", v)
}
