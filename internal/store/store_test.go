package store

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/open-filament/catalogbuilder/internal/catalog"
	ferrors "github.com/open-filament/catalogbuilder/internal/foundation/errors"
)

func sampleTree() []*catalog.Producer {
	data := catalog.NewAttributes().
		Set("diameter", catalog.Number(1.75)).
		Set("color", catalog.String("#ff0000"))
	return []*catalog.Producer{
		{Name: "Acme", Materials: []*catalog.Material{
			{Name: "PLA", Filaments: []*catalog.Filament{
				{Name: "Red", ID: "U1", Data: data},
				{Name: "Blue"},
			}},
			{Name: "PETG", Filaments: []*catalog.Filament{}},
		}},
	}
}

func TestLoadMissingFileIsEmpty(t *testing.T) {
	got, err := Load(filepath.Join(t.TempDir(), "producers.json"))
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "producers.json")
	tree := sampleTree()

	require.NoError(t, Save(path, tree))
	got, err := Load(path)
	require.NoError(t, err)

	require.Len(t, got, 1)
	pla := got[0].Material("PLA")
	require.NotNil(t, pla)
	red := pla.Filament("Red")
	require.NotNil(t, red)
	assert.Equal(t, "U1", red.ID)
	assert.True(t, red.Data.Equal(tree[0].Materials[0].Filaments[0].Data))
	blue := pla.Filament("Blue")
	assert.Empty(t, blue.ID)
	assert.Nil(t, blue.Data)

	first, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, Save(path, got))
	second, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second))

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestSnapshotShape(t *testing.T) {
	tree := []*catalog.Producer{{Name: "A", Materials: []*catalog.Material{{Name: "M", Filaments: []*catalog.Filament{{Name: "F"}}}}}}

	data, err := Snapshot(tree)
	require.NoError(t, err)

	want := `[
    {
        "name": "A",
        "materials": [
            {
                "name": "M",
                "filaments": [
                    {
                        "name": "F",
                        "id": null,
                        "data": null
                    }
                ]
            }
        ]
    }
]
`
	assert.Equal(t, want, string(data))
}

func TestLoadCorrupt(t *testing.T) {
	cases := map[string]string{
		"not json":          `{{{`,
		"empty file":        ``,
		"top level object":  `{"name":"A"}`,
		"top level null":    `null`,
		"missing name":      `[{"materials":[]}]`,
		"missing materials": `[{"name":"A"}]`,
		"missing filaments": `[{"name":"A","materials":[{"name":"M"}]}]`,
		"filament no name":  `[{"name":"A","materials":[{"name":"M","filaments":[{"id":null}]}]}]`,
		"id wrong type":     `[{"name":"A","materials":[{"name":"M","filaments":[{"name":"F","id":5}]}]}]`,
		"data wrong type":   `[{"name":"A","materials":[{"name":"M","filaments":[{"name":"F","data":"x"}]}]}]`,
		"duplicate sibling": `[{"name":"A","materials":[]},{"name":"A","materials":[]}]`,
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "producers.json")
			require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

			_, err := Load(path)

			require.Error(t, err)
			var corrupt *CorruptCatalogError
			require.True(t, errors.As(err, &corrupt), "got %v", err)
			assert.Equal(t, path, corrupt.Path)
			assert.True(t, ferrors.HasCategory(err, ferrors.CategoryCatalog))
			ce, ok := ferrors.AsClassified(err)
			require.True(t, ok)
			assert.True(t, ce.IsFatal())
		})
	}
}

func TestLoadToleratesMissingIDAndData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "producers.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"name":"A","materials":[{"name":"M","filaments":[{"name":"F"}]}]}]`), 0o644))

	got, err := Load(path)
	require.NoError(t, err)
	f := got[0].Materials[0].Filaments[0]
	assert.Empty(t, f.ID)
	assert.Nil(t, f.Data)
}

func TestOpenDetectsSecondWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "producers.json")

	h, err := Open(path)
	require.NoError(t, err)

	_, err = Open(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCatalogLocked)

	require.NoError(t, h.Close())
	require.NoError(t, h.Close())

	h2, err := Open(path)
	require.NoError(t, err)
	defer h2.Close()
}

func TestHandleSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "producers.json")
	h, err := Open(path)
	require.NoError(t, err)
	defer h.Close()

	h.SetProducers(catalog.Upsert(h.Producers(), sampleTree()[0]))
	require.NoError(t, h.Save())

	got, err := Load(path)
	require.NoError(t, err)
	stats := catalog.Count(got...)
	assert.Equal(t, 2, stats.Materials)
	assert.Equal(t, 2, stats.Filaments)
}
