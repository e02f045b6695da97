package content

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/open-filament/catalogbuilder/internal/catalog"
	ferrors "github.com/open-filament/catalogbuilder/internal/foundation/errors"
	"github.com/open-filament/catalogbuilder/internal/frontmatter"
	"github.com/open-filament/catalogbuilder/internal/render"
	"github.com/open-filament/catalogbuilder/internal/workpool"
)

type fakeRenderer struct {
	mu     sync.Mutex
	jobs   []render.Job
	fail   map[string]error
	block  bool
	delay  time.Duration
	assets []render.Asset

	active atomic.Int32
	peak   atomic.Int32
}

func (r *fakeRenderer) Render(ctx context.Context, job render.Job) error {
	n := r.active.Add(1)
	defer r.active.Add(-1)
	for {
		cur := r.peak.Load()
		if n <= cur || r.peak.CompareAndSwap(cur, n) {
			break
		}
	}

	r.mu.Lock()
	r.jobs = append(r.jobs, job)
	err := r.fail[job.BaseName]
	r.mu.Unlock()

	if r.block {
		<-ctx.Done()
		return ctx.Err()
	}
	if r.delay > 0 {
		time.Sleep(r.delay)
	}
	return err
}

func (r *fakeRenderer) Assets(baseName string) []render.Asset {
	out := make([]render.Asset, 0, len(r.assets))
	for _, a := range r.assets {
		a.Filename = baseName + a.Filename
		out = append(out, a)
	}
	return out
}

func (r *fakeRenderer) jobFor(base string) (render.Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, j := range r.jobs {
		if j.BaseName == base {
			return j, true
		}
	}
	return render.Job{}, false
}

func tree(producer, material string, filaments ...*catalog.Filament) []*catalog.Producer {
	return []*catalog.Producer{{
		Name:      producer,
		Materials: []*catalog.Material{{Name: material, Filaments: filaments}},
	}}
}

func fil(name, id string) *catalog.Filament {
	return &catalog.Filament{Name: name, ID: id}
}

func readJSONFrontMatter(t *testing.T, path string) map[string]any {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	fields, _, format, err := frontmatter.Parse(data)
	require.NoError(t, err)
	require.Equal(t, frontmatter.FormatJSON, format)
	return fields
}

func TestGenerate_Layout(t *testing.T) {
	root := filepath.Join(t.TempDir(), "content", "producers")
	f := fil("Jet Black", "0b5d7c4e-0000-4000-8000-000000000001")
	f.Data = catalog.NewAttributes().
		Set("color", catalog.String("#000000")).
		Set("diameter", catalog.Number(1.75))
	r := &fakeRenderer{assets: []render.Asset{
		{Name: "STL model", Filename: ".stl"},
		{Name: "Preview", Filename: ".png", Preview: true},
	}}
	p := &Pipeline{Renderer: r, Pool: workpool.New(2), BaseURL: "https://example.org/"}

	report := p.Generate(t.Context(), tree("Prusament", "PETG", f), root)

	require.NoError(t, report.Err)
	assert.Empty(t, report.Failed())
	assert.Equal(t, 1, report.Producers)
	assert.Equal(t, 1, report.Materials)
	assert.Equal(t, 1, report.Filaments)
	assert.Equal(t, 2, report.IndexesWritten)
	assert.Equal(t, 1, report.DescriptorsWritten)
	assert.Equal(t, 1, report.Rendered)

	producerIndex := readJSONFrontMatter(t, filepath.Join(root, "prusament", IndexFile))
	assert.Equal(t, "Prusament", producerIndex["title"])
	materialIndex := readJSONFrontMatter(t, filepath.Join(root, "prusament", "petg", IndexFile))
	assert.Equal(t, "Prusament - PETG", materialIndex["title"])

	descPath := filepath.Join(root, "prusament", "petg", "jet-black.md")
	desc := readJSONFrontMatter(t, descPath)
	assert.Equal(t, f.ID, desc["id"])
	assert.Equal(t, "Jet Black", desc["title"])
	assert.Equal(t, "jet-black.png", desc["thumbnail"])
	assert.Equal(t, []any{"/f/" + f.ID}, desc["aliases"])
	assert.Equal(t, "PETG", desc["material"])
	assert.Equal(t, "Prusament", desc["producer"])
	assert.Equal(t, "filament", desc["type"])
	assert.NotEmpty(t, desc[frontmatter.FingerprintField])
	assert.Equal(t, json.Number("1.75"), desc["data"].(map[string]any)["diameter"])

	raw, err := os.ReadFile(descPath)
	require.NoError(t, err)
	order := []string{`"id"`, `"title"`, `"thumbnail"`, `"assets"`, `"data"`, `"aliases"`, `"material"`, `"producer"`, `"type"`, `"fingerprint"`}
	last := -1
	for _, key := range order {
		idx := strings.Index(string(raw), key)
		require.Greater(t, idx, last, "key %s out of order", key)
		last = idx
	}
	assert.Less(t, strings.Index(string(raw), `"color"`), strings.Index(string(raw), `"diameter"`))

	job, ok := r.jobFor("jet-black")
	require.True(t, ok)
	assert.Equal(t, filepath.Join(root, "prusament", "petg", "jet-black"), job.Dir)
	assert.Equal(t, "https://example.org/f/"+f.ID, job.URL)
	assert.Equal(t, f.ID, job.ID)
}

func TestGenerate_DescriptorWithoutData_HasNullData(t *testing.T) {
	root := t.TempDir()
	p := &Pipeline{Pool: workpool.New(1)}

	report := p.Generate(t.Context(), tree("Acme", "PLA", fil("White", "id-1")), root)
	require.Empty(t, report.Failed())

	desc := readJSONFrontMatter(t, filepath.Join(root, "acme", "pla", "white.md"))
	v, ok := desc["data"]
	assert.True(t, ok)
	assert.Nil(t, v)
	_, hasAssets := desc["assets"]
	assert.False(t, hasAssets)
}

func TestGenerate_IndexesAreWriteOnce(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "acme")
	require.NoError(t, os.MkdirAll(dir, 0o750))
	custom := []byte("{\"title\": \"Hand edited\"}\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, IndexFile), custom, 0o600))

	p := &Pipeline{Pool: workpool.New(1)}
	report := p.Generate(t.Context(), tree("Acme", "PLA", fil("White", "id-1")), root)

	assert.Equal(t, 1, report.IndexesSkipped)
	assert.Equal(t, 1, report.IndexesWritten)
	got, err := os.ReadFile(filepath.Join(dir, IndexFile))
	require.NoError(t, err)
	assert.Equal(t, custom, got)

	report = p.Generate(t.Context(), tree("Acme", "PLA", fil("White", "id-1")), root)
	assert.Equal(t, 2, report.IndexesSkipped)
	assert.Zero(t, report.IndexesWritten)
}

func TestGenerate_DescriptorsAlwaysRewritten(t *testing.T) {
	root := t.TempDir()
	descPath := filepath.Join(root, "acme", "pla", "white.md")
	require.NoError(t, os.MkdirAll(filepath.Dir(descPath), 0o750))
	require.NoError(t, os.WriteFile(descPath, []byte("stale"), 0o600))

	p := &Pipeline{Pool: workpool.New(1)}
	report := p.Generate(t.Context(), tree("Acme", "PLA", fil("White", "id-1")), root)
	assert.Equal(t, 1, report.DescriptorsWritten)
	assert.Equal(t, 1, report.DescriptorsChanged)
	first, err := os.ReadFile(descPath)
	require.NoError(t, err)
	assert.NotEqual(t, "stale", string(first))

	report = p.Generate(t.Context(), tree("Acme", "PLA", fil("White", "id-1")), root)
	assert.Equal(t, 1, report.DescriptorsWritten)
	assert.Zero(t, report.DescriptorsChanged)
	second, err := os.ReadFile(descPath)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestGenerate_YAMLFormat(t *testing.T) {
	root := t.TempDir()
	p := &Pipeline{Pool: workpool.New(1), Format: frontmatter.FormatYAML}

	report := p.Generate(t.Context(), tree("Acme", "PLA", fil("White", "id-1")), root)
	require.Empty(t, report.Failed())

	raw, err := os.ReadFile(filepath.Join(root, "acme", "pla", "white.md"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(raw), "---\nid: id-1\ntitle: White\n"), string(raw))

	fields, _, format, err := frontmatter.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, frontmatter.FormatYAML, format)
	assert.Equal(t, "filament", fields["type"])
}

func TestGenerate_LeafFailureIsIsolated(t *testing.T) {
	root := t.TempDir()
	boom := ferrors.RenderError("renderer exited").Build()
	r := &fakeRenderer{fail: map[string]error{"bad": boom}}
	p := &Pipeline{Pool: workpool.New(2), Renderer: r}

	report := p.Generate(t.Context(), tree("Acme", "PLA", fil("Good", "id-1"), fil("Bad", "id-2"), fil("Fine", "id-3")), root)

	require.NoError(t, report.Err)
	failed := report.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, "Bad", failed[0].Filament)
	assert.ErrorIs(t, failed[0].Err, boom)
	assert.Equal(t, 2, report.Rendered)
	assert.Equal(t, 3, report.DescriptorsWritten)
	assert.FileExists(t, filepath.Join(root, "acme", "pla", "bad.md"))

	var leafIssues int
	for _, is := range report.Issues {
		if is.Code == IssueLeafFailure {
			leafIssues++
		}
	}
	assert.Equal(t, 1, leafIssues)
}

func TestGenerate_TaskTimeout(t *testing.T) {
	root := t.TempDir()
	p := &Pipeline{
		Pool:        workpool.New(1),
		Renderer:    &fakeRenderer{block: true},
		TaskTimeout: 20 * time.Millisecond,
	}

	report := p.Generate(t.Context(), tree("Acme", "PLA", fil("Slow", "id-1")), root)

	failed := report.Failed()
	require.Len(t, failed, 1)
	assert.True(t, ferrors.HasCategory(failed[0].Err, ferrors.CategoryRuntime))
	assert.ErrorIs(t, failed[0].Err, context.DeadlineExceeded)
	assert.False(t, failed[0].Canceled)
}

func TestGenerate_MissingIdentifierFailsTask(t *testing.T) {
	root := t.TempDir()
	p := &Pipeline{Pool: workpool.New(1)}

	report := p.Generate(t.Context(), tree("Acme", "PLA", fil("White", "")), root)

	failed := report.Failed()
	require.Len(t, failed, 1)
	assert.True(t, ferrors.HasCategory(failed[0].Err, ferrors.CategoryValidation))
	assert.NoFileExists(t, filepath.Join(root, "acme", "pla", "white.md"))
}

func TestGenerate_PathCollisions(t *testing.T) {
	root := t.TempDir()
	r := &fakeRenderer{}
	p := &Pipeline{Pool: workpool.New(2), Renderer: r}

	report := p.Generate(t.Context(), tree("Acme", "PLA", fil("Jet Black", "id-1"), fil("Jet-Black", "id-2")), root)

	failed := report.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, "Jet-Black", failed[0].Filament)
	assert.ErrorIs(t, failed[0].Err, ErrPathCollision)
	assert.Equal(t, 1, report.DescriptorsWritten)

	desc := readJSONFrontMatter(t, filepath.Join(root, "acme", "pla", "jet-black.md"))
	assert.Equal(t, "id-1", desc["id"])

	var collisions int
	for _, is := range report.Issues {
		if is.Code == IssuePathCollision {
			collisions++
		}
	}
	assert.Equal(t, 1, collisions)
}

func TestGenerate_FilamentCannotReplaceMaterialIndex(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "acme", "pla")
	require.NoError(t, os.MkdirAll(dir, 0o750))
	custom := []byte("{\"title\": \"Hand edited\"}\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, IndexFile), custom, 0o600))

	p := &Pipeline{Pool: workpool.New(1)}
	report := p.Generate(t.Context(), tree("Acme", "PLA", fil("_Index", "id-1"), fil("White", "id-2")), root)

	got, err := os.ReadFile(filepath.Join(dir, IndexFile))
	require.NoError(t, err)
	assert.Equal(t, custom, got)

	failed := report.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, "_Index", failed[0].Filament)
	assert.ErrorIs(t, failed[0].Err, ErrPathCollision)
	assert.Equal(t, 1, report.DescriptorsWritten)
	assert.FileExists(t, filepath.Join(dir, "white.md"))
}

func TestGenerate_EmptySegmentsAreNotGenerated(t *testing.T) {
	root := t.TempDir()
	producers := []*catalog.Producer{
		{Name: "...", Materials: []*catalog.Material{{Name: "PLA", Filaments: []*catalog.Filament{fil("White", "id-1")}}}},
		{Name: "Acme", Materials: []*catalog.Material{
			{Name: "''", Filaments: []*catalog.Filament{fil("Red", "id-2")}},
			{Name: "PETG", Filaments: []*catalog.Filament{fil(".", "id-3"), fil("Blue", "id-4")}},
		}},
	}
	p := &Pipeline{Pool: workpool.New(1)}

	report := p.Generate(t.Context(), producers, root)

	assert.NoDirExists(t, filepath.Join(root, "pla"))
	assert.NoFileExists(t, filepath.Join(root, "acme", "red.md"))
	assert.NoFileExists(t, filepath.Join(root, "acme", "petg", DescriptorExt))
	assert.FileExists(t, filepath.Join(root, "acme", "petg", "blue.md"))
	assert.Equal(t, 1, report.Producers)
	assert.Equal(t, 1, report.Materials)

	var collisions int
	for _, is := range report.Issues {
		if is.Code == IssuePathCollision {
			assert.ErrorIs(t, is.Err, ErrPathCollision)
			collisions++
		}
	}
	assert.Equal(t, 3, collisions)
}

func TestGenerate_ContentIsWorldReadable(t *testing.T) {
	root := t.TempDir()
	p := &Pipeline{Pool: workpool.New(1)}
	report := p.Generate(t.Context(), tree("Acme", "PLA", fil("White", "id-1")), root)
	require.Empty(t, report.Failed())

	for _, path := range []string{
		filepath.Join(root, "acme", IndexFile),
		filepath.Join(root, "acme", "pla", IndexFile),
		filepath.Join(root, "acme", "pla", "white.md"),
	} {
		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.NotZero(t, info.Mode().Perm()&0o004, "%s is not world readable", path)
	}
}

func TestGenerate_ProducerCollisionSkipsLaterProducer(t *testing.T) {
	root := t.TempDir()
	producers := []*catalog.Producer{
		{Name: "Acme Co", Materials: []*catalog.Material{{Name: "PLA", Filaments: []*catalog.Filament{fil("White", "id-1")}}}},
		{Name: "Acme-Co", Materials: []*catalog.Material{{Name: "PETG", Filaments: []*catalog.Filament{fil("Red", "id-2")}}}},
	}
	p := &Pipeline{Pool: workpool.New(1)}

	report := p.Generate(t.Context(), producers, root)

	assert.Equal(t, 1, report.Producers)
	assert.NoDirExists(t, filepath.Join(root, "acme-co", "petg"))
	require.NotEmpty(t, report.Issues)
	assert.Equal(t, IssuePathCollision, report.Issues[0].Code)
	assert.ErrorIs(t, report.Issues[0].Err, ErrPathCollision)
}

func TestGenerate_PoolBoundHolds(t *testing.T) {
	root := t.TempDir()
	r := &fakeRenderer{delay: 10 * time.Millisecond}
	pool := workpool.New(3)
	p := &Pipeline{Pool: pool, Renderer: r}

	filaments := make([]*catalog.Filament, 0, 12)
	for i := range 12 {
		filaments = append(filaments, fil("F"+string(rune('a'+i)), "id"))
	}
	report := p.Generate(t.Context(), tree("Acme", "PLA", filaments...), root)

	require.Empty(t, report.Failed())
	assert.LessOrEqual(t, int(r.peak.Load()), 3)
	assert.LessOrEqual(t, pool.Peak(), 3)
	assert.Equal(t, 12, pool.Completed())
}

func TestGenerate_UnwritableRoot(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, nil, 0o600))
	p := &Pipeline{}

	report := p.Generate(t.Context(), tree("Acme", "PLA", fil("White", "id-1")), filepath.Join(file, "out"))

	require.Error(t, report.Err)
	assert.True(t, ferrors.HasCategory(report.Err, ferrors.CategoryFileSystem))
	assert.Empty(t, report.Tasks)
}

func TestGenerate_ProducerDirFailureSkipsSubtree(t *testing.T) {
	root := t.TempDir()
	// A file where the first producer's directory should go.
	require.NoError(t, os.WriteFile(filepath.Join(root, "acme"), nil, 0o600))
	producers := []*catalog.Producer{
		{Name: "Acme", Materials: []*catalog.Material{{Name: "PLA", Filaments: []*catalog.Filament{fil("White", "id-1")}}}},
		{Name: "Other", Materials: []*catalog.Material{{Name: "PLA", Filaments: []*catalog.Filament{fil("Red", "id-2")}}}},
	}
	p := &Pipeline{Pool: workpool.New(1)}

	report := p.Generate(t.Context(), producers, root)

	require.NoError(t, report.Err)
	require.Len(t, report.Issues, 1)
	assert.Equal(t, IssueProducerDir, report.Issues[0].Code)
	assert.FileExists(t, filepath.Join(root, "other", "pla", "red.md"))
	assert.Len(t, report.Tasks, 1)
}

func TestGenerate_CanceledContext(t *testing.T) {
	root := t.TempDir()
	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	p := &Pipeline{Pool: workpool.New(1)}

	report := p.Generate(ctx, tree("Acme", "PLA", fil("White", "id-1")), root)

	require.NoError(t, report.Err)
	assert.Empty(t, report.Tasks)
	require.Len(t, report.Issues, 1)
	assert.Equal(t, IssueCanceled, report.Issues[0].Code)
	assert.True(t, errors.Is(report.Issues[0].Err, context.Canceled))
}

func TestGenerate_DoesNotMutateInput(t *testing.T) {
	root := t.TempDir()
	f := fil("White", "id-1")
	f.Data = catalog.NewAttributes().Set("k", catalog.String("v"))
	producers := tree("Acme", "PLA", f)
	p := &Pipeline{Pool: workpool.New(1)}

	_ = p.Generate(t.Context(), producers, root)

	assert.Equal(t, "id-1", producers[0].Materials[0].Filaments[0].ID)
	assert.Equal(t, 1, producers[0].Materials[0].Filaments[0].Data.Len())
}
