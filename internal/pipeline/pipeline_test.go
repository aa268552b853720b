package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/atomizer"
	"github.com/starford/ansuz/internal/classifier"
	"github.com/starford/ansuz/internal/linker"
	"github.com/starford/ansuz/internal/mapmaint"
	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/similarity"
	"github.com/starford/ansuz/internal/testutil"
	"github.com/starford/ansuz/internal/vault"
)

const classification = `{"domain":"psychology","subdomain":"learning","content_type":"principle",
	"mocs":["Learning MOC","Memory MOC"],"key_topics":["spacing","retrieval"],"confidence":0.8}`

type harness struct {
	orch   *Orchestrator
	vault  *vault.Vault
	gen    *testutil.ScriptedGateway
	events []Event
	mu     sync.Mutex
}

func concepts(prefix string, n int) string {
	var parts []string
	for i := 1; i <= n; i++ {
		parts = append(parts, fmt.Sprintf(`{"title":"%s Concept %d","definition":"Definition %d.","explanation":"%s","why_matters":"Because.","applications":["Study"],"concept_type":"principle"}`,
			prefix, i, i, strings.Repeat("Explained at length. ", 15)))
	}
	return "[" + strings.Join(parts, ",") + "]"
}

func newHarness(t *testing.T, rules ...testutil.Rule) *harness {
	t.Helper()
	_, store := testutil.TestVault(t)
	db := testutil.TestDB(t)
	v := vault.New(store, db, testutil.Logger())
	gen := testutil.NewScriptedGateway(rules...)
	gen.Default = "[]"
	logger := testutil.Logger()

	h := &harness{vault: v, gen: gen}
	h.orch = New(Params{
		Vault:      v,
		Classifier: classifier.New(gen, logger),
		Atomizer:   atomizer.New(atomizer.Params{Gateway: gen, Logger: logger}),
		Linker: linker.New(linker.Params{
			Gateway: gen,
			Index:   similarity.NewMemory(testutil.HashEmbedder{Dim: 256}),
			Logger:  logger,
		}),
		Maps:          mapmaint.New(mapmaint.Params{Vault: v, Logger: logger}),
		Jobs:          NewSQLiteJobStore(db, 0),
		Logger:        logger,
		RelinkOrphans: true,
		Progress: func(e Event) {
			h.mu.Lock()
			h.events = append(h.events, e)
			h.mu.Unlock()
		},
	})
	return h
}

func writeSource(t *testing.T, dir, name, title string) string {
	t.Helper()
	body := "# " + title + "\n\n" + strings.Repeat("Spacing practice sessions over time improves long term retention of material. ", 12)
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestProcessEndToEnd(t *testing.T) {
	h := newHarness(t,
		testutil.Rule{Contains: "knowledge taxonomist", Response: classification},
		testutil.Rule{Contains: "ATOMIC concepts", Response: concepts("Spacing", 6)},
	)
	src := writeSource(t, t.TempDir(), "spacing.md", "The Spacing Effect")

	res := h.orch.Process(context.Background(), src)
	require.True(t, res.Success, "errors: %v", res.Errors)
	assert.Empty(t, res.FailedStage)
	require.NotNil(t, res.Literature)
	require.Len(t, res.Permanent, 6)
	assert.Len(t, res.Records, 7)
	assert.Equal(t, "psychology", res.Stats.Domain)
	assert.Equal(t, "prompt", res.Stats.Producer)
	assert.ElementsMatch(t, []string{"Learning MOC", "Memory MOC"}, res.MapsCreated)
	assert.Empty(t, res.Orphans)
	assert.Positive(t, res.EdgesCreated)
	for _, s := range []Stage{StageExtracting, StageClassifying, StageAtomizing, StageLinking, StagePersisting} {
		assert.Contains(t, res.StageSeconds, s)
	}

	lit, err := h.vault.Load(res.Literature.Path)
	require.NoError(t, err)
	assert.Equal(t, "3-Resources/46-Psychology", lit.Basb.ParaPath)
	assert.Contains(t, lit.Body, "- [[Spacing Concept 1]]")

	perm, err := h.vault.Load(res.Permanent[0].Path)
	require.NoError(t, err)
	assert.NotEmpty(t, perm.LinksOut)
	assert.NotEmpty(t, perm.LinksIn)
	assert.Equal(t, len(perm.LinksOut)+len(perm.LinksIn), perm.Zettelkasten.ConnectionsCount)
	assert.LessOrEqual(t, len(perm.LinksOut), linker.MaxEdges)

	m, err := h.vault.Load(vault.MapPath("Learning MOC"))
	require.NoError(t, err)
	assert.Len(t, mapmaint.Members(m.Body), 6)

	data, err := json.Marshal(res)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"success":true`)
	assert.NotContains(t, string(data), `"body"`)
}

func TestProcessLinksToExistingRecords(t *testing.T) {
	h := newHarness(t,
		testutil.Rule{Contains: "knowledge taxonomist", Response: classification},
		testutil.Rule{Contains: "ATOMIC concepts", Response: concepts("First", 5), Times: 1},
		testutil.Rule{Contains: "ATOMIC concepts", Response: concepts("Second", 5)},
	)
	dir := t.TempDir()
	first := h.orch.Process(context.Background(), writeSource(t, dir, "a.md", "First Source"))
	require.True(t, first.Success, "errors: %v", first.Errors)
	second := h.orch.Process(context.Background(), writeSource(t, dir, "b.md", "Second Source"))
	require.True(t, second.Success, "errors: %v", second.Errors)

	assert.ElementsMatch(t, []string{"Learning MOC", "Memory MOC"}, second.MapsUpdated)
	m, err := h.vault.Load(vault.MapPath("Memory MOC"))
	require.NoError(t, err)
	assert.Len(t, mapmaint.Members(m.Body), 10)

	var inbound int
	for _, p := range first.Permanent {
		rec, err := h.vault.Load(p.Path)
		require.NoError(t, err)
		for _, e := range rec.LinksIn {
			if strings.HasPrefix(e.Target, "Second") {
				inbound++
			}
		}
		assert.Equal(t, len(rec.LinksOut)+len(rec.LinksIn), rec.Zettelkasten.ConnectionsCount)
	}
	assert.Positive(t, inbound, "records from the first run gain inbound edges from the second")
}

// assertGraphConsistent checks every permanent record in the vault: each
// outbound edge resolves to a record holding the mirrored inbound edge, each
// inbound edge is backed by an outbound one, and counts add up.
func assertGraphConsistent(t *testing.T, v *vault.Vault) []*models.Record {
	t.Helper()
	recs, err := v.LoadDir(vault.PermanentDir)
	require.NoError(t, err)
	byID := make(map[string]*models.Record, len(recs))
	for _, rec := range recs {
		require.NotContains(t, byID, rec.ID, "duplicate id %s", rec.ID)
		byID[rec.ID] = rec
	}
	for _, rec := range recs {
		for _, e := range rec.LinksOut {
			assert.NotEqual(t, rec.ID, e.TargetID, "%s links to itself", rec.Title)
			target, ok := byID[e.TargetID]
			if !assert.True(t, ok, "%s -> %s: target missing", rec.Title, e.Target) {
				continue
			}
			assert.Contains(t, target.LinksIn, e.Mirror(rec), "%s -> %s: mirror missing", rec.Title, target.Title)
		}
		for _, in := range rec.LinksIn {
			source, ok := byID[in.TargetID]
			if !assert.True(t, ok, "%s <- %s: source missing", rec.Title, in.Target) {
				continue
			}
			var backed bool
			for _, e := range source.LinksOut {
				if e.TargetID == rec.ID && e.Confidence == in.Confidence {
					backed = true
				}
			}
			assert.True(t, backed, "%s <- %s: no outbound edge", rec.Title, source.Title)
		}
		assert.Equal(t, len(rec.LinksOut)+len(rec.LinksIn), rec.Zettelkasten.ConnectionsCount, rec.Title)
	}
	return recs
}

func TestProcessSameSourceTwiceKeepsGraphConsistent(t *testing.T) {
	h := newHarness(t,
		testutil.Rule{Contains: "knowledge taxonomist", Response: classification},
		testutil.Rule{Contains: "ATOMIC concepts", Response: concepts("First", 5), Times: 1},
		testutil.Rule{Contains: "ATOMIC concepts", Response: concepts("Second", 5)},
	)
	dir := t.TempDir()
	first := h.orch.Process(context.Background(), writeSource(t, dir, "a.md", "First Source"))
	require.True(t, first.Success, "errors: %v", first.Errors)
	src := writeSource(t, dir, "b.md", "Second Source")
	once := h.orch.Process(context.Background(), src)
	require.True(t, once.Success, "errors: %v", once.Errors)
	ids := map[string]string{}
	for _, p := range once.Permanent {
		ids[p.Path] = p.ID
	}

	twice := h.orch.Process(context.Background(), src)
	require.True(t, twice.Success, "errors: %v", twice.Errors)

	for _, p := range twice.Permanent {
		assert.Equal(t, ids[p.Path], p.ID, "record at %s keeps its id", p.Path)
	}
	assert.Equal(t, once.Literature.ID, twice.Literature.ID)
	recs := assertGraphConsistent(t, h.vault)
	assert.Len(t, recs, 10)

	m, err := h.vault.Load(vault.MapPath("Memory MOC"))
	require.NoError(t, err)
	assert.Len(t, mapmaint.Members(m.Body), 10)
}

func TestProcessClassifierUnavailable(t *testing.T) {
	h := newHarness(t,
		testutil.Rule{Contains: "knowledge taxonomist", Err: apperr.ErrGenerationUnavailable},
		testutil.Rule{Contains: "ATOMIC concepts", Response: concepts("Fallback", 5)},
	)
	src := writeSource(t, t.TempDir(), "x.md", "Fallback Source")

	res := h.orch.Process(context.Background(), src)
	require.True(t, res.Success, "errors: %v", res.Errors)
	assert.Equal(t, classifier.FallbackDomain, res.Stats.Domain)
	assert.NotEmpty(t, res.Warnings)
	assert.True(t, strings.HasPrefix(res.Warnings[0], "classifying:"))
	assert.Empty(t, res.MapsCreated)
}

func TestProcessExtractionFailure(t *testing.T) {
	h := newHarness(t)
	dir := t.TempDir()
	bad := filepath.Join(dir, "image.png")
	require.NoError(t, os.WriteFile(bad, []byte("png"), 0o644))
	short := filepath.Join(dir, "short.txt")
	require.NoError(t, os.WriteFile(short, []byte("too short"), 0o644))

	for _, path := range []string{bad, short, filepath.Join(dir, "missing.md")} {
		res := h.orch.Process(context.Background(), path)
		assert.False(t, res.Success, path)
		assert.Equal(t, StageExtracting, res.FailedStage, path)
		assert.Len(t, res.Errors, 1, path)
		assert.Equal(t, 0, h.gen.Calls())
	}
}

func TestBatchIsolatesFailures(t *testing.T) {
	h := newHarness(t,
		testutil.Rule{Contains: "knowledge taxonomist", Response: classification},
		testutil.Rule{Contains: "ATOMIC concepts", Response: concepts("Batch", 5)},
	)
	dir := t.TempDir()
	good := writeSource(t, dir, "good.md", "Good Source")
	bad := filepath.Join(dir, "bad.docx")
	require.NoError(t, os.WriteFile(bad, []byte("x"), 0o644))

	results, summary := h.orch.Batch(context.Background(), []string{bad, good})
	require.Len(t, results, 2)
	assert.False(t, results[0].Success)
	assert.True(t, results[1].Success)
	assert.Equal(t, 2, summary.Total)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 6, summary.Notes)
	assert.Equal(t, results[1].EdgesCreated, summary.Edges)
}

func TestMatch(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "nested"), 0o755))
	for _, name := range []string{"a.md", "b.pdf", "c.png", "nested/d.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}

	got, err := Match(dir, "")
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "a.md"),
		filepath.Join(dir, "b.pdf"),
		filepath.Join(dir, "nested", "d.txt"),
	}, got)

	got, err = Match(dir, "*.pdf")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "b.pdf")}, got)

	_, err = Match(dir, "[")
	assert.Error(t, err)
}

func TestSubmitRunsJob(t *testing.T) {
	h := newHarness(t,
		testutil.Rule{Contains: "knowledge taxonomist", Response: classification},
		testutil.Rule{Contains: "ATOMIC concepts", Response: concepts("Job", 5)},
	)
	src := writeSource(t, t.TempDir(), "job.md", "Job Source")

	job, err := h.orch.Submit(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, JobQueued, job.Status)
	assert.Len(t, job.ID, 12)

	h.orch.Wait()

	got, err := h.orch.Jobs().Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobCompleted, got.Status)
	assert.Equal(t, StageDone, got.Stage)
	assert.InDelta(t, 1.0, got.Progress, 1e-9)
	require.NotNil(t, got.Result)
	assert.True(t, got.Result.Success)

	h.mu.Lock()
	defer h.mu.Unlock()
	require.NotEmpty(t, h.events)
	assert.Equal(t, EventStage, h.events[0].Type)
	assert.Equal(t, StageExtracting, h.events[0].Stage)
	last := h.events[len(h.events)-1]
	assert.Equal(t, EventCompleted, last.Type)
	assert.Equal(t, job.ID, last.JobID)

	jobs, err := h.orch.Jobs().List(context.Background())
	require.NoError(t, err)
	assert.Len(t, jobs, 1)
}

func TestSubmitFailedJob(t *testing.T) {
	h := newHarness(t)
	job, err := h.orch.Submit(context.Background(), filepath.Join(t.TempDir(), "nope.md"))
	require.NoError(t, err)
	h.orch.Wait()

	got, err := h.orch.Jobs().Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobFailed, got.Status)
	assert.NotEmpty(t, got.Error)

	h.mu.Lock()
	defer h.mu.Unlock()
	assert.Equal(t, EventFailed, h.events[len(h.events)-1].Type)
}

func TestMemoryJobStore(t *testing.T) {
	s := NewMemoryJobStore()
	ctx := context.Background()
	_, err := s.Get(ctx, "missing")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	j := &Job{ID: "j1", Status: JobQueued}
	require.NoError(t, s.Put(ctx, j))
	j.Status = JobFailed
	got, err := s.Get(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, JobQueued, got.Status, "store keeps its own copy")
}

func TestRunResultNotes(t *testing.T) {
	r := newResult("x")
	assert.Equal(t, 0, r.Notes())
	r.Literature = &models.Record{}
	r.Permanent = []*models.Record{{}, {}}
	assert.Equal(t, 3, r.Notes())
}
