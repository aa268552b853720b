package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/starford/ansuz/internal/inbox"
	"github.com/starford/ansuz/internal/linker"
	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/pipeline"
	"github.com/starford/ansuz/internal/recordservice"
	"github.com/starford/ansuz/internal/similarity"
	"github.com/starford/ansuz/internal/testutil"
	"github.com/starford/ansuz/internal/vault"
)

// fakeProcessor records submissions without running the pipeline.
type fakeProcessor struct {
	mu        sync.Mutex
	submitted []string
	jobs      *pipeline.MemoryJobStore
}

func (p *fakeProcessor) Submit(ctx context.Context, path string) (*pipeline.Job, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.submitted = append(p.submitted, path)
	job := &pipeline.Job{
		ID:        "job" + string(rune('a'+len(p.submitted)-1)),
		Path:      path,
		Status:    pipeline.JobQueued,
		CreatedAt: time.Now().Add(time.Duration(len(p.submitted)) * time.Second),
	}
	return job, p.jobs.Put(ctx, job)
}

func (p *fakeProcessor) Jobs() pipeline.JobStore { return p.jobs }

type testEnvironment struct {
	router http.Handler
	proc   *fakeProcessor
	inbox  *inbox.Inbox
	recs   []*models.Record
}

// testEnv sets up a temp vault with two linked records and a map, the
// record service and a router. An empty authToken means disabled mode.
func testEnv(t *testing.T, authToken string) *testEnvironment {
	t.Helper()
	return testEnvWithEvents(t, authToken, nil)
}

func testEnvWithEvents(t *testing.T, authToken string, events http.Handler) *testEnvironment {
	t.Helper()
	_, store := testutil.TestVault(t)
	db := testutil.TestDB(t)
	v := vault.New(store, db, testutil.Logger())

	now := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	a := &models.Record{ID: "a1", Title: "Sleep Spindles", Kind: models.KindPermanent, Status: models.StatusSeedling,
		Domain: "neuroscience", Created: now, Modified: now, Body: "# Sleep Spindles\n\nBursts of oscillatory activity.\n"}
	b := &models.Record{ID: "b1", Title: "Memory Consolidation", Kind: models.KindPermanent, Status: models.StatusSeedling,
		Domain: "neuroscience", Created: now, Modified: now, Body: "# Memory Consolidation\n\nStabilisation of memory traces during sleep.\n"}
	b.LinksOut = []models.Edge{{Target: a.Title, TargetID: a.ID, Type: models.EdgeSupports, Confidence: 0.9}}
	m := &models.Record{ID: "m1", Title: "Sleep MOC", Kind: models.KindMap, Status: models.StatusSeedling, Domain: "neuroscience",
		Created: now, Modified: now,
		Body: "# Sleep MOC\n\n### Core Concepts\n" + vault.WrapRegion(vault.RegionMembers, "- [[Sleep Spindles]]\n- [[Memory Consolidation]]") + "\n"}
	a.Path = vault.PermanentPath("concept", a.Title)
	b.Path = vault.PermanentPath("concept", b.Title)
	m.Path = vault.MapPath(m.Title)
	for _, r := range []*models.Record{a, b, m} {
		if err := v.Save(r); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}

	sim := similarity.NewMemory(testutil.HashEmbedder{Dim: 64})
	if err := sim.Index(context.Background(), linker.Doc(a), linker.Doc(b)); err != nil {
		t.Fatal(err)
	}

	in, err := inbox.New(filepath.Join(t.TempDir(), "inbox"))
	if err != nil {
		t.Fatal(err)
	}
	proc := &fakeProcessor{jobs: pipeline.NewMemoryJobStore()}
	router := NewRouter(Deps{
		Records:     recordservice.New(store, db, sim),
		Processor:   proc,
		Inbox:       in,
		Events:      events,
		AuthEnabled: authToken != "",
		Token:       authToken,
	})
	return &testEnvironment{router: router, proc: proc, inbox: in, recs: []*models.Record{a, b, m}}
}

func do(t *testing.T, h http.Handler, method, target string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestGetRecord(t *testing.T) {
	env := testEnv(t, "")

	w := do(t, env.router, http.MethodGet, "/records/a1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d, body = %s", w.Code, w.Body.String())
	}
	var rec RecordDetail
	_ = json.Unmarshal(w.Body.Bytes(), &rec)
	if rec.Title != "Sleep Spindles" || rec.Path != env.recs[0].Path {
		t.Errorf("record = %+v", rec)
	}
	if len(rec.Backlinks) == 0 {
		t.Error("expected backlinks from the linking record")
	}

	w = do(t, env.router, http.MethodGet, "/records/"+strings.ReplaceAll(env.recs[1].Path, "/", "%2F"), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get by encoded path = %d", w.Code)
	}
	_ = json.Unmarshal(w.Body.Bytes(), &rec)
	if rec.ID != "b1" || len(rec.LinksOut) != 1 {
		t.Errorf("record = %+v", rec)
	}
}

func TestGetRecord_NotFound(t *testing.T) {
	env := testEnv(t, "")

	w := do(t, env.router, http.MethodGet, "/records/nope", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("missing record = %d, want 404", w.Code)
	}
}

func TestListRecords(t *testing.T) {
	env := testEnv(t, "")

	w := do(t, env.router, http.MethodGet, "/records?kind=permanent&limit=1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list = %d", w.Code)
	}
	var resp RecordListResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Total != 2 || len(resp.Records) != 1 {
		t.Errorf("total = %d, page = %d", resp.Total, len(resp.Records))
	}

	w = do(t, env.router, http.MethodGet, "/records?domain=history", nil)
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Total != 0 || resp.Records == nil {
		t.Errorf("filtered list = %+v", resp)
	}
}

func TestMapsEndpoint(t *testing.T) {
	env := testEnv(t, "")

	w := do(t, env.router, http.MethodGet, "/maps", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("maps = %d", w.Code)
	}
	var resp MapListResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Maps) != 1 || resp.Maps[0].Members != 2 {
		t.Errorf("maps = %+v", resp.Maps)
	}
}

func TestSearchEndpoint(t *testing.T) {
	env := testEnv(t, "")

	w := do(t, env.router, http.MethodGet, "/search?q=Spindles", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("search = %d", w.Code)
	}
	var resp SearchResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Mode != "text" || len(resp.Results) == 0 {
		t.Errorf("search = %+v", resp)
	}

	w = do(t, env.router, http.MethodGet, "/search?q=memory+traces+sleep&mode=semantic&limit=1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("semantic search = %d", w.Code)
	}
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Mode != "semantic" || len(resp.Results) != 1 || resp.Results[0].ID != "b1" {
		t.Errorf("semantic search = %+v", resp)
	}
}

func TestSearchBadRequests(t *testing.T) {
	env := testEnv(t, "")

	for _, target := range []string{"/search", "/search?q=x&mode=fuzzy"} {
		if w := do(t, env.router, http.MethodGet, target, nil); w.Code != http.StatusBadRequest {
			t.Errorf("%s = %d, want 400", target, w.Code)
		}
	}
}

func TestGraphEndpoint(t *testing.T) {
	env := testEnv(t, "")

	w := do(t, env.router, http.MethodGet, "/graph", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("graph = %d", w.Code)
	}
	var resp GraphResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Nodes) != 3 {
		t.Errorf("nodes = %d, want 3", len(resp.Nodes))
	}
	// b1 -> a1 typed edge plus two map member links.
	if len(resp.Links) < 3 {
		t.Errorf("links = %d, want >= 3", len(resp.Links))
	}
}

func TestProcessEndpoint(t *testing.T) {
	env := testEnv(t, "")
	src := filepath.Join(t.TempDir(), "paper.md")
	if err := os.WriteFile(src, []byte("# Paper"), 0o644); err != nil {
		t.Fatal(err)
	}

	body, _ := json.Marshal(ProcessRequest{Path: src})
	w := do(t, env.router, http.MethodPost, "/process", body)
	if w.Code != http.StatusAccepted {
		t.Fatalf("process = %d, body = %s", w.Code, w.Body.String())
	}
	var job pipeline.Job
	_ = json.Unmarshal(w.Body.Bytes(), &job)
	if job.Status != pipeline.JobQueued || job.Path != src {
		t.Errorf("job = %+v", job)
	}
	if loc := w.Header().Get("Location"); loc != "/api/jobs/"+job.ID {
		t.Errorf("location = %q", loc)
	}

	w = do(t, env.router, http.MethodGet, "/jobs/"+job.ID, nil)
	if w.Code != http.StatusOK {
		t.Errorf("get job = %d", w.Code)
	}
	w = do(t, env.router, http.MethodGet, "/jobs/unknown", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown job = %d, want 404", w.Code)
	}
}

func TestProcessEndpoint_Rejects(t *testing.T) {
	env := testEnv(t, "")
	png := filepath.Join(t.TempDir(), "image.png")
	if err := os.WriteFile(png, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		body string
	}{
		{"invalid json", "{"},
		{"missing path", `{}`},
		{"unknown field", `{"path":"` + png + `","priority":1}`},
		{"missing file", `{"path":"/does/not/exist.md"}`},
		{"unsupported type", `{"path":"` + png + `"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := do(t, env.router, http.MethodPost, "/process", []byte(tt.body)); w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", w.Code)
			}
		})
	}
	if len(env.proc.submitted) != 0 {
		t.Errorf("rejected requests were submitted: %v", env.proc.submitted)
	}
}

func uploadFile(t *testing.T, router http.Handler, filename string, content []byte, token string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = fw.Write(content)
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/sources", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestUploadSource(t *testing.T) {
	env := testEnv(t, "")

	w := uploadFile(t, env.router, "lecture notes.md", []byte("# Lecture\n\ncontent"), "")
	if w.Code != http.StatusAccepted {
		t.Fatalf("upload = %d, body = %s", w.Code, w.Body.String())
	}
	var resp SourceUploadResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Filename != "lecture_notes.md" || resp.Job == nil {
		t.Errorf("response = %+v", resp)
	}
	want := filepath.Join(env.inbox.Dir(), "lecture_notes.md")
	if len(env.proc.submitted) != 1 || env.proc.submitted[0] != want {
		t.Errorf("submitted = %v, want %s", env.proc.submitted, want)
	}

	w = do(t, env.router, http.MethodGet, "/jobs", nil)
	var jobs JobListResponse
	_ = json.Unmarshal(w.Body.Bytes(), &jobs)
	if len(jobs.Jobs) != 1 {
		t.Errorf("jobs = %+v", jobs)
	}
}

func TestUploadSource_Rejects(t *testing.T) {
	env := testEnv(t, "")

	if w := uploadFile(t, env.router, "photo.png", []byte("\x89PNG"), ""); w.Code != http.StatusBadRequest {
		t.Errorf("png upload = %d, want 400", w.Code)
	}
	if w := uploadFile(t, env.router, "paper.pdf", []byte("plain text"), ""); w.Code != http.StatusBadRequest {
		t.Errorf("fake pdf upload = %d, want 400", w.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/sources", strings.NewReader("x"))
	req.Header.Set("Content-Type", "multipart/form-data; boundary=nothing")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing file field = %d, want 400", w.Code)
	}
	if len(env.proc.submitted) != 0 {
		t.Errorf("rejected uploads were submitted: %v", env.proc.submitted)
	}
}

func TestAuth_ValidToken(t *testing.T) {
	env := testEnv(t, "secret123")

	w := uploadFile(t, env.router, "auth.md", []byte("# Auth"), "secret123")
	if w.Code != http.StatusAccepted {
		t.Errorf("authed upload = %d, want 202", w.Code)
	}
}

func TestAuth_MissingToken(t *testing.T) {
	env := testEnv(t, "secret123")

	if w := do(t, env.router, http.MethodGet, "/records", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("unauthed = %d, want 401", w.Code)
	}
	if w := uploadFile(t, env.router, "a.md", []byte("# A"), ""); w.Code != http.StatusUnauthorized {
		t.Errorf("unauthed upload = %d, want 401", w.Code)
	}
}

func TestAuth_WrongToken(t *testing.T) {
	env := testEnv(t, "secret123")

	req := httptest.NewRequest(http.MethodGet, "/records", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token = %d, want 401", w.Code)
	}
}

func TestAuth_QueryTokenOnGet(t *testing.T) {
	env := testEnv(t, "secret123")

	if w := do(t, env.router, http.MethodGet, "/records?access_token=secret123", nil); w.Code != http.StatusOK {
		t.Errorf("query token GET = %d, want 200", w.Code)
	}
	if w := do(t, env.router, http.MethodGet, "/records?access_token=nope", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("wrong query token = %d, want 401", w.Code)
	}

	body := strings.NewReader(`{"path":"/tmp/x.md"}`)
	req := httptest.NewRequest(http.MethodPost, "/process?access_token=secret123", body)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("query token POST = %d, want 401", w.Code)
	}
	if got := w.Header().Get("WWW-Authenticate"); !strings.HasPrefix(got, "Bearer") {
		t.Errorf("WWW-Authenticate = %q", got)
	}
}

func TestAuth_Disabled(t *testing.T) {
	env := testEnv(t, "")

	if w := do(t, env.router, http.MethodGet, "/records", nil); w.Code != http.StatusOK {
		t.Errorf("no auth = %d, want 200", w.Code)
	}
}

// SSE endpoint auth tests.

// blockingEvents writes headers and blocks until the request context is done.
var blockingEvents = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	<-r.Context().Done()
})

func TestSSEEvents_AuthProtected(t *testing.T) {
	env := testEnvWithEvents(t, "secret", blockingEvents)

	if w := do(t, env.router, http.MethodGet, "/events", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("SSE no auth = %d, want 401", w.Code)
	}
}

func TestSSEEvents_ValidToken(t *testing.T) {
	env := testEnvWithEvents(t, "tok", blockingEvents)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("SSE with valid token = %d, want 200", w.Code)
	}
}

func TestSSEEvents_NotMounted(t *testing.T) {
	env := testEnv(t, "")

	if w := do(t, env.router, http.MethodGet, "/events", nil); w.Code != http.StatusNotFound {
		t.Errorf("SSE without broker = %d, want 404", w.Code)
	}
}
