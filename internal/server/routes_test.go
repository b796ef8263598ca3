package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OFFIS-RIT/netunion/internal/queue"
	mid "github.com/OFFIS-RIT/netunion/internal/server/middleware"
	"github.com/OFFIS-RIT/netunion/pkg/export"
	"github.com/OFFIS-RIT/netunion/pkg/store"
)

const (
	masterKey = "master-key"
	knownID   = "V1StGXR8_Z5jdHi6B-myT"
)

type fakeRuns struct {
	mu     sync.Mutex
	runs   map[string]*store.Run
	ranked map[string][]export.RankedNode
	failed map[string]string
	err    error
}

func newFakeRuns() *fakeRuns {
	return &fakeRuns{
		runs:   map[string]*store.Run{},
		ranked: map[string][]export.RankedNode{},
		failed: map[string]string{},
	}
}

func (f *fakeRuns) CreateRun(ctx context.Context, id string, params json.RawMessage, prefix string) (*store.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	r := &store.Run{ID: id, Status: store.RunQueued, Params: params, ArtifactPrefix: prefix, CreatedAt: time.Now()}
	f.runs[id] = r
	return r, nil
}

func (f *fakeRuns) StartRun(ctx context.Context, id string) error { return nil }

func (f *fakeRuns) CompleteRun(ctx context.Context, id string, s export.Summary, r []export.RankedNode) error {
	return nil
}

func (f *fakeRuns) FailRun(ctx context.Context, id string, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed[id] = reason
	return nil
}

func (f *fakeRuns) GetRun(ctx context.Context, id string) (*store.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	r, ok := f.runs[id]
	if !ok {
		return nil, store.ErrRunNotFound
	}
	return r, nil
}

func (f *fakeRuns) ListRuns(ctx context.Context, limit, offset int) ([]store.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []store.Run{}
	for _, r := range f.runs {
		out = append(out, *r)
	}
	return out, nil
}

func (f *fakeRuns) GetRankedNodes(ctx context.Context, id string) ([]export.RankedNode, error) {
	if _, err := f.GetRun(ctx, id); err != nil {
		return nil, err
	}
	return f.ranked[id], nil
}

func (f *fakeRuns) DeleteRun(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.runs, id)
	return nil
}

type fakePublisher struct {
	queue string
	body  []byte
	err   error
}

func (p *fakePublisher) Publish(queueName string, data []byte) error {
	if p.err != nil {
		return p.err
	}
	p.queue = queueName
	p.body = data
	return nil
}

type fakeArtifacts struct {
	keys    []string
	deleted []string
}

func (a *fakeArtifacts) ListFilesWithPrefix(ctx context.Context, prefix string) ([]string, error) {
	var out []string
	for _, k := range a.keys {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	return out, nil
}

func (a *fakeArtifacts) GenerateDownloadLink(ctx context.Context, key string) (string, error) {
	return "https://files.example/" + key, nil
}

func (a *fakeArtifacts) DeleteFolder(ctx context.Context, prefix string) error {
	a.deleted = append(a.deleted, prefix)
	return nil
}

type testServer struct {
	runs      *fakeRuns
	pub       *fakePublisher
	artifacts *fakeArtifacts
	app       *mid.App
}

func newTestServer() *testServer {
	ts := &testServer{
		runs:      newFakeRuns(),
		pub:       &fakePublisher{},
		artifacts: &fakeArtifacts{},
	}
	ts.app = &mid.App{
		Runs:           ts.runs,
		Queue:          ts.pub,
		Artifacts:      ts.artifacts,
		MasterAPIKey:   masterKey,
		MasterUserID:   1,
		MasterUserRole: "admin",
	}
	return ts
}

func (ts *testServer) do(method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	req.Header.Set("Authorization", "Bearer "+masterKey)
	rec := httptest.NewRecorder()
	NewEcho(ts.app).ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	rec := httptest.NewRecorder()
	NewEcho(newTestServer().app).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestAPIRequiresAuth(t *testing.T) {
	rec := httptest.NewRecorder()
	NewEcho(newTestServer().app).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/runs", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateRun(t *testing.T) {
	ts := newTestServer()

	rec := ts.do(http.MethodPost, "/api/runs", `{"root":"networks/run-a","dimension":"edges","seed_criterion":"main","parallelism":2}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var run store.Run
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))
	assert.Equal(t, store.RunQueued, run.Status)
	assert.Equal(t, "runs/"+run.ID, run.ArtifactPrefix)

	assert.Equal(t, queue.RunQueue, ts.pub.queue)
	var msg queue.QueueRunMsg
	require.NoError(t, json.Unmarshal(ts.pub.body, &msg))
	assert.Equal(t, run.ID, msg.RunID)
	assert.Equal(t, "networks/run-a", msg.Config.Root)
	assert.Equal(t, "edges", msg.Config.Dimension)
	assert.Equal(t, "main", msg.Config.SeedCriterion)
	assert.Equal(t, 2, msg.Config.Parallelism)
	assert.Equal(t, "runs/"+run.ID, msg.Config.Output)
}

func TestCreateRunInvalidBody(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "not json", body: `{`},
		{name: "missing root", body: `{"dimension":"nodes"}`},
		{name: "bad dimension", body: `{"root":"r","dimension":"genes"}`},
		{name: "negative parallelism", body: `{"root":"r","parallelism":-1}`},
		{name: "s3 without bucket", body: `{"root":"r","source":"s3"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer()
			rec := ts.do(http.MethodPost, "/api/runs", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Empty(t, ts.runs.runs)
		})
	}
}

func TestCreateRunQueueDown(t *testing.T) {
	ts := newTestServer()
	ts.pub.err = errors.New("connection closed")

	rec := ts.do(http.MethodPost, "/api/runs", `{"root":"r"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Len(t, ts.runs.failed, 1)
}

func TestGetRun(t *testing.T) {
	ts := newTestServer()
	ts.runs.runs[knownID] = &store.Run{ID: knownID, Status: store.RunCompleted, ArtifactPrefix: "runs/" + knownID}

	rec := ts.do(http.MethodGet, "/api/runs/"+knownID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"completed"`)

	rec = ts.do(http.MethodGet, "/api/runs/AAAAAAAAAAAAAAAAAAAAA", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(http.MethodGet, "/api/runs/short", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetRuns(t *testing.T) {
	ts := newTestServer()
	ts.runs.runs[knownID] = &store.Run{ID: knownID, Status: store.RunQueued}

	rec := ts.do(http.MethodGet, "/api/runs?limit=10&offset=0", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var runs []store.Run
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runs))
	assert.Len(t, runs, 1)

	rec = ts.do(http.MethodGet, "/api/runs?limit=-3", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetRankedNodes(t *testing.T) {
	ts := newTestServer()
	ts.runs.runs[knownID] = &store.Run{ID: knownID, Status: store.RunCompleted}
	ts.runs.ranked[knownID] = []export.RankedNode{{Stamp: 2, Node: "n2"}, {Stamp: 3, Node: "n1"}}

	rec := ts.do(http.MethodGet, "/api/runs/"+knownID+"/ranked", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[{"stamp":2,"node":"n2"},{"stamp":3,"node":"n1"}]`, rec.Body.String())
}

func TestGetRunArtifacts(t *testing.T) {
	ts := newTestServer()
	ts.runs.runs[knownID] = &store.Run{ID: knownID, Status: store.RunCompleted, ArtifactPrefix: "runs/" + knownID}
	ts.artifacts.keys = []string{
		"runs/" + knownID + "/ranked_nodes.txt",
		"runs/" + knownID + "/summary.json",
		"runs/other/summary.json",
	}

	rec := ts.do(http.MethodGet, "/api/runs/"+knownID+"/artifacts", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var artifacts []struct {
		Name string `json:"name"`
		URL  string `json:"url"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &artifacts))
	require.Len(t, artifacts, 2)
	assert.Equal(t, "ranked_nodes.txt", artifacts[0].Name)
	assert.Equal(t, "https://files.example/runs/"+knownID+"/ranked_nodes.txt", artifacts[0].URL)
}

func TestDeleteRun(t *testing.T) {
	ts := newTestServer()
	ts.runs.runs[knownID] = &store.Run{ID: knownID, Status: store.RunCompleted, ArtifactPrefix: "runs/" + knownID}

	rec := ts.do(http.MethodDelete, "/api/runs/"+knownID, "")
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []string{"runs/" + knownID + "/"}, ts.artifacts.deleted)
	assert.Empty(t, ts.runs.runs)
}

func TestDeleteRunningRun(t *testing.T) {
	ts := newTestServer()
	ts.runs.runs[knownID] = &store.Run{ID: knownID, Status: store.RunRunning}

	rec := ts.do(http.MethodDelete, "/api/runs/"+knownID, "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Empty(t, ts.artifacts.deleted)
}

func TestSummarySchema(t *testing.T) {
	rec := newTestServer().do(http.MethodGet, "/api/schema/summary", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"run_id"`)
	assert.Contains(t, rec.Body.String(), `"size-main"`)
}
