package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/example/matrixci/internal/domain"
	"github.com/example/matrixci/internal/observability"
	"github.com/example/matrixci/internal/pipeline"
	"github.com/example/matrixci/internal/plan"
	"github.com/example/matrixci/internal/service"
	"github.com/example/matrixci/internal/shell"
	"github.com/example/matrixci/internal/storage/sqlite"
)

const testConfig = `
version: 1
name: edward2
stages:
  - name: lint
    script: run-lint
  - name: test
    matrix:
      axes:
        TF_VERSION: [tensorflow, tf-nightly]
    script: python -m unittest discover
`

// newTestServer plans and executes one run against a fake executor and
// returns a server over the resulting state.
func newTestServer(t *testing.T) (*Server, *domain.Run) {
	t.Helper()
	ctx := context.Background()

	store, err := sqlite.New(filepath.Join(t.TempDir(), "matrixci_test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.Migrate(ctx))

	cfg, err := pipeline.Parse([]byte(testConfig))
	require.NoError(t, err)
	pl, err := plan.Build(cfg)
	require.NoError(t, err)

	orch := service.NewOrchestrator(store)
	run, err := orch.PlanRun(ctx, &service.PlanRunRequest{Config: cfg, Plan: pl})
	require.NoError(t, err)

	sched := service.NewScheduler(store, shell.NewFakeExecutor(), nil, zap.NewNop(),
		service.SchedulerConfig{JobTimeout: time.Minute})
	run, err = sched.Execute(ctx, run.ID, cfg, pl)
	require.NoError(t, err)

	return NewServer("127.0.0.1:0", orch, observability.NewMetrics(), zap.NewNop()), run
}

func get(t *testing.T, srv *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestListRuns(t *testing.T) {
	srv, run := newTestServer(t)

	rec := get(t, srv, "/api/runs")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ListRunsResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Runs, 1)
	assert.Equal(t, run.ID, resp.Runs[0].ID)
	assert.Equal(t, "PASSED", resp.Runs[0].State)
	assert.Equal(t, "edward2", resp.Runs[0].Pipeline)
}

func TestListRunsStateFilter(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := get(t, srv, "/api/runs?state=failed")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ListRunsResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Empty(t, resp.Runs)

	rec = get(t, srv, "/api/runs?state=bogus")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetRunDetail(t *testing.T) {
	srv, run := newTestServer(t)

	rec := get(t, srv, "/api/runs/"+run.ID)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp RunDetailResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, run.ID, resp.Run.ID)
	require.Len(t, resp.Stages, 2)
	assert.Equal(t, "lint", resp.Stages[0].Name)
	assert.Equal(t, []string{"lint"}, resp.Stages[1].DependsOn)
	assert.Len(t, resp.Jobs, 3)
}

func TestGetRunNotFound(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := get(t, srv, "/api/runs/does-not-exist")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetJobLog(t *testing.T) {
	srv, run := newTestServer(t)

	var detail RunDetailResponse
	rec := get(t, srv, "/api/runs/"+run.ID)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&detail))
	require.NotEmpty(t, detail.Jobs)

	job := detail.Jobs[0]
	rec = get(t, srv, "/api/runs/"+run.ID+"/jobs/"+job.ID+"/log")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp JobLogResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, job.ID, resp.Job.ID)
	require.NotEmpty(t, resp.Steps)
	assert.Equal(t, 0, resp.Steps[0].ExitCode)
}

func TestGetJobLogBadPath(t *testing.T) {
	srv, run := newTestServer(t)

	rec := get(t, srv, "/api/runs/"+run.ID+"/jobs/x/y/log")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMethodNotAllowed(t *testing.T) {
	srv, run := newTestServer(t)

	req := httptest.NewRequest(http.MethodDelete, "/api/runs/"+run.ID, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	// The exact list route is read-only too.
	req = httptest.NewRequest(http.MethodPost, "/api/runs", nil)
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/runs", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := get(t, srv, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := get(t, srv, "/metrics?format=json")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")
}
