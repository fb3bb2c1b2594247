package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wangicheng/orange-juice/pkg/api"
	"github.com/wangicheng/orange-juice/pkg/database/testutil"
	"github.com/wangicheng/orange-juice/pkg/model"
	"github.com/wangicheng/orange-juice/pkg/repository"
)

// fakeDispatcher records which tasks it was asked to start, standing in
// for the real background job runner (api.Dispatcher is the contract that
// external collaborator implements).
type fakeDispatcher struct {
	crawls         []string
	createAccounts []string
}

func (d *fakeDispatcher) DispatchCrawl(taskID string)         { d.crawls = append(d.crawls, taskID) }
func (d *fakeDispatcher) DispatchCreateAccounts(taskID string) { d.createAccounts = append(d.createAccounts, taskID) }

func newTestServer(t *testing.T) (*api.Server, *fakeDispatcher, *pgxpool.Pool) {
	pool := testutil.NewPool(t)
	dispatch := &fakeDispatcher{}
	srv := api.NewServer(pool, dispatch, "test")
	return srv, dispatch, pool
}

func doJSON(t *testing.T, srv *api.Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthzReportsHealthy(t *testing.T) {
	srv, _, _ := newTestServer(t)
	rec := doJSON(t, srv, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCreateCrawlTaskDispatchesAndReuses(t *testing.T) {
	srv, dispatch, pool := newTestServer(t)
	problems := repository.NewProblemRepository(pool)
	problem, err := problems.Upsert(context.Background(), model.Problem{
		DisplayID: "p1", SubmitID: 1, Title: "t", AllowedLanguages: []string{"python3"},
	})
	require.NoError(t, err)
	templateSetID := mustSeedTemplateSet(t, pool, "fixture-a")

	rec := doJSON(t, srv, http.MethodPost, "/tasks/crawl-testcases", api.CreateCrawlTaskRequest{
		OJProblemID:     problem.DisplayID,
		CrawlerSourceID: templateSetID,
	})
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp struct {
		TaskID string `json:"task_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.TaskID)
	assert.Equal(t, []string{resp.TaskID}, dispatch.crawls)

	// A second request for the same problem while the task is still
	// PENDING must reuse it rather than dispatch a new one.
	rec2 := doJSON(t, srv, http.MethodPost, "/tasks/crawl-testcases", api.CreateCrawlTaskRequest{
		OJProblemID:     problem.DisplayID,
		CrawlerSourceID: templateSetID,
	})
	require.Equal(t, http.StatusAccepted, rec2.Code)
	var resp2 struct {
		TaskID string `json:"task_id"`
	}
	require.NoError(t, json.Unmarshal(rec2.Body.Bytes(), &resp2))
	assert.Equal(t, resp.TaskID, resp2.TaskID)
	assert.Len(t, dispatch.crawls, 1, "in-flight task must be reused, not redispatched")
}

func TestCreateCrawlTaskUnknownProblemIs404(t *testing.T) {
	srv, _, _ := newTestServer(t)
	rec := doJSON(t, srv, http.MethodPost, "/tasks/crawl-testcases", api.CreateCrawlTaskRequest{
		OJProblemID:     "does-not-exist",
		CrawlerSourceID: 1,
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateAccountsTaskDispatches(t *testing.T) {
	srv, dispatch, _ := newTestServer(t)
	rec := doJSON(t, srv, http.MethodPost, "/tasks/create-accounts", api.CreateAccountsTaskRequest{Quantity: 10})
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp struct {
		TaskID string `json:"task_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, []string{resp.TaskID}, dispatch.createAccounts)
}

func TestCreateAccountsTaskRejectsZeroQuantity(t *testing.T) {
	srv, _, _ := newTestServer(t)
	rec := doJSON(t, srv, http.MethodPost, "/tasks/create-accounts", api.CreateAccountsTaskRequest{Quantity: 0})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetTaskNotFound(t *testing.T) {
	srv, _, _ := newTestServer(t)
	rec := doJSON(t, srv, http.MethodGet, "/tasks/00000000-0000-0000-0000-000000000000", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPauseAndResumeLifecycle(t *testing.T) {
	srv, dispatch, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/tasks/create-accounts", api.CreateAccountsTaskRequest{Quantity: 1})
	require.Equal(t, http.StatusAccepted, rec.Code)
	var created struct {
		TaskID string `json:"task_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	pauseRec := doJSON(t, srv, http.MethodPost, "/tasks/"+created.TaskID+"/pause", nil)
	require.Equal(t, http.StatusOK, pauseRec.Code)

	getRec := doJSON(t, srv, http.MethodGet, "/tasks/"+created.TaskID, nil)
	require.Equal(t, http.StatusOK, getRec.Code)
	var got api.TaskResponse
	require.NoError(t, json.Unmarshal(getRec.Body.Bytes(), &got))
	assert.Equal(t, model.TaskPaused, got.Status)

	// A second pause on an already-PAUSED task is rejected.
	pauseAgain := doJSON(t, srv, http.MethodPost, "/tasks/"+created.TaskID+"/pause", nil)
	assert.Equal(t, http.StatusConflict, pauseAgain.Code)

	resumeRec := doJSON(t, srv, http.MethodPost, "/tasks/"+created.TaskID+"/resume", nil)
	require.Equal(t, http.StatusAccepted, resumeRec.Code)
	assert.Equal(t, []string{created.TaskID, created.TaskID}, dispatch.createAccounts)

	afterResume := doJSON(t, srv, http.MethodGet, "/tasks/"+created.TaskID, nil)
	var resumed api.TaskResponse
	require.NoError(t, json.Unmarshal(afterResume.Body.Bytes(), &resumed))
	assert.Equal(t, model.TaskPending, resumed.Status)
}

func TestResumeRejectsActiveTask(t *testing.T) {
	srv, _, _ := newTestServer(t)
	rec := doJSON(t, srv, http.MethodPost, "/tasks/create-accounts", api.CreateAccountsTaskRequest{Quantity: 1})
	require.Equal(t, http.StatusAccepted, rec.Code)
	var created struct {
		TaskID string `json:"task_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	resumeRec := doJSON(t, srv, http.MethodPost, "/tasks/"+created.TaskID+"/resume", nil)
	assert.Equal(t, http.StatusConflict, resumeRec.Code)
}

func TestListProblemsAndGetProblem(t *testing.T) {
	srv, _, pool := newTestServer(t)
	problems := repository.NewProblemRepository(pool)
	problem, err := problems.Upsert(context.Background(), model.Problem{
		DisplayID: "p1", SubmitID: 1, Title: "t", AllowedLanguages: []string{"python3"},
	})
	require.NoError(t, err)

	listRec := doJSON(t, srv, http.MethodGet, "/problems", nil)
	require.Equal(t, http.StatusOK, listRec.Code)
	var listResp struct {
		Problems []model.Problem `json:"problems"`
	}
	require.NoError(t, json.Unmarshal(listRec.Body.Bytes(), &listResp))
	require.Len(t, listResp.Problems, 1)
	assert.Equal(t, problem.DisplayID, listResp.Problems[0].DisplayID)

	getRec := doJSON(t, srv, http.MethodGet, fmt.Sprintf("/problems/%d", problem.ID), nil)
	require.Equal(t, http.StatusOK, getRec.Code)
	var got model.Problem
	require.NoError(t, json.Unmarshal(getRec.Body.Bytes(), &got))
	assert.Equal(t, problem.DisplayID, got.DisplayID)
}

func TestGetProblemNotFound(t *testing.T) {
	srv, _, _ := newTestServer(t)
	rec := doJSON(t, srv, http.MethodGet, "/problems/999999", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// mustSeedTemplateSet inserts a minimal code_template_set row directly
// (the Task API surface has no create endpoint for these — they're
// seeded by an out-of-scope admin surface) and returns its id.
func mustSeedTemplateSet(t *testing.T, pool *pgxpool.Pool, name string) int64 {
	t.Helper()
	var id int64
	err := pool.QueryRow(context.Background(), `
		INSERT INTO code_template_sets (name, language, templates)
		VALUES ($1, 'python3', '{}'::jsonb)
		RETURNING id
	`, name).Scan(&id)
	require.NoError(t, err)
	return id
}
