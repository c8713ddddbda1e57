package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/talentgraph-backend/internal/data/repos"
	"github.com/yungbote/talentgraph-backend/internal/data/repos/testutil"
	types "github.com/yungbote/talentgraph-backend/internal/domain"
	"github.com/yungbote/talentgraph-backend/internal/domain/documents"
	"github.com/yungbote/talentgraph-backend/internal/domain/snapshots"
	apphttp "github.com/yungbote/talentgraph-backend/internal/http"
	"github.com/yungbote/talentgraph-backend/internal/http/handlers"
	"github.com/yungbote/talentgraph-backend/internal/jobs/orchestrator"
	"github.com/yungbote/talentgraph-backend/internal/pkg/errors"
	"github.com/yungbote/talentgraph-backend/internal/services"
)

type fakeEngine struct {
	lastRun    orchestrator.CreateFlowRunInput
	lastBatch  orchestrator.CreateFlowBatchInput
	lastModule orchestrator.CreateModuleRunInput
	err        error
	status     *orchestrator.FlowRunStatus
}

func (f *fakeEngine) CreateFlowRun(_ context.Context, in orchestrator.CreateFlowRunInput) (*orchestrator.CreateFlowRunResult, error) {
	f.lastRun = in
	if f.err != nil {
		return nil, f.err
	}
	return &orchestrator.CreateFlowRunResult{FlowRunID: uuid.New(), FlowKey: "default", JobID: uuid.New()}, nil
}

func (f *fakeEngine) CreateFlowBatch(_ context.Context, in orchestrator.CreateFlowBatchInput) (*orchestrator.FlowBatchResult, error) {
	f.lastBatch = in
	if f.err != nil {
		return nil, f.err
	}
	return &orchestrator.FlowBatchResult{FlowSetID: uuid.New(), FlowKey: "default"}, nil
}

func (f *fakeEngine) GetFlowRunStatus(_ context.Context, id uuid.UUID) (*orchestrator.FlowRunStatus, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.status, nil
}

func (f *fakeEngine) CreateModuleRun(_ context.Context, in orchestrator.CreateModuleRunInput) (*orchestrator.CreateModuleRunResult, error) {
	f.lastModule = in
	if f.err != nil {
		return nil, f.err
	}
	return &orchestrator.CreateModuleRunResult{ModuleRunID: uuid.New(), ModuleKey: in.ModuleKey, Version: "1.0.0", JobID: uuid.New()}, nil
}

type envelope struct {
	Error struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	} `json:"error"`
}

func do(t *testing.T, r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func flowRouter(engine handlers.FlowEngine) *gin.Engine {
	gin.SetMode(gin.TestMode)
	return apphttp.NewRouter(apphttp.RouterConfig{
		HealthHandler:    handlers.NewHealthHandler(),
		FlowHandler:      handlers.NewFlowHandler(engine),
		ModuleRunHandler: handlers.NewModuleRunHandler(engine),
	})
}

func TestHealthCheck(t *testing.T) {
	rec := do(t, flowRouter(&fakeEngine{}), http.MethodGet, "/healthcheck", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCreateFlowRunAccepted(t *testing.T) {
	eng := &fakeEngine{}
	projectID, personID := uuid.New(), uuid.New()
	rec := do(t, flowRouter(eng), http.MethodPost, "/api/flow-runs", map[string]any{
		"projectId":          projectID,
		"personId":           personID,
		"triggeredByUserId":  "user-1",
		"filterInstructions": "only engineers",
	})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	assert.Equal(t, projectID, eng.lastRun.ProjectID)
	assert.Equal(t, personID, eng.lastRun.PersonID)
	assert.Equal(t, "user-1", eng.lastRun.TriggeredBy)
	assert.Equal(t, "only engineers", eng.lastRun.FilterInstructions)

	var res orchestrator.CreateFlowRunResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.NotEqual(t, uuid.Nil, res.FlowRunID)
}

func TestCreateFlowRunMalformedBody(t *testing.T) {
	rec := do(t, flowRouter(&fakeEngine{}), http.MethodPost, "/api/flow-runs", map[string]any{"projectId": "nope"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, string(errors.CodeValidation), decodeError(t, rec).Error.Code)
}

func TestEngineErrorsMapToStatus(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{errors.NotFound("x", "missing"), http.StatusNotFound},
		{errors.Validation("x", "bad"), http.StatusBadRequest},
		{errors.Conflict("x", errors.New("raced")), http.StatusConflict},
		{errors.ExternalProvider("x", errors.New("down")), http.StatusBadGateway},
		{errors.Timeout("x", errors.New("slow")), http.StatusGatewayTimeout},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rec := do(t, flowRouter(&fakeEngine{err: tc.err}), http.MethodPost, "/api/flow-runs", map[string]any{
			"projectId": uuid.New(),
			"personId":  uuid.New(),
		})
		assert.Equal(t, tc.status, rec.Code, tc.err.Error())
		assert.NotEmpty(t, decodeError(t, rec).Error.Message)
	}
}

func TestGetFlowRunStatus(t *testing.T) {
	id := uuid.New()
	eng := &fakeEngine{status: &orchestrator.FlowRunStatus{FlowRunID: id, Status: "RUNNING", Progress: 40}}
	rec := do(t, flowRouter(eng), http.MethodGet, "/api/flow-runs/"+id.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var st orchestrator.FlowRunStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, id, st.FlowRunID)
	assert.Equal(t, 40, st.Progress)

	rec = do(t, flowRouter(eng), http.MethodGet, "/api/flow-runs/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateFlowBatch(t *testing.T) {
	eng := &fakeEngine{}
	rec := do(t, flowRouter(eng), http.MethodPost, "/api/flow-batches", map[string]any{
		"projectId": uuid.New(),
		"profiles":  []string{"https://linkedin.com/in/a", "b"},
	})
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, []string{"https://linkedin.com/in/a", "b"}, eng.lastBatch.Profiles)
}

func TestCreateModuleRun(t *testing.T) {
	eng := &fakeEngine{}
	rec := do(t, flowRouter(eng), http.MethodPost, "/api/module-runs", map[string]any{
		"projectId":      uuid.New(),
		"moduleKey":      "people_search_connector",
		"searchProvider": "people_search",
		"searchPayload":  map[string]any{"keywords": "cto"},
		"maxPages":       2,
	})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	assert.Equal(t, "people_search_connector", eng.lastModule.ModuleKey)
	assert.Equal(t, "people_search", eng.lastModule.Config.SearchProvider)
	assert.Equal(t, 2, eng.lastModule.Config.MaxPages)
	assert.JSONEq(t, `{"keywords":"cto"}`, string(eng.lastModule.Config.SearchPayload))

	rec = do(t, flowRouter(eng), http.MethodPost, "/api/module-runs", map[string]any{"projectId": uuid.New()})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDocumentValidityRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := testutil.DB(t)
	ctx := context.Background()
	project, person := testutil.SeedProjectPerson(t, ctx, db)
	docs := services.NewDocumentService(db, testutil.Logger(t), repos.NewDocumentRepo(db, testutil.Logger(t)), nil)
	doc, err := docs.Create(testutil.DBC(ctx), services.NewDocument{
		Subject:    types.PersonSubjectOf(project.ID, person.ID),
		Source:     documents.SourceLinkedin,
		Kind:       documents.KindProfile,
		CapturedAt: time.Now(),
		Payload:    []byte(`{"name":"Jane"}`),
	})
	require.NoError(t, err)

	r := apphttp.NewRouter(apphttp.RouterConfig{DocumentHandler: handlers.NewDocumentHandler(docs)})

	rec := do(t, r, http.MethodPost, "/api/documents/"+doc.ID.String()+"/invalidate", map[string]any{"reason": "stale"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got, err := docs.GetByID(testutil.DBC(ctx), doc.ID)
	require.NoError(t, err)
	assert.False(t, got.IsValid)

	rec = do(t, r, http.MethodPost, "/api/documents/"+doc.ID.String()+"/revalidate", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got, err = docs.GetByID(testutil.DBC(ctx), doc.ID)
	require.NoError(t, err)
	assert.True(t, got.IsValid)

	rec = do(t, r, http.MethodPost, "/api/documents/"+uuid.New().String()+"/invalidate", map[string]any{"reason": "x"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSnapshotLatestRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := testutil.DB(t)
	ctx := context.Background()
	project, person := testutil.SeedProjectPerson(t, ctx, db)
	snaps := services.NewSnapshotService(db, testutil.Logger(t), repos.NewLayerSnapshotRepo(db, testutil.Logger(t)))
	_, err := snaps.CreateNextSnapshotVersion(testutil.DBC(ctx), services.NewSnapshot{
		ProjectID:       project.ID,
		PersonID:        person.ID,
		LayerNumber:     snapshots.LayerCoreIdentity,
		Compiled:        map[string]string{"headline": "CTO"},
		ComposerKey:     "layer1_core_identity_composer",
		ComposerVersion: "1.0.0",
	})
	require.NoError(t, err)

	r := apphttp.NewRouter(apphttp.RouterConfig{SnapshotHandler: handlers.NewSnapshotHandler(snaps)})
	base := "/api/projects/" + project.ID.String() + "/people/" + person.ID.String() + "/snapshots/"

	rec := do(t, r, http.MethodGet, base+"1/latest", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var body struct {
		Snapshot struct {
			SnapshotVersion int             `json:"snapshot_version"`
			CompiledJSON    json.RawMessage `json:"compiled_json"`
		} `json:"snapshot"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Snapshot.SnapshotVersion)

	rec = do(t, r, http.MethodGet, base+"2/latest", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, r, http.MethodGet, base+"zero/latest", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetJob(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := testutil.DB(t)
	ctx := context.Background()
	jobs := services.NewJobService(db, testutil.Logger(t), repos.NewJobRunRepo(db, testutil.Logger(t)))
	job, err := jobs.Enqueue(testutil.DBC(ctx), orchestrator.JobFlowRunProcess, orchestrator.EntityFlowRun, nil, map[string]any{"flow_run_id": uuid.New().String()})
	require.NoError(t, err)

	r := apphttp.NewRouter(apphttp.RouterConfig{JobHandler: handlers.NewJobHandler(jobs)})
	rec := do(t, r, http.MethodGet, "/api/jobs/"+job.ID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, r, http.MethodGet, "/api/jobs/"+uuid.New().String(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
