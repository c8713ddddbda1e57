package orchestrator

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/talentgraph-backend/internal/data/repos"
	"github.com/yungbote/talentgraph-backend/internal/data/repos/testutil"
	types "github.com/yungbote/talentgraph-backend/internal/domain"
	"github.com/yungbote/talentgraph-backend/internal/domain/claims"
	"github.com/yungbote/talentgraph-backend/internal/domain/flows"
	domainmod "github.com/yungbote/talentgraph-backend/internal/domain/modules"
	"github.com/yungbote/talentgraph-backend/internal/pkg/dbctx"
	"github.com/yungbote/talentgraph-backend/internal/pkg/errors"
	"github.com/yungbote/talentgraph-backend/internal/platform/llm"
	"github.com/yungbote/talentgraph-backend/internal/platform/redislock"
	"github.com/yungbote/talentgraph-backend/internal/services"
)

const testFlows = `
flows:
  - key: full
    default: true
    stages:
      CONNECTORS: [conn_a, conn_b]
      ENRICHERS: [enrich]
      COMPOSERS: [compose]
  - key: gappy
    stages:
      CONNECTORS: [conn_a]
      COMPOSERS: [compose]
  - key: nothing_enabled
    stages:
      CONNECTORS: [missing_module]
`

type engineFixture struct {
	db      *gorm.DB
	rs      repos.Set
	claims  services.ClaimLedger
	jobs    services.JobService
	locker  redislock.Locker
	engine  *Engine
	project *types.Project
	person  *types.Person
	aiReply string
	aiErr   error
	aiCalls int32
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()
	ctx := context.Background()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	rs := repos.NewSet(db, log)
	docs := services.NewDocumentService(db, log, rs.Document, nil)
	catalog, err := ParseCatalog([]byte(testFlows))
	require.NoError(t, err)

	for _, m := range []struct {
		key  string
		kind domainmod.Kind
	}{
		{"conn_a", domainmod.KindConnector},
		{"conn_b", domainmod.KindConnector},
		{"enrich", domainmod.KindEnricher},
		{"compose", domainmod.KindComposer},
	} {
		testutil.SeedModule(t, ctx, db, m.key, "1.0.0", m.kind, true)
	}

	f := &engineFixture{db: db, rs: rs, locker: redislock.NewLocalLocker(), aiReply: `{"shouldProceed":true,"reason":"fits","confidence":0.8}`}
	f.project, f.person = testutil.SeedProjectPerson(t, ctx, db)
	f.claims = services.NewClaimLedger(db, log, rs.Claim)
	f.jobs = services.NewJobService(db, log, rs.JobRun)
	f.engine = NewEngine(db, log, Deps{
		Repos:    rs,
		Jobs:     f.jobs,
		Docs:     docs,
		Claims:   f.claims,
		Entities: services.NewEntityResolutionService(db, log, rs, docs, nil),
		Locker:   f.locker,
		Catalog:  catalog,
		AI: llm.RunnerFunc(func(context.Context, llm.Request) (llm.Response, error) {
			atomic.AddInt32(&f.aiCalls, 1)
			if f.aiErr != nil {
				return llm.Response{}, f.aiErr
			}
			return llm.Response{RawText: f.aiReply}, nil
		}),
	}, Config{LockWait: 50 * time.Millisecond, AIModel: "test-model"})
	return f
}

func (f *engineFixture) dbc() dbctx.Context { return dbctx.Context{Ctx: context.Background()} }

func (f *engineFixture) startFlow(t *testing.T, flowKey, filter string) uuid.UUID {
	t.Helper()
	res, err := f.engine.CreateFlowRun(context.Background(), CreateFlowRunInput{
		ProjectID:          f.project.ID,
		PersonID:           f.person.ID,
		FlowKey:            flowKey,
		TriggeredBy:        "user-1",
		FilterInstructions: filter,
	})
	require.NoError(t, err)
	require.NoError(t, f.engine.ProcessFlowRun(context.Background(), res.FlowRunID))
	return res.FlowRunID
}

func (f *engineFixture) flow(t *testing.T, id uuid.UUID) *types.FlowRun {
	t.Helper()
	fr, err := f.rs.FlowRun.GetByID(f.dbc(), id)
	require.NoError(t, err)
	require.NotNil(t, fr)
	return fr
}

func (f *engineFixture) stageRuns(t *testing.T, id uuid.UUID, stage flows.Stage) []*types.ModuleRun {
	t.Helper()
	runs, err := f.rs.ModuleRun.ListByFlowRunStage(f.dbc(), id, string(stage))
	require.NoError(t, err)
	return runs
}

// completeStage marks every run of stage completed and reports each to the
// engine the way the module job does.
func (f *engineFixture) completeStage(t *testing.T, id uuid.UUID, stage flows.Stage) {
	t.Helper()
	runs := f.stageRuns(t, id, stage)
	require.NotEmpty(t, runs)
	for _, r := range runs {
		_, err := f.rs.ModuleRun.MarkCompleted(f.dbc(), r.ID, datatypes.JSON(`{}`))
		require.NoError(t, err)
		require.NoError(t, f.engine.CheckAndProgressStage(context.Background(), id))
	}
}

func TestCreateFlowRunEnqueuesProcessing(t *testing.T) {
	f := newEngineFixture(t)
	res, err := f.engine.CreateFlowRun(context.Background(), CreateFlowRunInput{ProjectID: f.project.ID, PersonID: f.person.ID})
	require.NoError(t, err)
	assert.Equal(t, "full", res.FlowKey)

	fr := f.flow(t, res.FlowRunID)
	assert.Equal(t, flows.StatusQueued, fr.Status)
	assert.Equal(t, 1, fr.Version)
	assert.Equal(t, f.person.LinkedinURL, fr.InputSummary.Data().ProfileURL)

	job, err := f.jobs.GetLatestForEntity(f.dbc(), EntityFlowRun, res.FlowRunID, JobFlowRunProcess)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, res.JobID, job.ID)
}

func TestCreateFlowRunValidation(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	stranger := testutil.SeedPerson(t, ctx, f.db, "https://linkedin.com/in/stranger")
	_, err := f.engine.CreateFlowRun(ctx, CreateFlowRunInput{ProjectID: f.project.ID, PersonID: stranger.ID})
	assert.True(t, errors.IsCode(err, errors.CodeValidation), "unattached person: %v", err)

	_, err = f.engine.CreateFlowRun(ctx, CreateFlowRunInput{ProjectID: uuid.New(), PersonID: f.person.ID})
	assert.True(t, errors.IsCode(err, errors.CodeNotFound))

	_, err = f.engine.CreateFlowRun(ctx, CreateFlowRunInput{ProjectID: f.project.ID, PersonID: uuid.New()})
	assert.True(t, errors.IsCode(err, errors.CodeNotFound))

	_, err = f.engine.CreateFlowRun(ctx, CreateFlowRunInput{ProjectID: f.project.ID, PersonID: f.person.ID, FlowKey: "nope"})
	assert.True(t, errors.IsCode(err, errors.CodeNotFound))
}

func TestFlowRunsAllStagesToCompletion(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	id := f.startFlow(t, "", "")

	fr := f.flow(t, id)
	assert.Equal(t, flows.StatusRunning, fr.Status)
	assert.Equal(t, flows.StageConnectors, fr.CurrentStage)
	assert.NotNil(t, fr.StartedAt)
	connectors := f.stageRuns(t, id, flows.StageConnectors)
	require.Len(t, connectors, 2)
	for _, r := range connectors {
		job, err := f.jobs.GetLatestForEntity(f.dbc(), EntityModuleRun, r.ID, JobModuleRunExecute)
		require.NoError(t, err)
		assert.NotNil(t, job)
		assert.Equal(t, id, *r.Config().FlowRunID)
	}

	// redelivered process job changes nothing
	require.NoError(t, f.engine.ProcessFlowRun(ctx, id))
	assert.Len(t, f.stageRuns(t, id, flows.StageConnectors), 2)

	// one of two done: stay on the stage
	_, err := f.rs.ModuleRun.MarkCompleted(f.dbc(), connectors[0].ID, datatypes.JSON(`{}`))
	require.NoError(t, err)
	require.NoError(t, f.engine.CheckAndProgressStage(ctx, id))
	assert.Equal(t, flows.StageConnectors, f.flow(t, id).CurrentStage)

	_, err = f.rs.ModuleRun.MarkCompleted(f.dbc(), connectors[1].ID, datatypes.JSON(`{}`))
	require.NoError(t, err)
	require.NoError(t, f.engine.CheckAndProgressStage(ctx, id))
	// a duplicate notification is harmless
	require.NoError(t, f.engine.CheckAndProgressStage(ctx, id))
	fr = f.flow(t, id)
	assert.Equal(t, flows.StageEnrichers, fr.CurrentStage)
	assert.Len(t, fr.CompletedModules, 2)
	assert.Len(t, fr.ScheduledModules, 3)
	assert.Len(t, f.stageRuns(t, id, flows.StageEnrichers), 1)

	f.completeStage(t, id, flows.StageEnrichers)
	assert.Equal(t, flows.StageComposers, f.flow(t, id).CurrentStage)

	_, err = f.claims.Record(f.dbc(), f.project.ID, f.person.ID, claims.FinalSummaryV1{Summary: "Builds things."}, services.ClaimMeta{Confidence: 0.7, ObservedAt: time.Now().UTC()})
	require.NoError(t, err)
	f.completeStage(t, id, flows.StageComposers)

	fr = f.flow(t, id)
	assert.Equal(t, flows.StatusCompleted, fr.Status)
	assert.Equal(t, flows.StageCompleted, fr.CurrentStage)
	assert.NotNil(t, fr.FinishedAt)
	assert.Contains(t, string(fr.FinalSummary), "Builds things.")

	st, err := f.engine.GetFlowRunStatus(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, flows.StatusCompleted, st.Status)
	assert.Equal(t, 100, st.Progress)
	assert.Len(t, st.Modules, 4)
	assert.Empty(t, st.CurrentModules)
	assert.Equal(t, 2, st.Stages[flows.StageConnectors].Completed)
}

func TestModuleFailureFailsFlow(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	id := f.startFlow(t, "full", "")
	runs := f.stageRuns(t, id, flows.StageConnectors)

	_, err := f.rs.ModuleRun.MarkCompleted(f.dbc(), runs[0].ID, datatypes.JSON(`{}`))
	require.NoError(t, err)
	cause := errors.ExternalProvider("apify.Search", errors.New("actor crashed"))
	_, err = f.rs.ModuleRun.MarkFailed(f.dbc(), runs[1].ID, datatypes.JSON(errors.JSON(cause)))
	require.NoError(t, err)
	require.NoError(t, f.engine.CheckAndProgressStage(ctx, id))

	fr := f.flow(t, id)
	assert.Equal(t, flows.StatusFailed, fr.Status)
	assert.Len(t, fr.FailedModules, 1)
	p := decodePayload(fr.ErrorJSON)
	require.NotNil(t, p)
	assert.Equal(t, errors.CodeExternalProvider, p.Code)
	assert.Equal(t, string(flows.StageConnectors), p.Details["stage"])
	assert.Empty(t, f.stageRuns(t, id, flows.StageEnrichers))

	// terminal flows ignore further notifications
	require.NoError(t, f.engine.CheckAndProgressStage(ctx, id))
	assert.Equal(t, fr.Version, f.flow(t, id).Version)
}

func TestFailedStageWaitsForSiblings(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	id := f.startFlow(t, "full", "")
	runs := f.stageRuns(t, id, flows.StageConnectors)
	require.Len(t, runs, 2)

	_, err := f.rs.ModuleRun.MarkRunning(f.dbc(), runs[0].ID)
	require.NoError(t, err)
	cause := errors.ExternalProvider("apify.ScrapeProfile", errors.New("actor crashed"))
	_, err = f.rs.ModuleRun.MarkFailed(f.dbc(), runs[1].ID, datatypes.JSON(errors.JSON(cause)))
	require.NoError(t, err)
	require.NoError(t, f.engine.CheckAndProgressStage(ctx, id))

	fr := f.flow(t, id)
	assert.Equal(t, flows.StatusRunning, fr.Status)
	assert.Empty(t, fr.FailedModules)

	_, err = f.rs.ModuleRun.MarkCompleted(f.dbc(), runs[0].ID, datatypes.JSON(`{}`))
	require.NoError(t, err)
	require.NoError(t, f.engine.CheckAndProgressStage(ctx, id))

	fr = f.flow(t, id)
	assert.Equal(t, flows.StatusFailed, fr.Status)
	require.Len(t, fr.CompletedModules, 1)
	assert.Equal(t, runs[0].ModuleKey, fr.CompletedModules[0].ModuleKey)
	assert.Len(t, fr.FailedModules, 1)
	assert.Empty(t, f.stageRuns(t, id, flows.StageEnrichers))
}

func TestEmptyStagesAreSkipped(t *testing.T) {
	f := newEngineFixture(t)
	id := f.startFlow(t, "gappy", "")
	f.completeStage(t, id, flows.StageConnectors)

	fr := f.flow(t, id)
	assert.Equal(t, flows.StageComposers, fr.CurrentStage)
	assert.Empty(t, f.stageRuns(t, id, flows.StageEnrichers))

	none := f.startFlow(t, "nothing_enabled", "")
	fr = f.flow(t, none)
	assert.Equal(t, flows.StatusCompleted, fr.Status)
	assert.Empty(t, fr.FinalSummary)
}

func TestFilterGate(t *testing.T) {
	t.Run("proceeds and memoizes", func(t *testing.T) {
		f := newEngineFixture(t)
		id := f.startFlow(t, "full", "only senior engineers")
		f.completeStage(t, id, flows.StageConnectors)

		fr := f.flow(t, id)
		assert.Equal(t, flows.StageEnrichers, fr.CurrentStage)
		res := fr.InputSummary.Data().FilterResult
		require.NotNil(t, res)
		assert.True(t, res.ShouldProceed)
		assert.Equal(t, 0.8, res.Confidence)

		again, err := f.engine.evaluateFilter(context.Background(), fr)
		require.NoError(t, err)
		assert.Equal(t, "fits", again.Reason)
		assert.Equal(t, int32(1), atomic.LoadInt32(&f.aiCalls))
	})

	t.Run("rejects", func(t *testing.T) {
		f := newEngineFixture(t)
		f.aiReply = "```json\n{\"shouldProceed\":false,\"reason\":\"junior profile\",\"confidence\":0.9}\n```"
		id := f.startFlow(t, "full", "only senior engineers")
		f.completeStage(t, id, flows.StageConnectors)

		fr := f.flow(t, id)
		assert.Equal(t, flows.StatusFailed, fr.Status)
		p := decodePayload(fr.ErrorJSON)
		require.NotNil(t, p)
		assert.Equal(t, errors.CodeValidation, p.Code)
		assert.Contains(t, p.Details, "filterResult")

		st, err := f.engine.GetFlowRunStatus(context.Background(), id)
		require.NoError(t, err)
		require.NotNil(t, st.FilterResult)
		assert.Equal(t, "junior profile", st.FilterResult.Reason)
	})

	t.Run("provider failure", func(t *testing.T) {
		f := newEngineFixture(t)
		f.aiErr = errors.New("rate limited")
		id := f.startFlow(t, "full", "anyone")
		f.completeStage(t, id, flows.StageConnectors)

		fr := f.flow(t, id)
		assert.Equal(t, flows.StatusFailed, fr.Status)
		assert.Equal(t, errors.CodeExternalProvider, decodePayload(fr.ErrorJSON).Code)
	})

	t.Run("skipped without instructions", func(t *testing.T) {
		f := newEngineFixture(t)
		id := f.startFlow(t, "full", "  ")
		f.completeStage(t, id, flows.StageConnectors)
		assert.Equal(t, flows.StageEnrichers, f.flow(t, id).CurrentStage)
		assert.Zero(t, atomic.LoadInt32(&f.aiCalls))
	})
}

func TestProgressWaitsForLock(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	id := f.startFlow(t, "full", "")

	held, err := f.locker.Acquire(ctx, "flow_run:"+id.String(), time.Minute, time.Second)
	require.NoError(t, err)
	err = f.engine.CheckAndProgressStage(ctx, id)
	assert.True(t, errors.IsCode(err, errors.CodeTimeout))
	require.NoError(t, held.Release(ctx))
	require.NoError(t, f.engine.CheckAndProgressStage(ctx, id))
}

func TestStaleVersionIsConflict(t *testing.T) {
	f := newEngineFixture(t)
	id := f.startFlow(t, "full", "")
	fr := f.flow(t, id)

	ok, err := f.rs.FlowRun.CompareAndSwap(f.dbc(), id, fr.Version, map[string]interface{}{"current_stage": string(flows.StageConnectors)})
	require.NoError(t, err)
	require.True(t, ok)

	def, err := f.engine.catalog.Resolve("full")
	require.NoError(t, err)
	err = f.engine.advance(context.Background(), fr, def, flows.StageEnrichers, nil)
	assert.True(t, errors.IsCode(err, errors.CodeConflict))
	// the losing transaction left no module runs behind
	assert.Empty(t, f.stageRuns(t, id, flows.StageEnrichers))
}

func TestCreateFlowBatch(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	res, err := f.engine.CreateFlowBatch(ctx, CreateFlowBatchInput{
		ProjectID: f.project.ID,
		Profiles:  []string{"linkedin.com/in/newbie", "https://example.com/not-linkedin", f.person.LinkedinURL},
	})
	require.NoError(t, err)
	require.Len(t, res.Items, 3)

	assert.True(t, res.Items[0].PersonCreated)
	assert.NotNil(t, res.Items[0].FlowRunID)
	require.NotNil(t, res.Items[1].Error)
	assert.Equal(t, errors.CodeValidation, res.Items[1].Error.Code)
	assert.Nil(t, res.Items[1].FlowRunID)
	assert.False(t, res.Items[2].PersonCreated)
	assert.Equal(t, f.person.ID, *res.Items[2].PersonID)

	runs, err := f.rs.FlowRun.ListByFlowSet(f.dbc(), res.FlowSetID)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
	set, err := f.rs.FlowSet.GetByID(f.dbc(), res.FlowSetID)
	require.NoError(t, err)
	assert.Equal(t, 3, set.ItemCount)

	link, err := f.rs.PersonProject.Get(f.dbc(), f.project.ID, *res.Items[0].PersonID)
	require.NoError(t, err)
	assert.NotNil(t, link)

	_, err = f.engine.CreateFlowBatch(ctx, CreateFlowBatchInput{ProjectID: f.project.ID})
	assert.True(t, errors.IsCode(err, errors.CodeValidation))
}

func TestCreateModuleRun(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	testutil.SeedModule(t, ctx, f.db, "enrich", "1.2.0", domainmod.KindEnricher, true)
	pid := f.person.ID

	res, err := f.engine.CreateModuleRun(ctx, CreateModuleRunInput{ProjectID: f.project.ID, PersonID: &pid, ModuleKey: "enrich"})
	require.NoError(t, err)
	assert.Equal(t, "1.2.0", res.Version)
	run, err := f.rs.ModuleRun.GetByID(f.dbc(), res.ModuleRunID)
	require.NoError(t, err)
	assert.Nil(t, run.FlowRunID)
	assert.Equal(t, domainmod.RunQueued, run.Status)

	pinned, err := f.engine.CreateModuleRun(ctx, CreateModuleRunInput{ProjectID: f.project.ID, PersonID: &pid, ModuleKey: "enrich", Version: "1.0.0"})
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", pinned.Version)

	_, err = f.engine.CreateModuleRun(ctx, CreateModuleRunInput{ProjectID: f.project.ID, ModuleKey: "unknown"})
	assert.True(t, errors.IsCode(err, errors.CodeNotFound))
	_, err = f.engine.CreateModuleRun(ctx, CreateModuleRunInput{ProjectID: f.project.ID})
	assert.True(t, errors.IsCode(err, errors.CodeValidation))
}

func TestBuildStatusWhileRunning(t *testing.T) {
	fr := &types.FlowRun{ID: uuid.New(), Status: flows.StatusRunning, CurrentStage: flows.StageConnectors, Version: 2}
	mk := func(key string, st domainmod.RunStatus) *types.ModuleRun {
		return &types.ModuleRun{ID: uuid.New(), ModuleKey: key, Status: st, FlowStage: string(flows.StageConnectors)}
	}

	st := BuildStatus(fr, []*types.ModuleRun{mk("a", domainmod.RunQueued), mk("b", domainmod.RunQueued)})
	assert.Equal(t, flows.StatusQueued, st.Status)
	assert.Equal(t, 0, st.Progress)
	assert.Equal(t, []string{"a", "b"}, st.CurrentModules)

	st = BuildStatus(fr, []*types.ModuleRun{mk("a", domainmod.RunCompleted), mk("b", domainmod.RunQueued), mk("c", domainmod.RunRunning)})
	assert.Equal(t, flows.StatusRunning, st.Status)
	assert.Equal(t, 33, st.Progress)
	assert.Equal(t, []string{"b", "c"}, st.CurrentModules)

	failed := mk("d", domainmod.RunFailed)
	failed.ErrorJSON = datatypes.JSON(errors.JSON(errors.Validation("x", "bad input")))
	st = BuildStatus(fr, []*types.ModuleRun{mk("a", domainmod.RunCompleted), failed})
	assert.Equal(t, flows.StatusFailed, st.Status)
	assert.Equal(t, 50, st.Progress)
	require.NotNil(t, st.Modules[1].Error)
	assert.Equal(t, errors.CodeValidation, st.Modules[1].Error.Code)

	raw, err := json.Marshal(st)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"CONNECTORS"`)
}
