package module_run_execute_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/yungbote/talentgraph-backend/internal/data/repos"
	"github.com/yungbote/talentgraph-backend/internal/data/repos/testutil"
	types "github.com/yungbote/talentgraph-backend/internal/domain"
	"github.com/yungbote/talentgraph-backend/internal/domain/flows"
	"github.com/yungbote/talentgraph-backend/internal/domain/jobs"
	domainmod "github.com/yungbote/talentgraph-backend/internal/domain/modules"
	"github.com/yungbote/talentgraph-backend/internal/jobs/orchestrator"
	"github.com/yungbote/talentgraph-backend/internal/jobs/pipeline/flow_run_process"
	"github.com/yungbote/talentgraph-backend/internal/jobs/pipeline/module_run_execute"
	"github.com/yungbote/talentgraph-backend/internal/jobs/runtime"
	"github.com/yungbote/talentgraph-backend/internal/jobs/worker"
	"github.com/yungbote/talentgraph-backend/internal/modules"
	"github.com/yungbote/talentgraph-backend/internal/pkg/dbctx"
	"github.com/yungbote/talentgraph-backend/internal/pkg/errors"
	"github.com/yungbote/talentgraph-backend/internal/services"
)

type stubModule struct {
	key   string
	kind  domainmod.Kind
	calls int32
	fail  error
}

func (s *stubModule) Key() string          { return s.key }
func (s *stubModule) Version() string      { return "1.0.0" }
func (s *stubModule) Kind() domainmod.Kind { return s.kind }
func (s *stubModule) Execute(_ context.Context, run *types.ModuleRun) (modules.Result, error) {
	atomic.AddInt32(&s.calls, 1)
	if s.fail != nil {
		return modules.Failed(s.fail), nil
	}
	return modules.Succeeded(map[string]string{"module": s.key}), nil
}

type queueFixture struct {
	rs      repos.Set
	jobs    services.JobService
	engine  *orchestrator.Engine
	worker  *worker.Worker
	exec    *module_run_execute.Pipeline
	project *types.Project
	person  *types.Person
	src     *stubModule
	mid     *stubModule
	out     *stubModule
}

const pipelineFlows = `
flows:
  - key: three_stage
    default: true
    stages:
      CONNECTORS: [src]
      ENRICHERS: [mid]
      COMPOSERS: [out]
`

func newQueueFixture(t *testing.T) *queueFixture {
	t.Helper()
	ctx := context.Background()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	rs := repos.NewSet(db, log)
	docs := services.NewDocumentService(db, log, rs.Document, nil)
	catalog, err := orchestrator.ParseCatalog([]byte(pipelineFlows))
	require.NoError(t, err)

	f := &queueFixture{
		rs:   rs,
		jobs: services.NewJobService(db, log, rs.JobRun),
		src:  &stubModule{key: "src", kind: domainmod.KindConnector},
		mid:  &stubModule{key: "mid", kind: domainmod.KindEnricher},
		out:  &stubModule{key: "out", kind: domainmod.KindComposer},
	}
	modReg := modules.NewRegistry()
	for _, m := range []*stubModule{f.src, f.mid, f.out} {
		require.NoError(t, modReg.Register(m))
	}
	_, err = modules.Seed(dbctx.Context{Ctx: ctx}, rs.Module, modReg)
	require.NoError(t, err)
	f.project, f.person = testutil.SeedProjectPerson(t, ctx, db)

	f.engine = orchestrator.NewEngine(db, log, orchestrator.Deps{
		Repos:    rs,
		Jobs:     f.jobs,
		Docs:     docs,
		Claims:   services.NewClaimLedger(db, log, rs.Claim),
		Entities: services.NewEntityResolutionService(db, log, rs, docs, nil),
		Catalog:  catalog,
	}, orchestrator.Config{})

	f.exec = module_run_execute.New(db, log, rs.ModuleRun, modules.NewDispatcher(log, modReg), f.engine)
	jobReg := runtime.NewRegistry()
	require.NoError(t, jobReg.Register(f.exec))
	require.NoError(t, jobReg.Register(flow_run_process.New(log, f.engine)))
	f.worker = worker.NewWorker(db, log, rs.JobRun, jobReg, worker.Config{Concurrency: 1, MaxAttempts: 3, RetryDelay: time.Nanosecond})
	return f
}

func (f *queueFixture) drain(t *testing.T) int {
	t.Helper()
	n := 0
	for ; n < 50; n++ {
		claimed, err := f.worker.RunOnce(context.Background())
		require.NoError(t, err)
		if !claimed {
			return n
		}
	}
	t.Fatalf("queue did not drain")
	return n
}

func (f *queueFixture) start(t *testing.T) uuid.UUID {
	t.Helper()
	res, err := f.engine.CreateFlowRun(context.Background(), orchestrator.CreateFlowRunInput{ProjectID: f.project.ID, PersonID: f.person.ID})
	require.NoError(t, err)
	return res.FlowRunID
}

func TestFlowRunsThroughQueue(t *testing.T) {
	f := newQueueFixture(t)
	id := f.start(t)

	// one process job plus one job per module
	assert.Equal(t, 4, f.drain(t))

	st, err := f.engine.GetFlowRunStatus(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, flows.StatusCompleted, st.Status)
	assert.Equal(t, 100, st.Progress)
	require.Len(t, st.Modules, 3)
	for _, m := range st.Modules {
		assert.Equal(t, domainmod.RunCompleted, m.Status)
	}

	runs, err := f.rs.ModuleRun.ListByFlowRun(dbctx.Context{Ctx: context.Background()}, id)
	require.NoError(t, err)
	for _, r := range runs {
		assert.Contains(t, string(r.OutputJSON), r.ModuleKey)
	}
	assert.Equal(t, int32(1), f.mid.calls)
}

func TestModuleFailureIsRecordedNotRetried(t *testing.T) {
	f := newQueueFixture(t)
	f.mid.fail = errors.Validation("mid", "profile has no positions")
	id := f.start(t)
	f.drain(t)

	fr, err := f.rs.FlowRun.GetByID(dbctx.Context{Ctx: context.Background()}, id)
	require.NoError(t, err)
	assert.Equal(t, flows.StatusFailed, fr.Status)
	assert.Equal(t, int32(1), f.mid.calls)
	assert.Zero(t, f.out.calls)

	runs, err := f.rs.ModuleRun.ListByFlowRunStage(dbctx.Context{Ctx: context.Background()}, id, string(flows.StageEnrichers))
	require.NoError(t, err)
	require.Len(t, runs, 1)
	job, err := f.jobs.GetLatestForEntity(dbctx.Context{Ctx: context.Background()}, orchestrator.EntityModuleRun, runs[0].ID, module_run_execute.JobType)
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusSucceeded, job.Status)
	assert.Contains(t, string(runs[0].ErrorJSON), "profile has no positions")
}

func TestRedeliveredTerminalRunIsSkipped(t *testing.T) {
	f := newQueueFixture(t)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx}
	run := &types.ModuleRun{
		ProjectID:     f.project.ID,
		ModuleKey:     "src",
		ModuleVersion: "1.0.0",
		InputConfig:   datatypes.NewJSONType(domainmod.InputConfig{}),
	}
	_, err := f.rs.ModuleRun.Create(dbc, []*types.ModuleRun{run})
	require.NoError(t, err)
	_, err = f.rs.ModuleRun.MarkCompleted(dbc, run.ID, datatypes.JSON(`{"done":true}`))
	require.NoError(t, err)

	id := run.ID
	job, err := f.jobs.Enqueue(dbc, module_run_execute.JobType, orchestrator.EntityModuleRun, &id, map[string]any{"module_run_id": id.String()})
	require.NoError(t, err)
	f.drain(t)

	assert.Zero(t, f.src.calls)
	job, err = f.jobs.GetByID(dbc, job.ID)
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusSucceeded, job.Status)
	assert.Contains(t, string(job.Result), `"skipped":true`)
}

func TestMissingModuleRunFailsPermanently(t *testing.T) {
	f := newQueueFixture(t)
	dbc := dbctx.Context{Ctx: context.Background()}
	job, err := f.jobs.Enqueue(dbc, module_run_execute.JobType, orchestrator.EntityModuleRun, nil, map[string]any{"module_run_id": uuid.NewString()})
	require.NoError(t, err)
	bad, err := f.jobs.Enqueue(dbc, module_run_execute.JobType, orchestrator.EntityModuleRun, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, 2, f.drain(t))
	for _, id := range []uuid.UUID{job.ID, bad.ID} {
		got, err := f.jobs.GetByID(dbc, id)
		require.NoError(t, err)
		assert.Equal(t, jobs.StatusFailed, got.Status)
		assert.Equal(t, 3, got.Attempts)
	}
}
