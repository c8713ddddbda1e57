// Package orchestrator drives flow runs through their stages. All progress
// state lives in flow_run and module_run rows; the engine holds none.
package orchestrator

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/talentgraph-backend/internal/data/aggregates"
	"github.com/yungbote/talentgraph-backend/internal/data/repos"
	types "github.com/yungbote/talentgraph-backend/internal/domain"
	"github.com/yungbote/talentgraph-backend/internal/domain/claims"
	"github.com/yungbote/talentgraph-backend/internal/domain/entities"
	"github.com/yungbote/talentgraph-backend/internal/domain/flows"
	domainmod "github.com/yungbote/talentgraph-backend/internal/domain/modules"
	"github.com/yungbote/talentgraph-backend/internal/modules"
	"github.com/yungbote/talentgraph-backend/internal/normalization"
	"github.com/yungbote/talentgraph-backend/internal/pkg/dbctx"
	"github.com/yungbote/talentgraph-backend/internal/pkg/errors"
	"github.com/yungbote/talentgraph-backend/internal/pkg/logger"
	"github.com/yungbote/talentgraph-backend/internal/platform/llm"
	"github.com/yungbote/talentgraph-backend/internal/platform/redislock"
	"github.com/yungbote/talentgraph-backend/internal/services"
)

const (
	JobFlowRunProcess   = "flow_run.process"
	JobModuleRunExecute = "module_run.execute"

	EntityFlowRun   = "flow_run"
	EntityModuleRun = "module_run"
)

const batchConcurrency = 4

// errStaleVersion rolls back a transition whose version CAS lost.
var errStaleVersion = errors.New("flow run version changed")

type Config struct {
	LockTTL  time.Duration
	LockWait time.Duration
	AIModel  string
}

type Engine struct {
	db       *gorm.DB
	log      *logger.Logger
	tx       aggregates.TxRunner
	repos    repos.Set
	jobs     services.JobService
	docs     services.DocumentService
	claims   services.ClaimLedger
	entities services.EntityResolutionService
	locker   redislock.Locker
	catalog  *Catalog
	ai       llm.Runner
	cfg      Config
}

type Deps struct {
	Repos    repos.Set
	Jobs     services.JobService
	Docs     services.DocumentService
	Claims   services.ClaimLedger
	Entities services.EntityResolutionService
	Locker   redislock.Locker
	Catalog  *Catalog
	AI       llm.Runner
}

func NewEngine(db *gorm.DB, baseLog *logger.Logger, d Deps, cfg Config) *Engine {
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 2 * time.Minute
	}
	if cfg.LockWait <= 0 {
		cfg.LockWait = 30 * time.Second
	}
	locker := d.Locker
	if locker == nil {
		locker = redislock.NewLocalLocker()
	}
	return &Engine{
		db:       db,
		log:      baseLog.With("service", "FlowOrchestrator"),
		tx:       aggregates.NewGormTxRunner(db),
		repos:    d.Repos,
		jobs:     d.Jobs,
		docs:     d.Docs,
		claims:   d.Claims,
		entities: d.Entities,
		locker:   locker,
		catalog:  d.Catalog,
		ai:       d.AI,
		cfg:      cfg,
	}
}

type CreateFlowRunInput struct {
	ProjectID          uuid.UUID
	PersonID           uuid.UUID
	ProfileURL         string
	TriggeredBy        string
	FlowKey            string
	FilterInstructions string
}

type CreateFlowRunResult struct {
	FlowRunID uuid.UUID `json:"flowRunId"`
	FlowKey   string    `json:"flowKey"`
	JobID     uuid.UUID `json:"jobId"`
}

// CreateFlowRun persists a QUEUED flow run for an attached person and
// enqueues its processing job in the same transaction.
func (e *Engine) CreateFlowRun(ctx context.Context, in CreateFlowRunInput) (*CreateFlowRunResult, error) {
	const op = "flows.CreateFlowRun"
	def, err := e.catalog.Resolve(in.FlowKey)
	if err != nil {
		return nil, err
	}
	var out *CreateFlowRunResult
	err = e.tx.InTx(ctx, func(dbc dbctx.Context) error {
		if err := e.requireProject(dbc, op, in.ProjectID); err != nil {
			return err
		}
		person, err := e.repos.Person.GetByID(dbc, in.PersonID)
		if err != nil {
			return errors.MapDBError(op, err)
		}
		if person == nil {
			return errors.NotFound(op, "person %s not found", in.PersonID)
		}
		link, err := e.repos.PersonProject.Get(dbc, in.ProjectID, in.PersonID)
		if err != nil {
			return errors.MapDBError(op, err)
		}
		if link == nil {
			return errors.Validation(op, "person %s is not attached to project %s", in.PersonID, in.ProjectID)
		}
		profileURL := person.LinkedinURL
		if strings.TrimSpace(in.ProfileURL) != "" {
			if profileURL, err = normalization.ProfileRef(in.ProfileURL); err != nil {
				return errors.Validation(op, "profile url: %v", err)
			}
		}
		fr, job, err := e.createFlowRun(dbc, def, in.ProjectID, person.ID, nil, flows.InputSummary{
			ProfileURL:         profileURL,
			TriggeredByUserID:  in.TriggeredBy,
			FilterInstructions: strings.TrimSpace(in.FilterInstructions),
		})
		if err != nil {
			return err
		}
		out = &CreateFlowRunResult{FlowRunID: fr.ID, FlowKey: fr.FlowKey, JobID: job.ID}
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.log.Info("Flow run created", "flow_run_id", out.FlowRunID, "flow_key", out.FlowKey, "project_id", in.ProjectID)
	return out, nil
}

func (e *Engine) requireProject(dbc dbctx.Context, op string, id uuid.UUID) error {
	p, err := e.repos.Project.GetByID(dbc, id)
	if err != nil {
		return errors.MapDBError(op, err)
	}
	if p == nil {
		return errors.NotFound(op, "project %s not found", id)
	}
	return nil
}

func (e *Engine) createFlowRun(dbc dbctx.Context, def *FlowDefinition, projectID, personID uuid.UUID, setID *uuid.UUID, summary flows.InputSummary) (*types.FlowRun, *types.JobRun, error) {
	const op = "flows.createFlowRun"
	now := time.Now().UTC()
	fr := &types.FlowRun{
		ID:               uuid.New(),
		ProjectID:        projectID,
		PersonID:         personID,
		FlowKey:          def.Key,
		FlowSetID:        setID,
		Status:           flows.StatusQueued,
		CurrentStage:     flows.StageConnectors,
		InputSummary:     datatypes.NewJSONType(summary),
		ScheduledModules: datatypes.JSONSlice[types.ModuleRef]{},
		CompletedModules: datatypes.JSONSlice[types.ModuleRef]{},
		FailedModules:    datatypes.JSONSlice[types.ModuleRef]{},
		Version:          1,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if _, err := e.repos.FlowRun.Create(dbc, fr); err != nil {
		return nil, nil, errors.MapDBError(op, err)
	}
	id := fr.ID
	job, err := e.jobs.Enqueue(dbc, JobFlowRunProcess, EntityFlowRun, &id, map[string]any{"flow_run_id": fr.ID.String()})
	if err != nil {
		return nil, nil, err
	}
	return fr, job, nil
}

type CreateFlowBatchInput struct {
	ProjectID          uuid.UUID
	Profiles           []string
	TriggeredBy        string
	FlowKey            string
	FilterInstructions string
}

type FlowBatchItem struct {
	Input         string          `json:"input"`
	PersonID      *uuid.UUID      `json:"personId,omitempty"`
	PersonCreated bool            `json:"personCreated"`
	FlowRunID     *uuid.UUID      `json:"flowRunId,omitempty"`
	JobID         *uuid.UUID      `json:"jobId,omitempty"`
	Error         *errors.Payload `json:"error,omitempty"`
}

type FlowBatchResult struct {
	FlowSetID uuid.UUID       `json:"flowSetId"`
	FlowKey   string          `json:"flowKey"`
	Items     []FlowBatchItem `json:"items"`
}

// CreateFlowBatch starts one flow run per profile reference. Items run
// concurrently and commit independently; item failures are reported, not
// returned.
func (e *Engine) CreateFlowBatch(ctx context.Context, in CreateFlowBatchInput) (*FlowBatchResult, error) {
	const op = "flows.CreateFlowBatch"
	if len(in.Profiles) == 0 {
		return nil, errors.Validation(op, "no profiles given")
	}
	def, err := e.catalog.Resolve(in.FlowKey)
	if err != nil {
		return nil, err
	}
	dbc := dbctx.Context{Ctx: ctx}
	if err := e.requireProject(dbc, op, in.ProjectID); err != nil {
		return nil, err
	}
	set, err := e.repos.FlowSet.Create(dbc, &types.FlowSet{
		ProjectID:         in.ProjectID,
		FlowKey:           def.Key,
		TriggeredByUserID: in.TriggeredBy,
		ItemCount:         len(in.Profiles),
	})
	if err != nil {
		return nil, errors.MapDBError(op, err)
	}

	items := make([]FlowBatchItem, len(in.Profiles))
	var failed int32
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(batchConcurrency)
	for i, ref := range in.Profiles {
		i, ref := i, ref
		g.Go(func() error {
			item, err := e.createBatchItem(gctx, def, set.ID, in, ref)
			if err != nil {
				atomic.AddInt32(&failed, 1)
				item = FlowBatchItem{Input: ref, Error: errors.ToPayload(err)}
			}
			items[i] = item
			return nil
		})
	}
	_ = g.Wait()
	out := &FlowBatchResult{FlowSetID: set.ID, FlowKey: def.Key, Items: items}
	e.log.Info("Flow batch created", "flow_set_id", set.ID, "items", len(in.Profiles), "failed", atomic.LoadInt32(&failed))
	return out, nil
}

// createBatchItem commits one batch entry on its own transaction.
func (e *Engine) createBatchItem(ctx context.Context, def *FlowDefinition, setID uuid.UUID, in CreateFlowBatchInput, ref string) (FlowBatchItem, error) {
	item := FlowBatchItem{Input: ref}
	err := e.tx.InTx(ctx, func(dbc dbctx.Context) error {
		person, created, err := e.entities.ResolvePersonByProfile(dbc, in.ProjectID, ref, entities.PersonSourceFlowTrigger)
		if err != nil {
			return err
		}
		sid := setID
		fr, job, err := e.createFlowRun(dbc, def, in.ProjectID, person.ID, &sid, flows.InputSummary{
			ProfileURL:         person.LinkedinURL,
			TriggeredByUserID:  in.TriggeredBy,
			FilterInstructions: strings.TrimSpace(in.FilterInstructions),
		})
		if err != nil {
			return err
		}
		pid, fid, jid := person.ID, fr.ID, job.ID
		item.PersonID, item.PersonCreated, item.FlowRunID, item.JobID = &pid, created, &fid, &jid
		return nil
	})
	return item, err
}

type CreateModuleRunInput struct {
	ProjectID uuid.UUID
	PersonID  *uuid.UUID
	ModuleKey string
	Version   string
	Config    domainmod.InputConfig
}

type CreateModuleRunResult struct {
	ModuleRunID uuid.UUID `json:"moduleRunId"`
	ModuleKey   string    `json:"moduleKey"`
	Version     string    `json:"version"`
	JobID       uuid.UUID `json:"jobId"`
}

// CreateModuleRun schedules a standalone module run outside any flow.
func (e *Engine) CreateModuleRun(ctx context.Context, in CreateModuleRunInput) (*CreateModuleRunResult, error) {
	const op = "modules.CreateModuleRun"
	key := strings.TrimSpace(in.ModuleKey)
	if key == "" {
		return nil, errors.Validation(op, "missing module key")
	}
	var out *CreateModuleRunResult
	err := e.tx.InTx(ctx, func(dbc dbctx.Context) error {
		if err := e.requireProject(dbc, op, in.ProjectID); err != nil {
			return err
		}
		mod, err := e.resolveModule(dbc, key, in.Version)
		if err != nil {
			return err
		}
		if in.PersonID != nil {
			p, err := e.repos.Person.GetByID(dbc, *in.PersonID)
			if err != nil {
				return errors.MapDBError(op, err)
			}
			if p == nil {
				return errors.NotFound(op, "person %s not found", *in.PersonID)
			}
		}
		cfg := in.Config
		cfg.FlowRunID, cfg.FlowStage = nil, ""
		run := &types.ModuleRun{
			ID:            uuid.New(),
			ProjectID:     in.ProjectID,
			PersonID:      in.PersonID,
			ModuleKey:     mod.Key,
			ModuleVersion: mod.Version,
			Status:        domainmod.RunQueued,
			InputConfig:   datatypes.NewJSONType(cfg),
		}
		if _, err := e.repos.ModuleRun.Create(dbc, []*types.ModuleRun{run}); err != nil {
			return errors.MapDBError(op, err)
		}
		job, err := e.enqueueModuleRun(dbc, run)
		if err != nil {
			return err
		}
		out = &CreateModuleRunResult{ModuleRunID: run.ID, ModuleKey: run.ModuleKey, Version: run.ModuleVersion, JobID: job.ID}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (e *Engine) resolveModule(dbc dbctx.Context, key, version string) (*types.Module, error) {
	const op = "modules.resolve"
	if version = strings.TrimSpace(version); version != "" {
		m, err := e.repos.Module.GetByKeyVersion(dbc, key, version)
		if err != nil {
			return nil, errors.MapDBError(op, err)
		}
		if m == nil || !m.Enabled {
			return nil, errors.NotFound(op, "module %s@%s not found or disabled", key, version)
		}
		return m, nil
	}
	mods, err := modules.ResolveLatest(dbc, e.repos.Module, []string{key})
	if err != nil {
		return nil, err
	}
	if len(mods) == 0 {
		return nil, errors.NotFound(op, "no enabled version of module %s", key)
	}
	return mods[0], nil
}

func (e *Engine) enqueueModuleRun(dbc dbctx.Context, run *types.ModuleRun) (*types.JobRun, error) {
	id := run.ID
	return e.jobs.Enqueue(dbc, JobModuleRunExecute, EntityModuleRun, &id, map[string]any{"module_run_id": run.ID.String()})
}

// lock serializes progression of one flow run across workers.
func (e *Engine) lock(ctx context.Context, flowRunID uuid.UUID) (func(), error) {
	lk, err := e.locker.Acquire(ctx, "flow_run:"+flowRunID.String(), e.cfg.LockTTL, e.cfg.LockWait)
	if err != nil {
		if errors.Is(err, redislock.ErrNotAcquired) {
			return nil, errors.Timeout("flows.lock", errors.Wrapf(err, "flow run %s", flowRunID))
		}
		return nil, errors.Wrap(err, "acquire flow lock")
	}
	return func() {
		if err := lk.Release(context.Background()); err != nil {
			e.log.Warn("Flow lock release failed", "flow_run_id", flowRunID, "error", err)
		}
	}, nil
}

func (e *Engine) loadFlowRun(dbc dbctx.Context, op string, id uuid.UUID) (*types.FlowRun, error) {
	fr, err := e.repos.FlowRun.GetByID(dbc, id)
	if err != nil {
		return nil, errors.MapDBError(op, err)
	}
	if fr == nil {
		return nil, errors.NotFound(op, "flow run %s not found", id)
	}
	return fr, nil
}

// ProcessFlowRun schedules the first non-empty stage of a QUEUED flow run.
// Any other status is a no-op so redelivered jobs are harmless.
func (e *Engine) ProcessFlowRun(ctx context.Context, flowRunID uuid.UUID) error {
	const op = "flows.ProcessFlowRun"
	unlock, err := e.lock(ctx, flowRunID)
	if err != nil {
		return err
	}
	defer unlock()

	fr, err := e.loadFlowRun(dbctx.Context{Ctx: ctx}, op, flowRunID)
	if err != nil {
		return err
	}
	if fr.Status != flows.StatusQueued {
		e.log.Debug("Flow run already processed", "flow_run_id", fr.ID, "status", fr.Status)
		return nil
	}
	def, err := e.catalog.Resolve(fr.FlowKey)
	if err != nil {
		return e.failFlow(ctx, fr, err)
	}
	now := time.Now().UTC()
	return e.advance(ctx, fr, def, flows.StageConnectors, map[string]interface{}{
		"status":     string(flows.StatusRunning),
		"started_at": now,
	})
}

// advance schedules the first stage from `from` that has enabled modules and
// moves the stage pointer there in one transaction guarded by the version
// CAS. With no stage left the flow completes.
func (e *Engine) advance(ctx context.Context, fr *types.FlowRun, def *FlowDefinition, from flows.Stage, extra map[string]interface{}) error {
	const op = "flows.advance"
	var (
		stage     flows.Stage
		scheduled []types.ModuleRef
	)
	err := e.tx.InTx(ctx, func(dbc dbctx.Context) error {
		stage, scheduled = from, nil
		for stage != flows.StageCompleted {
			refs, err := e.scheduleStage(dbc, fr, def, stage)
			if err != nil {
				return err
			}
			if len(refs) > 0 {
				scheduled = refs
				break
			}
			stage = stage.Next()
		}
		updates := map[string]interface{}{}
		for k, v := range extra {
			updates[k] = v
		}
		if stage == flows.StageCompleted {
			summary, err := e.finalSummary(dbc, fr)
			if err != nil {
				return err
			}
			updates["status"] = string(flows.StatusCompleted)
			updates["current_stage"] = string(flows.StageCompleted)
			updates["finished_at"] = time.Now().UTC()
			if summary != nil {
				updates["final_summary"] = summary
			}
		} else {
			updates["current_stage"] = string(stage)
			updates["scheduled_modules"] = appendRefs(fr.ScheduledModules, scheduled)
		}
		ok, err := e.repos.FlowRun.CompareAndSwap(dbc, fr.ID, fr.Version, updates)
		if err != nil {
			return errors.MapDBError(op, err)
		}
		if !ok {
			return errStaleVersion
		}
		return nil
	})
	if errors.Is(err, errStaleVersion) {
		return errors.Conflict(op, errors.Wrapf(err, "flow run %s", fr.ID))
	}
	if err != nil {
		return err
	}
	if stage == flows.StageCompleted {
		e.log.Info("Flow run completed", "flow_run_id", fr.ID)
	} else {
		e.log.Info("Flow stage scheduled", "flow_run_id", fr.ID, "stage", stage, "modules", len(scheduled))
	}
	return nil
}

// scheduleStage creates and enqueues the stage's module runs. Runs already
// present for the stage are returned as-is instead of being duplicated.
func (e *Engine) scheduleStage(dbc dbctx.Context, fr *types.FlowRun, def *FlowDefinition, stage flows.Stage) ([]types.ModuleRef, error) {
	const op = "flows.scheduleStage"
	existing, err := e.repos.ModuleRun.ListByFlowRunStage(dbc, fr.ID, string(stage))
	if err != nil {
		return nil, errors.MapDBError(op, err)
	}
	if len(existing) > 0 {
		return refsOf(existing), nil
	}
	keys := def.ModuleKeys(stage)
	if len(keys) == 0 {
		return nil, nil
	}
	mods, err := modules.ResolveLatest(dbc, e.repos.Module, keys)
	if err != nil {
		return nil, err
	}
	if len(mods) < len(keys) {
		e.log.Warn("Stage modules missing from catalogue", "flow_run_id", fr.ID, "stage", stage, "configured", len(keys), "enabled", len(mods))
	}
	if len(mods) == 0 {
		return nil, nil
	}

	summary := fr.InputSummary.Data()
	flowRunID := fr.ID
	personID := fr.PersonID
	runs := make([]*types.ModuleRun, 0, len(mods))
	for _, m := range mods {
		runs = append(runs, &types.ModuleRun{
			ID:            uuid.New(),
			ProjectID:     fr.ProjectID,
			PersonID:      &personID,
			ModuleKey:     m.Key,
			ModuleVersion: m.Version,
			Status:        domainmod.RunQueued,
			InputConfig: datatypes.NewJSONType(domainmod.InputConfig{
				FlowRunID:  &flowRunID,
				FlowStage:  string(stage),
				ProfileURL: summary.ProfileURL,
			}),
			FlowRunID: &flowRunID,
			FlowStage: string(stage),
		})
	}
	if _, err := e.repos.ModuleRun.Create(dbc, runs); err != nil {
		return nil, errors.MapDBError(op, err)
	}
	for _, r := range runs {
		if _, err := e.enqueueModuleRun(dbc, r); err != nil {
			return nil, err
		}
	}
	return refsOf(runs), nil
}

func refsOf(runs []*types.ModuleRun) []types.ModuleRef {
	out := make([]types.ModuleRef, 0, len(runs))
	for _, r := range runs {
		out = append(out, types.ModuleRef{
			ModuleRunID: r.ID,
			ModuleKey:   r.ModuleKey,
			Version:     r.ModuleVersion,
			Stage:       flows.Stage(r.FlowStage),
		})
	}
	return out
}

// appendRefs adds refs not already present by module run id.
func appendRefs(cur datatypes.JSONSlice[types.ModuleRef], add []types.ModuleRef) datatypes.JSONSlice[types.ModuleRef] {
	seen := map[uuid.UUID]bool{}
	out := make(datatypes.JSONSlice[types.ModuleRef], 0, len(cur)+len(add))
	for _, r := range cur {
		seen[r.ModuleRunID] = true
		out = append(out, r)
	}
	for _, r := range add {
		if !seen[r.ModuleRunID] {
			seen[r.ModuleRunID] = true
			out = append(out, r)
		}
	}
	return out
}

func (e *Engine) finalSummary(dbc dbctx.Context, fr *types.FlowRun) (datatypes.JSON, error) {
	c, err := e.claims.LatestActive(dbc, fr.ProjectID, fr.PersonID, claims.TypeFinalSummary)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, nil
	}
	return c.ValueJSON, nil
}

// failFlow marks the flow FAILED unless it already reached a terminal state.
func (e *Engine) failFlow(ctx context.Context, fr *types.FlowRun, cause error) error {
	return e.failFlowWith(ctx, fr, cause, nil)
}

func (e *Engine) failFlowWith(ctx context.Context, fr *types.FlowRun, cause error, extra map[string]interface{}) error {
	const op = "flows.fail"
	updates := map[string]interface{}{
		"status":      string(flows.StatusFailed),
		"error_json":  datatypes.JSON(errors.JSON(cause)),
		"finished_at": time.Now().UTC(),
	}
	for k, v := range extra {
		updates[k] = v
	}
	ok, err := e.repos.FlowRun.CompareAndSwap(dbctx.Context{Ctx: ctx}, fr.ID, fr.Version, updates)
	if err != nil {
		return errors.MapDBError(op, err)
	}
	if !ok {
		return errors.Conflict(op, errors.Wrapf(errStaleVersion, "flow run %s", fr.ID))
	}
	e.log.Warn("Flow run failed", "flow_run_id", fr.ID, "code", errors.CodeOf(cause), "error", cause)
	return nil
}
