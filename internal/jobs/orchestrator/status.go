package orchestrator

import (
	"context"
	"encoding/json"
	"math"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	types "github.com/yungbote/talentgraph-backend/internal/domain"
	"github.com/yungbote/talentgraph-backend/internal/domain/flows"
	domainmod "github.com/yungbote/talentgraph-backend/internal/domain/modules"
	"github.com/yungbote/talentgraph-backend/internal/pkg/dbctx"
	"github.com/yungbote/talentgraph-backend/internal/pkg/errors"
)

type StageCounts struct {
	Total     int `json:"total"`
	Queued    int `json:"queued"`
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

type ModuleRunStatus struct {
	ModuleRunID uuid.UUID           `json:"moduleRunId"`
	ModuleKey   string              `json:"moduleKey"`
	Version     string              `json:"version"`
	Stage       flows.Stage         `json:"stage"`
	Status      domainmod.RunStatus `json:"status"`
	StartedAt   *time.Time          `json:"startedAt,omitempty"`
	FinishedAt  *time.Time          `json:"finishedAt,omitempty"`
	Error       *errors.Payload     `json:"error,omitempty"`
}

type FlowRunStatus struct {
	FlowRunID      uuid.UUID                   `json:"flowRunId"`
	ProjectID      uuid.UUID                   `json:"projectId"`
	PersonID       uuid.UUID                   `json:"personId"`
	FlowKey        string                      `json:"flowKey"`
	FlowSetID      *uuid.UUID                  `json:"flowSetId,omitempty"`
	Status         flows.Status                `json:"status"`
	CurrentStage   flows.Stage                 `json:"currentStage"`
	Progress       int                         `json:"progress"`
	CurrentModules []string                    `json:"currentModules"`
	Stages         map[flows.Stage]StageCounts `json:"stages"`
	Modules        []ModuleRunStatus           `json:"modules"`
	FilterResult   *flows.FilterResult         `json:"filterResult,omitempty"`
	FinalSummary   json.RawMessage             `json:"finalSummary,omitempty"`
	Error          *errors.Payload             `json:"error,omitempty"`
	StartedAt      *time.Time                  `json:"startedAt,omitempty"`
	FinishedAt     *time.Time                  `json:"finishedAt,omitempty"`
	Version        int                         `json:"version"`
}

// GetFlowRunStatus derives a status view from the flow run and its module
// runs. A terminal flow reports its own status; otherwise status follows
// the module runs.
func (e *Engine) GetFlowRunStatus(ctx context.Context, flowRunID uuid.UUID) (*FlowRunStatus, error) {
	const op = "flows.GetFlowRunStatus"
	dbc := dbctx.Context{Ctx: ctx}
	fr, err := e.loadFlowRun(dbc, op, flowRunID)
	if err != nil {
		return nil, err
	}
	runs, err := e.repos.ModuleRun.ListByFlowRun(dbc, fr.ID)
	if err != nil {
		return nil, errors.MapDBError(op, err)
	}
	return BuildStatus(fr, runs), nil
}

// BuildStatus is the pure part of GetFlowRunStatus.
func BuildStatus(fr *types.FlowRun, runs []*types.ModuleRun) *FlowRunStatus {
	out := &FlowRunStatus{
		FlowRunID:      fr.ID,
		ProjectID:      fr.ProjectID,
		PersonID:       fr.PersonID,
		FlowKey:        fr.FlowKey,
		FlowSetID:      fr.FlowSetID,
		CurrentStage:   fr.CurrentStage,
		CurrentModules: []string{},
		Stages:         map[flows.Stage]StageCounts{},
		Modules:        make([]ModuleRunStatus, 0, len(runs)),
		FilterResult:   fr.InputSummary.Data().FilterResult,
		Error:          decodePayload(fr.ErrorJSON),
		StartedAt:      fr.StartedAt,
		FinishedAt:     fr.FinishedAt,
		Version:        fr.Version,
	}
	if len(fr.FinalSummary) > 0 {
		out.FinalSummary = json.RawMessage(fr.FinalSummary)
	}

	var running, completed, failed int
	for _, r := range runs {
		stage := flows.Stage(r.FlowStage)
		c := out.Stages[stage]
		c.Total++
		switch r.Status {
		case domainmod.RunQueued:
			c.Queued++
		case domainmod.RunRunning:
			c.Running++
			running++
		case domainmod.RunCompleted:
			c.Completed++
			completed++
		case domainmod.RunFailed:
			c.Failed++
			failed++
		}
		out.Stages[stage] = c
		if !r.Status.Terminal() && stage == fr.CurrentStage {
			out.CurrentModules = append(out.CurrentModules, r.ModuleKey)
		}
		out.Modules = append(out.Modules, ModuleRunStatus{
			ModuleRunID: r.ID,
			ModuleKey:   r.ModuleKey,
			Version:     r.ModuleVersion,
			Stage:       stage,
			Status:      r.Status,
			StartedAt:   r.StartedAt,
			FinishedAt:  r.FinishedAt,
			Error:       decodePayload(r.ErrorJSON),
		})
	}

	switch {
	case fr.Status.Terminal():
		out.Status = fr.Status
	case failed > 0:
		out.Status = flows.StatusFailed
	case running > 0 || completed > 0:
		out.Status = flows.StatusRunning
	default:
		out.Status = flows.StatusQueued
	}

	// failed runs never count toward progress
	if len(runs) > 0 {
		out.Progress = int(math.Round(100 * float64(completed) / float64(len(runs))))
	}
	if out.Status == flows.StatusCompleted {
		out.Progress = 100
	}
	return out
}

func decodePayload(raw datatypes.JSON) *errors.Payload {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var p errors.Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return &errors.Payload{Code: errors.CodeInternal, Message: string(raw)}
	}
	return &p
}
