package modules

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	types "github.com/yungbote/talentgraph-backend/internal/domain"
	"github.com/yungbote/talentgraph-backend/internal/domain/claims"
	domainmod "github.com/yungbote/talentgraph-backend/internal/domain/modules"
	"github.com/yungbote/talentgraph-backend/internal/domain/snapshots"
	"github.com/yungbote/talentgraph-backend/internal/pkg/dbctx"
	"github.com/yungbote/talentgraph-backend/internal/pkg/errors"
	"github.com/yungbote/talentgraph-backend/internal/pkg/logger"
	"github.com/yungbote/talentgraph-backend/internal/platform/llm"
	"github.com/yungbote/talentgraph-backend/internal/services"
)

func activeCoreIdentity(dbc dbctx.Context, d Deps, projectID, personID uuid.UUID) (snapshots.CoreIdentityV1, error) {
	rows, err := d.Claims.GetActiveClaims(dbc, projectID, personID, claims.CoreIdentityTypes...)
	if err != nil {
		return snapshots.CoreIdentityV1{}, err
	}
	compiled, err := services.ComposeCoreIdentity(rows)
	if err != nil {
		return compiled, errors.Wrap(err, "compose core identity")
	}
	return compiled, nil
}

type layer1Composer struct {
	d   Deps
	log *logger.Logger
}

func NewLayer1Composer(d Deps) Handler {
	return &layer1Composer{d: d, log: d.Log.With("module", KeyLayer1Composer)}
}

func (m *layer1Composer) Key() string          { return KeyLayer1Composer }
func (m *layer1Composer) Version() string      { return "1.0.0" }
func (m *layer1Composer) Kind() domainmod.Kind { return domainmod.KindComposer }

func (m *layer1Composer) Execute(ctx context.Context, run *types.ModuleRun) (Result, error) {
	person, err := requirePerson(ctx, m.d, run)
	if err != nil {
		return Result{}, err
	}
	dbc := dbctx.Context{Ctx: ctx}
	compiled, err := activeCoreIdentity(dbc, m.d, run.ProjectID, person.ID)
	if err != nil {
		return Result{}, err
	}
	snap, err := m.d.Snapshots.CreateNextSnapshotVersion(dbc, services.NewSnapshot{
		ProjectID:       run.ProjectID,
		PersonID:        person.ID,
		LayerNumber:     snapshots.LayerCoreIdentity,
		Compiled:        compiled,
		ComposerKey:     m.Key(),
		ComposerVersion: m.Version(),
		ModuleRunID:     runID(run),
	})
	if err != nil {
		return Result{}, err
	}
	m.log.Info("Layer 1 snapshot composed", "module_run_id", run.ID, "version", snap.SnapshotVersion)
	return Succeeded(map[string]any{
		"snapshotId":      snap.ID,
		"snapshotVersion": snap.SnapshotVersion,
		"claims":          len(compiled.ClaimIDs),
	}), nil
}

const finalSummarySystemPrompt = `You write short recruiter-facing candidate summaries.
Use only the facts in the provided core identity JSON. Do not invent employers, titles, schools or dates.
Respond with a single JSON object: {"summary": string (2-4 sentences), "highlights": [string, ...] (at most 5)}.`

type finalSummaryComposer struct {
	d   Deps
	log *logger.Logger
}

func NewFinalSummaryComposer(d Deps) Handler {
	return &finalSummaryComposer{d: d, log: d.Log.With("module", KeyFinalSummaryComposer)}
}

func (m *finalSummaryComposer) Key() string          { return KeyFinalSummaryComposer }
func (m *finalSummaryComposer) Version() string      { return "1.0.0" }
func (m *finalSummaryComposer) Kind() domainmod.Kind { return domainmod.KindComposer }

type finalSummaryOutput struct {
	Summary    string   `json:"summary"`
	Highlights []string `json:"highlights"`
}

// Execute summarizes the person's current core identity. It folds the active
// claims itself because the layer-1 composer may still be running in the same
// stage; the newest existing layer-1 version is reported for reference.
func (m *finalSummaryComposer) Execute(ctx context.Context, run *types.ModuleRun) (Result, error) {
	const op = KeyFinalSummaryComposer
	person, err := requirePerson(ctx, m.d, run)
	if err != nil {
		return Result{}, err
	}
	if m.d.AI == nil {
		return Result{}, errors.ExternalProvider(op, errors.New("ai runner not configured"))
	}
	dbc := dbctx.Context{Ctx: ctx}
	compiled, err := activeCoreIdentity(dbc, m.d, run.ProjectID, person.ID)
	if err != nil {
		return Result{}, err
	}
	if len(compiled.ClaimIDs) == 0 {
		return Result{}, errors.Validation(op, "person %s has no core identity claims", person.ID)
	}
	body, err := json.MarshalIndent(compiled, "", "  ")
	if err != nil {
		return Result{}, errors.Wrap(err, "encode core identity")
	}

	var out finalSummaryOutput
	resp, err := llm.RunJSON(ctx, m.d.AI, llm.Request{
		Model:        m.d.AIModel,
		TaskType:     op,
		SystemPrompt: finalSummarySystemPrompt,
		UserPrompt:   "Core identity:\n" + string(body),
		MaxTokens:    600,
	}, &out)
	if err != nil {
		return Result{}, err
	}
	out.Summary = strings.TrimSpace(out.Summary)
	if out.Summary == "" {
		return Result{}, errors.ExternalProvider(op, errors.New("model returned an empty summary"))
	}
	if len(out.Highlights) > 5 {
		out.Highlights = out.Highlights[:5]
	}

	rec, err := m.d.Claims.Record(dbc, run.ProjectID, person.ID, claims.FinalSummaryV1{
		Summary:    out.Summary,
		Highlights: out.Highlights,
		Model:      m.d.AIModel,
	}, services.ClaimMeta{
		Confidence:  0.7,
		ObservedAt:  time.Now().UTC(),
		ModuleRunID: runID(run),
	})
	if err != nil {
		return Result{}, err
	}

	res := map[string]any{
		"claimId":    rec.Claim.ID,
		"unchanged":  rec.Unchanged,
		"tokensUsed": resp.TokensUsed,
	}
	latest, err := m.d.Snapshots.GetLatest(dbc, run.ProjectID, person.ID, snapshots.LayerCoreIdentity)
	if err != nil {
		m.log.Warn("Latest layer 1 lookup failed", "module_run_id", run.ID, "error", err)
	} else if latest != nil {
		res["layer1SnapshotVersion"] = latest.SnapshotVersion
	}
	return Succeeded(res), nil
}
