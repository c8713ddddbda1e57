package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"

	types "github.com/yungbote/talentgraph-backend/internal/domain"
	"github.com/yungbote/talentgraph-backend/internal/domain/documents"
	"github.com/yungbote/talentgraph-backend/internal/domain/flows"
	"github.com/yungbote/talentgraph-backend/internal/observability"
	"github.com/yungbote/talentgraph-backend/internal/pkg/dbctx"
	"github.com/yungbote/talentgraph-backend/internal/pkg/errors"
	"github.com/yungbote/talentgraph-backend/internal/platform/llm"
	"github.com/yungbote/talentgraph-backend/internal/services"
)

const (
	filterTaskType      = "flow_filter_gate"
	filterEvidenceLimit = 12000
)

const filterSystemPrompt = `You decide whether a candidate profile should continue through an enrichment pipeline.
You are given the operator's filter instructions and raw evidence scraped for the candidate.
Reply with a single JSON object and nothing else:
{"shouldProceed": boolean, "reason": string, "confidence": number between 0 and 1}
When the evidence is insufficient to decide, proceed with low confidence.`

type filterReply struct {
	ShouldProceed *bool   `json:"shouldProceed"`
	Reason        string  `json:"reason"`
	Confidence    float64 `json:"confidence"`
}

// evaluateFilter runs the AI gate once per flow run. The decision is stored
// in input_summary so redelivered progress checks reuse it.
func (e *Engine) evaluateFilter(ctx context.Context, fr *types.FlowRun) (*flows.FilterResult, error) {
	ctx, span := observability.StartSpan(ctx, "flow.filter_gate", "flow_run.id", fr.ID.String())
	res, err := e.runFilterGate(ctx, fr)
	observability.EndSpan(span, err)
	return res, err
}

func (e *Engine) runFilterGate(ctx context.Context, fr *types.FlowRun) (*flows.FilterResult, error) {
	const op = "flows.filterGate"
	summary := fr.InputSummary.Data()
	if summary.FilterResult != nil {
		return summary.FilterResult, nil
	}

	dbc := dbctx.Context{Ctx: ctx}
	evidence, err := e.filterEvidence(dbc, fr)
	if err != nil {
		return nil, err
	}
	var reply filterReply
	_, err = llm.RunJSON(ctx, e.ai, llm.Request{
		Model:        e.cfg.AIModel,
		TaskType:     filterTaskType,
		SystemPrompt: filterSystemPrompt,
		UserPrompt:   fmt.Sprintf("Filter instructions:\n%s\n\nEvidence:\n%s", summary.FilterInstructions, evidence),
		MaxTokens:    300,
	}, &reply)
	if err != nil {
		return nil, errors.ExternalProvider(op, err)
	}
	if reply.ShouldProceed == nil {
		return nil, errors.ExternalProvider(op, errors.New("filter reply missing shouldProceed"))
	}
	res := &flows.FilterResult{
		ShouldProceed: *reply.ShouldProceed,
		Reason:        strings.TrimSpace(reply.Reason),
		Confidence:    clamp01(reply.Confidence),
		EvaluatedAt:   time.Now().UTC(),
	}

	summary.FilterResult = res
	ok, err := e.repos.FlowRun.CompareAndSwap(dbc, fr.ID, fr.Version, map[string]interface{}{
		"input_summary": datatypes.NewJSONType(summary),
	})
	if err != nil {
		return nil, errors.MapDBError(op, err)
	}
	if !ok {
		return nil, errors.Conflict(op, errors.Wrapf(errStaleVersion, "flow run %s", fr.ID))
	}
	fr.Version++
	fr.InputSummary = datatypes.NewJSONType(summary)
	e.log.Info("Filter gate evaluated", "flow_run_id", fr.ID, "proceed", res.ShouldProceed, "confidence", res.Confidence)
	return res, nil
}

// filterEvidence concatenates the freshest profile and posts payloads.
func (e *Engine) filterEvidence(dbc dbctx.Context, fr *types.FlowRun) (string, error) {
	subject := types.PersonSubjectOf(fr.ProjectID, fr.PersonID)
	var b strings.Builder
	for _, kind := range []string{documents.KindProfile, documents.KindPosts} {
		doc, err := e.docs.GetLatestValid(dbc, subject, documents.SourceLinkedin, kind, services.GetLatestOptions{AllowMissing: true})
		if err != nil {
			return "", err
		}
		if doc == nil {
			continue
		}
		fmt.Fprintf(&b, "## %s\n%s\n\n", kind, string(doc.Payload))
	}
	if b.Len() == 0 {
		return "(no evidence captured)", nil
	}
	return truncate(b.String(), filterEvidenceLimit), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "\n[truncated]"
}

func clamp01(f float64) float64 {
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	}
	return f
}
