package modules

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	types "github.com/yungbote/talentgraph-backend/internal/domain"
	"github.com/yungbote/talentgraph-backend/internal/domain/documents"
	domainmod "github.com/yungbote/talentgraph-backend/internal/domain/modules"
	"github.com/yungbote/talentgraph-backend/internal/normalization"
	"github.com/yungbote/talentgraph-backend/internal/pkg/dbctx"
	"github.com/yungbote/talentgraph-backend/internal/pkg/errors"
	"github.com/yungbote/talentgraph-backend/internal/pkg/logger"
	"github.com/yungbote/talentgraph-backend/internal/platform/apify"
	"github.com/yungbote/talentgraph-backend/internal/services"
)

// profileURLFor prefers the run's configured profile URL over the stored one.
func profileURLFor(run *types.ModuleRun, p *types.Person) (string, error) {
	raw := strings.TrimSpace(run.Config().ProfileURL)
	if raw == "" {
		raw = p.LinkedinURL
	}
	u, err := normalization.NormalizeProfileURL(raw)
	if err != nil {
		return "", errors.Validation(run.ModuleKey, "profile url: %v", err)
	}
	return u, nil
}

type linkedinProfileConnector struct {
	d   Deps
	log *logger.Logger
}

func NewLinkedinProfileConnector(d Deps) Handler {
	return &linkedinProfileConnector{d: d, log: d.Log.With("module", KeyLinkedinProfileConnector)}
}

func (m *linkedinProfileConnector) Key() string          { return KeyLinkedinProfileConnector }
func (m *linkedinProfileConnector) Version() string      { return "1.0.0" }
func (m *linkedinProfileConnector) Kind() domainmod.Kind { return domainmod.KindConnector }

func (m *linkedinProfileConnector) Execute(ctx context.Context, run *types.ModuleRun) (Result, error) {
	const op = KeyLinkedinProfileConnector
	person, err := requirePerson(ctx, m.d, run)
	if err != nil {
		return Result{}, err
	}
	url, err := profileURLFor(run, person)
	if err != nil {
		return Result{}, err
	}
	if m.d.Scraper == nil {
		return Result{}, errors.ExternalProvider(op, errors.New("profile scraper not configured"))
	}
	scraped, err := m.d.Scraper.ScrapeProfile(ctx, []string{url})
	if err != nil {
		return Result{}, err
	}
	if scraped == nil || len(scraped.Results) == 0 || !scraped.Results[0].Success {
		msg := "empty scrape result"
		if scraped != nil && len(scraped.Results) > 0 {
			msg = scraped.Results[0].Error
		}
		return Result{}, errors.ExternalProvider(op, errors.Newf("scrape %s: %s", url, msg))
	}

	doc, invalidated, err := m.d.Documents.CreateAndSupersede(dbctx.Context{Ctx: ctx}, services.NewDocument{
		Subject:     types.PersonSubjectOf(run.ProjectID, person.ID),
		Source:      documents.SourceLinkedin,
		Kind:        documents.KindProfile,
		SourceRef:   url,
		CapturedAt:  time.Now().UTC(),
		ModuleRunID: runID(run),
		Payload:     scraped.Results[0].Data,
	})
	if err != nil {
		return Result{}, err
	}
	m.log.Info("Profile captured", "module_run_id", run.ID, "document_id", doc.ID, "invalidated", invalidated)
	return Succeeded(map[string]any{
		"documentId":  doc.ID,
		"invalidated": invalidated,
		"profileUrl":  url,
	}), nil
}

type linkedinPostsConnector struct {
	d   Deps
	log *logger.Logger
}

func NewLinkedinPostsConnector(d Deps) Handler {
	return &linkedinPostsConnector{d: d, log: d.Log.With("module", KeyLinkedinPostsConnector)}
}

func (m *linkedinPostsConnector) Key() string          { return KeyLinkedinPostsConnector }
func (m *linkedinPostsConnector) Version() string      { return "1.0.0" }
func (m *linkedinPostsConnector) Kind() domainmod.Kind { return domainmod.KindConnector }

type postsPayload struct {
	ProfileURL string            `json:"profileUrl"`
	QueryID    string            `json:"queryId,omitempty"`
	Items      []json.RawMessage `json:"items"`
}

func (m *linkedinPostsConnector) Execute(ctx context.Context, run *types.ModuleRun) (Result, error) {
	const op = KeyLinkedinPostsConnector
	person, err := requirePerson(ctx, m.d, run)
	if err != nil {
		return Result{}, err
	}
	url, err := profileURLFor(run, person)
	if err != nil {
		return Result{}, err
	}
	if m.d.Search == nil {
		return Result{}, errors.ExternalProvider(op, errors.New("search provider not configured"))
	}
	cfg := run.Config()
	payload := cfg.SearchPayload
	if len(payload) == 0 {
		payload, _ = json.Marshal(map[string]any{"profileUrls": []string{url}})
	}
	maxItems := cfg.MaxItems
	if maxItems <= 0 {
		maxItems = 50
	}
	res, err := m.d.Search.Search(ctx, apify.SearchRequest{
		Provider: apify.ProviderLinkedinPost,
		Payload:  payload,
		MaxPages: cfg.MaxPages,
		MaxItems: maxItems,
	})
	if err != nil {
		return Result{}, err
	}
	items := res.Items
	if items == nil {
		items = []json.RawMessage{}
	}
	body, err := json.Marshal(postsPayload{ProfileURL: url, QueryID: res.QueryID, Items: items})
	if err != nil {
		return Result{}, errors.Wrap(err, "encode posts payload")
	}
	doc, _, err := m.d.Documents.CreateAndSupersede(dbctx.Context{Ctx: ctx}, services.NewDocument{
		Subject:     types.PersonSubjectOf(run.ProjectID, person.ID),
		Source:      documents.SourceLinkedin,
		Kind:        documents.KindPosts,
		SourceRef:   res.QueryID,
		CapturedAt:  time.Now().UTC(),
		ModuleRunID: runID(run),
		Payload:     body,
	})
	if err != nil {
		return Result{}, err
	}
	return Succeeded(map[string]any{
		"documentId": doc.ID,
		"items":      len(items),
		"queryId":    res.QueryID,
	}), nil
}

type peopleSearchConnector struct {
	d   Deps
	log *logger.Logger
}

func NewPeopleSearchConnector(d Deps) Handler {
	return &peopleSearchConnector{d: d, log: d.Log.With("module", KeyPeopleSearchConnector)}
}

func (m *peopleSearchConnector) Key() string          { return KeyPeopleSearchConnector }
func (m *peopleSearchConnector) Version() string      { return "1.0.0" }
func (m *peopleSearchConnector) Kind() domainmod.Kind { return domainmod.KindConnector }

type peopleSearchBatch struct {
	QueryID      string            `json:"queryId"`
	Provider     string            `json:"provider"`
	PagesFetched int               `json:"pagesFetched"`
	Query        json.RawMessage   `json:"query,omitempty"`
	Items        []json.RawMessage `json:"items"`
}

// Execute runs a project-level search, stores the batch as one document and
// fans the items out into people. Per-item failures are reported in the
// output, not as a run failure.
func (m *peopleSearchConnector) Execute(ctx context.Context, run *types.ModuleRun) (Result, error) {
	const op = KeyPeopleSearchConnector
	cfg := run.Config()
	if len(cfg.SearchPayload) == 0 {
		return Result{}, errors.Validation(op, "searchPayload is required")
	}
	if m.d.Search == nil {
		return Result{}, errors.ExternalProvider(op, errors.New("search provider not configured"))
	}
	provider := strings.TrimSpace(cfg.SearchProvider)
	if provider == "" {
		provider = apify.ProviderPeopleSearch
	}
	res, err := m.d.Search.Search(ctx, apify.SearchRequest{
		Provider:       provider,
		Payload:        cfg.SearchPayload,
		MaxPages:       cfg.MaxPages,
		MaxItems:       cfg.MaxItems,
		EnrichProfiles: cfg.EnrichProfiles,
	})
	if err != nil {
		return Result{}, err
	}
	items := res.Items
	if items == nil {
		items = []json.RawMessage{}
	}
	body, err := json.Marshal(peopleSearchBatch{
		QueryID:      res.QueryID,
		Provider:     provider,
		PagesFetched: res.PagesFetched,
		Query:        cfg.SearchPayload,
		Items:        items,
	})
	if err != nil {
		return Result{}, errors.Wrap(err, "encode batch payload")
	}
	batch, err := m.d.Documents.Create(dbctx.Context{Ctx: ctx}, services.NewDocument{
		Subject:     types.Subject{ProjectID: run.ProjectID},
		Source:      documents.SourceApify,
		Kind:        documents.KindPeopleSearch,
		SourceRef:   res.QueryID,
		CapturedAt:  time.Now().UTC(),
		ModuleRunID: runID(run),
		Payload:     body,
	})
	if err != nil {
		return Result{}, err
	}

	summary := m.d.Entities.FanoutSearchResults(ctx, run, batch, items)
	out := map[string]any{
		"batchDocumentId": batch.ID,
		"queryId":         res.QueryID,
		"pagesFetched":    res.PagesFetched,
		"summary":         summary,
	}
	if err := summary.Err(); err != nil {
		m.log.Warn("People search fanout had failures", "module_run_id", run.ID, "failed", summary.ItemsFailed)
		out["partialFailure"] = errors.ToPayload(err)
	}
	return Succeeded(out), nil
}
