package modules

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/yungbote/talentgraph-backend/internal/data/repos"
	"github.com/yungbote/talentgraph-backend/internal/data/repos/testutil"
	types "github.com/yungbote/talentgraph-backend/internal/domain"
	"github.com/yungbote/talentgraph-backend/internal/domain/claims"
	"github.com/yungbote/talentgraph-backend/internal/domain/documents"
	domainmod "github.com/yungbote/talentgraph-backend/internal/domain/modules"
	"github.com/yungbote/talentgraph-backend/internal/domain/snapshots"
	"github.com/yungbote/talentgraph-backend/internal/pkg/dbctx"
	"github.com/yungbote/talentgraph-backend/internal/pkg/errors"
	"github.com/yungbote/talentgraph-backend/internal/platform/apify"
	"github.com/yungbote/talentgraph-backend/internal/platform/llm"
	"github.com/yungbote/talentgraph-backend/internal/services"
)

type fakeScraper struct {
	data map[string]string
	urls []string
}

func (f *fakeScraper) ScrapeProfile(_ context.Context, urls []string) (*apify.ScrapeResult, error) {
	f.urls = append(f.urls, urls...)
	out := &apify.ScrapeResult{}
	for _, u := range urls {
		if body, ok := f.data[u]; ok {
			out.Results = append(out.Results, apify.ProfileResult{URL: u, Success: true, Data: json.RawMessage(body)})
		} else {
			out.Results = append(out.Results, apify.ProfileResult{URL: u, Error: "not found"})
		}
	}
	return out, nil
}

type fakeSearcher struct {
	mu    sync.Mutex
	items []json.RawMessage
	reqs  []apify.SearchRequest
	err   error
}

func (f *fakeSearcher) Search(_ context.Context, req apify.SearchRequest) (*apify.SearchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return nil, f.err
	}
	return &apify.SearchResult{Items: f.items, PagesFetched: 1, QueryID: "q-1"}, nil
}

type moduleFixture struct {
	deps    Deps
	scraper *fakeScraper
	search  *fakeSearcher
	prompts []llm.Request
	project *types.Project
	person  *types.Person
}

const janeProfile = `{
  "fullName": "Jane Doe", "firstName": "Jane", "lastName": "Doe",
  "location": "Austin, Texas, United States",
  "experiences": [{"title": "CTO", "companyName": "Acme", "startDate": "2021-03"}],
  "educations": [{"schoolName": "UT Austin", "degree": "BS"}]
}`

func newModuleFixture(t *testing.T) *moduleFixture {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	rs := repos.NewSet(db, log)
	docs := services.NewDocumentService(db, log, rs.Document, nil)
	project, person := testutil.SeedProjectPerson(t, context.Background(), db)

	f := &moduleFixture{
		scraper: &fakeScraper{data: map[string]string{person.LinkedinURL: janeProfile}},
		search:  &fakeSearcher{},
		project: project,
		person:  person,
	}
	f.deps = Deps{
		DB:        db,
		Log:       log,
		Repos:     rs,
		Documents: docs,
		Claims:    services.NewClaimLedger(db, log, rs.Claim),
		Snapshots: services.NewSnapshotService(db, log, rs.LayerSnapshot),
		Entities:  services.NewEntityResolutionService(db, log, rs, docs, nil),
		AI: llm.RunnerFunc(func(_ context.Context, req llm.Request) (llm.Response, error) {
			f.prompts = append(f.prompts, req)
			return llm.Response{RawText: "```json\n{\"summary\":\"Jane leads engineering at Acme.\",\"highlights\":[\"CTO at Acme\"]}\n```", TokensUsed: 9}, nil
		}),
		AIModel: "test-model",
		Search:  f.search,
		Scraper: f.scraper,
	}
	return f
}

func (f *moduleFixture) run(key string, personLevel bool, cfg domainmod.InputConfig) *types.ModuleRun {
	run := &types.ModuleRun{
		ID:            uuid.New(),
		ProjectID:     f.project.ID,
		ModuleKey:     key,
		ModuleVersion: "1.0.0",
		InputConfig:   datatypes.NewJSONType(cfg),
	}
	if personLevel {
		pid := f.person.ID
		run.PersonID = &pid
	}
	return run
}

func (f *moduleFixture) exec(t *testing.T, h Handler, run *types.ModuleRun) Result {
	t.Helper()
	res, err := h.Execute(context.Background(), run)
	if err != nil {
		return Failed(err)
	}
	return res
}

func TestPersonPipelineEndToEnd(t *testing.T) {
	f := newModuleFixture(t)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx}

	res := f.exec(t, NewLinkedinProfileConnector(f.deps), f.run(KeyLinkedinProfileConnector, true, domainmod.InputConfig{}))
	require.NoError(t, res.Err)
	assert.Equal(t, []string{f.person.LinkedinURL}, f.scraper.urls)

	// a second capture supersedes the first
	res = f.exec(t, NewLinkedinProfileConnector(f.deps), f.run(KeyLinkedinProfileConnector, true, domainmod.InputConfig{}))
	require.NoError(t, res.Err)
	assert.EqualValues(t, 1, res.Output.(map[string]any)["invalidated"])

	res = f.exec(t, NewCoreIdentityEnricher(f.deps), f.run(KeyCoreIdentityEnricher, true, domainmod.InputConfig{}))
	require.NoError(t, res.Err)
	assert.Equal(t, 4, res.Output.(map[string]any)["written"])

	// re-running over the same document writes nothing new
	res = f.exec(t, NewCoreIdentityEnricher(f.deps), f.run(KeyCoreIdentityEnricher, true, domainmod.InputConfig{}))
	require.NoError(t, res.Err)
	assert.Equal(t, 0, res.Output.(map[string]any)["written"])
	assert.Equal(t, 4, res.Output.(map[string]any)["unchanged"])

	res = f.exec(t, NewLayer1Composer(f.deps), f.run(KeyLayer1Composer, true, domainmod.InputConfig{}))
	require.NoError(t, res.Err)
	assert.Equal(t, 1, res.Output.(map[string]any)["snapshotVersion"])

	snap, err := f.deps.Snapshots.GetLatest(dbc, f.project.ID, f.person.ID, snapshots.LayerCoreIdentity)
	require.NoError(t, err)
	require.NotNil(t, snap)
	var compiled snapshots.CoreIdentityV1
	require.NoError(t, json.Unmarshal(snap.CompiledJSON, &compiled))
	require.NotNil(t, compiled.LegalName)
	assert.Equal(t, "Jane Doe", compiled.LegalName.FullName)
	assert.Len(t, compiled.Roles, 1)
	assert.Len(t, compiled.ClaimIDs, 4)

	res = f.exec(t, NewFinalSummaryComposer(f.deps), f.run(KeyFinalSummaryComposer, true, domainmod.InputConfig{}))
	require.NoError(t, res.Err)
	assert.Equal(t, 1, res.Output.(map[string]any)["layer1SnapshotVersion"])
	require.Len(t, f.prompts, 1)
	assert.Contains(t, f.prompts[0].UserPrompt, "Jane Doe")

	c, err := f.deps.Claims.LatestActive(dbc, f.project.ID, f.person.ID, claims.TypeFinalSummary)
	require.NoError(t, err)
	require.NotNil(t, c)
	v, err := c.Decoded()
	require.NoError(t, err)
	assert.Equal(t, "Jane leads engineering at Acme.", v.(claims.FinalSummaryV1).Summary)
	assert.Equal(t, "test-model", v.(claims.FinalSummaryV1).Model)
}

func TestProfileConnectorFailures(t *testing.T) {
	f := newModuleFixture(t)

	run := f.run(KeyLinkedinProfileConnector, true, domainmod.InputConfig{ProfileURL: "https://linkedin.com/in/ghost"})
	res := f.exec(t, NewLinkedinProfileConnector(f.deps), run)
	assert.True(t, errors.IsCode(res.Err, errors.CodeExternalProvider))

	res = f.exec(t, NewLinkedinProfileConnector(f.deps), f.run(KeyLinkedinProfileConnector, false, domainmod.InputConfig{}))
	assert.True(t, errors.IsCode(res.Err, errors.CodeValidation))

	missing := f.run(KeyLinkedinProfileConnector, true, domainmod.InputConfig{})
	other := uuid.New()
	missing.PersonID = &other
	res = f.exec(t, NewLinkedinProfileConnector(f.deps), missing)
	assert.True(t, errors.IsCode(res.Err, errors.CodeNotFound))

	d := f.deps
	d.Scraper = nil
	res = f.exec(t, NewLinkedinProfileConnector(d), f.run(KeyLinkedinProfileConnector, true, domainmod.InputConfig{}))
	assert.True(t, errors.IsCode(res.Err, errors.CodeExternalProvider))
}

func TestEnricherWithoutProfileDocument(t *testing.T) {
	f := newModuleFixture(t)
	res := f.exec(t, NewCoreIdentityEnricher(f.deps), f.run(KeyCoreIdentityEnricher, true, domainmod.InputConfig{}))
	assert.True(t, errors.IsCode(res.Err, errors.CodeNotFound))
}

func TestFinalSummaryRequiresClaims(t *testing.T) {
	f := newModuleFixture(t)
	res := f.exec(t, NewFinalSummaryComposer(f.deps), f.run(KeyFinalSummaryComposer, true, domainmod.InputConfig{}))
	assert.True(t, errors.IsCode(res.Err, errors.CodeValidation))
	assert.Empty(t, f.prompts)
}

func TestPostsConnectorStoresItems(t *testing.T) {
	f := newModuleFixture(t)
	f.search.items = []json.RawMessage{json.RawMessage(`{"text":"hello"}`), json.RawMessage(`{"text":"world"}`)}

	res := f.exec(t, NewLinkedinPostsConnector(f.deps), f.run(KeyLinkedinPostsConnector, true, domainmod.InputConfig{}))
	require.NoError(t, res.Err)
	require.Len(t, f.search.reqs, 1)
	assert.Equal(t, apify.ProviderLinkedinPost, f.search.reqs[0].Provider)
	assert.Contains(t, string(f.search.reqs[0].Payload), "profileUrls")

	doc, err := f.deps.Documents.GetLatestValid(dbctx.Context{Ctx: context.Background()},
		types.PersonSubjectOf(f.project.ID, f.person.ID), documents.SourceLinkedin, documents.KindPosts, services.GetLatestOptions{})
	require.NoError(t, err)
	var body postsPayload
	require.NoError(t, json.Unmarshal(doc.Payload, &body))
	assert.Len(t, body.Items, 2)
	assert.Equal(t, "q-1", body.QueryID)
}

func TestPeopleSearchConnector(t *testing.T) {
	f := newModuleFixture(t)
	f.search.items = []json.RawMessage{
		json.RawMessage(`{"linkedinUrl":"https://www.linkedin.com/in/alice/","fullName":"Alice A","location":"Paris, France"}`),
		json.RawMessage(`{"linkedinUrl":"https://linkedin.com/in/bob","fullName":"Bob B"}`),
		json.RawMessage(`{"fullName":"No Url"}`),
	}

	res := f.exec(t, NewPeopleSearchConnector(f.deps), f.run(KeyPeopleSearchConnector, false, domainmod.InputConfig{}))
	assert.True(t, errors.IsCode(res.Err, errors.CodeValidation))

	res = f.exec(t, NewPeopleSearchConnector(f.deps), f.run(KeyPeopleSearchConnector, false, domainmod.InputConfig{
		SearchPayload: json.RawMessage(`{"keywords":"cto"}`),
		MaxPages:      2,
	}))
	require.NoError(t, res.Err)
	require.Len(t, f.search.reqs, 1)
	assert.Equal(t, apify.ProviderPeopleSearch, f.search.reqs[0].Provider)
	assert.Equal(t, 2, f.search.reqs[0].MaxPages)

	out := res.Output.(map[string]any)
	sum := out["summary"].(*services.FanoutSummary)
	assert.Equal(t, 3, sum.ItemsProcessed)
	assert.Equal(t, 2, sum.PersonsUpserted)
	assert.Equal(t, 1, sum.ItemsSkippedMissingLinkedinURL)

	alice, err := f.deps.Repos.Person.GetByLinkedinURL(dbctx.Context{Ctx: context.Background()}, "https://linkedin.com/in/alice")
	require.NoError(t, err)
	require.NotNil(t, alice)
	assert.True(t, strings.HasPrefix(*alice.FullName, "Alice"))
}

func TestPeopleSearchProviderError(t *testing.T) {
	f := newModuleFixture(t)
	f.search.err = errors.ExternalProvider("apify.Search", errors.New("actor failed"))
	res := f.exec(t, NewPeopleSearchConnector(f.deps), f.run(KeyPeopleSearchConnector, false, domainmod.InputConfig{
		SearchPayload: json.RawMessage(`{"keywords":"cto"}`),
	}))
	assert.True(t, errors.IsCode(res.Err, errors.CodeExternalProvider))
}
