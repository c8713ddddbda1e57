package services

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/yungbote/talentgraph-backend/internal/data/graph"
	"github.com/yungbote/talentgraph-backend/internal/data/repos"
	"github.com/yungbote/talentgraph-backend/internal/data/repos/testutil"
	types "github.com/yungbote/talentgraph-backend/internal/domain"
	"github.com/yungbote/talentgraph-backend/internal/domain/documents"
	"github.com/yungbote/talentgraph-backend/internal/domain/entities"
	"github.com/yungbote/talentgraph-backend/internal/pkg/errors"
)

type fakeProjector struct {
	mu    sync.Mutex
	calls int
	nodes []graph.PersonNode
}

func (f *fakeProjector) ProjectPeople(_ context.Context, _ uuid.UUID, people []graph.PersonNode) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.nodes = append(f.nodes, people...)
	return nil
}

type resolutionFixture struct {
	db        *gorm.DB
	svc       EntityResolutionService
	rs        repos.Set
	projector *fakeProjector
	project   *types.Project
	run       *types.ModuleRun
}

func newResolutionFixture(t *testing.T) *resolutionFixture {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	rs := repos.NewSet(db, log)
	docs := NewDocumentService(db, log, rs.Document, nil)
	projector := &fakeProjector{}
	project := testutil.SeedProject(t, context.Background(), db, "discovery")
	return &resolutionFixture{
		db:        db,
		svc:       NewEntityResolutionService(db, log, rs, docs, projector),
		rs:        rs,
		projector: projector,
		project:   project,
		run:       &types.ModuleRun{ID: uuid.New(), ProjectID: project.ID, ModuleKey: "people_search_connector"},
	}
}

func rawItems(t *testing.T, items ...map[string]any) []json.RawMessage {
	t.Helper()
	out := make([]json.RawMessage, 0, len(items))
	for _, it := range items {
		b, err := json.Marshal(it)
		require.NoError(t, err)
		out = append(out, b)
	}
	return out
}

func TestFanoutSkipsItemWithoutProfile(t *testing.T) {
	f := newResolutionFixture(t)
	ctx := context.Background()
	items := rawItems(t,
		map[string]any{
			"linkedinUrl": "https://www.linkedin.com/in/jane-doe/",
			"fullName":    "Jane Doe",
			"location":    "Berlin, Germany",
			"companyName": "Acme",
			"companyId":   12345,
		},
		map[string]any{"fullName": "No Url"},
		map[string]any{
			"profileUrl": "http://linkedin.com/in/john-roe?trk=x",
			"firstName":  "John",
			"lastName":   "Roe",
		},
	)

	sum := f.svc.FanoutSearchResults(ctx, f.run, nil, items)
	assert.Equal(t, 3, sum.ItemsProcessed)
	assert.Equal(t, 1, sum.ItemsSkippedMissingLinkedinURL)
	assert.Equal(t, 0, sum.ItemsFailed)
	assert.Equal(t, 2, sum.PersonsUpserted)
	assert.Equal(t, 2, sum.LinksCreated)
	assert.Equal(t, 2, sum.SnapshotsInserted)
	assert.Equal(t, 1, sum.OrganizationsUpserted)
	assert.Equal(t, 1, sum.LocationsUpserted)
	assert.NoError(t, sum.Err())

	dbc := testutil.DBC(ctx)
	jane, err := f.rs.Person.GetByLinkedinURL(dbc, "https://linkedin.com/in/jane-doe")
	require.NoError(t, err)
	require.NotNil(t, jane)
	require.NotNil(t, jane.FullName)
	assert.Equal(t, "Jane Doe", *jane.FullName)
	assert.NotNil(t, jane.CurrentOrganizationID)
	assert.NotNil(t, jane.LocationID)

	john, err := f.rs.Person.GetByLinkedinURL(dbc, "https://linkedin.com/in/john-roe")
	require.NoError(t, err)
	require.NotNil(t, john)
	require.NotNil(t, john.FullName)
	assert.Equal(t, "John Roe", *john.FullName)

	rows, err := f.rs.DiscoveryRunItem.ListByModuleRun(dbc, f.run.ID)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	statuses := map[int]string{}
	for _, r := range rows {
		statuses[r.ItemIndex] = r.Status
	}
	assert.Equal(t, entities.DiscoveryItemCreated, statuses[0])
	assert.Equal(t, entities.DiscoveryItemSkipped, statuses[1])
	assert.Equal(t, entities.DiscoveryItemCreated, statuses[2])

	assert.Equal(t, 1, f.projector.calls)
	assert.Len(t, f.projector.nodes, 2)
}

func TestFanoutIsIdempotentAndSupersedesSnapshots(t *testing.T) {
	f := newResolutionFixture(t)
	ctx := context.Background()
	items := rawItems(t, map[string]any{"linkedinUrl": "linkedin.com/in/jane-doe", "headline": "Engineer"})

	first := f.svc.FanoutSearchResults(ctx, f.run, nil, items)
	assert.Equal(t, 1, first.LinksCreated)

	items = rawItems(t, map[string]any{"linkedinUrl": "linkedin.com/in/jane-doe", "headline": "Director"})
	second := f.svc.FanoutSearchResults(ctx, f.run, nil, items)
	assert.Equal(t, 1, second.PersonsUpserted)
	assert.Equal(t, 0, second.LinksCreated)
	assert.Equal(t, 1, second.SnapshotsInserted)

	dbc := testutil.DBC(ctx)
	jane, err := f.rs.Person.GetByLinkedinURL(dbc, "https://linkedin.com/in/jane-doe")
	require.NoError(t, err)
	require.NotNil(t, jane.Headline)
	assert.Equal(t, "Engineer", *jane.Headline, "known fields are never overwritten")

	valid, err := f.rs.Document.ListValid(dbc, types.PersonSubjectOf(f.project.ID, jane.ID), documents.SourceApify, documents.KindPeopleSearchItem)
	require.NoError(t, err)
	assert.Len(t, valid, 1)
}

func TestFanoutOrganizationDedupPriority(t *testing.T) {
	f := newResolutionFixture(t)
	ctx := context.Background()
	items := rawItems(t,
		map[string]any{"linkedinUrl": "linkedin.com/in/a", "companyName": "Acme", "companyWebsite": "https://www.acme.com"},
		map[string]any{"linkedinUrl": "linkedin.com/in/b", "companyName": "ACME Inc", "companyDomain": "acme.com", "companyId": "acme-inc"},
		map[string]any{"linkedinUrl": "linkedin.com/in/c", "companyName": "Acme Renamed", "companyId": "acme-inc"},
		map[string]any{"linkedinUrl": "linkedin.com/in/d", "companyName": "Initech"},
		map[string]any{"linkedinUrl": "linkedin.com/in/e", "companyName": " initech "},
	)

	sum := f.svc.FanoutSearchResults(ctx, f.run, nil, items)
	require.Equal(t, 0, sum.ItemsFailed)

	dbc := testutil.DBC(ctx)
	orgOf := func(slug string) uuid.UUID {
		p, err := f.rs.Person.GetByLinkedinURL(dbc, "https://linkedin.com/in/"+slug)
		require.NoError(t, err)
		require.NotNil(t, p)
		require.NotNil(t, p.CurrentOrganizationID)
		return *p.CurrentOrganizationID
	}
	assert.Equal(t, orgOf("a"), orgOf("b"), "same domain")
	assert.Equal(t, orgOf("b"), orgOf("c"), "same company id")
	assert.Equal(t, orgOf("d"), orgOf("e"), "same name and location")
	assert.NotEqual(t, orgOf("a"), orgOf("d"))

	acme, err := f.rs.Organization.GetByLinkedinCompanyID(dbc, "acme-inc")
	require.NoError(t, err)
	require.NotNil(t, acme)
	assert.Equal(t, "Acme", acme.Name)
	require.NotNil(t, acme.Domain)
	assert.Equal(t, "acme.com", *acme.Domain)
}

func TestFanoutMalformedItemIsRecorded(t *testing.T) {
	f := newResolutionFixture(t)
	items := []json.RawMessage{json.RawMessage(`"not an object"`), rawItems(t, map[string]any{"linkedinUrl": "linkedin.com/in/ok"})[0]}

	sum := f.svc.FanoutSearchResults(context.Background(), f.run, nil, items)
	assert.Equal(t, 2, sum.ItemsProcessed)
	assert.Equal(t, 1, sum.ItemsFailed)
	require.Len(t, sum.Failures, 1)
	assert.Equal(t, 0, sum.Failures[0].ItemIndex)
	assert.True(t, errors.IsCode(sum.Err(), errors.CodePartialBatchFailure))

	rows, err := f.rs.DiscoveryRunItem.ListByModuleRun(testutil.DBC(context.Background()), f.run.ID)
	require.NoError(t, err)
	statuses := map[int]string{}
	for _, r := range rows {
		statuses[r.ItemIndex] = r.Status
	}
	assert.Equal(t, entities.DiscoveryItemFailed, statuses[0])
	assert.Equal(t, entities.DiscoveryItemCreated, statuses[1])
}

func TestResolvePersonByProfile(t *testing.T) {
	f := newResolutionFixture(t)
	dbc := testutil.DBC(context.Background())

	p1, created, err := f.svc.ResolvePersonByProfile(dbc, f.project.ID, "https://www.linkedin.com/in/Jane-Doe/", "")
	require.NoError(t, err)
	assert.True(t, created)
	require.NotNil(t, p1.PublicIdentifier)
	assert.Equal(t, "jane-doe", *p1.PublicIdentifier)

	p2, created, err := f.svc.ResolvePersonByProfile(dbc, f.project.ID, "jane-doe", "")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, p1.ID, p2.ID)

	link, err := f.rs.PersonProject.Get(dbc, f.project.ID, p1.ID)
	require.NoError(t, err)
	require.NotNil(t, link)
	assert.Equal(t, entities.PersonSourceFlowTrigger, link.Source)

	_, _, err = f.svc.ResolvePersonByProfile(dbc, f.project.ID, "https://example.com/x", "")
	assert.True(t, errors.IsCode(err, errors.CodeValidation))
}
