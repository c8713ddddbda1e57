package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/talentgraph-backend/internal/data/repos"
	"github.com/yungbote/talentgraph-backend/internal/data/repos/testutil"
	types "github.com/yungbote/talentgraph-backend/internal/domain"
	"github.com/yungbote/talentgraph-backend/internal/domain/documents"
	"github.com/yungbote/talentgraph-backend/internal/pkg/errors"
)

type fakeArchive struct {
	mu   sync.Mutex
	puts map[string][]byte
}

func (f *fakeArchive) Put(_ context.Context, key, _ string, body []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.puts == nil {
		f.puts = map[string][]byte{}
	}
	f.puts[key] = body
	return "gs://test/" + key, nil
}

func (f *fakeArchive) Get(_ context.Context, uri string) ([]byte, error) { return nil, nil }
func (f *fakeArchive) Close() error                                     { return nil }

func newDocumentService(t *testing.T) (DocumentService, types.Subject) {
	t.Helper()
	db := testutil.DB(t)
	ctx := context.Background()
	project, person := testutil.SeedProjectPerson(t, ctx, db)
	svc := NewDocumentService(db, testutil.Logger(t), repos.NewDocumentRepo(db, testutil.Logger(t)), nil)
	return svc, types.PersonSubjectOf(project.ID, person.ID)
}

func profileDoc(subject types.Subject, captured time.Time, payload string) NewDocument {
	return NewDocument{
		Subject:    subject,
		Source:     documents.SourceLinkedin,
		Kind:       documents.KindProfile,
		CapturedAt: captured,
		Payload:    []byte(payload),
	}
}

func TestDocumentLatestValidSelection(t *testing.T) {
	svc, subject := newDocumentService(t)
	dbc := testutil.DBC(context.Background())
	t1 := time.Now().Add(-2 * time.Hour)
	t2 := t1.Add(time.Hour)

	d1, err := svc.Create(dbc, profileDoc(subject, t1, `{"v":1}`))
	require.NoError(t, err)
	d2, err := svc.Create(dbc, profileDoc(subject, t2, `{"v":2}`))
	require.NoError(t, err)

	got, err := svc.GetLatestValid(dbc, subject, documents.SourceLinkedin, documents.KindProfile, GetLatestOptions{})
	require.NoError(t, err)
	assert.Equal(t, d2.ID, got.ID)

	_, err = svc.Invalidate(dbc, d2.ID, "stale", nil)
	require.NoError(t, err)
	got, err = svc.GetLatestValid(dbc, subject, documents.SourceLinkedin, documents.KindProfile, GetLatestOptions{})
	require.NoError(t, err)
	assert.Equal(t, d1.ID, got.ID)

	_, err = svc.Invalidate(dbc, d1.ID, "stale", nil)
	require.NoError(t, err)
	_, err = svc.GetLatestValid(dbc, subject, documents.SourceLinkedin, documents.KindProfile, GetLatestOptions{})
	assert.True(t, errors.IsCode(err, errors.CodeNotFound))

	got, err = svc.GetLatestValid(dbc, subject, documents.SourceLinkedin, documents.KindProfile, GetLatestOptions{AllowMissing: true})
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestDocumentHashIsDeterministic(t *testing.T) {
	svc, subject := newDocumentService(t)
	dbc := testutil.DBC(context.Background())

	a, err := svc.Create(dbc, profileDoc(subject, time.Now(), `{"b":2,"a":1}`))
	require.NoError(t, err)
	b, err := svc.Create(dbc, profileDoc(subject, time.Now(), `{ "a": 1, "b": 2 }`))
	require.NoError(t, err)
	assert.Equal(t, a.Hash, b.Hash)
	assert.True(t, a.IsValid)
	assert.Equal(t, "application/json", a.ContentType)

	_, err = svc.Create(dbc, profileDoc(subject, time.Now(), `not json`))
	assert.True(t, errors.IsCode(err, errors.CodeValidation))
}

func TestDocumentCreateAndSupersede(t *testing.T) {
	svc, subject := newDocumentService(t)
	dbc := testutil.DBC(context.Background())

	old, err := svc.Create(dbc, profileDoc(subject, time.Now().Add(-time.Minute), `{"v":1}`))
	require.NoError(t, err)
	fresh, n, err := svc.CreateAndSupersede(dbc, profileDoc(subject, time.Now(), `{"v":2}`))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := svc.GetByID(dbc, old.ID)
	require.NoError(t, err)
	assert.False(t, got.IsValid)
	meta := got.Meta()
	assert.Equal(t, "superseded", meta.Reason)
	require.NotNil(t, meta.SupersededBy)
	assert.Equal(t, fresh.ID, *meta.SupersededBy)
	assert.NotNil(t, meta.InvalidatedAt)
}

func TestDocumentRevalidateKeepsLineage(t *testing.T) {
	svc, subject := newDocumentService(t)
	dbc := testutil.DBC(context.Background())

	doc, err := svc.Create(dbc, profileDoc(subject, time.Now(), `{"v":1}`))
	require.NoError(t, err)
	by := uuid.New()
	_, err = svc.Invalidate(dbc, doc.ID, "operator", &by)
	require.NoError(t, err)

	got, err := svc.Revalidate(dbc, doc.ID, "restored")
	require.NoError(t, err)
	assert.True(t, got.IsValid)

	reloaded, err := svc.GetByID(dbc, doc.ID)
	require.NoError(t, err)
	assert.True(t, reloaded.IsValid)
	meta := reloaded.Meta()
	assert.Equal(t, "operator", meta.Reason)
	assert.Equal(t, "restored", meta.RevalidateReason)
	assert.NotNil(t, meta.RevalidatedAt)

	_, err = svc.Invalidate(dbc, uuid.New(), "x", nil)
	assert.True(t, errors.IsCode(err, errors.CodeNotFound))
}

func TestDocumentArchiveSetsStorageURI(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	project := testutil.SeedProject(t, ctx, db, "p")
	archive := &fakeArchive{}
	svc := NewDocumentService(db, testutil.Logger(t), repos.NewDocumentRepo(db, testutil.Logger(t)), archive)
	dbc := testutil.DBC(ctx)

	doc, err := svc.Create(dbc, NewDocument{
		Subject: types.Subject{ProjectID: project.ID},
		Source:  documents.SourceApify,
		Kind:    documents.KindPeopleSearch,
		Payload: []byte(`{"items":[]}`),
	})
	require.NoError(t, err)
	require.NotNil(t, doc.StorageURI)
	assert.Equal(t, "gs://test/documents/"+project.ID.String()+"/"+doc.ID.String()+".json", *doc.StorageURI)

	reloaded, err := svc.GetByID(dbc, doc.ID)
	require.NoError(t, err)
	require.NotNil(t, reloaded.StorageURI)
	assert.Equal(t, *doc.StorageURI, *reloaded.StorageURI)
}
