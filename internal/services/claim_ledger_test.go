package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/talentgraph-backend/internal/data/repos"
	"github.com/yungbote/talentgraph-backend/internal/data/repos/testutil"
	"github.com/yungbote/talentgraph-backend/internal/domain/claims"
	"github.com/yungbote/talentgraph-backend/internal/pkg/errors"
)

func newLedger(t *testing.T) (ClaimLedger, uuid.UUID, uuid.UUID) {
	t.Helper()
	db := testutil.DB(t)
	project, person := testutil.SeedProjectPerson(t, context.Background(), db)
	return NewClaimLedger(db, testutil.Logger(t), repos.NewClaimRepo(db, testutil.Logger(t))), project.ID, person.ID
}

func TestRecordUnchangedValueIsNoOp(t *testing.T) {
	ledger, projectID, personID := newLedger(t)
	dbc := testutil.DBC(context.Background())
	meta := ClaimMeta{Confidence: 0.9}

	first, err := ledger.Record(dbc, projectID, personID, claims.LegalNameV1{FullName: "Jane Doe"}, meta)
	require.NoError(t, err)
	assert.False(t, first.Unchanged)

	second, err := ledger.Record(dbc, projectID, personID, claims.LegalNameV1{FullName: "Jane Doe"}, meta)
	require.NoError(t, err)
	assert.True(t, second.Unchanged)
	assert.Equal(t, int64(0), second.Superseded)
	assert.Equal(t, first.Claim.ID, second.Claim.ID)

	history, err := ledger.History(dbc, projectID, personID, claims.TypeLegalName, claims.GroupSingle)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestRecordChangedValueSupersedes(t *testing.T) {
	ledger, projectID, personID := newLedger(t)
	dbc := testutil.DBC(context.Background())

	first, err := ledger.Record(dbc, projectID, personID, claims.LocationV1{Raw: "Berlin"}, ClaimMeta{Confidence: 1})
	require.NoError(t, err)
	second, err := ledger.Record(dbc, projectID, personID, claims.LocationV1{Raw: "Munich"}, ClaimMeta{Confidence: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(1), second.Superseded)

	history, err := ledger.History(dbc, projectID, personID, claims.TypeLocation, claims.GroupSingle)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, first.Claim.ID, history[0].ID)
	require.NotNil(t, history[0].ReplacedByClaimID)
	assert.Equal(t, second.Claim.ID, *history[0].ReplacedByClaimID)
	assert.Nil(t, history[1].SupersededAt)
}

func TestRecordAllGroupedValues(t *testing.T) {
	ledger, projectID, personID := newLedger(t)
	dbc := testutil.DBC(context.Background())
	values := []claims.Value{
		claims.RoleV1{Company: "Acme", Title: "Engineer", StartDate: "2020-01"},
		claims.RoleV1{Company: "Globex", Title: "Lead", StartDate: "2022-03", IsCurrent: true},
		claims.EducationV1{School: "MIT", Degree: "BSc"},
	}

	sum, err := ledger.RecordAll(dbc, projectID, personID, values, ClaimMeta{Confidence: 0.8})
	require.NoError(t, err)
	assert.Equal(t, 3, sum.Written)
	assert.Equal(t, 0, sum.Unchanged)

	values[1] = claims.RoleV1{Company: "Globex", Title: "Lead", StartDate: "2022-03", IsCurrent: false, EndDate: "2024-01"}
	sum, err = ledger.RecordAll(dbc, projectID, personID, values, ClaimMeta{Confidence: 0.8})
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Written)
	assert.Equal(t, 2, sum.Unchanged)

	active, err := ledger.GetActiveClaims(dbc, projectID, personID, claims.TypeRole)
	require.NoError(t, err)
	assert.Len(t, active, 2)
}

func TestRecordValidatesInput(t *testing.T) {
	ledger, projectID, personID := newLedger(t)
	dbc := testutil.DBC(context.Background())

	_, err := ledger.Record(dbc, projectID, personID, claims.LegalNameV1{FullName: "x"}, ClaimMeta{Confidence: 1.5})
	assert.True(t, errors.IsCode(err, errors.CodeValidation))
	_, err = ledger.Record(dbc, uuid.Nil, personID, claims.LegalNameV1{FullName: "x"}, ClaimMeta{})
	assert.True(t, errors.IsCode(err, errors.CodeValidation))
	_, err = ledger.Record(dbc, projectID, personID, nil, ClaimMeta{})
	assert.True(t, errors.IsCode(err, errors.CodeValidation))
}
