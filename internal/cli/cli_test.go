package cli

import (
	"bytes"
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/talentgraph-backend/internal/app"
	"github.com/yungbote/talentgraph-backend/internal/pkg/errors"
)

func failingFactory(t *testing.T) appFactory {
	return func(context.Context, app.Config) (*app.App, error) {
		t.Fatal("app must not be built for invalid input")
		return nil, nil
	}
}

func run(t *testing.T, args ...string) error {
	t.Helper()
	root := newRootCommand(failingFactory(t))
	root.SetArgs(args)
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	return root.ExecuteContext(context.Background())
}

func TestCommandTree(t *testing.T) {
	root := NewRootCommand()
	for _, path := range [][]string{
		{"serve"}, {"worker"}, {"migrate"},
		{"flow", "create"}, {"flow", "batch"}, {"flow", "status"},
		{"module", "run"},
	} {
		cmd, _, err := root.Find(path)
		require.NoError(t, err, path)
		assert.Equal(t, path[len(path)-1], cmd.Name())
	}
}

func TestFlowCreateRejectsBadIDs(t *testing.T) {
	err := run(t, "flow", "create", "--project", "nope", "--person", uuid.NewString())
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeValidation))

	err = run(t, "flow", "create", "--project", uuid.NewString())
	assert.Error(t, err)
}

func TestFlowStatusNeedsID(t *testing.T) {
	assert.Error(t, run(t, "flow", "status"))
	assert.True(t, errors.IsCode(run(t, "flow", "status", "x"), errors.CodeValidation))
}

func TestModuleRunInput(t *testing.T) {
	person := uuid.New()
	in, err := moduleRunOptions{
		project:        uuid.NewString(),
		person:         person.String(),
		key:            "people_search_connector",
		searchProvider: "people_search",
		searchPayload:  `{"keywords":"cto"}`,
		maxPages:       3,
	}.input()
	require.NoError(t, err)
	require.NotNil(t, in.PersonID)
	assert.Equal(t, person, *in.PersonID)
	assert.Equal(t, 3, in.Config.MaxPages)
	assert.JSONEq(t, `{"keywords":"cto"}`, string(in.Config.SearchPayload))

	_, err = moduleRunOptions{project: uuid.NewString(), key: "k", searchPayload: "{"}.input()
	assert.True(t, errors.IsCode(err, errors.CodeValidation))
}
