package llm

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/talentgraph-backend/internal/pkg/errors"
)

type scripted struct {
	replies []string
	prompts []string
}

func (s *scripted) Run(ctx context.Context, req Request) (Response, error) {
	s.prompts = append(s.prompts, req.UserPrompt)
	if len(s.replies) == 0 {
		return Response{}, errors.New("no more replies")
	}
	r := s.replies[0]
	s.replies = s.replies[1:]
	return Response{RawText: r, TokensUsed: 10}, nil
}

func TestDecodeModelReplies(t *testing.T) {
	cases := map[string]int{
		`{"a":1}`:                                 1,
		"```json\n{\"a\":2}\n```":             2,
		"Sure! Here you go: {\"a\":3} done":     3,
		"```\n{\"a\":4, \"note\":\"}\"}\n```": 4,
	}
	for in, want := range cases {
		var out struct{ A int }
		require.NoError(t, decode(in, &out), in)
		assert.Equal(t, want, out.A)
	}
	var out struct{ A int }
	assert.Error(t, decode("no json here", &out))
}

func TestRunJSONFirstTry(t *testing.T) {
	r := &scripted{replies: []string{"```json\n{\"shouldProceed\":true}\n```"}}
	var out struct {
		ShouldProceed bool `json:"shouldProceed"`
	}
	resp, err := RunJSON(context.Background(), r, Request{UserPrompt: "p"}, &out)
	require.NoError(t, err)
	assert.True(t, out.ShouldProceed)
	assert.Equal(t, 10, resp.TokensUsed)
	assert.Len(t, r.prompts, 1)
}

func TestRunJSONCorrectiveRetry(t *testing.T) {
	r := &scripted{replies: []string{"not json at all", `{"n":3}`}}
	var out struct {
		N int `json:"n"`
	}
	resp, err := RunJSON(context.Background(), r, Request{UserPrompt: "p"}, &out)
	require.NoError(t, err)
	assert.Equal(t, 3, out.N)
	assert.Equal(t, 20, resp.TokensUsed)
	require.Len(t, r.prompts, 2)
	assert.True(t, strings.Contains(r.prompts[1], "not json at all"))
}

func TestRunJSONFailsAfterRetry(t *testing.T) {
	r := &scripted{replies: []string{"nope", "still nope"}}
	var out map[string]any
	_, err := RunJSON(context.Background(), r, Request{}, &out)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeExternalProvider))
}

func TestRunJSONRunnerError(t *testing.T) {
	r := RunnerFunc(func(ctx context.Context, req Request) (Response, error) {
		return Response{}, errors.New("boom")
	})
	var out map[string]any
	_, err := RunJSON(context.Background(), r, Request{}, &out)
	assert.True(t, errors.IsCode(err, errors.CodeExternalProvider))
}
