// Package llm is the provider-neutral AI capability used by enrichers,
// composers and the flow filter gate.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/yungbote/talentgraph-backend/internal/pkg/errors"
	"github.com/yungbote/talentgraph-backend/internal/pkg/jsonutil"
)

type Request struct {
	Provider     string
	Model        string
	TaskType     string
	SystemPrompt string
	UserPrompt   string
	Temperature  *float64
	MaxTokens    int
}

type Response struct {
	RawText    string
	TokensUsed int
}

// Runner executes one prompt against a model.
type Runner interface {
	Run(ctx context.Context, req Request) (Response, error)
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, req Request) (Response, error)

func (f RunnerFunc) Run(ctx context.Context, req Request) (Response, error) { return f(ctx, req) }

func decode(text string, out any) error {
	raw, ok := jsonutil.ExtractJSON(text)
	if !ok {
		return errors.New("no JSON value in response")
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return errors.Wrap(err, "decode model JSON")
	}
	return nil
}

// RunJSON runs req and decodes the reply into out. An unparsable reply gets
// one corrective retry that shows the model its invalid output; a second
// failure is an external_provider error.
func RunJSON(ctx context.Context, runner Runner, req Request, out any) (Response, error) {
	const op = "llm.RunJSON"
	if runner == nil {
		return Response{}, errors.ExternalProvider(op, errors.New("no AI runner configured"))
	}
	resp, err := runner.Run(ctx, req)
	if err != nil {
		return resp, errors.ExternalProvider(op, err)
	}
	parseErr := decode(resp.RawText, out)
	if parseErr == nil {
		return resp, nil
	}

	retry := req
	retry.UserPrompt = correctivePrompt(req.UserPrompt, resp.RawText, parseErr)
	second, err := runner.Run(ctx, retry)
	second.TokensUsed += resp.TokensUsed
	if err != nil {
		return second, errors.ExternalProvider(op, err)
	}
	if err := decode(second.RawText, out); err != nil {
		return second, errors.ExternalProvider(op, errors.Wrap(err, "invalid JSON after corrective retry"))
	}
	return second, nil
}

func correctivePrompt(original, invalid string, cause error) string {
	var b strings.Builder
	b.WriteString(original)
	b.WriteString("\n\nYour previous reply could not be parsed as JSON (")
	b.WriteString(cause.Error())
	b.WriteString("). Previous reply:\n")
	b.WriteString(invalid)
	b.WriteString("\n\nRespond again with only valid JSON and no surrounding text.")
	return b.String()
}

// Describe renders a short label for logs.
func (r Request) Describe() string {
	return fmt.Sprintf("%s/%s:%s", r.Provider, r.Model, r.TaskType)
}
