// Package modules holds the pluggable pipeline units (connectors, enrichers,
// composers), the registry that maps module keys to handlers, and the
// dispatcher that runs them.
package modules

import (
	"context"

	types "github.com/yungbote/talentgraph-backend/internal/domain"
	domainmod "github.com/yungbote/talentgraph-backend/internal/domain/modules"
)

// Result is the uniform outcome of one module execution. Err is nil on success.
type Result struct {
	Output any
	Err    error
}

func (r Result) Success() bool { return r.Err == nil }

func Succeeded(output any) Result { return Result{Output: output} }

func Failed(err error) Result { return Result{Err: err} }

type Handler interface {
	Key() string
	Version() string
	Kind() domainmod.Kind
	Execute(ctx context.Context, run *types.ModuleRun) (Result, error)
}
