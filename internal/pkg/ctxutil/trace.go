package ctxutil

import "context"

type traceDataKey struct{}

// TraceData carries request and pipeline correlation ids across job hops.
type TraceData struct {
	TraceID     string
	RequestID   string
	FlowRunID   string
	ModuleRunID string
}

func WithTraceData(ctx context.Context, td *TraceData) context.Context {
	return context.WithValue(Default(ctx), traceDataKey{}, td)
}

func GetTraceData(ctx context.Context) *TraceData {
	if ctx == nil {
		return nil
	}
	if td, ok := ctx.Value(traceDataKey{}).(*TraceData); ok {
		return td
	}
	return nil
}

// LogFields renders non-empty ids as logger key/value pairs.
func (td *TraceData) LogFields() []interface{} {
	if td == nil {
		return nil
	}
	var kv []interface{}
	for _, f := range []struct{ k, v string }{
		{"trace_id", td.TraceID},
		{"request_id", td.RequestID},
		{"flow_run_id", td.FlowRunID},
		{"module_run_id", td.ModuleRunID},
	} {
		if f.v != "" {
			kv = append(kv, f.k, f.v)
		}
	}
	return kv
}
