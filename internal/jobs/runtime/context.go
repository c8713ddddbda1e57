package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/talentgraph-backend/internal/data/repos"
	types "github.com/yungbote/talentgraph-backend/internal/domain"
	"github.com/yungbote/talentgraph-backend/internal/domain/jobs"
	"github.com/yungbote/talentgraph-backend/internal/pkg/ctxutil"
	"github.com/yungbote/talentgraph-backend/internal/pkg/dbctx"
	"github.com/yungbote/talentgraph-backend/internal/pkg/errors"
	"github.com/yungbote/talentgraph-backend/internal/pkg/logger"
)

/*
Context is the execution handle for a single claimed job_run.
Handlers never touch job_run directly; they report the outcome through
Succeed, Fail or FailPermanent. The worker calls these itself when a
handler returns without doing so.
*/
type Context struct {
	Ctx         context.Context
	DB          *gorm.DB
	Job         *types.JobRun
	Repo        repos.JobRunRepo
	Log         *logger.Logger
	MaxAttempts int
	payload     map[string]any
	done        bool
}

func NewContext(ctx context.Context, db *gorm.DB, job *types.JobRun, repo repos.JobRunRepo, log *logger.Logger, maxAttempts int) *Context {
	c := &Context{
		Ctx:         ctx,
		DB:          db,
		Job:         job,
		Repo:        repo,
		Log:         log,
		MaxAttempts: maxAttempts,
	}
	_ = c.decodePayload()
	c.applyTraceData()
	return c
}

// decodePayload leaves an empty map behind on malformed JSON; handlers
// validate the fields they need.
func (c *Context) decodePayload() error {
	if c.Job == nil || len(c.Job.Payload) == 0 {
		c.payload = map[string]any{}
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(c.Job.Payload, &m); err != nil || m == nil {
		c.payload = map[string]any{}
		return err
	}
	c.payload = m
	return nil
}

func (c *Context) applyTraceData() {
	if c == nil || c.Ctx == nil {
		return
	}
	p := c.Payload()
	traceID := payloadString(p, "trace_id")
	reqID := payloadString(p, "request_id")
	if traceID == "" && reqID == "" {
		return
	}
	c.Ctx = ctxutil.WithTraceData(c.Ctx, &ctxutil.TraceData{TraceID: traceID, RequestID: reqID})
}

func payloadString(p map[string]any, key string) string {
	v, ok := p[key]
	if !ok || v == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(v))
}

// Payload never returns nil.
func (c *Context) Payload() map[string]any {
	if c.payload == nil {
		c.payload = map[string]any{}
	}
	return c.payload
}

func (c *Context) PayloadUUID(key string) (uuid.UUID, bool) {
	s := payloadString(c.Payload(), key)
	if s == "" {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(s)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}

// RequireUUID is PayloadUUID with a validation error for missing keys.
func (c *Context) RequireUUID(key string) (uuid.UUID, error) {
	id, ok := c.PayloadUUID(key)
	if !ok {
		jobType := ""
		if c.Job != nil {
			jobType = c.Job.JobType
		}
		return uuid.Nil, errors.Validation(jobType, "payload missing %s", key)
	}
	return id, nil
}

func (c *Context) DBC() dbctx.Context {
	ctx := c.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	return dbctx.Context{Ctx: ctx}
}

// Done reports whether a terminal outcome was already recorded.
func (c *Context) Done() bool { return c.done }

// Heartbeat keeps a long-running claim from being reclaimed as stale.
func (c *Context) Heartbeat() error {
	if c.Repo == nil || c.Job == nil || c.Job.ID == uuid.Nil {
		return nil
	}
	return c.Repo.Heartbeat(c.DBC(), c.Job.ID)
}

// Fail records a retryable failure. The queue picks the job up again after
// the retry delay until attempts reach the maximum.
func (c *Context) Fail(err error) {
	c.fail(err, false)
}

// FailPermanent records a failure that must not be retried.
func (c *Context) FailPermanent(err error) {
	c.fail(err, true)
}

func (c *Context) fail(err error, permanent bool) {
	if c == nil {
		return
	}
	now := time.Now().UTC()
	msg := ""
	if err != nil {
		msg = string(errors.JSON(err))
	}
	updates := map[string]interface{}{
		"status":        jobs.StatusFailed,
		"error":         msg,
		"last_error_at": now,
		"locked_at":     nil,
		"updated_at":    now,
	}
	if permanent && c.MaxAttempts > 0 {
		updates["attempts"] = c.MaxAttempts
	}
	if c.Repo != nil && c.Job != nil && c.Job.ID != uuid.Nil {
		if uErr := c.Repo.UpdateFields(c.DBC(), c.Job.ID, updates); uErr != nil && c.Log != nil {
			c.Log.Warn("Job fail write failed", "job_id", c.Job.ID, "error", uErr)
		}
	}
	if c.Job != nil {
		c.Job.Status = jobs.StatusFailed
		c.Job.Error = msg
		c.Job.LastErrorAt = &now
		c.Job.LockedAt = nil
		if permanent && c.MaxAttempts > 0 {
			c.Job.Attempts = c.MaxAttempts
		}
	}
	c.done = true
}

func (c *Context) Succeed(result any) {
	if c == nil {
		return
	}
	now := time.Now().UTC()
	res := datatypes.JSON([]byte(`{}`))
	if result != nil {
		if b, err := json.Marshal(result); err == nil {
			res = datatypes.JSON(b)
		}
	}
	if c.Repo != nil && c.Job != nil && c.Job.ID != uuid.Nil {
		if err := c.Repo.UpdateFields(c.DBC(), c.Job.ID, map[string]interface{}{
			"status":       jobs.StatusSucceeded,
			"error":        "",
			"result":       res,
			"locked_at":    nil,
			"heartbeat_at": now,
			"updated_at":   now,
		}); err != nil && c.Log != nil {
			c.Log.Warn("Job succeed write failed", "job_id", c.Job.ID, "error", err)
		}
	}
	if c.Job != nil {
		c.Job.Status = jobs.StatusSucceeded
		c.Job.Error = ""
		c.Job.Result = res
		c.Job.LockedAt = nil
		c.Job.HeartbeatAt = &now
	}
	c.done = true
}
