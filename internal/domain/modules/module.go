package modules

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Kind string

const (
	KindConnector Kind = "connector"
	KindEnricher  Kind = "enricher"
	KindComposer  Kind = "composer"
)

// Module is a catalogue row; Version is a semver string.
type Module struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Key       string    `gorm:"column:module_key;not null;uniqueIndex:idx_module_key_version" json:"key"`
	Version   string    `gorm:"column:version;not null;uniqueIndex:idx_module_key_version" json:"version"`
	Kind      Kind      `gorm:"column:kind;not null" json:"kind"`
	Enabled   bool      `gorm:"column:enabled;not null" json:"enabled"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

func (Module) TableName() string { return "module" }

func (m *Module) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

type RunStatus string

const (
	RunQueued    RunStatus = "QUEUED"
	RunRunning   RunStatus = "RUNNING"
	RunCompleted RunStatus = "COMPLETED"
	RunFailed    RunStatus = "FAILED"
)

func (s RunStatus) Terminal() bool { return s == RunCompleted || s == RunFailed }

// InputConfig is the typed input of a module run. FlowRunID is the
// back-pointer to an owning flow run.
type InputConfig struct {
	FlowRunID      *uuid.UUID      `json:"flowRunId,omitempty"`
	FlowStage      string          `json:"flowStage,omitempty"`
	ProfileURL     string          `json:"profileUrl,omitempty"`
	SearchProvider string          `json:"searchProvider,omitempty"`
	SearchPayload  json.RawMessage `json:"searchPayload,omitempty"`
	MaxPages       int             `json:"maxPages,omitempty"`
	MaxItems       int             `json:"maxItems,omitempty"`
	EnrichProfiles bool            `json:"enrichProfiles,omitempty"`
}

type ModuleRun struct {
	ID            uuid.UUID                       `gorm:"type:uuid;primaryKey" json:"id"`
	ProjectID     uuid.UUID                       `gorm:"type:uuid;column:project_id;not null;index" json:"project_id"`
	PersonID      *uuid.UUID                      `gorm:"type:uuid;column:person_id;index" json:"person_id,omitempty"`
	ModuleKey     string                          `gorm:"column:module_key;not null;index" json:"module_key"`
	ModuleVersion string                          `gorm:"column:module_version;not null" json:"module_version"`
	Status        RunStatus                       `gorm:"column:status;not null;index" json:"status"`
	InputConfig   datatypes.JSONType[InputConfig] `gorm:"column:input_config;type:jsonb" json:"input_config"`
	FlowRunID     *uuid.UUID                      `gorm:"type:uuid;column:flow_run_id;index:idx_module_run_flow,priority:1" json:"flow_run_id,omitempty"`
	FlowStage     string                          `gorm:"column:flow_stage;index:idx_module_run_flow,priority:2" json:"flow_stage,omitempty"`
	StartedAt     *time.Time                      `gorm:"column:started_at" json:"started_at,omitempty"`
	FinishedAt    *time.Time                      `gorm:"column:finished_at" json:"finished_at,omitempty"`
	OutputJSON    datatypes.JSON                  `gorm:"column:output_json;type:jsonb" json:"output_json,omitempty"`
	ErrorJSON     datatypes.JSON                  `gorm:"column:error_json;type:jsonb" json:"error_json,omitempty"`
	CreatedAt     time.Time                       `gorm:"not null;index" json:"created_at"`
	UpdatedAt     time.Time                       `gorm:"not null" json:"updated_at"`
}

func (ModuleRun) TableName() string { return "module_run" }

func (r *ModuleRun) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.Status == "" {
		r.Status = RunQueued
	}
	cfg := r.InputConfig.Data()
	if r.FlowRunID == nil && cfg.FlowRunID != nil {
		r.FlowRunID = cfg.FlowRunID
	}
	if r.FlowStage == "" {
		r.FlowStage = cfg.FlowStage
	}
	return nil
}

func (r *ModuleRun) Config() InputConfig { return r.InputConfig.Data() }
