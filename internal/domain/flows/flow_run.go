package flows

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Status string

const (
	StatusQueued    Status = "QUEUED"
	StatusRunning   Status = "RUNNING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

func (s Status) Terminal() bool { return s == StatusCompleted || s == StatusFailed }

type Stage string

const (
	StageConnectors Stage = "CONNECTORS"
	StageEnrichers  Stage = "ENRICHERS"
	StageComposers  Stage = "COMPOSERS"
	StageCompleted  Stage = "COMPLETED"
)

// Stages is the fixed stage order.
var Stages = []Stage{StageConnectors, StageEnrichers, StageComposers}

// Next returns the stage after s, StageCompleted after the last one.
func (s Stage) Next() Stage {
	for i, st := range Stages {
		if st == s && i+1 < len(Stages) {
			return Stages[i+1]
		}
	}
	return StageCompleted
}

// FilterResult is the memoized AI filter-gate decision.
type FilterResult struct {
	ShouldProceed bool      `json:"shouldProceed"`
	Reason        string    `json:"reason"`
	Confidence    float64   `json:"confidence"`
	EvaluatedAt   time.Time `json:"evaluatedAt"`
}

type InputSummary struct {
	ProfileURL         string        `json:"profileUrl,omitempty"`
	TriggeredByUserID  string        `json:"triggeredByUserId,omitempty"`
	FilterInstructions string        `json:"filterInstructions,omitempty"`
	FilterResult       *FilterResult `json:"filterResult,omitempty"`
}

// ModuleRef names one scheduled module run.
type ModuleRef struct {
	ModuleRunID uuid.UUID `json:"moduleRunId"`
	ModuleKey   string    `json:"moduleKey"`
	Version     string    `json:"version"`
	Stage       Stage     `json:"stage"`
}

type FlowRun struct {
	ID               uuid.UUID                        `gorm:"type:uuid;primaryKey" json:"id"`
	ProjectID        uuid.UUID                        `gorm:"type:uuid;column:project_id;not null;index" json:"project_id"`
	PersonID         uuid.UUID                        `gorm:"type:uuid;column:person_id;not null;index" json:"person_id"`
	FlowKey          string                           `gorm:"column:flow_key;not null;index" json:"flow_key"`
	FlowSetID        *uuid.UUID                       `gorm:"type:uuid;column:flow_set_id;index" json:"flow_set_id,omitempty"`
	Status           Status                           `gorm:"column:status;not null;index" json:"status"`
	CurrentStage     Stage                            `gorm:"column:current_stage;not null" json:"current_stage"`
	InputSummary     datatypes.JSONType[InputSummary] `gorm:"column:input_summary;type:jsonb" json:"input_summary"`
	ScheduledModules datatypes.JSONSlice[ModuleRef]   `gorm:"column:scheduled_modules;type:jsonb" json:"scheduled_modules"`
	CompletedModules datatypes.JSONSlice[ModuleRef]   `gorm:"column:completed_modules;type:jsonb" json:"completed_modules"`
	FailedModules    datatypes.JSONSlice[ModuleRef]   `gorm:"column:failed_modules;type:jsonb" json:"failed_modules"`
	FinalSummary     datatypes.JSON                   `gorm:"column:final_summary;type:jsonb" json:"final_summary,omitempty"`
	ErrorJSON        datatypes.JSON                   `gorm:"column:error_json;type:jsonb" json:"error_json,omitempty"`
	Version          int                              `gorm:"column:version;not null" json:"version"`
	StartedAt        *time.Time                       `gorm:"column:started_at" json:"started_at,omitempty"`
	FinishedAt       *time.Time                       `gorm:"column:finished_at" json:"finished_at,omitempty"`
	CreatedAt        time.Time                        `gorm:"not null;index" json:"created_at"`
	UpdatedAt        time.Time                        `gorm:"not null" json:"updated_at"`
}

func (FlowRun) TableName() string { return "flow_run" }

func (f *FlowRun) BeforeCreate(tx *gorm.DB) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	if f.Status == "" {
		f.Status = StatusQueued
	}
	if f.CurrentStage == "" {
		f.CurrentStage = StageConnectors
	}
	if f.Version == 0 {
		f.Version = 1
	}
	return nil
}

// FlowSet groups flow runs created by one batch trigger.
type FlowSet struct {
	ID                uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ProjectID         uuid.UUID `gorm:"type:uuid;column:project_id;not null;index" json:"project_id"`
	FlowKey           string    `gorm:"column:flow_key;not null" json:"flow_key"`
	TriggeredByUserID string    `gorm:"column:triggered_by_user_id" json:"triggered_by_user_id,omitempty"`
	ItemCount         int       `gorm:"column:item_count;not null" json:"item_count"`
	CreatedAt         time.Time `gorm:"not null" json:"created_at"`
}

func (FlowSet) TableName() string { return "flow_set" }

func (s *FlowSet) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}
