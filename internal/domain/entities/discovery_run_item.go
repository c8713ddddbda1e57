package entities

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	DiscoveryItemCreated = "CREATED"
	DiscoveryItemFailed  = "FAILED"
	// DiscoveryItemSkipped marks items without a usable profile identifier.
	DiscoveryItemSkipped = "SKIPPED"
)

// DiscoveryRunItem is audit lineage for one fanned-out search result.
type DiscoveryRunItem struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	ModuleRunID uuid.UUID      `gorm:"type:uuid;column:module_run_id;not null;index" json:"module_run_id"`
	ProjectID   uuid.UUID      `gorm:"type:uuid;column:project_id;not null;index" json:"project_id"`
	ItemIndex   int            `gorm:"column:item_index;not null" json:"item_index"`
	PersonID    *uuid.UUID     `gorm:"type:uuid;column:person_id;index" json:"person_id,omitempty"`
	LinkedinURL *string        `gorm:"column:linkedin_url" json:"linkedin_url,omitempty"`
	Status      string         `gorm:"column:status;not null;index" json:"status"`
	DocumentID  *uuid.UUID     `gorm:"type:uuid;column:document_id" json:"document_id,omitempty"`
	ErrorJSON   datatypes.JSON `gorm:"column:error_json;type:jsonb" json:"error_json,omitempty"`
	CreatedAt   time.Time      `gorm:"not null" json:"created_at"`
}

func (DiscoveryRunItem) TableName() string { return "discovery_run_item" }

func (d *DiscoveryRunItem) BeforeCreate(tx *gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	return nil
}
