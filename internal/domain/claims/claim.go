package claims

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// GroupSingle is the group key of singleton claim types.
const GroupSingle = "single"

// Claim is a versioned fact. For a fixed (project, person, claim_type,
// group_key) at most one row has SupersededAt == nil.
type Claim struct {
	ID                uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	ProjectID         uuid.UUID      `gorm:"type:uuid;column:project_id;not null;index:idx_claim_key,priority:1" json:"project_id"`
	PersonID          uuid.UUID      `gorm:"type:uuid;column:person_id;not null;index:idx_claim_key,priority:2" json:"person_id"`
	ClaimType         string         `gorm:"column:claim_type;not null;index:idx_claim_key,priority:3" json:"claim_type"`
	GroupKey          string         `gorm:"column:group_key;not null;index:idx_claim_key,priority:4" json:"group_key"`
	ValueJSON         datatypes.JSON `gorm:"column:value_json;type:jsonb;not null" json:"value_json"`
	Confidence        float64        `gorm:"column:confidence;not null" json:"confidence"`
	ObservedAt        time.Time      `gorm:"column:observed_at;not null" json:"observed_at"`
	ValidFrom         *time.Time     `gorm:"column:valid_from" json:"valid_from,omitempty"`
	ValidTo           *time.Time     `gorm:"column:valid_to" json:"valid_to,omitempty"`
	SupersededAt      *time.Time     `gorm:"column:superseded_at;index:idx_claim_key,priority:5" json:"superseded_at,omitempty"`
	ReplacedByClaimID *uuid.UUID     `gorm:"type:uuid;column:replaced_by_claim_id" json:"replaced_by_claim_id,omitempty"`
	SourceDocumentID  *uuid.UUID     `gorm:"type:uuid;column:source_document_id;index" json:"source_document_id,omitempty"`
	ModuleRunID       *uuid.UUID     `gorm:"type:uuid;column:module_run_id;index" json:"module_run_id,omitempty"`
	SchemaVersion     int            `gorm:"column:schema_version;not null" json:"schema_version"`
	CreatedAt         time.Time      `gorm:"not null;index" json:"created_at"`
}

func (Claim) TableName() string { return "claim" }

func (c *Claim) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.GroupKey == "" {
		c.GroupKey = GroupSingle
	}
	return nil
}

func (c *Claim) Active() bool { return c != nil && c.SupersededAt == nil }

// Decoded returns the typed value of the claim.
func (c *Claim) Decoded() (Value, error) {
	return Decode(Type(c.ClaimType), c.ValueJSON)
}
