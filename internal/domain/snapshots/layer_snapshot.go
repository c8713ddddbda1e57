package snapshots

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const LayerCoreIdentity = 1

// LayerSnapshot is never updated; each composition appends a version.
type LayerSnapshot struct {
	ID                    uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	ProjectID             uuid.UUID      `gorm:"type:uuid;column:project_id;not null;uniqueIndex:idx_layer_snapshot_version,priority:1" json:"project_id"`
	PersonID              uuid.UUID      `gorm:"type:uuid;column:person_id;not null;uniqueIndex:idx_layer_snapshot_version,priority:2" json:"person_id"`
	LayerNumber           int            `gorm:"column:layer_number;not null;uniqueIndex:idx_layer_snapshot_version,priority:3" json:"layer_number"`
	SnapshotVersion       int            `gorm:"column:snapshot_version;not null;uniqueIndex:idx_layer_snapshot_version,priority:4" json:"snapshot_version"`
	ComposerModuleKey     string         `gorm:"column:composer_module_key;not null" json:"composer_module_key"`
	ComposerModuleVersion string         `gorm:"column:composer_module_version;not null" json:"composer_module_version"`
	CompiledJSON          datatypes.JSON `gorm:"column:compiled_json;type:jsonb;not null" json:"compiled_json"`
	GeneratedAt           time.Time      `gorm:"column:generated_at;not null" json:"generated_at"`
	ModuleRunID           *uuid.UUID     `gorm:"type:uuid;column:module_run_id;index" json:"module_run_id,omitempty"`
}

func (LayerSnapshot) TableName() string { return "layer_snapshot" }

func (s *LayerSnapshot) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// CoreIdentityV1 is the compiled layer-1 view.
type CoreIdentityV1 struct {
	LegalName      *LegalName      `json:"legalName,omitempty"`
	Location       *Location       `json:"location,omitempty"`
	Education      []Education     `json:"education"`
	Roles          []Role          `json:"roles"`
	Certifications []Certification `json:"certifications"`
	ClaimIDs       []uuid.UUID     `json:"claimIds"`
}

type LegalName struct {
	FullName  string `json:"fullName"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
}

type Location struct {
	Raw     string `json:"raw"`
	City    string `json:"city,omitempty"`
	Region  string `json:"region,omitempty"`
	Country string `json:"country,omitempty"`
}

type Education struct {
	School       string `json:"school"`
	Degree       string `json:"degree,omitempty"`
	FieldOfStudy string `json:"fieldOfStudy,omitempty"`
	StartYear    *int   `json:"startYear,omitempty"`
	EndYear      *int   `json:"endYear,omitempty"`
}

type Role struct {
	Title     string `json:"title"`
	Company   string `json:"company"`
	StartDate string `json:"startDate,omitempty"`
	EndDate   string `json:"endDate,omitempty"`
	IsCurrent bool   `json:"isCurrent"`
}

type Certification struct {
	Name      string `json:"name"`
	Authority string `json:"authority,omitempty"`
	IssuedAt  string `json:"issuedAt,omitempty"`
}
