package entities

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Person is keyed by its normalized LinkedIn profile URL.
type Person struct {
	ID                    uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	LinkedinURL           string     `gorm:"column:linkedin_url;not null;uniqueIndex" json:"linkedin_url"`
	PublicIdentifier      *string    `gorm:"column:public_identifier;index" json:"public_identifier,omitempty"`
	FullName              *string    `gorm:"column:full_name" json:"full_name,omitempty"`
	FirstName             *string    `gorm:"column:first_name" json:"first_name,omitempty"`
	LastName              *string    `gorm:"column:last_name" json:"last_name,omitempty"`
	Headline              *string    `gorm:"column:headline;type:text" json:"headline,omitempty"`
	LocationID            *uuid.UUID `gorm:"type:uuid;column:location_id;index" json:"location_id,omitempty"`
	CurrentOrganizationID *uuid.UUID `gorm:"type:uuid;column:current_organization_id;index" json:"current_organization_id,omitempty"`
	ProfilePictureURL     *string    `gorm:"column:profile_picture_url;type:text" json:"profile_picture_url,omitempty"`
	CreatedAt             time.Time  `gorm:"not null;index" json:"created_at"`
	UpdatedAt             time.Time  `gorm:"not null" json:"updated_at"`
}

func (Person) TableName() string { return "person" }

func (p *Person) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// PersonProject records how a person entered a project's scope.
type PersonProject struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	PersonID    uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_person_project" json:"person_id"`
	ProjectID   uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_person_project;index" json:"project_id"`
	Source      string     `gorm:"column:source;not null" json:"source"`
	AddedAt     time.Time  `gorm:"column:added_at;not null" json:"added_at"`
	ModuleRunID *uuid.UUID `gorm:"type:uuid;column:module_run_id;index" json:"module_run_id,omitempty"`
}

func (PersonProject) TableName() string { return "person_project" }

func (pp *PersonProject) BeforeCreate(tx *gorm.DB) error {
	if pp.ID == uuid.Nil {
		pp.ID = uuid.New()
	}
	if pp.AddedAt.IsZero() {
		pp.AddedAt = time.Now().UTC()
	}
	return nil
}

const (
	PersonSourceFlowTrigger  = "flow_trigger"
	PersonSourcePeopleSearch = "people_search"
)
