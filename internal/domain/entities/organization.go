package entities

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Organization dedup priority: LinkedIn company id, then domain, then name+location.
type Organization struct {
	ID                uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	LinkedinCompanyID *string    `gorm:"column:linkedin_company_id;uniqueIndex" json:"linkedin_company_id,omitempty"`
	Domain            *string    `gorm:"column:domain;index" json:"domain,omitempty"`
	Name              string     `gorm:"column:name;not null" json:"name"`
	NameKey           string     `gorm:"column:name_key;not null;index" json:"name_key"`
	LinkedinURL       *string    `gorm:"column:linkedin_url" json:"linkedin_url,omitempty"`
	Industry          *string    `gorm:"column:industry" json:"industry,omitempty"`
	LocationID        *uuid.UUID `gorm:"type:uuid;column:location_id;index" json:"location_id,omitempty"`
	CreatedAt         time.Time  `gorm:"not null;index" json:"created_at"`
	UpdatedAt         time.Time  `gorm:"not null" json:"updated_at"`
}

func (Organization) TableName() string { return "organization" }

func (o *Organization) BeforeCreate(tx *gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}

// Location is keyed by the normalized "country|region|city" string.
type Location struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Key       string    `gorm:"column:location_key;not null;uniqueIndex" json:"key"`
	Country   *string   `gorm:"column:country" json:"country,omitempty"`
	Region    *string   `gorm:"column:region" json:"region,omitempty"`
	City      *string   `gorm:"column:city" json:"city,omitempty"`
	Raw       string    `gorm:"column:raw;type:text" json:"raw"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

func (Location) TableName() string { return "location" }

func (l *Location) BeforeCreate(tx *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}
