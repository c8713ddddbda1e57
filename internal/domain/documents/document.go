package documents

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	SourceLinkedin = "linkedin"
	SourceApify    = "apify"

	KindProfile          = "profile"
	KindPosts            = "posts"
	KindPeopleSearch     = "people_search"
	KindPeopleSearchItem = "people_search_item"
)

// InvalidatedMeta records why a document stopped (or resumed) being valid.
type InvalidatedMeta struct {
	Reason           string     `json:"reason,omitempty"`
	SupersededBy     *uuid.UUID `json:"supersededBy,omitempty"`
	InvalidatedAt    *time.Time `json:"invalidatedAt,omitempty"`
	RevalidatedAt    *time.Time `json:"revalidatedAt,omitempty"`
	RevalidateReason string     `json:"revalidateReason,omitempty"`
}

// Document is an immutable captured payload. Only IsValid and
// InvalidatedMeta change after insert.
type Document struct {
	ID              uuid.UUID                            `gorm:"type:uuid;primaryKey" json:"id"`
	ProjectID       uuid.UUID                            `gorm:"type:uuid;column:project_id;not null;index:idx_document_latest,priority:1" json:"project_id"`
	PersonID        *uuid.UUID                           `gorm:"type:uuid;column:person_id;index:idx_document_latest,priority:2" json:"person_id,omitempty"`
	Source          string                               `gorm:"column:source;not null;index:idx_document_latest,priority:3" json:"source"`
	Kind            string                               `gorm:"column:kind;not null;index:idx_document_latest,priority:4" json:"kind"`
	SourceRef       string                               `gorm:"column:source_ref" json:"source_ref,omitempty"`
	ContentType     string                               `gorm:"column:content_type;not null" json:"content_type"`
	StorageURI      *string                              `gorm:"column:storage_uri" json:"storage_uri,omitempty"`
	Hash            string                               `gorm:"column:hash;not null;index" json:"hash"`
	CapturedAt      time.Time                            `gorm:"column:captured_at;not null" json:"captured_at"`
	IsValid         bool                                 `gorm:"column:is_valid;not null;index" json:"is_valid"`
	InvalidatedMeta *datatypes.JSONType[InvalidatedMeta] `gorm:"column:invalidated_meta;type:jsonb" json:"invalidated_meta,omitempty"`
	ModuleRunID     *uuid.UUID                           `gorm:"type:uuid;column:module_run_id;index" json:"module_run_id,omitempty"`
	Payload         datatypes.JSON                       `gorm:"column:payload;type:jsonb" json:"payload"`
	CreatedAt       time.Time                            `gorm:"not null" json:"created_at"`
}

func (Document) TableName() string { return "document" }

func (d *Document) BeforeCreate(tx *gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	if d.ContentType == "" {
		d.ContentType = "application/json"
	}
	return nil
}

// Meta returns the invalidation metadata, zero when absent.
func (d *Document) Meta() InvalidatedMeta {
	if d == nil || d.InvalidatedMeta == nil {
		return InvalidatedMeta{}
	}
	return d.InvalidatedMeta.Data()
}
