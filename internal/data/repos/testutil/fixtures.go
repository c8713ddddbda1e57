package testutil

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/talentgraph-backend/internal/domain"
	"github.com/yungbote/talentgraph-backend/internal/domain/modules"
)

func SeedProject(tb testing.TB, ctx context.Context, tx *gorm.DB, name string) *types.Project {
	tb.Helper()
	p := &types.Project{ID: uuid.New(), Name: name}
	if err := tx.WithContext(ctx).Create(p).Error; err != nil {
		tb.Fatalf("seed project: %v", err)
	}
	return p
}

func SeedPerson(tb testing.TB, ctx context.Context, tx *gorm.DB, linkedinURL string) *types.Person {
	tb.Helper()
	p := &types.Person{ID: uuid.New(), LinkedinURL: linkedinURL}
	if err := tx.WithContext(ctx).Create(p).Error; err != nil {
		tb.Fatalf("seed person: %v", err)
	}
	return p
}

func AttachPerson(tb testing.TB, ctx context.Context, tx *gorm.DB, projectID, personID uuid.UUID) *types.PersonProject {
	tb.Helper()
	pp := &types.PersonProject{PersonID: personID, ProjectID: projectID, Source: "test"}
	if err := tx.WithContext(ctx).Create(pp).Error; err != nil {
		tb.Fatalf("attach person: %v", err)
	}
	return pp
}

// SeedProjectPerson creates a project with one attached person.
func SeedProjectPerson(tb testing.TB, ctx context.Context, tx *gorm.DB) (*types.Project, *types.Person) {
	tb.Helper()
	project := SeedProject(tb, ctx, tx, "project")
	person := SeedPerson(tb, ctx, tx, "https://linkedin.com/in/"+uuid.NewString()[:8])
	AttachPerson(tb, ctx, tx, project.ID, person.ID)
	return project, person
}

func SeedModule(tb testing.TB, ctx context.Context, tx *gorm.DB, key, version string, kind modules.Kind, enabled bool) *types.Module {
	tb.Helper()
	m := &types.Module{Key: key, Version: version, Kind: kind, Enabled: enabled}
	if err := tx.WithContext(ctx).Create(m).Error; err != nil {
		tb.Fatalf("seed module: %v", err)
	}
	return m
}
