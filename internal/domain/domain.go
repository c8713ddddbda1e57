// Package domain re-exports the persisted model types so call sites can
// import a single package.
package domain

import (
	"github.com/google/uuid"

	"github.com/yungbote/talentgraph-backend/internal/domain/claims"
	"github.com/yungbote/talentgraph-backend/internal/domain/documents"
	"github.com/yungbote/talentgraph-backend/internal/domain/entities"
	"github.com/yungbote/talentgraph-backend/internal/domain/flows"
	"github.com/yungbote/talentgraph-backend/internal/domain/jobs"
	"github.com/yungbote/talentgraph-backend/internal/domain/modules"
	"github.com/yungbote/talentgraph-backend/internal/domain/snapshots"
)

type Subject = entities.Subject
type Project = entities.Project
type Person = entities.Person
type PersonProject = entities.PersonProject
type Organization = entities.Organization
type Location = entities.Location
type DiscoveryRunItem = entities.DiscoveryRunItem

type Document = documents.Document
type InvalidatedMeta = documents.InvalidatedMeta

type Claim = claims.Claim
type ClaimType = claims.Type
type ClaimValue = claims.Value

type Module = modules.Module
type ModuleKind = modules.Kind
type ModuleRun = modules.ModuleRun
type ModuleRunStatus = modules.RunStatus
type ModuleInputConfig = modules.InputConfig

type FlowRun = flows.FlowRun
type FlowSet = flows.FlowSet
type FlowStatus = flows.Status
type FlowStage = flows.Stage
type FlowInputSummary = flows.InputSummary
type FilterResult = flows.FilterResult
type ModuleRef = flows.ModuleRef

type LayerSnapshot = snapshots.LayerSnapshot

type JobRun = jobs.JobRun

// AllModels lists every table in migration order.
func AllModels() []any {
	return []any{
		&Project{},
		&Person{},
		&PersonProject{},
		&Organization{},
		&Location{},
		&Document{},
		&Claim{},
		&Module{},
		&ModuleRun{},
		&FlowSet{},
		&FlowRun{},
		&LayerSnapshot{},
		&DiscoveryRunItem{},
		&JobRun{},
	}
}

func PersonSubjectOf(projectID, personID uuid.UUID) Subject {
	return entities.PersonSubject(projectID, personID)
}
