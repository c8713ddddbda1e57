package repos

import (
	"gorm.io/gorm"

	"github.com/yungbote/talentgraph-backend/internal/data/repos/claims"
	"github.com/yungbote/talentgraph-backend/internal/data/repos/documents"
	"github.com/yungbote/talentgraph-backend/internal/data/repos/entities"
	"github.com/yungbote/talentgraph-backend/internal/data/repos/flows"
	"github.com/yungbote/talentgraph-backend/internal/data/repos/jobs"
	"github.com/yungbote/talentgraph-backend/internal/data/repos/modules"
	"github.com/yungbote/talentgraph-backend/internal/data/repos/snapshots"
	"github.com/yungbote/talentgraph-backend/internal/pkg/logger"
)

type ProjectRepo = entities.ProjectRepo
type PersonRepo = entities.PersonRepo
type PersonProjectRepo = entities.PersonProjectRepo
type OrganizationRepo = entities.OrganizationRepo
type LocationRepo = entities.LocationRepo
type DiscoveryRunItemRepo = entities.DiscoveryRunItemRepo

type DocumentRepo = documents.DocumentRepo
type ClaimRepo = claims.ClaimRepo
type ClaimKey = claims.Key

type ModuleRepo = modules.ModuleRepo
type ModuleRunRepo = modules.ModuleRunRepo

type FlowRunRepo = flows.FlowRunRepo
type FlowSetRepo = flows.FlowSetRepo

type LayerSnapshotRepo = snapshots.LayerSnapshotRepo

type JobRunRepo = jobs.JobRunRepo

func NewProjectRepo(db *gorm.DB, baseLog *logger.Logger) ProjectRepo {
	return entities.NewProjectRepo(db, baseLog)
}
func NewPersonRepo(db *gorm.DB, baseLog *logger.Logger) PersonRepo {
	return entities.NewPersonRepo(db, baseLog)
}
func NewPersonProjectRepo(db *gorm.DB, baseLog *logger.Logger) PersonProjectRepo {
	return entities.NewPersonProjectRepo(db, baseLog)
}
func NewOrganizationRepo(db *gorm.DB, baseLog *logger.Logger) OrganizationRepo {
	return entities.NewOrganizationRepo(db, baseLog)
}
func NewLocationRepo(db *gorm.DB, baseLog *logger.Logger) LocationRepo {
	return entities.NewLocationRepo(db, baseLog)
}
func NewDiscoveryRunItemRepo(db *gorm.DB, baseLog *logger.Logger) DiscoveryRunItemRepo {
	return entities.NewDiscoveryRunItemRepo(db, baseLog)
}

func NewDocumentRepo(db *gorm.DB, baseLog *logger.Logger) DocumentRepo {
	return documents.NewDocumentRepo(db, baseLog)
}
func NewClaimRepo(db *gorm.DB, baseLog *logger.Logger) ClaimRepo {
	return claims.NewClaimRepo(db, baseLog)
}

func NewModuleRepo(db *gorm.DB, baseLog *logger.Logger) ModuleRepo {
	return modules.NewModuleRepo(db, baseLog)
}
func NewModuleRunRepo(db *gorm.DB, baseLog *logger.Logger) ModuleRunRepo {
	return modules.NewModuleRunRepo(db, baseLog)
}

func NewFlowRunRepo(db *gorm.DB, baseLog *logger.Logger) FlowRunRepo {
	return flows.NewFlowRunRepo(db, baseLog)
}
func NewFlowSetRepo(db *gorm.DB, baseLog *logger.Logger) FlowSetRepo {
	return flows.NewFlowSetRepo(db, baseLog)
}

func NewLayerSnapshotRepo(db *gorm.DB, baseLog *logger.Logger) LayerSnapshotRepo {
	return snapshots.NewLayerSnapshotRepo(db, baseLog)
}

func NewJobRunRepo(db *gorm.DB, baseLog *logger.Logger) JobRunRepo {
	return jobs.NewJobRunRepo(db, baseLog)
}

// Set bundles every repository over one database handle.
type Set struct {
	Project          ProjectRepo
	Person           PersonRepo
	PersonProject    PersonProjectRepo
	Organization     OrganizationRepo
	Location         LocationRepo
	DiscoveryRunItem DiscoveryRunItemRepo
	Document         DocumentRepo
	Claim            ClaimRepo
	Module           ModuleRepo
	ModuleRun        ModuleRunRepo
	FlowRun          FlowRunRepo
	FlowSet          FlowSetRepo
	LayerSnapshot    LayerSnapshotRepo
	JobRun           JobRunRepo
}

func NewSet(db *gorm.DB, baseLog *logger.Logger) Set {
	return Set{
		Project:          NewProjectRepo(db, baseLog),
		Person:           NewPersonRepo(db, baseLog),
		PersonProject:    NewPersonProjectRepo(db, baseLog),
		Organization:     NewOrganizationRepo(db, baseLog),
		Location:         NewLocationRepo(db, baseLog),
		DiscoveryRunItem: NewDiscoveryRunItemRepo(db, baseLog),
		Document:         NewDocumentRepo(db, baseLog),
		Claim:            NewClaimRepo(db, baseLog),
		Module:           NewModuleRepo(db, baseLog),
		ModuleRun:        NewModuleRunRepo(db, baseLog),
		FlowRun:          NewFlowRunRepo(db, baseLog),
		FlowSet:          NewFlowSetRepo(db, baseLog),
		LayerSnapshot:    NewLayerSnapshotRepo(db, baseLog),
		JobRun:           NewJobRunRepo(db, baseLog),
	}
}
