package db

import (
	"gorm.io/gorm"

	types "github.com/yungbote/talentgraph-backend/internal/domain"
	"github.com/yungbote/talentgraph-backend/internal/pkg/errors"
)

func AutoMigrateAll(db *gorm.DB) error {
	if err := db.AutoMigrate(types.AllModels()...); err != nil {
		return errors.Wrap(err, "automigrate")
	}
	return EnsureIndexes(db)
}

// EnsureIndexes creates partial indexes AutoMigrate cannot express.
// Both postgres and sqlite accept the syntax.
func EnsureIndexes(db *gorm.DB) error {
	stmts := []struct {
		name string
		sql  string
	}{
		{"idx_claim_active", `CREATE INDEX IF NOT EXISTS idx_claim_active ON claim(project_id, person_id, claim_type, group_key) WHERE superseded_at IS NULL`},
		{"idx_document_valid", `CREATE INDEX IF NOT EXISTS idx_document_valid ON document(project_id, person_id, source, kind, captured_at) WHERE is_valid`},
		{"idx_job_run_runnable", `CREATE INDEX IF NOT EXISTS idx_job_run_runnable ON job_run(status, created_at)`},
	}
	for _, st := range stmts {
		if err := db.Exec(st.sql).Error; err != nil {
			return errors.Wrapf(err, "create %s", st.name)
		}
	}
	return nil
}
