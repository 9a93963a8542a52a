package db

import (
	"fmt"

	types "github.com/trialworks/ars-backend/internal/domain"
	"gorm.io/gorm"
)

func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(

		// =========================
		// Reporting events
		// =========================
		&types.ReportingEvent{},

		// =========================
		// Version control
		// =========================
		&types.Version{},
		&types.Branch{},
		&types.MergeRequest{},
		&types.ConflictResolution{},

		// =========================
		// Audit trail
		// =========================
		&types.ChangeLog{},
	)
}

func EnsureVersioningIndexes(db *gorm.DB) error {
	// uuid-ossp is already enabled in NewPostgresService, but safe to re-run
	if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`).Error; err != nil {
		return fmt.Errorf("enable uuid-ossp: %w", err)
	}

	// Branch names are unique per document among live rows only, so a deleted
	// branch's name can be reused.
	if err := db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_document_branch_doc_name
		ON document_branch (document_id, name)
		WHERE deleted_at IS NULL;
	`).Error; err != nil {
		return fmt.Errorf("create idx_document_branch_doc_name: %w", err)
	}

	// At most one current version per branch.
	if err := db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_document_version_one_current
		ON document_version (branch_id)
		WHERE is_current AND deleted_at IS NULL;
	`).Error; err != nil {
		return fmt.Errorf("create idx_document_version_one_current: %w", err)
	}

	// Fast version listing per document.
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_document_version_doc_created
		ON document_version (document_id, created_at DESC);
	`).Error; err != nil {
		return fmt.Errorf("create idx_document_version_doc_created: %w", err)
	}

	// Fast merge request listing per document.
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_merge_request_doc_status_created
		ON merge_request (document_id, status, created_at DESC);
	`).Error; err != nil {
		return fmt.Errorf("create idx_merge_request_doc_status_created: %w", err)
	}

	// Audit trail pagination per document.
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_change_log_doc_created
		ON change_log (document_id, created_at DESC);
	`).Error; err != nil {
		return fmt.Errorf("create idx_change_log_doc_created: %w", err)
	}

	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_change_log_doc_action_created
		ON change_log (document_id, action, created_at DESC);
	`).Error; err != nil {
		return fmt.Errorf("create idx_change_log_doc_action_created: %w", err)
	}

	return nil
}

func (s *PostgresService) AutoMigrateAll() error {
	s.log.Info("Auto migrating postgres tables...")
	if err := AutoMigrateAll(s.db); err != nil {
		s.log.Error("Auto migration failed", "error", err)
		return err
	}
	if err := EnsureVersioningIndexes(s.db); err != nil {
		s.log.Error("Versioning index migration failed", "error", err)
		return err
	}

	return nil
}
