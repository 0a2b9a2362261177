package migrations

import (
	"gorm.io/gorm"
)

// AddPipelineIndexes creates the indexes the pipeline's hot queries rely on.
func AddPipelineIndexes(db *gorm.DB) error {
	// Raw SQL for index creation to control index composition
	indexes := []string{
		// Status filtering drives the escalation sweep and the processor guard
		`CREATE INDEX IF NOT EXISTS idx_records_status
		 ON records(status)`,

		// Composite index for the overdue-refund query
		`CREATE INDEX IF NOT EXISTS idx_records_pipeline_status_initiated
		 ON records(pipeline, status, initiated_at)`,

		// Auction lookups from collaborators
		`CREATE INDEX IF NOT EXISTS idx_records_auction_id
		 ON records(auction_id)`,

		// User-facing record listings filter on either side of the transfer
		`CREATE INDEX IF NOT EXISTS idx_records_payer_id
		 ON records(payer_id)`,
		`CREATE INDEX IF NOT EXISTS idx_records_payee_id
		 ON records(payee_id)`,

		// Rule matching loads active rules per pipeline ordered by priority
		`CREATE INDEX IF NOT EXISTS idx_rules_pipeline_active_priority
		 ON rules(pipeline, active, priority)`,
	}

	for _, idx := range indexes {
		if err := db.Exec(idx).Error; err != nil {
			return err
		}
	}

	return nil
}
