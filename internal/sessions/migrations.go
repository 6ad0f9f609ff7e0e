package sessions

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"
)

// SessionIndexes are the secondary indexes backing the dequeue scan and the
// per-campaign metrics queries.
var SessionIndexes = []string{
	"CREATE INDEX IF NOT EXISTS idx_sessions_queue_entry_time ON sessions(queue_entry_time) WHERE session_end_time IS NULL AND conversation_start_time IS NULL",
	"CREATE INDEX IF NOT EXISTS idx_sessions_campaign_banner ON sessions(campaign_id, banner_id)",
}

// CreateTables creates the sessions table if it does not exist
func CreateTables(ctx context.Context, db *bun.DB) error {
	_, err := db.NewCreateTable().
		Model((*SessionSchema)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create sessions table: %w", err)
	}

	return nil
}

// CreateIndexes creates the secondary indexes for the sessions table
func CreateIndexes(ctx context.Context, db *bun.DB) error {
	for _, indexSQL := range SessionIndexes {
		_, err := db.ExecContext(ctx, indexSQL)
		if err != nil {
			return fmt.Errorf("failed to create index with SQL %q: %w", indexSQL, err)
		}
	}

	return nil
}
