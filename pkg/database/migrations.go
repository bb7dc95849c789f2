package database

import (
	"context"
	"fmt"

	"entgo.io/ent/dialect/sql"
)

// CreateGINIndexes creates the GIN indexes that ent's schema DSL has no
// vocabulary for: a full-text index on subtask descriptions and a
// jsonb_path_ops index on message payloads.
func CreateGINIndexes(ctx context.Context, driver *sql.Driver) error {
	db := driver.DB()

	_, err := db.ExecContext(ctx,
		`CREATE INDEX IF NOT EXISTS idx_subtasks_description_gin
		ON subtasks USING gin(to_tsvector('english', description))`)
	if err != nil {
		return fmt.Errorf("failed to create subtasks description GIN index: %w", err)
	}

	_, err = db.ExecContext(ctx,
		`CREATE INDEX IF NOT EXISTS idx_agent_messages_payload_gin
		ON agent_messages USING gin(payload jsonb_path_ops)`)
	if err != nil {
		return fmt.Errorf("failed to create agent_messages payload GIN index: %w", err)
	}

	return nil
}
