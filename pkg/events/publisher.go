package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// Publisher writes domain events to dcm_events and fires pg_notify in the
// same transaction as the write it accompanies, so a NOTIFY is never
// observed before the row it describes is visible to other readers.
type Publisher struct {
	db *sql.DB
}

// NewPublisher creates a Publisher. db should be database.Client.DB().
func NewPublisher(db *sql.DB) *Publisher {
	return &Publisher{db: db}
}

// Publish persists an event and notifies listeners, inside the given
// transaction. Call this from a service method that is already inside a
// unit-of-work transaction so the event becomes visible exactly when the
// write it describes commits — never before, never if the write rolls
// back.
func (p *Publisher) Publish(ctx context.Context, tx *sql.Tx, channel, event string, data map[string]any) error {
	if data == nil {
		data = map[string]any{}
	}
	dataJSON, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	var sequenceID int64
	if err := tx.QueryRowContext(ctx,
		`INSERT INTO dcm_events (channel, event_type, payload) VALUES ($1, $2, $3) RETURNING sequence_id`,
		channel, event, dataJSON,
	).Scan(&sequenceID); err != nil {
		return fmt.Errorf("failed to persist event: %w", err)
	}

	// The NOTIFY payload only ever carries the sequence_id: listeners fetch
	// the full row themselves, so there's no risk of hitting Postgres's
	// 8000-byte NOTIFY payload limit regardless of how large data grows.
	notifyPayload, err := json.Marshal(map[string]any{"sequence_id": sequenceID})
	if err != nil {
		return fmt.Errorf("failed to marshal notify payload: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "SELECT pg_notify($1, $2)", pgChannel, notifyPayload); err != nil {
		return fmt.Errorf("pg_notify failed: %w", err)
	}

	return nil
}

// PublishNow opens its own single-statement transaction. Use this for
// events with no accompanying domain write (e.g. the periodic metrics
// broadcast).
func (p *Publisher) PublishNow(ctx context.Context, channel, event string, data map[string]any) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := p.Publish(ctx, tx, channel, event, data); err != nil {
		return err
	}
	return tx.Commit()
}

// FetchEnvelope loads a persisted event by sequence id, used both by the
// NOTIFY dispatch path (to recover the full payload from the small NOTIFY
// message) and by catch-up delivery.
func (p *Publisher) FetchEnvelope(ctx context.Context, sequenceID int64) (*Envelope, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT sequence_id, channel, event_type, payload, created_at FROM dcm_events WHERE sequence_id = $1`,
		sequenceID)
	return scanEnvelope(row)
}

// CatchupSince returns events on channel with sequence_id > sinceID, in
// order, capped at limit rows; the gateway asks for one more than its
// catch-up limit so it can detect overflow.
func (p *Publisher) CatchupSince(ctx context.Context, channel string, sinceID int64, limit int) ([]Envelope, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT sequence_id, channel, event_type, payload, created_at
		 FROM dcm_events WHERE channel = $1 AND sequence_id > $2
		 ORDER BY sequence_id ASC LIMIT $3`,
		channel, sinceID, limit)
	if err != nil {
		return nil, fmt.Errorf("catchup query failed: %w", err)
	}
	defer rows.Close()

	var out []Envelope
	for rows.Next() {
		var (
			env        Envelope
			payloadRaw []byte
		)
		if err := rows.Scan(&env.SequenceID, &env.Channel, &env.Event, &payloadRaw, &env.CreatedAt); err != nil {
			return nil, fmt.Errorf("catchup scan failed: %w", err)
		}
		if err := json.Unmarshal(payloadRaw, &env.Data); err != nil {
			return nil, fmt.Errorf("catchup payload decode failed: %w", err)
		}
		out = append(out, env)
	}
	return out, rows.Err()
}

type scannable interface {
	Scan(dest ...any) error
}

func scanEnvelope(row scannable) (*Envelope, error) {
	var (
		env        Envelope
		payloadRaw []byte
	)
	if err := row.Scan(&env.SequenceID, &env.Channel, &env.Event, &payloadRaw, &env.CreatedAt); err != nil {
		return nil, fmt.Errorf("failed to fetch event: %w", err)
	}
	if err := json.Unmarshal(payloadRaw, &env.Data); err != nil {
		return nil, fmt.Errorf("failed to decode event payload: %w", err)
	}
	return &env, nil
}
