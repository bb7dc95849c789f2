package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/codeready-toolchain/dcm/ent"
	"github.com/codeready-toolchain/dcm/ent/request"
	"github.com/codeready-toolchain/dcm/ent/session"
	"github.com/codeready-toolchain/dcm/pkg/database"
	"github.com/codeready-toolchain/dcm/pkg/events"
)

// SessionService manages sessions — opaque, caller-supplied identifiers
// that group requests over a connected agent's lifetime (spec §6.7).
type SessionService struct {
	db  *database.Client
	pub *events.Publisher
}

// NewSessionService creates a new SessionService.
func NewSessionService(db *database.Client, pub *events.Publisher) *SessionService {
	return &SessionService{db: db, pub: pub}
}

// CreateSession creates a session if it doesn't already exist; an existing
// session with the same id is returned unchanged.
func (s *SessionService) CreateSession(ctx context.Context, id string) (*ent.Session, error) {
	if id == "" {
		return nil, NewValidationError("id", "required")
	}

	var out *ent.Session
	err := s.db.WithTx(ctx, func(ctx context.Context, tx *sql.Tx, tc *ent.Client) error {
		existing, err := tc.Session.Get(ctx, id)
		if err == nil {
			out = existing
			return nil
		}
		if !ent.IsNotFound(err) {
			return fmt.Errorf("failed to query session: %w", err)
		}

		created, err := tc.Session.Create().SetID(id).Save(ctx)
		if err != nil {
			if ent.IsConstraintError(err) {
				return ErrAlreadyExists
			}
			return fmt.Errorf("failed to create session: %w", err)
		}
		out = created

		return s.pub.Publish(ctx, tx, events.GlobalChannel, "session.created", map[string]any{"id": id})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetSession retrieves a session by id.
func (s *SessionService) GetSession(ctx context.Context, id string) (*ent.Session, error) {
	sess, err := s.db.Session.Get(ctx, id)
	if err != nil {
		if ent.IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return sess, nil
}

// EndSession stamps ended_at, idempotent once already ended.
func (s *SessionService) EndSession(ctx context.Context, id string) error {
	return s.db.WithTx(ctx, func(ctx context.Context, tx *sql.Tx, tc *ent.Client) error {
		sess, err := tc.Session.Get(ctx, id)
		if err != nil {
			if ent.IsNotFound(err) {
				return ErrNotFound
			}
			return fmt.Errorf("failed to get session: %w", err)
		}
		if sess.EndedAt != nil {
			return nil
		}

		if err := tc.Session.UpdateOneID(id).SetEndedAt(time.Now()).Exec(ctx); err != nil {
			return fmt.Errorf("failed to end session: %w", err)
		}
		return s.pub.Publish(ctx, tx, events.GlobalChannel, "session.ended", map[string]any{"id": id})
	})
}

// ListActiveSessions returns sessions that have not yet ended.
func (s *SessionService) ListActiveSessions(ctx context.Context) ([]*ent.Session, error) {
	sessions, err := s.db.Session.Query().
		Where(session.EndedAtIsNil()).
		Order(ent.Desc(session.FieldStartedAt)).
		All(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list active sessions: %w", err)
	}
	return sessions, nil
}

// SessionStats aggregates dashboard KPIs for a session (spec §6.6
// "/stats"): total requests, total subtasks by status.
type SessionStats struct {
	SessionID      string         `json:"session_id"`
	RequestCount   int            `json:"request_count"`
	SubtasksByStat map[string]int `json:"subtasks_by_status"`
}

// GetSessionStats computes SessionStats for one session.
func (s *SessionService) GetSessionStats(ctx context.Context, id string) (*SessionStats, error) {
	if _, err := s.GetSession(ctx, id); err != nil {
		return nil, err
	}

	rows, err := s.db.DB().QueryContext(ctx, `
		SELECT st.status, count(*)
		FROM subtasks st
		JOIN task_lists tl ON tl.id = st.task_list_id
		WHERE tl.session_id = $1
		GROUP BY st.status`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate subtask stats: %w", err)
	}
	defer rows.Close()

	byStatus := map[string]int{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan subtask stats row: %w", err)
		}
		byStatus[status] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	reqCount, err := s.db.Request.Query().Where(request.SessionIDEQ(id)).Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count requests: %w", err)
	}

	return &SessionStats{SessionID: id, RequestCount: reqCount, SubtasksByStat: byStatus}, nil
}
