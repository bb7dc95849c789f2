package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/codeready-toolchain/dcm/ent"
	"github.com/codeready-toolchain/dcm/ent/action"
	"github.com/codeready-toolchain/dcm/pkg/database"
	"github.com/codeready-toolchain/dcm/pkg/events"
	"github.com/google/uuid"
)

// ActionService manages actions: tool invocations recorded against a
// subtask.
type ActionService struct {
	db  *database.Client
	pub *events.Publisher
}

// NewActionService creates a new ActionService.
func NewActionService(db *database.Client, pub *events.Publisher) *ActionService {
	return &ActionService{db: db, pub: pub}
}

// CreateActionRequest is the input to CreateAction.
type CreateActionRequest struct {
	SubtaskID     uuid.UUID         `json:"subtask_id"`
	ToolName      string            `json:"tool_name"`
	ToolKind      action.ToolKind   `json:"tool_kind"`
	Input         []byte            `json:"input,omitempty"`
	Output        []byte            `json:"output,omitempty"`
	ExitCode      *int              `json:"exit_code,omitempty"`
	DurationMs    int               `json:"duration_ms,omitempty"`
	AffectedPaths []string          `json:"affected_paths,omitempty"`
}

// CreateAction records a completed tool invocation.
func (s *ActionService) CreateAction(ctx context.Context, req CreateActionRequest) (*ent.Action, error) {
	if req.SubtaskID == uuid.Nil {
		return nil, NewValidationError("subtask_id", "required")
	}
	if req.ToolName == "" {
		return nil, NewValidationError("tool_name", "required")
	}
	if err := action.ToolKindValidator(req.ToolKind); err != nil {
		return nil, NewValidationError("tool_kind", err.Error())
	}

	var out *ent.Action
	err := s.db.WithTx(ctx, func(ctx context.Context, tx *sql.Tx, tc *ent.Client) error {
		builder := tc.Action.Create().
			SetSubtaskID(req.SubtaskID).
			SetToolName(req.ToolName).
			SetToolKind(req.ToolKind).
			SetDurationMs(req.DurationMs)
		if req.Input != nil {
			builder = builder.SetInput(req.Input)
		}
		if req.Output != nil {
			builder = builder.SetOutput(req.Output)
		}
		if req.ExitCode != nil {
			builder = builder.SetExitCode(*req.ExitCode)
		}
		if len(req.AffectedPaths) > 0 {
			builder = builder.SetAffectedPaths(req.AffectedPaths)
		}

		created, err := builder.Save(ctx)
		if err != nil {
			if ent.IsNotFound(err) {
				return fmt.Errorf("%w: subtask_id", ErrNotFound)
			}
			return fmt.Errorf("failed to create action: %w", err)
		}
		out = created

		return s.pub.Publish(ctx, tx, events.GlobalChannel, "task.updated", map[string]any{
			"action_id":  created.ID.String(),
			"subtask_id": created.SubtaskID.String(),
			"tool_name":  created.ToolName,
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetAction retrieves an action by id.
func (s *ActionService) GetAction(ctx context.Context, id string) (*ent.Action, error) {
	uid, err := parseUUID(id)
	if err != nil {
		return nil, NewValidationError("id", "must be a UUID")
	}
	a, err := s.db.Action.Get(ctx, uid)
	if err != nil {
		if ent.IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get action: %w", err)
	}
	return a, nil
}

// ListActionsBySubtask returns every action recorded against a subtask, in
// chronological order.
func (s *ActionService) ListActionsBySubtask(ctx context.Context, subtaskID uuid.UUID) ([]*ent.Action, error) {
	actions, err := s.db.Action.Query().
		Where(action.SubtaskIDEQ(subtaskID)).
		Order(ent.Asc(action.FieldCreatedAt)).
		All(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list actions: %w", err)
	}
	return actions, nil
}

// HourlyActionCount is one bucket of the hourly action-rate aggregate.
type HourlyActionCount struct {
	Hour  time.Time `json:"hour"`
	Count int       `json:"count"`
}

// HourlyActionCounts aggregates actions per hour over the last n hours,
// backing the dashboard's actions-per-minute KPI (spec §6.6 "/hourly").
func (s *ActionService) HourlyActionCounts(ctx context.Context, hours int) ([]HourlyActionCount, error) {
	if hours <= 0 {
		hours = 24
	}
	since := time.Now().Add(-time.Duration(hours) * time.Hour)

	rows, err := s.db.DB().QueryContext(ctx,
		`SELECT date_trunc('hour', created_at) AS hour, count(*)
		 FROM actions WHERE created_at >= $1
		 GROUP BY hour ORDER BY hour ASC`, since)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate hourly action counts: %w", err)
	}
	defer rows.Close()

	var out []HourlyActionCount
	for rows.Next() {
		var bucket HourlyActionCount
		if err := rows.Scan(&bucket.Hour, &bucket.Count); err != nil {
			return nil, fmt.Errorf("failed to scan hourly action count: %w", err)
		}
		out = append(out, bucket)
	}
	return out, rows.Err()
}
