package services

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/codeready-toolchain/dcm/ent"
	"github.com/codeready-toolchain/dcm/ent/tasklist"
	"github.com/codeready-toolchain/dcm/pkg/database"
	"github.com/codeready-toolchain/dcm/pkg/events"
	"github.com/google/uuid"
)

// TaskListService manages task lists (waves): ordered groups of subtasks
// within a request. The Wave Controller (pkg/wave) owns the
// (session, wave_number) state machine that sits on top of these rows.
type TaskListService struct {
	db  *database.Client
	pub *events.Publisher
}

// NewTaskListService creates a new TaskListService.
func NewTaskListService(db *database.Client, pub *events.Publisher) *TaskListService {
	return &TaskListService{db: db, pub: pub}
}

// CreateTaskListRequest is the input to CreateTaskList.
type CreateTaskListRequest struct {
	RequestID  uuid.UUID `json:"request_id"`
	SessionID  string    `json:"session_id"`
	WaveNumber int       `json:"wave_number"`
}

// CreateTaskList creates a task list (wave) under an existing request.
// Idempotent on (session_id, wave_number): a second call for the same pair
// returns the existing row rather than erroring.
func (s *TaskListService) CreateTaskList(ctx context.Context, req CreateTaskListRequest) (*ent.TaskList, error) {
	if req.RequestID == uuid.Nil {
		return nil, NewValidationError("request_id", "required")
	}
	if req.SessionID == "" {
		return nil, NewValidationError("session_id", "required")
	}
	if req.WaveNumber < 0 {
		return nil, NewValidationError("wave_number", "must be >= 0")
	}

	var out *ent.TaskList
	err := s.db.WithTx(ctx, func(ctx context.Context, tx *sql.Tx, tc *ent.Client) error {
		existing, err := tc.TaskList.Query().
			Where(tasklist.SessionIDEQ(req.SessionID), tasklist.WaveNumberEQ(req.WaveNumber)).
			Only(ctx)
		if err == nil {
			out = existing
			return nil
		}
		if !ent.IsNotFound(err) {
			return fmt.Errorf("failed to query task list: %w", err)
		}

		created, err := tc.TaskList.Create().
			SetRequestID(req.RequestID).
			SetSessionID(req.SessionID).
			SetWaveNumber(req.WaveNumber).
			Save(ctx)
		if err != nil {
			if ent.IsConstraintError(err) {
				return ErrAlreadyExists
			}
			return fmt.Errorf("failed to create task list: %w", err)
		}
		out = created

		return s.pub.Publish(ctx, tx, events.SessionChannel(req.SessionID), "task.created", map[string]any{
			"id":          created.ID.String(),
			"request_id":  created.RequestID.String(),
			"wave_number": created.WaveNumber,
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetTaskList retrieves a task list by id.
func (s *TaskListService) GetTaskList(ctx context.Context, id string) (*ent.TaskList, error) {
	uid, err := parseUUID(id)
	if err != nil {
		return nil, NewValidationError("id", "must be a UUID")
	}
	tl, err := s.db.TaskList.Get(ctx, uid)
	if err != nil {
		if ent.IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get task list: %w", err)
	}
	return tl, nil
}

// ListTaskListsByRequest returns every task list under a request, ordered
// by wave number.
func (s *TaskListService) ListTaskListsByRequest(ctx context.Context, requestID uuid.UUID) ([]*ent.TaskList, error) {
	lists, err := s.db.TaskList.Query().
		Where(tasklist.RequestIDEQ(requestID)).
		Order(ent.Asc(tasklist.FieldWaveNumber)).
		All(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list task lists: %w", err)
	}
	return lists, nil
}
