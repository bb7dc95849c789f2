package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/codeready-toolchain/dcm/ent"
	"github.com/codeready-toolchain/dcm/ent/subtask"
	"github.com/codeready-toolchain/dcm/ent/tasklist"
	"github.com/codeready-toolchain/dcm/pkg/database"
	"github.com/codeready-toolchain/dcm/pkg/events"
	"github.com/google/uuid"
)

// WaveNotifier is the Wave Controller's CompleteTask operation, called
// whenever a subtask reaches a terminal state (spec §4.3 "On completed or
// failed, the service notifies the Wave Controller").
type WaveNotifier interface {
	CompleteTask(ctx context.Context, sessionID string, waveNumber int, failed bool) error
}

// subtaskTransitions enumerates every allowed status transition (spec
// §4.3 "Subtask service — detail").
var subtaskTransitions = map[subtask.Status][]subtask.Status{
	subtask.StatusPending: {subtask.StatusRunning},
	subtask.StatusRunning: {subtask.StatusPaused, subtask.StatusBlocked, subtask.StatusCompleted, subtask.StatusFailed},
	subtask.StatusPaused:  {subtask.StatusRunning, subtask.StatusFailed},
	subtask.StatusBlocked: {subtask.StatusRunning, subtask.StatusFailed},
}

func canTransition(from, to subtask.Status) bool {
	for _, allowed := range subtaskTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

func isTerminal(status subtask.Status) bool {
	return status == subtask.StatusCompleted || status == subtask.StatusFailed
}

// SubtaskService manages subtasks: units of work owned by a task list and
// assigned to an agent.
type SubtaskService struct {
	db     *database.Client
	pub    *events.Publisher
	wave   WaveNotifier
}

// NewSubtaskService creates a new SubtaskService. wave may be nil; if so,
// terminal transitions skip the Wave Controller notification (used in
// tests that exercise subtasks in isolation).
func NewSubtaskService(db *database.Client, pub *events.Publisher, wave WaveNotifier) *SubtaskService {
	return &SubtaskService{db: db, pub: pub, wave: wave}
}

// CreateSubtaskRequest is the input to CreateSubtask.
type CreateSubtaskRequest struct {
	TaskListID    uuid.UUID `json:"task_list_id"`
	Description   string    `json:"description"`
	AgentType     string    `json:"agent_type,omitempty"`
	AgentID       string    `json:"agent_id,omitempty"`
	Priority      int       `json:"priority,omitempty"`
	BlockedBy     []string  `json:"blocked_by,omitempty"`
	ParentAgentID string    `json:"parent_agent_id,omitempty"`
	BatchID       uuid.UUID `json:"batch_id,omitempty"`
}

// CreateSubtask creates a subtask under an existing task list.
func (s *SubtaskService) CreateSubtask(ctx context.Context, req CreateSubtaskRequest) (*ent.Subtask, error) {
	if req.TaskListID == uuid.Nil {
		return nil, NewValidationError("task_list_id", "required")
	}
	if req.Description == "" {
		return nil, NewValidationError("description", "required")
	}

	var out *ent.Subtask
	var sessionID string
	err := s.db.WithTx(ctx, func(ctx context.Context, tx *sql.Tx, tc *ent.Client) error {
		tl, err := tc.TaskList.Get(ctx, req.TaskListID)
		if err != nil {
			if ent.IsNotFound(err) {
				return fmt.Errorf("%w: task_list_id", ErrNotFound)
			}
			return fmt.Errorf("failed to get task list: %w", err)
		}
		sessionID = tl.SessionID

		builder := tc.Subtask.Create().
			SetTaskListID(req.TaskListID).
			SetDescription(req.Description)
		if req.AgentType != "" {
			builder = builder.SetAgentType(req.AgentType)
		}
		if req.AgentID != "" {
			builder = builder.SetAgentID(req.AgentID)
		}
		if req.Priority != 0 {
			builder = builder.SetPriority(req.Priority)
		}
		if len(req.BlockedBy) > 0 {
			builder = builder.SetBlockedBy(req.BlockedBy)
			builder = builder.SetStatus(subtask.StatusBlocked)
		}
		if req.ParentAgentID != "" {
			builder = builder.SetParentAgentID(req.ParentAgentID)
		}
		if req.BatchID != uuid.Nil {
			builder = builder.SetBatchID(req.BatchID)
		}

		created, err := builder.Save(ctx)
		if err != nil {
			return fmt.Errorf("failed to create subtask: %w", err)
		}
		out = created

		return s.pub.Publish(ctx, tx, events.SessionChannel(sessionID), "subtask.created", map[string]any{
			"id":           created.ID.String(),
			"task_list_id": created.TaskListID.String(),
			"status":       string(created.Status),
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetSubtask retrieves a subtask by id.
func (s *SubtaskService) GetSubtask(ctx context.Context, id string) (*ent.Subtask, error) {
	uid, err := parseUUID(id)
	if err != nil {
		return nil, NewValidationError("id", "must be a UUID")
	}
	st, err := s.db.Subtask.Get(ctx, uid)
	if err != nil {
		if ent.IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get subtask: %w", err)
	}
	return st, nil
}

// SubtaskFilters filters ListSubtasks.
type SubtaskFilters struct {
	TaskListID uuid.UUID
	Status     string
	AgentType  string
	ParentID   string
	Since      *time.Time
	Limit      int
	Offset     int
}

// ListSubtasks lists subtasks matching the given filters.
func (s *SubtaskService) ListSubtasks(ctx context.Context, filters SubtaskFilters) ([]*ent.Subtask, error) {
	query := s.db.Subtask.Query()

	if filters.TaskListID != uuid.Nil {
		query = query.Where(subtask.TaskListIDEQ(filters.TaskListID))
	}
	if filters.Status != "" {
		if err := subtask.StatusValidator(subtask.Status(filters.Status)); err != nil {
			return nil, NewValidationError("status", fmt.Sprintf("invalid status %q", filters.Status))
		}
		query = query.Where(subtask.StatusEQ(subtask.Status(filters.Status)))
	}
	if filters.AgentType != "" {
		query = query.Where(subtask.AgentTypeEQ(filters.AgentType))
	}
	if filters.ParentID != "" {
		query = query.Where(subtask.ParentAgentIDEQ(filters.ParentID))
	}
	if filters.Since != nil {
		query = query.Where(subtask.CreatedAtGTE(*filters.Since))
	}

	limit := filters.Limit
	if limit <= 0 {
		limit = 100
	}

	subtasks, err := query.
		Order(ent.Desc(subtask.FieldCreatedAt)).
		Limit(limit).
		Offset(max(filters.Offset, 0)).
		All(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list subtasks: %w", err)
	}
	return subtasks, nil
}

// PatchSubtaskStatus transitions a subtask's status, enforcing the status
// machine (spec §4.3). On a terminal transition it notifies the Wave
// Controller and resolves any sibling subtasks whose blocked_by included
// this one.
func (s *SubtaskService) PatchSubtaskStatus(ctx context.Context, id string, newStatus subtask.Status, result map[string]any) (*ent.Subtask, error) {
	uid, err := parseUUID(id)
	if err != nil {
		return nil, NewValidationError("id", "must be a UUID")
	}
	if err := subtask.StatusValidator(newStatus); err != nil {
		return nil, NewValidationError("status", err.Error())
	}

	var out *ent.Subtask
	var sessionID string
	var waveNumber int
	var notifyWave bool
	err = s.db.WithTx(ctx, func(ctx context.Context, tx *sql.Tx, tc *ent.Client) error {
		current, err := tc.Subtask.Get(ctx, uid)
		if err != nil {
			if ent.IsNotFound(err) {
				return ErrNotFound
			}
			return fmt.Errorf("failed to get subtask: %w", err)
		}
		if isTerminal(current.Status) {
			return fmt.Errorf("%w: subtask %s is already %s", ErrConflict, uid, current.Status)
		}
		if !canTransition(current.Status, newStatus) {
			return fmt.Errorf("%w: cannot transition subtask from %s to %s", ErrConflict, current.Status, newStatus)
		}

		update := tc.Subtask.UpdateOneID(uid).SetStatus(newStatus)
		if newStatus == subtask.StatusRunning && current.StartedAt == nil {
			update = update.SetStartedAt(time.Now())
		}
		if isTerminal(newStatus) {
			update = update.SetCompletedAt(time.Now())
		}
		if result != nil {
			update = update.SetResult(result)
		}

		updated, err := update.Save(ctx)
		if err != nil {
			return fmt.Errorf("failed to update subtask status: %w", err)
		}
		out = updated

		tl, err := tc.TaskList.Get(ctx, updated.TaskListID)
		if err != nil {
			return fmt.Errorf("failed to load owning task list: %w", err)
		}
		sessionID = tl.SessionID
		waveNumber = tl.WaveNumber
		notifyWave = isTerminal(newStatus)

		if err := s.pub.Publish(ctx, tx, events.SessionChannel(sessionID), subtaskEventName(newStatus), map[string]any{
			"id":     updated.ID.String(),
			"status": string(updated.Status),
		}); err != nil {
			return err
		}

		if isTerminal(newStatus) {
			if err := unblockSiblings(ctx, tc, updated.TaskListID, updated.ID.String()); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if notifyWave && s.wave != nil {
		if err := s.wave.CompleteTask(ctx, sessionID, waveNumber, out.Status == subtask.StatusFailed); err != nil {
			return out, fmt.Errorf("subtask updated but wave controller notification failed: %w", err)
		}
	}
	return out, nil
}

func subtaskEventName(status subtask.Status) string {
	switch status {
	case subtask.StatusCompleted:
		return "subtask.completed"
	case subtask.StatusFailed:
		return "subtask.failed"
	case subtask.StatusRunning:
		return "subtask.running"
	default:
		return "subtask.updated"
	}
}

// unblockSiblings transitions sibling subtasks from blocked to running once
// every entry in their blocked_by list has resolved (this id no longer
// counts against them once it's terminal).
func unblockSiblings(ctx context.Context, tc *ent.Client, taskListID uuid.UUID, resolvedID string) error {
	siblings, err := tc.Subtask.Query().
		Where(subtask.TaskListIDEQ(taskListID), subtask.StatusEQ(subtask.StatusBlocked)).
		All(ctx)
	if err != nil {
		return fmt.Errorf("failed to query blocked siblings: %w", err)
	}

	for _, sib := range siblings {
		remaining := make([]string, 0, len(sib.BlockedBy))
		for _, blockerID := range sib.BlockedBy {
			if blockerID != resolvedID {
				remaining = append(remaining, blockerID)
			}
		}
		if len(remaining) == len(sib.BlockedBy) {
			continue
		}
		if len(remaining) == 0 {
			if err := tc.Subtask.UpdateOneID(sib.ID).
				SetStatus(subtask.StatusRunning).
				SetBlockedBy([]string{}).
				SetStartedAt(time.Now()).
				Exec(ctx); err != nil {
				return fmt.Errorf("failed to unblock subtask %s: %w", sib.ID, err)
			}
		} else {
			if err := tc.Subtask.UpdateOneID(sib.ID).SetBlockedBy(remaining).Exec(ctx); err != nil {
				return fmt.Errorf("failed to update blocked_by for subtask %s: %w", sib.ID, err)
			}
		}
	}
	return nil
}

// DeleteSubtask permanently removes a subtask.
func (s *SubtaskService) DeleteSubtask(ctx context.Context, id string) error {
	uid, err := parseUUID(id)
	if err != nil {
		return NewValidationError("id", "must be a UUID")
	}
	if err := s.db.Subtask.DeleteOneID(uid).Exec(ctx); err != nil {
		if ent.IsNotFound(err) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to delete subtask: %w", err)
	}
	return nil
}

// CloseSessionSubtasks bulk-fails every still-open subtask belonging to
// the given session, returning the count affected.
func (s *SubtaskService) CloseSessionSubtasks(ctx context.Context, sessionID string) (int, error) {
	if sessionID == "" {
		return 0, NewValidationError("session_id", "required")
	}

	var count int
	err := s.db.WithTx(ctx, func(ctx context.Context, tx *sql.Tx, tc *ent.Client) error {
		taskListIDs, err := tc.TaskList.Query().
			Where(tasklist.SessionIDEQ(sessionID)).
			IDs(ctx)
		if err != nil {
			return fmt.Errorf("failed to query task lists for session: %w", err)
		}
		if len(taskListIDs) == 0 {
			return nil
		}

		n, err := tc.Subtask.Update().
			Where(
				subtask.TaskListIDIn(taskListIDs...),
				subtask.StatusNotIn(subtask.StatusCompleted, subtask.StatusFailed),
			).
			SetStatus(subtask.StatusFailed).
			SetCompletedAt(time.Now()).
			SetResult(map[string]any{"error": "session closed"}).
			Save(ctx)
		if err != nil {
			return fmt.Errorf("failed to close session subtasks: %w", err)
		}
		count = n

		if n > 0 {
			return s.pub.Publish(ctx, tx, events.SessionChannel(sessionID), "subtask.failed", map[string]any{
				"session_id": sessionID,
				"count":      n,
				"reason":     "session closed",
			})
		}
		return nil
	})
	return count, err
}
