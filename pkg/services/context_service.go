package services

import (
	"context"
	"fmt"
	"time"

	"github.com/codeready-toolchain/dcm/ent"
	"github.com/codeready-toolchain/dcm/ent/agentcontext"
	"github.com/codeready-toolchain/dcm/ent/subtask"
	"github.com/codeready-toolchain/dcm/pkg/database"
	"github.com/google/uuid"
)

// compactSnapshotAgentType marks AgentContext rows holding a pre-compaction
// context snapshot rather than a live role context; these are exempt from
// the stale-context cleanup task and pruned on their own schedule (spec
// §4.6 item 5).
const compactSnapshotAgentType = "compact-snapshot"

// ContextService manages durable per-agent role snapshots and the
// pre-compaction snapshot mechanism built on the same table.
type ContextService struct {
	db *database.Client
}

// NewContextService creates a new ContextService.
func NewContextService(db *database.Client) *ContextService {
	return &ContextService{db: db}
}

// UpsertContext creates or replaces an agent's role context for a project.
func (s *ContextService) UpsertContext(ctx context.Context, projectID uuid.UUID, agentID string, roleContext map[string]any) (*ent.AgentContext, error) {
	if projectID == uuid.Nil {
		return nil, NewValidationError("project_id", "required")
	}
	if agentID == "" {
		return nil, NewValidationError("agent_id", "required")
	}

	existing, err := s.db.AgentContext.Query().
		Where(agentcontext.ProjectIDEQ(projectID), agentcontext.AgentIDEQ(agentID)).
		Only(ctx)
	if err == nil {
		updated, err := s.db.AgentContext.UpdateOneID(existing.ID).
			SetRoleContext(roleContext).
			Save(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to update agent context: %w", err)
		}
		return updated, nil
	}
	if !ent.IsNotFound(err) {
		return nil, fmt.Errorf("failed to query agent context: %w", err)
	}

	created, err := s.db.AgentContext.Create().
		SetProjectID(projectID).
		SetAgentID(agentID).
		SetRoleContext(roleContext).
		Save(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create agent context: %w", err)
	}
	return created, nil
}

// GetContext retrieves an agent's live role context for a project.
func (s *ContextService) GetContext(ctx context.Context, projectID uuid.UUID, agentID string) (*ent.AgentContext, error) {
	c, err := s.db.AgentContext.Query().
		Where(agentcontext.ProjectIDEQ(projectID), agentcontext.AgentIDEQ(agentID)).
		Only(ctx)
	if err != nil {
		if ent.IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get agent context: %w", err)
	}
	return c, nil
}

// SaveCompactSnapshot persists a pre-compaction snapshot for a session,
// keyed as an AgentContext row with agent_type = "compact-snapshot" and
// agent_id = the session id so GetCompactSnapshot can look it up the same
// way GetContext looks up a live context.
func (s *ContextService) SaveCompactSnapshot(ctx context.Context, projectID uuid.UUID, sessionID string, snapshot map[string]any) (*ent.AgentContext, error) {
	if projectID == uuid.Nil {
		return nil, NewValidationError("project_id", "required")
	}
	if sessionID == "" {
		return nil, NewValidationError("session_id", "required")
	}

	existing, err := s.db.AgentContext.Query().
		Where(
			agentcontext.ProjectIDEQ(projectID),
			agentcontext.AgentIDEQ(sessionID),
			agentcontext.AgentTypeEQ(compactSnapshotAgentType),
		).
		Only(ctx)
	if err == nil {
		updated, err := s.db.AgentContext.UpdateOneID(existing.ID).
			SetRoleContext(snapshot).
			Save(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to update compact snapshot: %w", err)
		}
		return updated, nil
	}
	if !ent.IsNotFound(err) {
		return nil, fmt.Errorf("failed to query compact snapshot: %w", err)
	}

	created, err := s.db.AgentContext.Create().
		SetProjectID(projectID).
		SetAgentID(sessionID).
		SetAgentType(compactSnapshotAgentType).
		SetRoleContext(snapshot).
		Save(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to save compact snapshot: %w", err)
	}
	return created, nil
}

// GetCompactSnapshot retrieves the saved pre-compaction snapshot for a
// session, if any.
func (s *ContextService) GetCompactSnapshot(ctx context.Context, projectID uuid.UUID, sessionID string) (*ent.AgentContext, error) {
	c, err := s.db.AgentContext.Query().
		Where(
			agentcontext.ProjectIDEQ(projectID),
			agentcontext.AgentIDEQ(sessionID),
			agentcontext.AgentTypeEQ(compactSnapshotAgentType),
		).
		Only(ctx)
	if err != nil {
		if ent.IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get compact snapshot: %w", err)
	}
	return c, nil
}

// CompactStatus reports whether a restorable snapshot exists and its age.
type CompactStatus struct {
	Exists     bool       `json:"exists"`
	LastSaved  *time.Time `json:"last_saved,omitempty"`
}

// GetCompactStatus reports snapshot availability for a session without
// returning the (potentially large) snapshot body itself.
func (s *ContextService) GetCompactStatus(ctx context.Context, projectID uuid.UUID, sessionID string) (*CompactStatus, error) {
	c, err := s.GetCompactSnapshot(ctx, projectID, sessionID)
	if err != nil {
		if err == ErrNotFound {
			return &CompactStatus{Exists: false}, nil
		}
		return nil, err
	}
	return &CompactStatus{Exists: true, LastSaved: &c.LastUpdated}, nil
}

// GenerateContext derives a role context from an agent's current work —
// its non-terminal subtasks and their task lists — and upserts it as the
// agent's live context. Unlike UpsertContext (which accepts a caller-built
// snapshot), this is how an agent with no hand-maintained context gets one:
// the store already has the ground truth for "what is this agent doing",
// so context generation reads it back instead of asking the agent to
// repeat it.
func (s *ContextService) GenerateContext(ctx context.Context, projectID uuid.UUID, agentID string) (*ent.AgentContext, error) {
	if projectID == uuid.Nil {
		return nil, NewValidationError("project_id", "required")
	}
	if agentID == "" {
		return nil, NewValidationError("agent_id", "required")
	}

	active, err := s.db.Subtask.Query().
		Where(
			subtask.AgentIDEQ(agentID),
			subtask.StatusIn(subtask.StatusPending, subtask.StatusRunning, subtask.StatusPaused, subtask.StatusBlocked),
		).
		Order(ent.Desc(subtask.FieldCreatedAt)).
		Limit(20).
		All(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query active subtasks: %w", err)
	}

	tasks := make([]map[string]any, 0, len(active))
	for _, t := range active {
		tasks = append(tasks, map[string]any{
			"subtask_id":   t.ID.String(),
			"description":  t.Description,
			"status":       string(t.Status),
			"task_list_id": t.TaskListID.String(),
			"priority":     t.Priority,
		})
	}

	roleContext := map[string]any{
		"generated_at":  time.Now().UTC(),
		"active_tasks":  tasks,
		"active_count":  len(tasks),
	}

	return s.UpsertContext(ctx, projectID, agentID, roleContext)
}

// RestoreCompactSnapshot copies a saved snapshot back onto the agent's live
// role context, as if it had been there all along.
func (s *ContextService) RestoreCompactSnapshot(ctx context.Context, projectID uuid.UUID, sessionID, agentID string) (*ent.AgentContext, error) {
	snap, err := s.GetCompactSnapshot(ctx, projectID, sessionID)
	if err != nil {
		return nil, err
	}
	return s.UpsertContext(ctx, projectID, agentID, snap.RoleContext)
}
