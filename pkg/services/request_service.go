package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/codeready-toolchain/dcm/ent"
	"github.com/codeready-toolchain/dcm/ent/request"
	"github.com/codeready-toolchain/dcm/pkg/database"
	"github.com/codeready-toolchain/dcm/pkg/events"
	"github.com/google/uuid"
)

// RequestService manages one user prompt under a session, owned by exactly
// one project.
type RequestService struct {
	db  *database.Client
	pub *events.Publisher
}

// NewRequestService creates a new RequestService.
func NewRequestService(db *database.Client, pub *events.Publisher) *RequestService {
	return &RequestService{db: db, pub: pub}
}

// CreateRequestRequest is the input to CreateRequest.
type CreateRequestRequest struct {
	ProjectID  uuid.UUID `json:"project_id"`
	SessionID  string    `json:"session_id"`
	PromptText string    `json:"prompt_text"`
}

// CreateRequest creates a request under an existing project and session.
func (s *RequestService) CreateRequest(ctx context.Context, req CreateRequestRequest) (*ent.Request, error) {
	if req.ProjectID == uuid.Nil {
		return nil, NewValidationError("project_id", "required")
	}
	if req.SessionID == "" {
		return nil, NewValidationError("session_id", "required")
	}
	if req.PromptText == "" {
		return nil, NewValidationError("prompt_text", "required")
	}

	var out *ent.Request
	err := s.db.WithTx(ctx, func(ctx context.Context, tx *sql.Tx, tc *ent.Client) error {
		created, err := tc.Request.Create().
			SetProjectID(req.ProjectID).
			SetSessionID(req.SessionID).
			SetPromptText(req.PromptText).
			Save(ctx)
		if err != nil {
			if ent.IsConstraintError(err) {
				return ErrAlreadyExists
			}
			return fmt.Errorf("failed to create request: %w", err)
		}
		out = created

		return s.pub.Publish(ctx, tx, events.SessionChannel(req.SessionID), "task.created", map[string]any{
			"id":         created.ID.String(),
			"project_id": created.ProjectID.String(),
			"session_id": created.SessionID,
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetRequest retrieves a request by id.
func (s *RequestService) GetRequest(ctx context.Context, id string) (*ent.Request, error) {
	uid, err := parseUUID(id)
	if err != nil {
		return nil, NewValidationError("id", "must be a UUID")
	}
	r, err := s.db.Request.Get(ctx, uid)
	if err != nil {
		if ent.IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get request: %w", err)
	}
	return r, nil
}

// RequestFilters filters ListRequests.
type RequestFilters struct {
	ProjectID uuid.UUID
	SessionID string
	Status    string
	Limit     int
	Offset    int
}

// ListRequests lists requests matching the given filters.
func (s *RequestService) ListRequests(ctx context.Context, filters RequestFilters) ([]*ent.Request, error) {
	query := s.db.Request.Query()

	if filters.ProjectID != uuid.Nil {
		query = query.Where(request.ProjectIDEQ(filters.ProjectID))
	}
	if filters.SessionID != "" {
		query = query.Where(request.SessionIDEQ(filters.SessionID))
	}
	if filters.Status != "" {
		if err := request.StatusValidator(request.Status(filters.Status)); err != nil {
			return nil, NewValidationError("status", fmt.Sprintf("invalid status %q", filters.Status))
		}
		query = query.Where(request.StatusEQ(request.Status(filters.Status)))
	}

	limit := filters.Limit
	if limit <= 0 {
		limit = 50
	}

	requests, err := query.
		Order(ent.Desc(request.FieldCreatedAt)).
		Limit(limit).
		Offset(max(filters.Offset, 0)).
		All(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list requests: %w", err)
	}
	return requests, nil
}

// UpdateRequestStatus transitions a request's status, stamping
// completed_at when the new status is terminal.
func (s *RequestService) UpdateRequestStatus(ctx context.Context, id string, status request.Status) error {
	uid, err := parseUUID(id)
	if err != nil {
		return NewValidationError("id", "must be a UUID")
	}
	if err := request.StatusValidator(status); err != nil {
		return NewValidationError("status", err.Error())
	}

	update := s.db.Request.UpdateOneID(uid).SetStatus(status)
	if status == request.StatusCompleted || status == request.StatusFailed {
		update = update.SetCompletedAt(time.Now())
	}

	if err := update.Exec(ctx); err != nil {
		if ent.IsNotFound(err) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to update request status: %w", err)
	}
	return nil
}
