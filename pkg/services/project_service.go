package services

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"

	"github.com/codeready-toolchain/dcm/ent"
	"github.com/codeready-toolchain/dcm/ent/project"
	"github.com/codeready-toolchain/dcm/pkg/database"
	"github.com/codeready-toolchain/dcm/pkg/events"
)

// ProjectService manages project identity. A project's natural key is its
// filesystem path; creation is an upsert by path (spec §4.3).
type ProjectService struct {
	db  *database.Client
	pub *events.Publisher
}

// NewProjectService creates a new ProjectService.
func NewProjectService(db *database.Client, pub *events.Publisher) *ProjectService {
	return &ProjectService{db: db, pub: pub}
}

// PostProjectRequest is the input to PostProject.
type PostProjectRequest struct {
	Path     string         `json:"path"`
	Name     string         `json:"name,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// PostProject upserts a project by path: if a project with this path
// already exists it is returned unchanged, otherwise a new one is created.
func (s *ProjectService) PostProject(ctx context.Context, req PostProjectRequest) (*ent.Project, error) {
	if req.Path == "" {
		return nil, NewValidationError("path", "required")
	}

	name := req.Name
	if name == "" {
		name = filepath.Base(req.Path)
	}

	var out *ent.Project
	err := s.db.WithTx(ctx, func(ctx context.Context, tx *sql.Tx, tc *ent.Client) error {
		existing, err := tc.Project.Query().Where(project.PathEQ(req.Path)).Only(ctx)
		if err == nil {
			out = existing
			return nil
		}
		if !ent.IsNotFound(err) {
			return fmt.Errorf("failed to query project: %w", err)
		}

		builder := tc.Project.Create().
			SetPath(req.Path).
			SetName(name)
		if req.Metadata != nil {
			builder = builder.SetMetadata(req.Metadata)
		}

		created, err := builder.Save(ctx)
		if err != nil {
			if ent.IsConstraintError(err) {
				return ErrAlreadyExists
			}
			return fmt.Errorf("failed to create project: %w", err)
		}
		out = created

		return s.pub.Publish(ctx, tx, events.GlobalChannel, "project.created", map[string]any{
			"id":   created.ID.String(),
			"path": created.Path,
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetProject retrieves a project by id.
func (s *ProjectService) GetProject(ctx context.Context, id string) (*ent.Project, error) {
	uid, err := parseUUID(id)
	if err != nil {
		return nil, NewValidationError("id", "must be a UUID")
	}
	p, err := s.db.Project.Get(ctx, uid)
	if err != nil {
		if ent.IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	return p, nil
}

// GetProjectByPath retrieves a project by its canonical path.
func (s *ProjectService) GetProjectByPath(ctx context.Context, path string) (*ent.Project, error) {
	if path == "" {
		return nil, NewValidationError("path", "required")
	}
	p, err := s.db.Project.Query().Where(project.PathEQ(path)).Only(ctx)
	if err != nil {
		if ent.IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	return p, nil
}

// ListProjects returns every known project, newest first.
func (s *ProjectService) ListProjects(ctx context.Context) ([]*ent.Project, error) {
	projects, err := s.db.Project.Query().Order(ent.Desc(project.FieldCreatedAt)).All(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	return projects, nil
}
