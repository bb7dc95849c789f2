package services

import (
	"context"
	"fmt"

	"github.com/codeready-toolchain/dcm/ent"
	"github.com/codeready-toolchain/dcm/ent/project"
	"github.com/codeready-toolchain/dcm/ent/request"
	"github.com/codeready-toolchain/dcm/ent/tasklist"
	"github.com/codeready-toolchain/dcm/pkg/database"
	"github.com/google/uuid"
)

// HierarchyService answers the project → requests → task-lists → subtasks
// → actions read (spec §6.6 "GET /hierarchy/{project}"). Eager-loading the
// whole edge chain keeps this a handful of batched queries rather than an
// N+1 loop (spec §4.1 "hot paths... MUST be single joined statements").
type HierarchyService struct {
	db *database.Client
}

// NewHierarchyService creates a new HierarchyService.
func NewHierarchyService(db *database.Client) *HierarchyService {
	return &HierarchyService{db: db}
}

// GetHierarchy loads a project with its full request/task-list/subtask/
// action tree.
func (s *HierarchyService) GetHierarchy(ctx context.Context, projectID uuid.UUID) (*ent.Project, error) {
	p, err := s.db.Project.Query().
		Where(project.IDEQ(projectID)).
		WithRequests(func(q *ent.RequestQuery) {
			q.Order(ent.Asc(request.FieldCreatedAt)).
				WithTaskLists(func(q *ent.TaskListQuery) {
					q.Order(ent.Asc(tasklist.FieldWaveNumber)).
						WithSubtasks(func(q *ent.SubtaskQuery) {
							q.WithActions()
						})
				})
		}).
		Only(ctx)
	if err != nil {
		if ent.IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load hierarchy: %w", err)
	}
	return p, nil
}
