package services

import (
	"context"
	"testing"

	testdb "github.com/codeready-toolchain/dcm/test/database"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newContextService(t *testing.T) (*ContextService, uuid.UUID) {
	t.Helper()
	client := testdb.NewTestClient(t)
	ctx := context.Background()

	project, err := client.Project.Create().SetPath("/tmp/ctx-svc").SetName("ctx-svc").Save(ctx)
	require.NoError(t, err)

	return NewContextService(client), project.ID
}

func TestContextService_UpsertContext_CreatesThenUpdates(t *testing.T) {
	s, projectID := newContextService(t)
	ctx := context.Background()

	first, err := s.UpsertContext(ctx, projectID, "agent-1", map[string]any{"x": 1.0})
	require.NoError(t, err)

	second, err := s.UpsertContext(ctx, projectID, "agent-1", map[string]any{"x": 2.0})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 2.0, second.RoleContext["x"])
}

func TestContextService_GetContext_NotFound(t *testing.T) {
	s, projectID := newContextService(t)
	_, err := s.GetContext(context.Background(), projectID, "nobody")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestContextService_CompactSnapshot_SaveGetRestore(t *testing.T) {
	s, projectID := newContextService(t)
	ctx := context.Background()

	status, err := s.GetCompactStatus(ctx, projectID, "sess-1")
	require.NoError(t, err)
	assert.False(t, status.Exists)

	_, err = s.SaveCompactSnapshot(ctx, projectID, "sess-1", map[string]any{"saved": true})
	require.NoError(t, err)

	status, err = s.GetCompactStatus(ctx, projectID, "sess-1")
	require.NoError(t, err)
	assert.True(t, status.Exists)
	require.NotNil(t, status.LastSaved)

	restored, err := s.RestoreCompactSnapshot(ctx, projectID, "sess-1", "agent-1")
	require.NoError(t, err)
	assert.Equal(t, true, restored.RoleContext["saved"])

	live, err := s.GetContext(ctx, projectID, "agent-1")
	require.NoError(t, err)
	assert.Equal(t, true, live.RoleContext["saved"])
}

func TestContextService_GenerateContext_ReflectsActiveSubtasks(t *testing.T) {
	s, projectID := newContextService(t)
	ctx := context.Background()

	_, err := s.db.Session.Create().SetID("sess-gen").Save(ctx)
	require.NoError(t, err)
	req, err := s.db.Request.Create().
		SetProjectID(projectID).
		SetSessionID("sess-gen").
		SetPromptText("go").
		Save(ctx)
	require.NoError(t, err)
	tl, err := s.db.TaskList.Create().SetRequestID(req.ID).SetSessionID("sess-gen").SetWaveNumber(0).Save(ctx)
	require.NoError(t, err)
	_, err = s.db.Subtask.Create().
		SetTaskListID(tl.ID).
		SetDescription("investigate").
		SetAgentID("agent-1").
		Save(ctx)
	require.NoError(t, err)

	generated, err := s.GenerateContext(ctx, projectID, "agent-1")
	require.NoError(t, err)
	assert.Equal(t, 1, generated.RoleContext["active_count"])
}

func TestContextService_GenerateContext_ValidatesInput(t *testing.T) {
	s, _ := newContextService(t)
	ctx := context.Background()

	_, err := s.GenerateContext(ctx, uuid.Nil, "agent-1")
	assert.True(t, IsValidationError(err))

	_, err = s.GenerateContext(ctx, uuid.New(), "")
	assert.True(t, IsValidationError(err))
}
