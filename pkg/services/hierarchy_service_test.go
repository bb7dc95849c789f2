package services

import (
	"context"
	"testing"

	"github.com/codeready-toolchain/dcm/ent/action"
	"github.com/codeready-toolchain/dcm/pkg/database"
	testdb "github.com/codeready-toolchain/dcm/test/database"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newHierarchyService(t *testing.T) (*HierarchyService, *database.Client) {
	t.Helper()
	client := testdb.NewTestClient(t)
	return NewHierarchyService(client), client
}

func TestHierarchyService_GetHierarchy_NotFound(t *testing.T) {
	s, _ := newHierarchyService(t)
	_, err := s.GetHierarchy(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestHierarchyService_GetHierarchy_LoadsFullTree(t *testing.T) {
	s, client := newHierarchyService(t)
	ctx := context.Background()

	project, err := client.Project.Create().SetPath("/tmp/hier-svc").SetName("hier-svc").Save(ctx)
	require.NoError(t, err)
	_, err = client.Session.Create().SetID("sess-hier").Save(ctx)
	require.NoError(t, err)
	req, err := client.Request.Create().
		SetProjectID(project.ID).
		SetSessionID("sess-hier").
		SetPromptText("go").
		Save(ctx)
	require.NoError(t, err)
	tl, err := client.TaskList.Create().SetRequestID(req.ID).SetSessionID("sess-hier").SetWaveNumber(0).Save(ctx)
	require.NoError(t, err)
	st, err := client.Subtask.Create().SetTaskListID(tl.ID).SetDescription("investigate").Save(ctx)
	require.NoError(t, err)
	_, err = client.Action.Create().
		SetSubtaskID(st.ID).
		SetToolName("grep").
		SetToolKind(action.ToolKindBuiltin).
		Save(ctx)
	require.NoError(t, err)

	got, err := s.GetHierarchy(ctx, project.ID)
	require.NoError(t, err)

	require.Len(t, got.Edges.Requests, 1)
	loadedReq := got.Edges.Requests[0]
	require.Len(t, loadedReq.Edges.TaskLists, 1)
	loadedTL := loadedReq.Edges.TaskLists[0]
	require.Len(t, loadedTL.Edges.Subtasks, 1)
	loadedSt := loadedTL.Edges.Subtasks[0]
	require.Len(t, loadedSt.Edges.Actions, 1)
	assert.Equal(t, "grep", loadedSt.Edges.Actions[0].ToolName)
}
