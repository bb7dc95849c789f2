package services

import (
	"context"
	"testing"

	"github.com/codeready-toolchain/dcm/ent/action"
	"github.com/codeready-toolchain/dcm/pkg/events"
	testdb "github.com/codeready-toolchain/dcm/test/database"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newActionService(t *testing.T) (*ActionService, uuid.UUID) {
	t.Helper()
	client := testdb.NewTestClient(t)
	pub := events.NewPublisher(client.DB())
	ctx := context.Background()

	project, err := client.Project.Create().SetPath("/tmp/act-svc").SetName("act-svc").Save(ctx)
	require.NoError(t, err)
	_, err = client.Session.Create().SetID("sess-act").Save(ctx)
	require.NoError(t, err)
	req, err := client.Request.Create().
		SetProjectID(project.ID).
		SetSessionID("sess-act").
		SetPromptText("do it").
		Save(ctx)
	require.NoError(t, err)
	tl, err := client.TaskList.Create().SetRequestID(req.ID).SetSessionID("sess-act").SetWaveNumber(0).Save(ctx)
	require.NoError(t, err)
	st, err := client.Subtask.Create().SetTaskListID(tl.ID).SetDescription("work").Save(ctx)
	require.NoError(t, err)

	return NewActionService(client, pub), st.ID
}

func TestActionService_CreateAction_ValidatesInput(t *testing.T) {
	s, subtaskID := newActionService(t)
	ctx := context.Background()

	_, err := s.CreateAction(ctx, CreateActionRequest{})
	assert.True(t, IsValidationError(err))

	_, err = s.CreateAction(ctx, CreateActionRequest{SubtaskID: subtaskID, ToolName: "grep"})
	assert.True(t, IsValidationError(err))

	_, err = s.CreateAction(ctx, CreateActionRequest{SubtaskID: subtaskID, ToolName: "grep", ToolKind: "bogus"})
	assert.True(t, IsValidationError(err))
}

func TestActionService_CreateAndListActions(t *testing.T) {
	s, subtaskID := newActionService(t)
	ctx := context.Background()

	created, err := s.CreateAction(ctx, CreateActionRequest{
		SubtaskID: subtaskID,
		ToolName:  "grep",
		ToolKind:  action.ToolKindBuiltin,
		DurationMs: 12,
	})
	require.NoError(t, err)

	fetched, err := s.GetAction(ctx, created.ID.String())
	require.NoError(t, err)
	assert.Equal(t, created.ID, fetched.ID)

	list, err := s.ListActionsBySubtask(ctx, subtaskID)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestActionService_HourlyActionCounts(t *testing.T) {
	s, subtaskID := newActionService(t)
	ctx := context.Background()

	_, err := s.CreateAction(ctx, CreateActionRequest{SubtaskID: subtaskID, ToolName: "grep", ToolKind: action.ToolKindBuiltin})
	require.NoError(t, err)

	buckets, err := s.HourlyActionCounts(ctx, 1)
	require.NoError(t, err)
	require.Len(t, buckets, 1)
	assert.Equal(t, 1, buckets[0].Count)
}
