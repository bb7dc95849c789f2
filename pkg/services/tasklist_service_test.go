package services

import (
	"context"
	"testing"

	"github.com/codeready-toolchain/dcm/pkg/events"
	testdb "github.com/codeready-toolchain/dcm/test/database"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTaskListService(t *testing.T) (*TaskListService, uuid.UUID) {
	t.Helper()
	client := testdb.NewTestClient(t)
	pub := events.NewPublisher(client.DB())
	ctx := context.Background()

	project, err := client.Project.Create().SetPath("/tmp/tl-svc").SetName("tl-svc").Save(ctx)
	require.NoError(t, err)
	_, err = client.Session.Create().SetID("sess-tl").Save(ctx)
	require.NoError(t, err)
	req, err := client.Request.Create().
		SetProjectID(project.ID).
		SetSessionID("sess-tl").
		SetPromptText("do it").
		Save(ctx)
	require.NoError(t, err)

	return NewTaskListService(client, pub), req.ID
}

func TestTaskListService_CreateTaskList_IdempotentByWave(t *testing.T) {
	s, requestID := newTaskListService(t)
	ctx := context.Background()

	first, err := s.CreateTaskList(ctx, CreateTaskListRequest{RequestID: requestID, SessionID: "sess-tl", WaveNumber: 0})
	require.NoError(t, err)

	second, err := s.CreateTaskList(ctx, CreateTaskListRequest{RequestID: requestID, SessionID: "sess-tl", WaveNumber: 0})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
}

func TestTaskListService_CreateTaskList_ValidatesInput(t *testing.T) {
	s, requestID := newTaskListService(t)
	ctx := context.Background()

	_, err := s.CreateTaskList(ctx, CreateTaskListRequest{SessionID: "sess-tl"})
	assert.True(t, IsValidationError(err))

	_, err = s.CreateTaskList(ctx, CreateTaskListRequest{RequestID: requestID, SessionID: "sess-tl", WaveNumber: -1})
	assert.True(t, IsValidationError(err))
}

func TestTaskListService_ListTaskListsByRequest_OrderedByWave(t *testing.T) {
	s, requestID := newTaskListService(t)
	ctx := context.Background()

	_, err := s.CreateTaskList(ctx, CreateTaskListRequest{RequestID: requestID, SessionID: "sess-tl", WaveNumber: 1})
	require.NoError(t, err)
	_, err = s.CreateTaskList(ctx, CreateTaskListRequest{RequestID: requestID, SessionID: "sess-tl", WaveNumber: 0})
	require.NoError(t, err)

	lists, err := s.ListTaskListsByRequest(ctx, requestID)
	require.NoError(t, err)
	require.Len(t, lists, 2)
	assert.Equal(t, 0, lists[0].WaveNumber)
	assert.Equal(t, 1, lists[1].WaveNumber)
}
