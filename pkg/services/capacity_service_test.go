package services

import (
	"context"
	"testing"

	"github.com/codeready-toolchain/dcm/ent/action"
	"github.com/codeready-toolchain/dcm/ent/agentcapacity"
	"github.com/codeready-toolchain/dcm/pkg/events"
	testdb "github.com/codeready-toolchain/dcm/test/database"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCapacityService(t *testing.T) *CapacityService {
	t.Helper()
	client := testdb.NewTestClient(t)
	pub := events.NewPublisher(client.DB())
	return NewCapacityService(client, pub)
}

func createTestAction(t *testing.T, s *CapacityService) string {
	t.Helper()
	ctx := context.Background()

	suffix := uuid.NewString()
	sessionID := "sess-cap-" + suffix

	project, err := s.db.Project.Create().SetPath("/tmp/cap-svc/" + suffix).SetName("cap-svc").Save(ctx)
	require.NoError(t, err)
	_, err = s.db.Session.Create().SetID(sessionID).Save(ctx)
	require.NoError(t, err)
	req, err := s.db.Request.Create().
		SetProjectID(project.ID).
		SetSessionID(sessionID).
		SetPromptText("go").
		Save(ctx)
	require.NoError(t, err)
	tl, err := s.db.TaskList.Create().SetRequestID(req.ID).SetSessionID(sessionID).SetWaveNumber(0).Save(ctx)
	require.NoError(t, err)
	st, err := s.db.Subtask.Create().SetTaskListID(tl.ID).SetDescription("work").Save(ctx)
	require.NoError(t, err)
	act, err := s.db.Action.Create().
		SetSubtaskID(st.ID).
		SetToolName("grep").
		SetToolKind(action.ToolKindBuiltin).
		Save(ctx)
	require.NoError(t, err)

	return act.ID.String()
}

func TestCapacityService_RecordTokenUsage_CreatesOnFirstUse(t *testing.T) {
	s := newCapacityService(t)
	ctx := context.Background()
	actionID := createTestAction(t, s)

	got, err := s.RecordTokenUsage(ctx, actionID, "agent-1", 1000, 2000)
	require.NoError(t, err)
	assert.Equal(t, 1000, got.CurrentUsage)
	assert.Equal(t, 2000, got.MaxCapacity)
	assert.Equal(t, agentcapacity.ZoneYellow, got.Zone)
}

func TestCapacityService_RecordTokenUsage_Accumulates(t *testing.T) {
	s := newCapacityService(t)
	ctx := context.Background()
	actionID := createTestAction(t, s)

	_, err := s.RecordTokenUsage(ctx, actionID, "agent-1", 1000, 2000)
	require.NoError(t, err)

	secondActionID := createTestAction(t, s)
	got, err := s.RecordTokenUsage(ctx, secondActionID, "agent-1", 500, 2000)
	require.NoError(t, err)
	assert.Equal(t, 1500, got.CurrentUsage)
	assert.Equal(t, agentcapacity.ZoneOrange, got.Zone)
}

func TestCapacityService_ResetCapacity(t *testing.T) {
	s := newCapacityService(t)
	ctx := context.Background()
	actionID := createTestAction(t, s)

	_, err := s.RecordTokenUsage(ctx, actionID, "agent-1", 1000, 2000)
	require.NoError(t, err)

	require.NoError(t, s.ResetCapacity(ctx, "agent-1"))

	got, err := s.GetCapacity(ctx, "agent-1")
	require.NoError(t, err)
	assert.Equal(t, 0, got.CurrentUsage)
	assert.Equal(t, agentcapacity.ZoneGreen, got.Zone)
}

func TestCapacityService_GetCapacity_NotFound(t *testing.T) {
	s := newCapacityService(t)
	_, err := s.GetCapacity(context.Background(), "unknown-agent")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCapacityService_RecordTokenUsage_ValidatesInput(t *testing.T) {
	s := newCapacityService(t)
	ctx := context.Background()

	_, err := s.RecordTokenUsage(ctx, "", "agent-1", 10, 100)
	assert.True(t, IsValidationError(err))

	_, err = s.RecordTokenUsage(ctx, "not-a-uuid", "agent-1", 10, 100)
	assert.True(t, IsValidationError(err))
}
