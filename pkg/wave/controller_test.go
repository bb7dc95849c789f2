package wave

import (
	"context"
	"testing"

	"github.com/codeready-toolchain/dcm/ent/wavestate"
	"github.com/codeready-toolchain/dcm/pkg/events"
	testdb "github.com/codeready-toolchain/dcm/test/database"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newController(t *testing.T) *Controller {
	t.Helper()
	client := testdb.NewTestClient(t)
	pub := events.NewPublisher(client.DB())
	return NewController(client, pub)
}

func newSessionWithTaskList(t *testing.T, c *Controller, waveNumber int) string {
	t.Helper()
	ctx := context.Background()
	sessionID := uuid.New().String()

	_, err := c.db.Session.Create().SetID(sessionID).Save(ctx)
	require.NoError(t, err)

	project, err := c.db.Project.Create().
		SetPath("/tmp/" + sessionID).
		SetName("test").
		Save(ctx)
	require.NoError(t, err)

	req, err := c.db.Request.Create().
		SetProjectID(project.ID).
		SetSessionID(sessionID).
		SetPromptText("do the thing").
		Save(ctx)
	require.NoError(t, err)

	_, err = c.db.TaskList.Create().
		SetRequestID(req.ID).
		SetSessionID(sessionID).
		SetWaveNumber(waveNumber).
		Save(ctx)
	require.NoError(t, err)

	return sessionID
}

func TestController_GetOrCreateWave_Idempotent(t *testing.T) {
	c := newController(t)
	ctx := context.Background()
	sessionID := newSessionWithTaskList(t, c, 0)

	first, err := c.GetOrCreateWave(ctx, sessionID, 0)
	require.NoError(t, err)
	assert.Equal(t, wavestate.StatusPending, first.Status)

	second, err := c.GetOrCreateWave(ctx, sessionID, 0)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
}

func TestController_StartWave_RequiresEarlierWavesTerminal(t *testing.T) {
	c := newController(t)
	ctx := context.Background()
	sessionID := newSessionWithTaskList(t, c, 0)

	_, err := c.StartWave(ctx, sessionID, 0)
	require.NoError(t, err)

	_, err = c.StartWave(ctx, sessionID, 1)
	assert.Error(t, err)
}

func TestController_CompleteTask_FinalizesWaveWhenCountersMeetTotal(t *testing.T) {
	c := newController(t)
	ctx := context.Background()
	sessionID := newSessionWithTaskList(t, c, 0)

	ws, err := c.StartWave(ctx, sessionID, 0)
	require.NoError(t, err)
	require.NoError(t, c.SetWaveTotal(ctx, sessionID, 0, 2))

	require.NoError(t, c.CompleteTask(ctx, sessionID, 0, false))
	current, err := c.GetCurrentWave(ctx, sessionID)
	require.NoError(t, err)
	require.NotNil(t, current)
	assert.Equal(t, wavestate.StatusRunning, current.Status)

	require.NoError(t, c.CompleteTask(ctx, sessionID, 0, false))
	final, err := c.db.WaveState.Get(ctx, ws.ID)
	require.NoError(t, err)
	assert.Equal(t, wavestate.StatusCompleted, final.Status)
	assert.Equal(t, 2, final.CompletedTasks)
}

func TestController_CompleteTask_FailedTaskFailsWave(t *testing.T) {
	c := newController(t)
	ctx := context.Background()
	sessionID := newSessionWithTaskList(t, c, 0)

	ws, err := c.StartWave(ctx, sessionID, 0)
	require.NoError(t, err)
	require.NoError(t, c.SetWaveTotal(ctx, sessionID, 0, 1))

	require.NoError(t, c.CompleteTask(ctx, sessionID, 0, true))
	final, err := c.db.WaveState.Get(ctx, ws.ID)
	require.NoError(t, err)
	assert.Equal(t, wavestate.StatusFailed, final.Status)
	assert.Equal(t, 1, final.FailedTasks)
}

func TestController_TransitionToNextWave(t *testing.T) {
	c := newController(t)
	ctx := context.Background()
	sessionID := newSessionWithTaskList(t, c, 0)

	req, err := c.db.Request.Query().First(ctx)
	require.NoError(t, err)

	_, err = c.db.TaskList.Create().
		SetRequestID(req.ID).
		SetSessionID(sessionID).
		SetWaveNumber(1).
		Save(ctx)
	require.NoError(t, err)

	_, err = c.StartWave(ctx, sessionID, 0)
	require.NoError(t, err)
	require.NoError(t, c.SetWaveTotal(ctx, sessionID, 0, 1))
	require.NoError(t, c.CompleteTask(ctx, sessionID, 0, false))

	next, err := c.TransitionToNextWave(ctx, sessionID)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, 1, next.WaveNumber)
	assert.Equal(t, wavestate.StatusRunning, next.Status)
}

func TestController_GetWaveHistory_SynthesizesWhenEmpty(t *testing.T) {
	c := newController(t)
	ctx := context.Background()
	sessionID := newSessionWithTaskList(t, c, 0)

	history, err := c.GetWaveHistory(ctx, sessionID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, 0, history[0].WaveNumber)
	assert.Equal(t, wavestate.StatusPending, history[0].Status)

	// Write-through: the synthesized row must be persisted so a second
	// read (and any later StartWave/CompleteTask) sees the same row
	// instead of re-synthesizing it (SPEC_FULL.md §13.3).
	stored, err := c.db.WaveState.Query().
		Where(wavestate.SessionIDEQ(sessionID), wavestate.WaveNumberEQ(0)).
		Only(ctx)
	require.NoError(t, err)
	assert.Equal(t, history[0].ID, stored.ID)

	again, err := c.GetWaveHistory(ctx, sessionID)
	require.NoError(t, err)
	require.Len(t, again, 1)
	assert.Equal(t, stored.ID, again[0].ID)

	started, err := c.StartWave(ctx, sessionID, 0)
	require.NoError(t, err)
	assert.Equal(t, stored.ID, started.ID)
	assert.Equal(t, wavestate.StatusRunning, started.Status)
}
