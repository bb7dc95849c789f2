package services

import (
	"context"
	"testing"
	"time"

	"github.com/codeready-toolchain/dcm/ent/agentmessage"
	"github.com/codeready-toolchain/dcm/ent/subtask"
	"github.com/codeready-toolchain/dcm/pkg/config"
	"github.com/codeready-toolchain/dcm/pkg/routing"
	testdb "github.com/codeready-toolchain/dcm/test/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDashboardService(t *testing.T) *DashboardService {
	t.Helper()
	client := testdb.NewTestClient(t)
	routingCfg := &config.RoutingConfig{
		AcceptNudge:    0.3,
		RejectNudge:    -0.1,
		AccuracyWindow: config.Duration(24 * time.Hour),
	}
	return NewDashboardService(client, routing.NewEngine(client, routingCfg))
}

func TestDashboardService_GetKPIs_CountsEmptyState(t *testing.T) {
	s := newDashboardService(t)

	kpis, err := s.GetKPIs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, kpis.ActiveSessions)
	assert.Equal(t, 0, kpis.PendingSubtasks)
	assert.Equal(t, 0, kpis.RunningSubtasks)
	assert.Equal(t, 0, kpis.MessagesLastHour)
	assert.Equal(t, 0.0, kpis.RoutingAccuracy)
}

func TestDashboardService_GetKPIs_ReflectsState(t *testing.T) {
	s := newDashboardService(t)
	ctx := context.Background()

	_, err := s.db.Session.Create().SetID("sess-kpi").Save(ctx)
	require.NoError(t, err)

	project, err := s.db.Project.Create().SetPath("/tmp/dash-svc").SetName("dash-svc").Save(ctx)
	require.NoError(t, err)
	req, err := s.db.Request.Create().
		SetProjectID(project.ID).
		SetSessionID("sess-kpi").
		SetPromptText("go").
		Save(ctx)
	require.NoError(t, err)
	tl, err := s.db.TaskList.Create().SetRequestID(req.ID).SetSessionID("sess-kpi").SetWaveNumber(0).Save(ctx)
	require.NoError(t, err)
	_, err = s.db.Subtask.Create().SetTaskListID(tl.ID).SetDescription("pending one").Save(ctx)
	require.NoError(t, err)
	_, err = s.db.Subtask.Create().
		SetTaskListID(tl.ID).
		SetDescription("running one").
		SetStatus(subtask.StatusRunning).
		Save(ctx)
	require.NoError(t, err)

	_, err = s.db.AgentMessage.Create().
		SetFromAgent("agent-1").
		SetTopic(agentmessage.TopicAgentHeartbeat).
		SetPayload(map[string]any{"ok": true}).
		Save(ctx)
	require.NoError(t, err)

	kpis, err := s.GetKPIs(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, kpis.ActiveSessions)
	assert.Equal(t, 1, kpis.PendingSubtasks)
	assert.Equal(t, 1, kpis.RunningSubtasks)
	assert.Equal(t, 1, kpis.MessagesLastHour)
}
