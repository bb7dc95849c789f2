package cleanup

import (
	"context"
	"testing"
	"time"

	"github.com/codeready-toolchain/dcm/ent/agentmessage"
	"github.com/codeready-toolchain/dcm/pkg/config"
	testdb "github.com/codeready-toolchain/dcm/test/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.CleanupConfig {
	return &config.CleanupConfig{
		Interval:              config.Duration(50 * time.Millisecond),
		MessageTTL:            config.Duration(time.Hour),
		SessionIdleTTL:        config.Duration(30 * time.Minute),
		AgentContextTTL:       config.Duration(7 * 24 * time.Hour),
		StuckSubtaskThreshold: config.Duration(time.Hour),
		CompactSnapshotTTL:    config.Duration(24 * time.Hour),
		CompactSnapshotEvery:  10,
		ReadBroadcastTTL:      config.Duration(24 * time.Hour),
	}
}

func TestService_DeleteExpiredMessages(t *testing.T) {
	client := testdb.NewTestClient(t)
	ctx := context.Background()

	expired, err := client.AgentMessage.Create().
		SetFromAgent("agent-a").
		SetTopic(agentmessage.TopicAgentHeartbeat).
		SetExpiresAt(time.Now().Add(-time.Minute)).
		Save(ctx)
	require.NoError(t, err)

	live, err := client.AgentMessage.Create().
		SetFromAgent("agent-a").
		SetTopic(agentmessage.TopicAgentHeartbeat).
		SetExpiresAt(time.Now().Add(time.Hour)).
		Save(ctx)
	require.NoError(t, err)

	svc := NewService(testConfig(), client)
	count, err := svc.deleteExpiredMessages(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	_, err = client.AgentMessage.Get(ctx, expired.ID)
	assert.Error(t, err)
	_, err = client.AgentMessage.Get(ctx, live.ID)
	assert.NoError(t, err)
}

func TestService_DeleteOldReadBroadcasts(t *testing.T) {
	client := testdb.NewTestClient(t)
	ctx := context.Background()

	old, err := client.AgentMessage.Create().
		SetFromAgent("agent-a").
		SetTopic(agentmessage.TopicWorkflowProgress).
		SetReadBy([]string{"agent-b"}).
		Save(ctx)
	require.NoError(t, err)
	// created_at is immutable via the builder; backdate with a raw update.
	_, err = client.DB().ExecContext(ctx,
		`UPDATE agent_messages SET created_at = now() - interval '48 hours' WHERE id = $1`, old.ID)
	require.NoError(t, err)

	recent, err := client.AgentMessage.Create().
		SetFromAgent("agent-a").
		SetTopic(agentmessage.TopicWorkflowProgress).
		SetReadBy([]string{"agent-b"}).
		Save(ctx)
	require.NoError(t, err)

	svc := NewService(testConfig(), client)
	count, err := svc.deleteOldReadBroadcasts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	_, err = client.AgentMessage.Get(ctx, old.ID)
	assert.Error(t, err)
	_, err = client.AgentMessage.Get(ctx, recent.ID)
	assert.NoError(t, err)
}

func TestService_StartStopIdempotent(t *testing.T) {
	client := testdb.NewTestClient(t)
	svc := NewService(testConfig(), client)

	svc.Start(context.Background())
	svc.Start(context.Background()) // no-op, must not panic or double-launch

	time.Sleep(100 * time.Millisecond)
	assert.False(t, svc.Stats().DeletedAt.IsZero())

	svc.Stop()
	svc.Stop() // no-op, must not block
}
