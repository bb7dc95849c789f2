package services

import (
	"context"
	"testing"

	"github.com/codeready-toolchain/dcm/ent/agentmessage"
	"github.com/codeready-toolchain/dcm/pkg/events"
	testdb "github.com/codeready-toolchain/dcm/test/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMessageService(t *testing.T) *MessageService {
	t.Helper()
	client := testdb.NewTestClient(t)
	pub := events.NewPublisher(client.DB())
	return NewMessageService(client, pub)
}

func TestMessageService_PostMessage_ValidatesInput(t *testing.T) {
	s := newMessageService(t)
	ctx := context.Background()

	_, err := s.PostMessage(ctx, PostMessageRequest{})
	assert.True(t, IsValidationError(err))

	_, err = s.PostMessage(ctx, PostMessageRequest{FromAgent: "agent-1", Topic: "bogus"})
	assert.True(t, IsValidationError(err))

	_, err = s.PostMessage(ctx, PostMessageRequest{FromAgent: "agent-1", Topic: agentmessage.TopicAgentHeartbeat, Priority: 99})
	assert.True(t, IsValidationError(err))
}

func TestMessageService_PostMessage_BroadcastAndDirect(t *testing.T) {
	s := newMessageService(t)
	ctx := context.Background()

	_, err := s.PostMessage(ctx, PostMessageRequest{
		FromAgent: "agent-1",
		Topic:     agentmessage.TopicAgentHeartbeat,
		Content:   map[string]any{"status": "alive"},
	})
	require.NoError(t, err)

	_, err = s.PostMessage(ctx, PostMessageRequest{
		FromAgent: "agent-1",
		ToAgent:   "agent-2",
		Topic:     agentmessage.TopicContextRequest,
		Content:   map[string]any{"need": "role context"},
	})
	require.NoError(t, err)

	broadcastsOnly, err := s.GetMessages(ctx, "agent-2", MessageFilters{IncludeBroadcasts: true})
	require.NoError(t, err)
	assert.Len(t, broadcastsOnly, 2)

	directOnly, err := s.GetMessages(ctx, "agent-2", MessageFilters{IncludeBroadcasts: false})
	require.NoError(t, err)
	require.Len(t, directOnly, 1)
	assert.False(t, directOnly[0].IsBroadcast)
}

func TestMessageService_MarkRead_IsIdempotent(t *testing.T) {
	s := newMessageService(t)
	ctx := context.Background()

	created, err := s.PostMessage(ctx, PostMessageRequest{
		FromAgent: "agent-1",
		ToAgent:   "agent-2",
		Topic:     agentmessage.TopicTaskCreated,
		Content:   map[string]any{"x": 1},
	})
	require.NoError(t, err)

	require.NoError(t, s.MarkRead(ctx, "agent-2", created.ID.String()))
	require.NoError(t, s.MarkRead(ctx, "agent-2", created.ID.String()))

	messages, err := s.GetMessages(ctx, "agent-2", MessageFilters{IncludeBroadcasts: true})
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.True(t, messages[0].AlreadyRead)
}

func TestMessageService_MarkRead_NotFound(t *testing.T) {
	s := newMessageService(t)
	err := s.MarkRead(context.Background(), "agent-1", "00000000-0000-0000-0000-000000000000")
	assert.ErrorIs(t, err, ErrNotFound)
}
