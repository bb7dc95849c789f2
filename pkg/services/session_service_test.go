package services

import (
	"context"
	"testing"

	"github.com/codeready-toolchain/dcm/pkg/events"
	testdb "github.com/codeready-toolchain/dcm/test/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSessionService(t *testing.T) *SessionService {
	t.Helper()
	client := testdb.NewTestClient(t)
	pub := events.NewPublisher(client.DB())
	return NewSessionService(client, pub)
}

func TestSessionService_CreateSession_IsIdempotent(t *testing.T) {
	s := newSessionService(t)
	ctx := context.Background()

	first, err := s.CreateSession(ctx, "sess-1")
	require.NoError(t, err)

	second, err := s.CreateSession(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
}

func TestSessionService_EndSession_IsIdempotent(t *testing.T) {
	s := newSessionService(t)
	ctx := context.Background()

	_, err := s.CreateSession(ctx, "sess-1")
	require.NoError(t, err)

	require.NoError(t, s.EndSession(ctx, "sess-1"))
	require.NoError(t, s.EndSession(ctx, "sess-1"))

	sess, err := s.GetSession(ctx, "sess-1")
	require.NoError(t, err)
	assert.NotNil(t, sess.EndedAt)
}

func TestSessionService_ListActiveSessions(t *testing.T) {
	s := newSessionService(t)
	ctx := context.Background()

	_, err := s.CreateSession(ctx, "sess-active")
	require.NoError(t, err)
	_, err = s.CreateSession(ctx, "sess-ended")
	require.NoError(t, err)
	require.NoError(t, s.EndSession(ctx, "sess-ended"))

	active, err := s.ListActiveSessions(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "sess-active", active[0].ID)
}

func TestSessionService_GetSessionStats(t *testing.T) {
	s := newSessionService(t)
	ctx := context.Background()

	_, err := s.CreateSession(ctx, "sess-stats")
	require.NoError(t, err)

	project, err := s.db.Project.Create().SetPath("/tmp/sess-stats").SetName("p").Save(ctx)
	require.NoError(t, err)
	_, err = s.db.Request.Create().
		SetProjectID(project.ID).
		SetSessionID("sess-stats").
		SetPromptText("go").
		Save(ctx)
	require.NoError(t, err)

	stats, err := s.GetSessionStats(ctx, "sess-stats")
	require.NoError(t, err)
	assert.Equal(t, "sess-stats", stats.SessionID)
	assert.Equal(t, 1, stats.RequestCount)
}

func TestSessionService_GetSession_NotFound(t *testing.T) {
	s := newSessionService(t)
	_, err := s.GetSession(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
