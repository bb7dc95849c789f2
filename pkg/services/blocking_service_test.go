package services

import (
	"context"
	"testing"

	"github.com/codeready-toolchain/dcm/pkg/events"
	testdb "github.com/codeready-toolchain/dcm/test/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBlockingService(t *testing.T) *BlockingService {
	t.Helper()
	client := testdb.NewTestClient(t)
	pub := events.NewPublisher(client.DB())
	return NewBlockingService(client, pub)
}

func TestBlockingService_Block_IdempotentWhileOpen(t *testing.T) {
	s := newBlockingService(t)
	ctx := context.Background()

	first, err := s.Block(ctx, "agent-a", "agent-b", "waiting on review")
	require.NoError(t, err)

	second, err := s.Block(ctx, "agent-a", "agent-b", "ignored reason")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
}

func TestBlockingService_CheckIsBlocked(t *testing.T) {
	s := newBlockingService(t)
	ctx := context.Background()

	blocked, err := s.CheckIsBlocked(ctx, "agent-b")
	require.NoError(t, err)
	assert.False(t, blocked)

	_, err = s.Block(ctx, "agent-a", "agent-b", "")
	require.NoError(t, err)

	blocked, err = s.CheckIsBlocked(ctx, "agent-b")
	require.NoError(t, err)
	assert.True(t, blocked)
}

func TestBlockingService_Unblock_ClosesOpenRows(t *testing.T) {
	s := newBlockingService(t)
	ctx := context.Background()

	_, err := s.Block(ctx, "agent-a", "agent-b", "")
	require.NoError(t, err)

	count, err := s.Unblock(ctx, "agent-a", "agent-b")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	blocked, err := s.CheckIsBlocked(ctx, "agent-b")
	require.NoError(t, err)
	assert.False(t, blocked)

	count, err = s.Unblock(ctx, "agent-a", "agent-b")
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestBlockingService_ValidatesInput(t *testing.T) {
	s := newBlockingService(t)
	ctx := context.Background()

	_, err := s.Block(ctx, "", "agent-b", "")
	assert.True(t, IsValidationError(err))

	_, err = s.Unblock(ctx, "agent-a", "")
	assert.True(t, IsValidationError(err))

	_, err = s.CheckIsBlocked(ctx, "")
	assert.True(t, IsValidationError(err))
}
