package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/codeready-toolchain/dcm/ent"
	"github.com/codeready-toolchain/dcm/ent/blocking"
	"github.com/codeready-toolchain/dcm/pkg/database"
	"github.com/codeready-toolchain/dcm/pkg/events"
)

// BlockingService tracks which agents are blocking which other agents.
type BlockingService struct {
	db  *database.Client
	pub *events.Publisher
}

// NewBlockingService creates a new BlockingService.
func NewBlockingService(db *database.Client, pub *events.Publisher) *BlockingService {
	return &BlockingService{db: db, pub: pub}
}

// Block opens a blocking row for (blocker, blocked) if one doesn't already
// exist, and emits agent.blocked.
func (s *BlockingService) Block(ctx context.Context, blocker, blocked, reason string) (*ent.Blocking, error) {
	if blocker == "" {
		return nil, NewValidationError("blocker_agent", "required")
	}
	if blocked == "" {
		return nil, NewValidationError("blocked_agent", "required")
	}

	var out *ent.Blocking
	err := s.db.WithTx(ctx, func(ctx context.Context, tx *sql.Tx, tc *ent.Client) error {
		existing, err := tc.Blocking.Query().
			Where(
				blocking.BlockerAgentEQ(blocker),
				blocking.BlockedAgentEQ(blocked),
				blocking.ClosedAtIsNil(),
			).
			Only(ctx)
		if err == nil {
			out = existing
			return nil
		}
		if !ent.IsNotFound(err) {
			return fmt.Errorf("failed to query open blocking: %w", err)
		}

		builder := tc.Blocking.Create().
			SetBlockerAgent(blocker).
			SetBlockedAgent(blocked)
		if reason != "" {
			builder = builder.SetReason(reason)
		}
		created, err := builder.Save(ctx)
		if err != nil {
			return fmt.Errorf("failed to create blocking: %w", err)
		}
		out = created

		data := map[string]any{"blocker_agent": blocker, "blocked_agent": blocked}
		if err := s.pub.Publish(ctx, tx, events.GlobalChannel, "agent.blocked", data); err != nil {
			return err
		}
		if err := s.pub.Publish(ctx, tx, events.AgentChannel(blocker), "agent.blocked", data); err != nil {
			return err
		}
		return s.pub.Publish(ctx, tx, events.AgentChannel(blocked), "agent.blocked", data)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Unblock closes every open blocking row for (blocker, blocked) and emits
// agent.unblocked.
func (s *BlockingService) Unblock(ctx context.Context, blocker, blocked string) (int, error) {
	if blocker == "" {
		return 0, NewValidationError("blocker_agent", "required")
	}
	if blocked == "" {
		return 0, NewValidationError("blocked_agent", "required")
	}

	var count int
	err := s.db.WithTx(ctx, func(ctx context.Context, tx *sql.Tx, tc *ent.Client) error {
		n, err := tc.Blocking.Update().
			Where(
				blocking.BlockerAgentEQ(blocker),
				blocking.BlockedAgentEQ(blocked),
				blocking.ClosedAtIsNil(),
			).
			SetClosedAt(time.Now()).
			Save(ctx)
		if err != nil {
			return fmt.Errorf("failed to close blocking: %w", err)
		}
		count = n
		if n == 0 {
			return nil
		}

		data := map[string]any{"blocker_agent": blocker, "blocked_agent": blocked}
		if err := s.pub.Publish(ctx, tx, events.GlobalChannel, "agent.unblocked", data); err != nil {
			return err
		}
		if err := s.pub.Publish(ctx, tx, events.AgentChannel(blocker), "agent.unblocked", data); err != nil {
			return err
		}
		return s.pub.Publish(ctx, tx, events.AgentChannel(blocked), "agent.unblocked", data)
	})
	return count, err
}

// CheckIsBlocked reports whether any open blocking exists with
// blocked = agentID.
func (s *BlockingService) CheckIsBlocked(ctx context.Context, agentID string) (bool, error) {
	if agentID == "" {
		return false, NewValidationError("agent_id", "required")
	}
	return s.db.Blocking.Query().
		Where(blocking.BlockedAgentEQ(agentID), blocking.ClosedAtIsNil()).
		Exist(ctx)
}
