package services

import (
	"context"
	"fmt"

	"github.com/codeready-toolchain/dcm/ent"
	"github.com/codeready-toolchain/dcm/ent/subscription"
	"github.com/codeready-toolchain/dcm/pkg/database"
)

// SubscriptionService persists durable logical topic subscriptions,
// independent from the Real-Time Gateway's transient per-connection
// channel subscriptions (spec §4.3, §4.7 "Restore subscriptions").
type SubscriptionService struct {
	db *database.Client
}

// NewSubscriptionService creates a new SubscriptionService.
func NewSubscriptionService(db *database.Client) *SubscriptionService {
	return &SubscriptionService{db: db}
}

// Subscribe persists (agent_id, topic) if not already present; idempotent.
func (s *SubscriptionService) Subscribe(ctx context.Context, agentID, topic string) (*ent.Subscription, error) {
	if agentID == "" {
		return nil, NewValidationError("agent_id", "required")
	}
	if topic == "" {
		return nil, NewValidationError("topic", "required")
	}

	existing, err := s.db.Subscription.Query().
		Where(subscription.AgentIDEQ(agentID), subscription.TopicEQ(topic)).
		Only(ctx)
	if err == nil {
		return existing, nil
	}
	if !ent.IsNotFound(err) {
		return nil, fmt.Errorf("failed to query subscription: %w", err)
	}

	created, err := s.db.Subscription.Create().
		SetAgentID(agentID).
		SetTopic(topic).
		Save(ctx)
	if err != nil {
		if ent.IsConstraintError(err) {
			return s.db.Subscription.Query().
				Where(subscription.AgentIDEQ(agentID), subscription.TopicEQ(topic)).
				Only(ctx)
		}
		return nil, fmt.Errorf("failed to create subscription: %w", err)
	}
	return created, nil
}

// Unsubscribe removes a (agent_id, topic) subscription if present.
func (s *SubscriptionService) Unsubscribe(ctx context.Context, agentID, topic string) error {
	_, err := s.db.Subscription.Delete().
		Where(subscription.AgentIDEQ(agentID), subscription.TopicEQ(topic)).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to remove subscription: %w", err)
	}
	return nil
}

// ListByAgent returns every topic an agent has durably subscribed to,
// used to restore Real-Time Gateway channel subscriptions on reconnect.
func (s *SubscriptionService) ListByAgent(ctx context.Context, agentID string) ([]*ent.Subscription, error) {
	subs, err := s.db.Subscription.Query().
		Where(subscription.AgentIDEQ(agentID)).
		All(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	return subs, nil
}
