package services

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/codeready-toolchain/dcm/ent"
	"github.com/codeready-toolchain/dcm/ent/agentcapacity"
	"github.com/codeready-toolchain/dcm/pkg/database"
	"github.com/codeready-toolchain/dcm/pkg/events"
)

// capacityZoneThresholds maps the fraction of max_capacity consumed to the
// advisory zone surfaced on AgentCapacity, per spec.md's GLOSSARY: green <
// 0.5, yellow < 0.75, orange < 0.9, red < 1.0, critical >= 1.0.
var capacityZoneThresholds = []struct {
	frac float64
	zone agentcapacity.Zone
}{
	{1.0, agentcapacity.ZoneCritical},
	{0.9, agentcapacity.ZoneRed},
	{0.75, agentcapacity.ZoneOrange},
	{0.5, agentcapacity.ZoneYellow},
}

func zoneFor(current, max int) agentcapacity.Zone {
	if max <= 0 {
		return agentcapacity.ZoneGreen
	}
	frac := float64(current) / float64(max)
	for _, t := range capacityZoneThresholds {
		if frac >= t.frac {
			return t.zone
		}
	}
	return agentcapacity.ZoneGreen
}

// CapacityService tracks rolling per-agent token usage and the
// append-only per-action token ledger behind it.
type CapacityService struct {
	db  *database.Client
	pub *events.Publisher
}

// NewCapacityService creates a new CapacityService.
func NewCapacityService(db *database.Client, pub *events.Publisher) *CapacityService {
	return &CapacityService{db: db, pub: pub}
}

// RecordTokenUsage appends a token-consumption row for an action and rolls
// the delta into the agent's AgentCapacity gauge, creating it on first use.
func (s *CapacityService) RecordTokenUsage(ctx context.Context, actionID, agentID string, tokens, maxCapacity int) (*ent.AgentCapacity, error) {
	if agentID == "" {
		return nil, NewValidationError("agent_id", "required")
	}
	actionUID, err := parseUUID(actionID)
	if err != nil {
		return nil, NewValidationError("action_id", "must be a UUID")
	}
	if tokens < 0 {
		return nil, NewValidationError("tokens_used", "must be >= 0")
	}

	var out *ent.AgentCapacity
	err = s.db.WithTx(ctx, func(ctx context.Context, tx *sql.Tx, tc *ent.Client) error {
		if _, err := tc.TokenConsumption.Create().
			SetActionID(actionUID).
			SetAgentID(agentID).
			SetTokensUsed(tokens).
			Save(ctx); err != nil {
			return fmt.Errorf("failed to record token consumption: %w", err)
		}

		ac, err := tc.AgentCapacity.Query().Where(agentcapacity.AgentIDEQ(agentID)).Only(ctx)
		if ent.IsNotFound(err) {
			if maxCapacity <= 0 {
				maxCapacity = 200000
			}
			created, err := tc.AgentCapacity.Create().
				SetAgentID(agentID).
				SetCurrentUsage(tokens).
				SetMaxCapacity(maxCapacity).
				SetZone(zoneFor(tokens, maxCapacity)).
				Save(ctx)
			if err != nil {
				return fmt.Errorf("failed to create agent capacity: %w", err)
			}
			out = created
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to query agent capacity: %w", err)
		}

		newUsage := ac.CurrentUsage + tokens
		updated, err := tc.AgentCapacity.UpdateOneID(ac.ID).
			SetCurrentUsage(newUsage).
			SetZone(zoneFor(newUsage, ac.MaxCapacity)).
			Save(ctx)
		if err != nil {
			return fmt.Errorf("failed to update agent capacity: %w", err)
		}
		out = updated
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetCapacity retrieves an agent's capacity gauge.
func (s *CapacityService) GetCapacity(ctx context.Context, agentID string) (*ent.AgentCapacity, error) {
	ac, err := s.db.AgentCapacity.Query().Where(agentcapacity.AgentIDEQ(agentID)).Only(ctx)
	if err != nil {
		if ent.IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get agent capacity: %w", err)
	}
	return ac, nil
}

// ResetCapacity zeroes an agent's current usage, e.g. at session end.
func (s *CapacityService) ResetCapacity(ctx context.Context, agentID string) error {
	err := s.db.AgentCapacity.Update().
		Where(agentcapacity.AgentIDEQ(agentID)).
		SetCurrentUsage(0).
		SetZone(agentcapacity.ZoneGreen).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to reset agent capacity: %w", err)
	}
	return nil
}
