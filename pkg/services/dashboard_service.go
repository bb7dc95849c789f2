package services

import (
	"context"
	"fmt"

	"github.com/codeready-toolchain/dcm/pkg/database"
	"github.com/codeready-toolchain/dcm/pkg/routing"
)

// DashboardService answers the single aggregate read the downstream
// dashboard polls for its KPI strip, using raw-SQL count aggregates in the
// same idiom as SessionService.GetSessionStats rather than loading rows
// through ent. GetKPIs issues three count queries plus the routing
// engine's accuracy query; it is not one joined statement.
type DashboardService struct {
	db      *database.Client
	routing *routing.Engine
}

// NewDashboardService creates a new DashboardService.
func NewDashboardService(db *database.Client, routing *routing.Engine) *DashboardService {
	return &DashboardService{db: db, routing: routing}
}

// KPIs aggregates the figures the dashboard's top strip shows.
type KPIs struct {
	ActiveSessions    int     `json:"active_sessions"`
	PendingSubtasks   int     `json:"pending_subtasks"`
	RunningSubtasks   int     `json:"running_subtasks"`
	MessagesLastHour  int     `json:"messages_last_hour"`
	RoutingAccuracy   float64 `json:"routing_accuracy"`
}

// GetKPIs computes the dashboard KPI snapshot.
func (s *DashboardService) GetKPIs(ctx context.Context) (*KPIs, error) {
	kpis := &KPIs{}

	row := s.db.DB().QueryRowContext(ctx, `SELECT count(*) FROM sessions WHERE ended_at IS NULL`)
	if err := row.Scan(&kpis.ActiveSessions); err != nil {
		return nil, fmt.Errorf("failed to count active sessions: %w", err)
	}

	row = s.db.DB().QueryRowContext(ctx, `
		SELECT
			count(*) FILTER (WHERE status = 'pending'),
			count(*) FILTER (WHERE status = 'running')
		FROM subtasks`)
	if err := row.Scan(&kpis.PendingSubtasks, &kpis.RunningSubtasks); err != nil {
		return nil, fmt.Errorf("failed to count subtasks by status: %w", err)
	}

	row = s.db.DB().QueryRowContext(ctx, `
		SELECT count(*) FROM agent_messages WHERE created_at > now() - interval '1 hour'`)
	if err := row.Scan(&kpis.MessagesLastHour); err != nil {
		return nil, fmt.Errorf("failed to count recent messages: %w", err)
	}

	accuracy, err := s.routing.Accuracy(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compute routing accuracy: %w", err)
	}
	kpis.RoutingAccuracy = accuracy.Accuracy

	return kpis, nil
}
