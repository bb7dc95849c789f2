// Package metrics runs the periodic dashboard snapshot broadcast: every
// five seconds it aggregates operational counters across sessions,
// agents, tasks, messages and actions and broadcasts them as
// metric.update on the metrics channel (spec §4.2).
package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/codeready-toolchain/dcm/pkg/database"
	"github.com/codeready-toolchain/dcm/pkg/events"
)

// interval is fixed, not configurable: the dashboard snapshot is a cheap
// aggregate query, not a tunable retention policy.
const interval = 5 * time.Second

// Publisher is the subset of events.Publisher the collector needs.
type Publisher interface {
	PublishNow(ctx context.Context, channel, event string, data map[string]any) error
}

// Collector periodically aggregates and broadcasts dashboard metrics.
type Collector struct {
	db  *database.Client
	pub Publisher

	cancel context.CancelFunc
	done   chan struct{}
}

// NewCollector creates a new Collector.
func NewCollector(db *database.Client, pub Publisher) *Collector {
	return &Collector{db: db, pub: pub}
}

// Start launches the background collection loop. Calling Start twice is a
// no-op.
func (c *Collector) Start(ctx context.Context) {
	if c.cancel != nil {
		return
	}
	ctx, c.cancel = context.WithCancel(ctx)
	c.done = make(chan struct{})
	go c.run(ctx)
	slog.Info("metrics collector started", "interval", interval)
}

// Stop signals the collection loop to exit and waits for it to finish.
// Calling Stop when not running is a no-op.
func (c *Collector) Stop() {
	if c.cancel == nil {
		return
	}
	c.cancel()
	<-c.done
	c.cancel = nil
	slog.Info("metrics collector stopped")
}

func (c *Collector) run(ctx context.Context) {
	defer close(c.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.collectAndPublish(ctx)
		}
	}
}

func (c *Collector) collectAndPublish(ctx context.Context) {
	snap, err := c.collect(ctx)
	if err != nil {
		slog.Error("metrics collection failed", "error", err)
		return
	}
	if err := c.pub.PublishNow(ctx, events.MetricsChannel, "metric.update", snap.toMap()); err != nil {
		slog.Error("failed to publish metrics snapshot", "error", err)
	}
}

// snapshot is the aggregate counters published on every tick (spec §4.2).
type snapshot struct {
	ActiveSessions    int
	ActiveAgents      int
	PendingTasks      int
	RunningTasks      int
	CompletedLastHour int
	MessagesLastHour  int
	ActionsPerMinute  int
	AvgTaskDurationMs float64
}

func (s snapshot) toMap() map[string]any {
	return map[string]any{
		"active_sessions":      s.ActiveSessions,
		"active_agents":        s.ActiveAgents,
		"pending_tasks":        s.PendingTasks,
		"running_tasks":        s.RunningTasks,
		"completed_last_hour":  s.CompletedLastHour,
		"messages_last_hour":   s.MessagesLastHour,
		"actions_per_minute":   s.ActionsPerMinute,
		"avg_task_duration_ms": s.AvgTaskDurationMs,
	}
}

// collect runs the dashboard aggregate in a single round trip: one
// subquery per counter, each reading a different table, none of them
// contending with the others.
func (c *Collector) collect(ctx context.Context) (*snapshot, error) {
	row := c.db.DB().QueryRowContext(ctx, `
		SELECT
		  (SELECT count(*) FROM sessions WHERE ended_at IS NULL),
		  (SELECT count(DISTINCT agent_id) FROM subtasks
		     WHERE agent_id IS NOT NULL AND status IN ('running', 'paused', 'blocked')),
		  (SELECT count(*) FROM subtasks WHERE status = 'pending'),
		  (SELECT count(*) FROM subtasks WHERE status = 'running'),
		  (SELECT count(*) FROM subtasks
		     WHERE status = 'completed' AND completed_at > now() - interval '1 hour'),
		  (SELECT count(*) FROM agent_messages WHERE created_at > now() - interval '1 hour'),
		  (SELECT count(*) FROM actions WHERE created_at > now() - interval '1 minute'),
		  (SELECT coalesce(avg(extract(epoch FROM (completed_at - started_at)) * 1000), 0)
		     FROM subtasks
		     WHERE status = 'completed' AND completed_at > now() - interval '1 hour'
		       AND started_at IS NOT NULL)
	`)

	var snap snapshot
	if err := row.Scan(
		&snap.ActiveSessions,
		&snap.ActiveAgents,
		&snap.PendingTasks,
		&snap.RunningTasks,
		&snap.CompletedLastHour,
		&snap.MessagesLastHour,
		&snap.ActionsPerMinute,
		&snap.AvgTaskDurationMs,
	); err != nil {
		return nil, fmt.Errorf("failed to aggregate metrics snapshot: %w", err)
	}
	return &snap, nil
}
