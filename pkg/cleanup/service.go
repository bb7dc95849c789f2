// Package cleanup provides the periodic retention scheduler: expired
// messages, orphaned sessions, stale agent contexts, stuck subtasks, old
// compact snapshots, and old read broadcasts (spec §4.6).
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/codeready-toolchain/dcm/pkg/config"
	"github.com/codeready-toolchain/dcm/pkg/database"
)

// Stats is the latest tick's result set, exposed via a stats endpoint.
type Stats struct {
	DeletedMessages       int       `json:"deleted_messages"`
	ClosedSessions        int       `json:"closed_sessions"`
	DeletedAgentContexts  int       `json:"deleted_agent_contexts"`
	FailedSubtasks        int       `json:"failed_subtasks"`
	DeletedCompactSnaps   int       `json:"deleted_compact_snapshots"`
	DeletedReadBroadcasts int       `json:"deleted_read_broadcasts"`
	DeletedAt             time.Time `json:"deleted_at"`
	DurationMs            int64     `json:"duration_ms"`
}

// Service periodically enforces retention policies across every DCM
// entity with a TTL or staleness rule. All tasks are idempotent and safe
// to run from multiple processes against the same store.
type Service struct {
	config *config.CleanupConfig
	db     *database.Client

	cancel context.CancelFunc
	done   chan struct{}

	mu    sync.Mutex
	tick  int
	stats Stats
}

// NewService creates a new cleanup Service.
func NewService(cfg *config.CleanupConfig, db *database.Client) *Service {
	return &Service{config: cfg, db: db}
}

// Start launches the background cleanup loop. Calling Start twice is a
// no-op.
func (s *Service) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.run(ctx)

	slog.Info("cleanup scheduler started",
		"interval", s.config.Interval,
		"message_ttl", s.config.MessageTTL,
		"session_idle_ttl", s.config.SessionIdleTTL)
}

// Stop signals the cleanup loop to exit and waits for it to finish.
// Calling Stop when not running is a no-op.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.cancel = nil
	slog.Info("cleanup scheduler stopped")
}

// Stats returns a copy of the latest tick's results.
func (s *Service) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)

	s.runAll(ctx)

	ticker := time.NewTicker(s.config.Interval.Std())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runAll(ctx)
		}
	}
}

// runAll fans every cleanup task out onto its own goroutine (spec §4.6:
// "Every tick runs the following idempotent tasks in parallel") and
// collects counts as they finish. A task that errors is logged and
// contributes zero to the tick's stats; the rest of the tick proceeds
// regardless.
func (s *Service) runAll(ctx context.Context) {
	start := time.Now()
	s.mu.Lock()
	s.tick++
	tick := s.tick
	s.mu.Unlock()

	every := s.config.CompactSnapshotEvery
	if every <= 0 {
		every = 10
	}
	runSnapshots := tick%every == 0

	var stats Stats
	var wg sync.WaitGroup

	run := func(name string, fn func(context.Context) (int, error), out *int) {
		defer wg.Done()
		*out = s.runTask(ctx, name, fn)
	}

	wg.Add(5)
	go run("expired messages", s.deleteExpiredMessages, &stats.DeletedMessages)
	go run("orphaned sessions", s.closeOrphanedSessions, &stats.ClosedSessions)
	go run("stale agent contexts", s.deleteStaleAgentContexts, &stats.DeletedAgentContexts)
	go run("stuck subtasks", s.failStuckSubtasks, &stats.FailedSubtasks)
	go run("old read broadcasts", s.deleteOldReadBroadcasts, &stats.DeletedReadBroadcasts)
	if runSnapshots {
		wg.Add(1)
		go run("old compact snapshots", s.deleteOldCompactSnapshots, &stats.DeletedCompactSnaps)
	}
	wg.Wait()

	stats.DeletedAt = start
	stats.DurationMs = time.Since(start).Milliseconds()

	s.mu.Lock()
	s.stats = stats
	s.mu.Unlock()
}

// runTask executes one task, logging and swallowing its error so the rest of
// the tick proceeds regardless of individual task failures.
func (s *Service) runTask(ctx context.Context, name string, fn func(context.Context) (int, error)) int {
	count, err := fn(ctx)
	if err != nil {
		slog.Error("cleanup task failed", "task", name, "error", err)
		return 0
	}
	if count > 0 {
		slog.Info("cleanup task ran", "task", name, "count", count)
	}
	return count
}

// inactiveWindow is the idle tolerance shared by the orphaned-session,
// stale-agent-context and stuck-subtask tasks (spec §6.8 "Inactive
// minutes").
func (s *Service) inactiveWindow() time.Duration {
	if d := s.config.InactiveMinutes.Std(); d > 0 {
		return d
	}
	return 10 * time.Minute
}

func (s *Service) deleteExpiredMessages(ctx context.Context) (int, error) {
	res, err := s.db.DB().ExecContext(ctx,
		`DELETE FROM agent_messages WHERE expires_at IS NOT NULL AND expires_at < now()`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired messages: %w", err)
	}
	return rowsAffected(res)
}

func (s *Service) closeOrphanedSessions(ctx context.Context) (int, error) {
	maxAge := s.config.SessionIdleTTL.Std()
	if maxAge <= 0 {
		maxAge = 30 * time.Minute
	}
	inactive := s.inactiveWindow()

	res, err := s.db.DB().ExecContext(ctx, `
		UPDATE sessions SET ended_at = now()
		WHERE ended_at IS NULL
		  AND started_at < now() - $1::interval
		  AND NOT EXISTS (
		    SELECT 1 FROM actions a
		    JOIN subtasks st ON st.id = a.subtask_id
		    JOIN task_lists tl ON tl.id = st.task_list_id
		    WHERE tl.session_id = sessions.id
		      AND a.created_at > now() - $2::interval
		  )`,
		maxAge.String(), inactive.String())
	if err != nil {
		return 0, fmt.Errorf("failed to close orphaned sessions: %w", err)
	}
	return rowsAffected(res)
}

func (s *Service) deleteStaleAgentContexts(ctx context.Context) (int, error) {
	maxAge := s.config.AgentContextTTL.Std()
	if maxAge <= 0 {
		maxAge = 7 * 24 * time.Hour
	}
	inactive := s.inactiveWindow()

	res, err := s.db.DB().ExecContext(ctx, `
		DELETE FROM agent_contexts ac
		WHERE ac.agent_type IS DISTINCT FROM 'compact-snapshot'
		  AND (ac.role_context->>'status' IN ('running', 'paused', 'blocked') OR ac.role_context->>'status' IS NULL)
		  AND ac.last_updated < now() - $1::interval
		  AND NOT EXISTS (
		    SELECT 1 FROM subtasks st
		    WHERE st.agent_id = ac.agent_id
		      AND st.created_at > now() - $2::interval
		  )`,
		maxAge.String(), inactive.String())
	if err != nil {
		return 0, fmt.Errorf("failed to delete stale agent contexts: %w", err)
	}
	return rowsAffected(res)
}

func (s *Service) failStuckSubtasks(ctx context.Context) (int, error) {
	maxAge := s.config.StuckSubtaskThreshold.Std()
	if maxAge <= 0 {
		maxAge = time.Hour
	}
	inactive := s.inactiveWindow()

	res, err := s.db.DB().ExecContext(ctx, `
		UPDATE subtasks st SET
		  status = 'failed',
		  completed_at = now(),
		  result = '{"error": "Timed out: no completion event received"}'::jsonb
		WHERE st.status IN ('running', 'paused', 'blocked')
		  AND st.started_at IS NOT NULL
		  AND st.started_at < now() - $1::interval
		  AND NOT EXISTS (
		    SELECT 1 FROM actions a
		    WHERE a.subtask_id = st.id
		      AND a.created_at > now() - $2::interval
		  )`,
		maxAge.String(), inactive.String())
	if err != nil {
		return 0, fmt.Errorf("failed to fail stuck subtasks: %w", err)
	}
	return rowsAffected(res)
}

func (s *Service) deleteOldCompactSnapshots(ctx context.Context) (int, error) {
	ttl := s.config.CompactSnapshotTTL.Std()
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	res, err := s.db.DB().ExecContext(ctx, `
		DELETE FROM agent_contexts
		WHERE agent_type = 'compact-snapshot' AND last_updated < now() - $1::interval`,
		ttl.String())
	if err != nil {
		return 0, fmt.Errorf("failed to delete old compact snapshots: %w", err)
	}
	return rowsAffected(res)
}

func (s *Service) deleteOldReadBroadcasts(ctx context.Context) (int, error) {
	ttl := s.config.ReadBroadcastTTL.Std()
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	res, err := s.db.DB().ExecContext(ctx, `
		DELETE FROM agent_messages
		WHERE to_agent IS NULL
		  AND jsonb_array_length(read_by) > 0
		  AND created_at < now() - $1::interval`,
		ttl.String())
	if err != nil {
		return 0, fmt.Errorf("failed to delete old read broadcasts: %w", err)
	}
	return rowsAffected(res)
}

func rowsAffected(res interface {
	RowsAffected() (int64, error)
}) (int, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}
