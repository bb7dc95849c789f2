// Package wave implements the Wave Controller: the state machine that
// drives a session's ordered waves of task lists through pending →
// running → completed/failed (spec §4.4).
package wave

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/codeready-toolchain/dcm/ent"
	"github.com/codeready-toolchain/dcm/ent/tasklist"
	"github.com/codeready-toolchain/dcm/ent/wavestate"
	"github.com/codeready-toolchain/dcm/pkg/database"
	"github.com/codeready-toolchain/dcm/pkg/events"
)

// ErrNotFound mirrors services.ErrNotFound without importing the services
// package, which would create an import cycle (services.SubtaskService
// notifies Controller through the WaveNotifier interface).
var ErrNotFound = fmt.Errorf("wave not found")

// Controller drives the per-(session, wave_number) state machine backed by
// the wave_states table.
type Controller struct {
	db  *database.Client
	pub *events.Publisher
}

// NewController creates a new Controller.
func NewController(db *database.Client, pub *events.Publisher) *Controller {
	return &Controller{db: db, pub: pub}
}

// GetOrCreateWave upserts a wave_states row for (session, waveNumber) with
// status pending and zero counters; idempotent.
func (c *Controller) GetOrCreateWave(ctx context.Context, sessionID string, waveNumber int) (*ent.WaveState, error) {
	existing, err := c.db.WaveState.Query().
		Where(wavestate.SessionIDEQ(sessionID), wavestate.WaveNumberEQ(waveNumber)).
		Only(ctx)
	if err == nil {
		return existing, nil
	}
	if !ent.IsNotFound(err) {
		return nil, fmt.Errorf("failed to query wave state: %w", err)
	}

	created, err := c.db.WaveState.Create().
		SetSessionID(sessionID).
		SetWaveNumber(waveNumber).
		Save(ctx)
	if err != nil {
		if ent.IsConstraintError(err) {
			return c.db.WaveState.Query().
				Where(wavestate.SessionIDEQ(sessionID), wavestate.WaveNumberEQ(waveNumber)).
				Only(ctx)
		}
		return nil, fmt.Errorf("failed to create wave state: %w", err)
	}
	return created, nil
}

// StartWave transitions pending → running, idempotent if already started.
// At most one running wave per session is enforced by only starting wave N
// once every earlier wave is terminal (spec §4.4 invariant 5).
func (c *Controller) StartWave(ctx context.Context, sessionID string, waveNumber int) (*ent.WaveState, error) {
	ws, err := c.GetOrCreateWave(ctx, sessionID, waveNumber)
	if err != nil {
		return nil, err
	}
	if ws.Status == wavestate.StatusRunning {
		return ws, nil
	}
	if ws.Status != wavestate.StatusPending {
		return nil, fmt.Errorf("cannot start wave %d: status is %s", waveNumber, ws.Status)
	}

	earlierRunning, err := c.db.WaveState.Query().
		Where(
			wavestate.SessionIDEQ(sessionID),
			wavestate.WaveNumberLT(waveNumber),
			wavestate.StatusIn(wavestate.StatusPending, wavestate.StatusRunning),
		).
		Exist(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to check earlier waves: %w", err)
	}
	if earlierRunning {
		return nil, fmt.Errorf("cannot start wave %d: an earlier wave is not yet terminal", waveNumber)
	}

	var out *ent.WaveState
	err = c.db.WithTx(ctx, func(ctx context.Context, tx *sql.Tx, tc *ent.Client) error {
		updated, err := tc.WaveState.UpdateOneID(ws.ID).
			SetStatus(wavestate.StatusRunning).
			SetStartedAt(time.Now()).
			Save(ctx)
		if err != nil {
			return fmt.Errorf("failed to start wave: %w", err)
		}
		out = updated

		return c.pub.Publish(ctx, tx, events.GlobalChannel, "wave.transitioned", map[string]any{
			"session_id": sessionID,
			"from":       waveNumber - 1,
			"to":         waveNumber,
			"status":     "running",
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CompleteTask increments the wave's completed or failed counter and, once
// completed+failed >= total, transitions the wave to its terminal status.
func (c *Controller) CompleteTask(ctx context.Context, sessionID string, waveNumber int, failed bool) error {
	ws, err := c.GetOrCreateWave(ctx, sessionID, waveNumber)
	if err != nil {
		return err
	}

	return c.db.WithTx(ctx, func(ctx context.Context, tx *sql.Tx, tc *ent.Client) error {
		update := tc.WaveState.UpdateOneID(ws.ID)
		if failed {
			update = update.AddFailedTasks(1)
		} else {
			update = update.AddCompletedTasks(1)
		}
		updated, err := update.Save(ctx)
		if err != nil {
			return fmt.Errorf("failed to increment wave counters: %w", err)
		}

		if updated.CompletedTasks+updated.FailedTasks < updated.TotalTasks {
			return nil
		}
		if updated.Status != wavestate.StatusRunning {
			return nil
		}

		finalStatus := wavestate.StatusCompleted
		event := "wave.completed"
		if updated.FailedTasks > 0 {
			finalStatus = wavestate.StatusFailed
			event = "wave.failed"
		}

		now := time.Now()
		var durationMs int
		if updated.StartedAt != nil {
			durationMs = int(now.Sub(*updated.StartedAt).Milliseconds())
		}

		final, err := tc.WaveState.UpdateOneID(ws.ID).
			SetStatus(finalStatus).
			SetCompletedAt(now).
			Save(ctx)
		if err != nil {
			return fmt.Errorf("failed to finalize wave: %w", err)
		}

		return c.pub.Publish(ctx, tx, events.GlobalChannel, event, map[string]any{
			"session_id":      sessionID,
			"wave_number":     waveNumber,
			"completed_tasks": final.CompletedTasks,
			"failed_tasks":    final.FailedTasks,
			"total_tasks":     final.TotalTasks,
			"duration_ms":     durationMs,
		})
	})
}

// SetWaveTotal records the expected task count for a wave — called once
// all subtasks for it have been created. Not part of the original
// counters-only design: while total is still zero, "completed + failed >=
// total" already holds, so the first CompleteTask on a running wave
// finalizes it.
func (c *Controller) SetWaveTotal(ctx context.Context, sessionID string, waveNumber, total int) error {
	ws, err := c.GetOrCreateWave(ctx, sessionID, waveNumber)
	if err != nil {
		return err
	}
	if err := c.db.WaveState.UpdateOneID(ws.ID).SetTotalTasks(total).Exec(ctx); err != nil {
		return fmt.Errorf("failed to set wave total: %w", err)
	}
	return nil
}

// TransitionToNextWave finds the latest completed wave M and starts M+1 if
// a task list exists for it.
func (c *Controller) TransitionToNextWave(ctx context.Context, sessionID string) (*ent.WaveState, error) {
	latestCompleted, err := c.db.WaveState.Query().
		Where(wavestate.SessionIDEQ(sessionID), wavestate.StatusEQ(wavestate.StatusCompleted)).
		Order(ent.Desc(wavestate.FieldWaveNumber)).
		First(ctx)
	if err != nil {
		if ent.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find latest completed wave: %w", err)
	}

	next := latestCompleted.WaveNumber + 1
	exists, err := c.db.TaskList.Query().
		Where(tasklist.SessionIDEQ(sessionID), tasklist.WaveNumberEQ(next)).
		Exist(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to check next wave's task list: %w", err)
	}
	if !exists {
		return nil, nil
	}

	return c.StartWave(ctx, sessionID, next)
}

// GetCurrentWave returns the running wave, or the latest pending wave if
// none is running, or nil if neither exists.
func (c *Controller) GetCurrentWave(ctx context.Context, sessionID string) (*ent.WaveState, error) {
	running, err := c.db.WaveState.Query().
		Where(wavestate.SessionIDEQ(sessionID), wavestate.StatusEQ(wavestate.StatusRunning)).
		Only(ctx)
	if err == nil {
		return running, nil
	}
	if !ent.IsNotFound(err) {
		return nil, fmt.Errorf("failed to query running wave: %w", err)
	}

	pending, err := c.db.WaveState.Query().
		Where(wavestate.SessionIDEQ(sessionID), wavestate.StatusEQ(wavestate.StatusPending)).
		Order(ent.Asc(wavestate.FieldWaveNumber)).
		First(ctx)
	if err != nil {
		if ent.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query pending wave: %w", err)
	}
	return pending, nil
}

// GetWaveHistory returns every wave for a session ordered by wave number.
// If wave_states has no rows for this session (e.g. seeded before the Wave
// Controller ever ran), it synthesizes equivalent rows by aggregating the
// session's task lists and their subtasks, using the same counter
// semantics StartWave/CompleteTask would have produced, and persists each
// synthesized row write-through (SPEC_FULL.md §13.3) so a later call —
// including a later StartWave/CompleteTask — reads/updates the same row
// instead of re-synthesizing it.
func (c *Controller) GetWaveHistory(ctx context.Context, sessionID string) ([]*ent.WaveState, error) {
	states, err := c.db.WaveState.Query().
		Where(wavestate.SessionIDEQ(sessionID)).
		Order(ent.Asc(wavestate.FieldWaveNumber)).
		All(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query wave history: %w", err)
	}
	if len(states) > 0 {
		return states, nil
	}

	return c.synthesizeHistory(ctx, sessionID)
}

func (c *Controller) synthesizeHistory(ctx context.Context, sessionID string) ([]*ent.WaveState, error) {
	lists, err := c.db.TaskList.Query().
		Where(tasklist.SessionIDEQ(sessionID)).
		WithSubtasks().
		Order(ent.Asc(tasklist.FieldWaveNumber)).
		All(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query task lists for wave synthesis: %w", err)
	}
	if len(lists) == 0 {
		return nil, nil
	}

	out := make([]*ent.WaveState, 0, len(lists))
	for _, tl := range lists {
		completed, failed := 0, 0
		for _, st := range tl.Edges.Subtasks {
			switch st.Status {
			case "completed":
				completed++
			case "failed":
				failed++
			}
		}

		status := wavestate.StatusPending
		switch tl.Status {
		case tasklist.StatusRunning:
			status = wavestate.StatusRunning
		case tasklist.StatusCompleted:
			status = wavestate.StatusCompleted
		case tasklist.StatusFailed:
			status = wavestate.StatusFailed
		}

		persisted, err := c.persistSynthesizedWave(ctx, sessionID, tl.WaveNumber, len(tl.Edges.Subtasks), completed, failed, status, tl.StartedAt, tl.CompletedAt)
		if err != nil {
			return nil, err
		}
		out = append(out, persisted)
	}
	return out, nil
}

// persistSynthesizedWave upserts one synthesized wave_states row. A
// concurrent synthesis or a real StartWave/CompleteTask racing the same
// (session, wave_number) loses the create and is read back instead,
// matching GetOrCreateWave's constraint-race handling.
func (c *Controller) persistSynthesizedWave(ctx context.Context, sessionID string, waveNumber, total, completed, failed int, status wavestate.Status, startedAt, completedAt *time.Time) (*ent.WaveState, error) {
	created, err := c.db.WaveState.Create().
		SetSessionID(sessionID).
		SetWaveNumber(waveNumber).
		SetTotalTasks(total).
		SetCompletedTasks(completed).
		SetFailedTasks(failed).
		SetStatus(status).
		SetNillableStartedAt(startedAt).
		SetNillableCompletedAt(completedAt).
		Save(ctx)
	if err != nil {
		if ent.IsConstraintError(err) {
			return c.db.WaveState.Query().
				Where(wavestate.SessionIDEQ(sessionID), wavestate.WaveNumberEQ(waveNumber)).
				Only(ctx)
		}
		return nil, fmt.Errorf("failed to persist synthesized wave state: %w", err)
	}
	return created, nil
}
