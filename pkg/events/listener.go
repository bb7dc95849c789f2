package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
)

// Dispatcher receives every event observed on the bus, in sequence_id
// order per logical Channel. Implemented by the gateway, which fans each
// envelope out to the agents subscribed to its Channel.
type Dispatcher interface {
	Dispatch(ctx context.Context, env Envelope)
}

// Bus LISTENs on the single dcm_events Postgres channel and dispatches
// every NOTIFY to a Dispatcher, after recovering the full row the NOTIFY
// payload only references by sequence_id.
//
// Unlike a multi-channel NOTIFY fan-out (one Postgres LISTEN per logical
// topic), the bus only ever LISTENs on one channel — logical routing
// happens inside Dispatch, against the envelope's own Channel field. That
// removes the dynamic LISTEN/UNLISTEN machinery a per-topic design would
// need, at the cost of every backend process seeing every event (the
// dispatcher discards what nobody is subscribed to).
type Bus struct {
	connString string
	conn       *pgx.Conn
	connMu     sync.Mutex

	publisher  *Publisher
	dispatcher Dispatcher

	cancelLoop context.CancelFunc
	loopDone   chan struct{}
}

// NewBus creates a Bus. Call SetDispatcher before Start.
func NewBus(connString string, publisher *Publisher) *Bus {
	return &Bus{connString: connString, publisher: publisher}
}

// SetDispatcher wires the component that receives dispatched envelopes.
func (b *Bus) SetDispatcher(d Dispatcher) {
	b.dispatcher = d
}

// Start establishes the dedicated LISTEN connection and begins receiving.
func (b *Bus) Start(ctx context.Context) error {
	conn, err := pgx.Connect(ctx, b.connString)
	if err != nil {
		return fmt.Errorf("failed to connect for LISTEN: %w", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+pgChannel); err != nil {
		_ = conn.Close(ctx)
		return fmt.Errorf("failed to LISTEN %s: %w", pgChannel, err)
	}

	b.connMu.Lock()
	b.conn = conn
	b.connMu.Unlock()

	loopCtx, cancel := context.WithCancel(ctx)
	b.cancelLoop = cancel
	b.loopDone = make(chan struct{})
	go func() {
		defer close(b.loopDone)
		b.receiveLoop(loopCtx)
	}()

	slog.Info("event bus started", "channel", pgChannel)
	return nil
}

// Stop signals the receive loop to exit, waits for it, then closes the
// LISTEN connection.
func (b *Bus) Stop(ctx context.Context) {
	if b.cancelLoop != nil {
		b.cancelLoop()
	}
	if b.loopDone != nil {
		<-b.loopDone
	}

	b.connMu.Lock()
	defer b.connMu.Unlock()
	if b.conn != nil {
		_ = b.conn.Close(ctx)
		b.conn = nil
	}
}

func (b *Bus) receiveLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		b.connMu.Lock()
		conn := b.conn
		b.connMu.Unlock()

		if conn == nil {
			b.reconnect(ctx)
			continue
		}

		waitCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
		notification, err := conn.WaitForNotification(waitCtx)
		cancel()

		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if waitCtx.Err() != nil {
				continue
			}
			slog.Error("event bus NOTIFY receive error", "error", err)
			b.reconnect(ctx)
			continue
		}

		b.handleNotification(ctx, []byte(notification.Payload))
	}
}

func (b *Bus) handleNotification(ctx context.Context, payload []byte) {
	var ref struct {
		SequenceID int64 `json:"sequence_id"`
	}
	if err := json.Unmarshal(payload, &ref); err != nil {
		slog.Error("malformed NOTIFY payload", "error", err)
		return
	}

	env, err := b.publisher.FetchEnvelope(ctx, ref.SequenceID)
	if err != nil {
		slog.Error("failed to fetch notified event", "sequence_id", ref.SequenceID, "error", err)
		return
	}

	if b.dispatcher != nil {
		b.dispatcher.Dispatch(ctx, *env)
	}
}

func (b *Bus) reconnect(ctx context.Context) {
	b.connMu.Lock()
	defer b.connMu.Unlock()

	if b.conn != nil {
		_ = b.conn.Close(ctx)
		b.conn = nil
	}

	backoff := time.Second
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}

		conn, err := pgx.Connect(ctx, b.connString)
		if err != nil {
			slog.Error("event bus reconnect failed", "error", err, "backoff", backoff)
			backoff = min(backoff*2, 30*time.Second)
			continue
		}
		if _, err := conn.Exec(ctx, "LISTEN "+pgChannel); err != nil {
			slog.Error("re-LISTEN failed", "error", err)
			_ = conn.Close(ctx)
			continue
		}

		b.conn = conn
		slog.Info("event bus reconnected")
		return
	}
}
