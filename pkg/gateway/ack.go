package gateway

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/codeready-toolchain/dcm/pkg/config"
)

// pendingAck tracks one delivered-but-unacknowledged event frame so it can
// be retried. Retries stop once either the agent acks it or attempts is
// exhausted, at which point the message is dropped — delivery is
// at-least-once to a live connection, not exactly-once, and never
// indefinite.
type pendingAck struct {
	connID   string
	msg      ServerMessage
	attempts int
	lastSent time.Time
}

// ackTracker drives retry and eviction for every connection's
// unacknowledged event deliveries.
type ackTracker struct {
	mu      sync.Mutex
	pending map[string]*pendingAck // ack_id -> pending

	cfg  *config.GatewayConfig
	send func(connID string, msg ServerMessage)
}

func newAckTracker(cfg *config.GatewayConfig, send func(connID string, msg ServerMessage)) *ackTracker {
	return &ackTracker{
		pending: make(map[string]*pendingAck),
		cfg:     cfg,
		send:    send,
	}
}

// track registers a newly-sent frame for retry and returns the ack_id
// attached to it.
func (t *ackTracker) track(connID string, msg ServerMessage) string {
	ackID := uuid.NewString()
	msg.ID = ackID

	t.mu.Lock()
	t.pending[ackID] = &pendingAck{connID: connID, msg: msg, attempts: 1, lastSent: time.Now()}
	t.mu.Unlock()

	return ackID
}

// ack marks a delivery as acknowledged, removing it from the retry set.
func (t *ackTracker) ack(ackID string) {
	t.mu.Lock()
	delete(t.pending, ackID)
	t.mu.Unlock()
}

// dropConnection removes every pending ack belonging to a closed
// connection; a disconnected client will never ack anything again.
func (t *ackTracker) dropConnection(connID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, p := range t.pending {
		if p.connID == connID {
			delete(t.pending, id)
		}
	}
}

// tick makes one pass over the pending deliveries, re-sending each one that
// has gone unacked for AckStaleAfter and dropping it once its send attempts
// are used up. Repeated passes come from the caller's ticker (see
// Manager.Run).
func (t *ackTracker) tick() {
	now := time.Now()
	t.mu.Lock()
	var toRetry []*pendingAck
	var toDrop []string
	for id, p := range t.pending {
		if now.Sub(p.lastSent) < t.cfg.AckStaleAfter.Std() {
			continue
		}
		if p.attempts >= t.cfg.AckMaxAttempts {
			toDrop = append(toDrop, id)
			continue
		}
		p.attempts++
		p.lastSent = now
		toRetry = append(toRetry, p)
	}
	for _, id := range toDrop {
		delete(t.pending, id)
	}
	t.mu.Unlock()

	for _, id := range toDrop {
		slog.Warn("dropping event after exhausting ack retries", "ack_id", id)
	}
	for _, p := range toRetry {
		t.send(p.connID, p.msg)
	}
}
