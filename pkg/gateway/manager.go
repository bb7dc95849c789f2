package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/codeready-toolchain/dcm/ent"
	"github.com/codeready-toolchain/dcm/pkg/config"
	"github.com/codeready-toolchain/dcm/pkg/events"
)

// Authenticator verifies an agent's auth token and decides whether an
// authenticated agent may subscribe to a given channel. Implemented by
// pkg/auth; kept as an interface here so gateway never imports auth's HMAC
// internals.
type Authenticator interface {
	Verify(token string) (agentID string, err error)
	CanAccess(agentID, channel string) bool
}

// CatchupSource supplies events missed while a connection was offline and
// lets the gateway publish out-of-band events that have no accompanying
// domain write — agent.connected, agent.disconnected, and the periodic
// metrics broadcast. Implemented by events.Publisher.
type CatchupSource interface {
	CatchupSince(ctx context.Context, channel string, sinceID int64, limit int) ([]events.Envelope, error)
	PublishNow(ctx context.Context, channel, event string, data map[string]any) error
}

// SubscriptionStore supplies a durably persisted agent's topic
// subscriptions so the gateway can restore its channel subscriptions when
// that agent authenticates (spec §4.7 "Restore subscriptions"). Implemented
// by services.SubscriptionService.
type SubscriptionStore interface {
	ListByAgent(ctx context.Context, agentID string) ([]*ent.Subscription, error)
}

var (
	errInvalidToken       = errors.New("invalid token")
	errTokenRequired      = errors.New("token required in production")
	errMissingCredentials = errors.New("agent_id or token required")
)

// Connection is a single agent's WebSocket session. It exists — and is
// registered and subscribed to global — before it is ever authenticated;
// authentication only upgrades it to an identified agent (spec §4.7).
//
// subscriptions and writeMu guard state that is touched both by this
// connection's own read loop and by Broadcast/ack-retry goroutines acting
// on other connections' behalf, so — unlike the upstream pattern this is
// adapted from — they need real locks rather than single-goroutine
// ownership.
type Connection struct {
	ID      string
	conn    *websocket.Conn

	mu            sync.Mutex
	AgentID       string
	subscriptions map[string]bool

	writeMu sync.Mutex

	lastPong time.Time
	pongMu   sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
}

func (c *Connection) agentID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.AgentID
}

func (c *Connection) setAgentID(agentID string) {
	c.mu.Lock()
	c.AgentID = agentID
	c.mu.Unlock()
}

func (c *Connection) isSubscribed(channel string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subscriptions[channel]
}

func (c *Connection) touchPong() {
	c.pongMu.Lock()
	c.lastPong = time.Now()
	c.pongMu.Unlock()
}

func (c *Connection) sincePong() time.Duration {
	c.pongMu.Lock()
	defer c.pongMu.Unlock()
	return time.Since(c.lastPong)
}

// Manager is the gateway's connection registry and event fan-out. One
// Manager instance runs per backend process.
type Manager struct {
	cfg  *config.GatewayConfig
	auth Authenticator

	// production gates whether an auth frame without a token is tolerated
	// (spec §4.7, §6.3): outside production, a bare agent_id authenticates
	// the connection; in production a token is mandatory.
	production bool

	connections map[string]*Connection
	mu          sync.RWMutex

	channels  map[string]map[string]bool // logical channel -> connection IDs
	channelMu sync.RWMutex

	catchup CatchupSource
	subs    SubscriptionStore
	acks    *ackTracker

	stopHeartbeat context.CancelFunc
}

// NewManager creates a Manager. Call Run before accepting connections so
// the heartbeat and ack-retry loops are active.
func NewManager(cfg *config.GatewayConfig, auth Authenticator, catchup CatchupSource, subs SubscriptionStore, production bool) *Manager {
	m := &Manager{
		cfg:         cfg,
		auth:        auth,
		production:  production,
		connections: make(map[string]*Connection),
		channels:    make(map[string]map[string]bool),
		catchup:     catchup,
		subs:        subs,
	}
	m.acks = newAckTracker(cfg, m.deliverRaw)
	return m
}

// Run starts the heartbeat and ack-retry background loops and blocks until
// ctx is cancelled.
func (m *Manager) Run(ctx context.Context) {
	heartbeat := time.NewTicker(m.cfg.HeartbeatInterval.Std())
	ackRetry := time.NewTicker(m.cfg.AckRetryInterval.Std())
	defer heartbeat.Stop()
	defer ackRetry.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			m.pingAll()
		case <-ackRetry.C:
			m.acks.tick()
		}
	}
}

// Dispatch implements events.Dispatcher: every event observed by the bus
// is fanned out here to whichever connections are subscribed to its
// logical channel.
func (m *Manager) Dispatch(ctx context.Context, env events.Envelope) {
	m.channelMu.RLock()
	subs, ok := m.channels[env.Channel]
	if !ok {
		m.channelMu.RUnlock()
		return
	}
	ids := make([]string, 0, len(subs))
	for id := range subs {
		ids = append(ids, id)
	}
	m.channelMu.RUnlock()

	msg := ServerMessage{
		Type:       msgTypeEvent,
		Channel:    env.Channel,
		Event:      env.Event,
		Data:       env.Data,
		SequenceID: env.SequenceID,
	}

	m.mu.RLock()
	conns := make([]*Connection, 0, len(ids))
	for _, id := range ids {
		if c, ok := m.connections[id]; ok {
			conns = append(conns, c)
		}
	}
	m.mu.RUnlock()

	for _, c := range conns {
		deliverMsg := msg
		ackID := m.acks.track(c.ID, deliverMsg)
		deliverMsg.ID = ackID
		m.send(c, deliverMsg)
	}
}

// HandleConnection drives one WebSocket connection end to end. Every
// connection is registered, acknowledged with "connected", and subscribed
// to the global channel immediately — authentication is an optional frame
// the agent may send at any point afterward, not a gate the connection
// must pass before it exists (spec §4.7).
func (m *Manager) HandleConnection(parentCtx context.Context, ws *websocket.Conn) {
	ctx, cancel := context.WithCancel(parentCtx)
	c := &Connection{
		ID:            uuid.NewString(),
		conn:          ws,
		subscriptions: make(map[string]bool),
		ctx:           ctx,
		cancel:        cancel,
		lastPong:      time.Now(),
	}

	m.register(c)
	defer m.unregister(c)

	m.sendRaw(c, ServerMessage{Type: msgTypeConnected, ClientID: c.ID})
	m.subscribe(ctx, c, "global", "")

	for {
		if c.sincePong() > m.cfg.HeartbeatTimeout.Std() {
			_ = ws.Close(closeCodeHeartbeatTimeout, "heartbeat timeout")
			return
		}

		readCtx, readCancel := context.WithTimeout(ctx, m.cfg.HeartbeatTimeout.Std())
		_, data, err := ws.Read(readCtx)
		readCancel()
		if err != nil {
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			m.sendError(c, "malformed message")
			continue
		}
		if !m.handle(ctx, c, &msg) {
			return
		}
	}
}

// authenticate handles an optional auth frame. It never disconnects a
// connection except on failure, with the matching close code (spec §7):
// 4001 invalid token, 4002 token required in production, 4003 missing
// credentials entirely.
func (m *Manager) authenticate(ctx context.Context, c *Connection, msg *ClientMessage) bool {
	agentID, err := m.resolveAgentID(msg)
	if err != nil {
		m.sendRaw(c, ackMsg(msg.ID, false, err.Error()))
		_ = c.conn.Close(m.authCloseCode(err), err.Error())
		return false
	}

	c.setAgentID(agentID)
	m.sendRaw(c, ackMsg(msg.ID, true, ""))

	m.subscribe(ctx, c, "agents/"+agentID, "")
	if msg.SessionID != "" {
		m.subscribe(ctx, c, "sessions/"+msg.SessionID, "")
	}
	m.restoreSubscriptions(ctx, c, agentID)
	m.publishAgentEvent(ctx, "agent.connected", agentID)
	return true
}

// resolveAgentID verifies a presented token, or — outside production —
// accepts a bare agent_id with no token at all (spec §4.7, §6.3).
func (m *Manager) resolveAgentID(msg *ClientMessage) (string, error) {
	if msg.Token != "" {
		agentID, err := m.auth.Verify(msg.Token)
		if err != nil {
			return "", errInvalidToken
		}
		return agentID, nil
	}
	if m.production {
		return "", errTokenRequired
	}
	if msg.AgentID == "" {
		return "", errMissingCredentials
	}
	return msg.AgentID, nil
}

func (m *Manager) authCloseCode(err error) websocket.StatusCode {
	switch {
	case errors.Is(err, errInvalidToken):
		return closeCodeInvalidToken
	case errors.Is(err, errTokenRequired):
		return closeCodeTokenRequired
	default:
		return closeCodeMissingCredentials
	}
}

// restoreSubscriptions re-subscribes a newly authenticated connection to
// every topic the agent was durably subscribed to before (spec §4.7
// "Restore subscriptions").
func (m *Manager) restoreSubscriptions(ctx context.Context, c *Connection, agentID string) {
	if m.subs == nil {
		return
	}
	rows, err := m.subs.ListByAgent(ctx, agentID)
	if err != nil {
		slog.Error("failed to restore persisted subscriptions", "agent_id", agentID, "error", err)
		return
	}
	for _, row := range rows {
		m.subscribe(ctx, c, "topics/"+row.Topic, "")
	}
}

// publishAgentEvent broadcasts agent.connected/agent.disconnected on the
// global channel. Unlike domain events these have no accompanying write,
// so they go through PublishNow directly (the same mechanism the periodic
// metrics broadcast uses).
func (m *Manager) publishAgentEvent(ctx context.Context, event, agentID string) {
	if m.catchup == nil {
		return
	}
	if err := m.catchup.PublishNow(ctx, events.GlobalChannel, event, map[string]any{"agent_id": agentID}); err != nil {
		slog.Error("failed to publish gateway agent event", "event", event, "agent_id", agentID, "error", err)
	}
}

func (m *Manager) handle(ctx context.Context, c *Connection, msg *ClientMessage) bool {
	switch msg.Type {
	case "auth":
		return m.authenticate(ctx, c, msg)
	case "subscribe":
		m.subscribe(ctx, c, msg.Channel, msg.ID)
	case "unsubscribe":
		m.unsubscribe(c, msg.Channel, msg.ID)
	case "publish":
		m.publish(c, msg)
	case "ping":
		c.touchPong()
		m.sendRaw(c, ServerMessage{Type: msgTypePong})
	case "pong":
		c.touchPong()
	case "ack":
		m.acks.ack(msg.ID)
	default:
		m.sendAck(c, msg.ID, false, fmt.Sprintf("unknown type %q", msg.Type))
	}
	return true
}

// sendAck sends the unified ack frame. A successful ack with no request id
// (an internal subscribe — global on connect, agents/sessions/topics on
// auth) has nothing to correlate to and is skipped; failures are always
// reported so a caller never silently loses a subscription.
func (m *Manager) sendAck(c *Connection, id string, success bool, errMsg string) {
	if success && id == "" {
		return
	}
	m.sendRaw(c, ackMsg(id, success, errMsg))
}

func (m *Manager) subscribe(ctx context.Context, c *Connection, channel, id string) {
	if channel == "" {
		m.sendAck(c, id, false, "channel is required for subscribe")
		return
	}
	if !validChannel(channel) {
		m.sendAck(c, id, false, "unknown channel")
		return
	}
	if !m.auth.CanAccess(c.agentID(), channel) {
		m.sendAck(c, id, false, "not authorized for this channel")
		return
	}

	m.channelMu.Lock()
	if _, ok := m.channels[channel]; !ok {
		m.channels[channel] = make(map[string]bool)
	}
	m.channels[channel][c.ID] = true
	m.channelMu.Unlock()

	c.mu.Lock()
	c.subscriptions[channel] = true
	c.mu.Unlock()

	m.sendAck(c, id, true, "")
	m.catchupDeliver(ctx, c, channel, 0)
}

func (m *Manager) unsubscribe(c *Connection, channel, id string) {
	m.channelMu.Lock()
	if subs, ok := m.channels[channel]; ok {
		delete(subs, c.ID)
		if len(subs) == 0 {
			delete(m.channels, channel)
		}
	}
	m.channelMu.Unlock()

	c.mu.Lock()
	delete(c.subscriptions, channel)
	c.mu.Unlock()

	m.sendAck(c, id, true, "")
}

// publish fans out a client-originated event directly to a channel's
// subscribers. Unlike domain-service events, these are not persisted to
// the durable event log — they are ephemeral, client-to-client signals.
func (m *Manager) publish(c *Connection, msg *ClientMessage) {
	if !validChannel(msg.Channel) {
		m.sendAck(c, msg.ID, false, "unknown channel")
		return
	}
	if !validEventNames[msg.Event] {
		m.sendAck(c, msg.ID, false, fmt.Sprintf("unknown event %q", msg.Event))
		return
	}
	if !m.auth.CanAccess(c.agentID(), msg.Channel) {
		m.sendAck(c, msg.ID, false, "not authorized for this channel")
		return
	}

	m.channelMu.RLock()
	subs, ok := m.channels[msg.Channel]
	m.channelMu.RUnlock()

	m.sendAck(c, msg.ID, true, "")
	if !ok {
		return
	}

	out := ServerMessage{Type: msgTypeEvent, Channel: msg.Channel, Event: msg.Event, Data: msg.Data}
	m.mu.RLock()
	conns := make([]*Connection, 0, len(subs))
	for id := range subs {
		if conn, ok := m.connections[id]; ok {
			conns = append(conns, conn)
		}
	}
	m.mu.RUnlock()

	for _, conn := range conns {
		m.sendRaw(conn, out)
	}
}

func (m *Manager) catchupDeliver(ctx context.Context, c *Connection, channel string, sinceID int64) {
	if m.catchup == nil {
		return
	}
	limit := m.cfg.CatchupLimit
	events, err := m.catchup.CatchupSince(ctx, channel, sinceID, limit+1)
	if err != nil {
		slog.Error("catchup query failed", "channel", channel, "error", err)
		return
	}

	hasMore := len(events) > limit
	if hasMore {
		events = events[:limit]
	}

	for _, env := range events {
		m.sendRaw(c, ServerMessage{
			Type:       msgTypeEvent,
			Channel:    env.Channel,
			Event:      env.Event,
			Data:       env.Data,
			SequenceID: env.SequenceID,
		})
	}
	if hasMore {
		m.sendRaw(c, ServerMessage{Type: msgTypeCatchupOverflow, Channel: channel})
	}
}

func (m *Manager) pingAll() {
	m.mu.RLock()
	conns := make([]*Connection, 0, len(m.connections))
	for _, c := range m.connections {
		conns = append(conns, c)
	}
	m.mu.RUnlock()

	for _, c := range conns {
		m.sendRaw(c, ServerMessage{Type: msgTypePing})
	}
}

func (m *Manager) register(c *Connection) {
	m.mu.Lock()
	m.connections[c.ID] = c
	m.mu.Unlock()
}

func (m *Manager) unregister(c *Connection) {
	c.mu.Lock()
	chans := make([]string, 0, len(c.subscriptions))
	for ch := range c.subscriptions {
		chans = append(chans, ch)
	}
	agentID := c.AgentID
	c.mu.Unlock()

	for _, ch := range chans {
		m.unsubscribe(c, ch, "")
	}

	m.mu.Lock()
	delete(m.connections, c.ID)
	m.mu.Unlock()

	m.acks.dropConnection(c.ID)
	c.cancel()
	_ = c.conn.Close(websocket.StatusNormalClosure, "")

	if agentID != "" {
		pubCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		m.publishAgentEvent(pubCtx, "agent.disconnected", agentID)
	}
}

// deliverRaw resends a frame by connection id, used by the ack tracker's
// retry loop which only knows the connection id, not the *Connection.
func (m *Manager) deliverRaw(connID string, msg ServerMessage) {
	m.mu.RLock()
	c, ok := m.connections[connID]
	m.mu.RUnlock()
	if !ok {
		return
	}
	m.send(c, msg)
}

func (m *Manager) send(c *Connection, msg ServerMessage) {
	m.sendRaw(c, msg)
}

func (m *Manager) sendError(c *Connection, message string) {
	m.sendRaw(c, ServerMessage{Type: msgTypeError, Message: message})
}

func (m *Manager) sendRaw(c *Connection, msg ServerMessage) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Warn("failed to marshal gateway message", "connection_id", c.ID, "error", err)
		return
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	writeCtx, cancel := context.WithTimeout(c.ctx, 5*time.Second)
	defer cancel()
	if err := c.conn.Write(writeCtx, websocket.MessageText, data); err != nil {
		slog.Warn("failed to write to gateway connection", "connection_id", c.ID, "error", err)
	}
}

// ActiveConnections returns the count of live agent connections.
func (m *Manager) ActiveConnections() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.connections)
}
