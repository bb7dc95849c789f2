package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/dcm/ent"
	"github.com/codeready-toolchain/dcm/pkg/config"
	"github.com/codeready-toolchain/dcm/pkg/events"
)

type fakeAuth struct {
	tokens map[string]string // token -> agent id
}

func (f *fakeAuth) Verify(token string) (string, error) {
	if agentID, ok := f.tokens[token]; ok {
		return agentID, nil
	}
	return "", errInvalidFakeToken
}

func (f *fakeAuth) CanAccess(agentID, channel string) bool {
	if rest, ok := cutAgentsPrefix(channel); ok {
		return rest == agentID
	}
	return true
}

func cutAgentsPrefix(channel string) (string, bool) {
	const prefix = "agents/"
	if len(channel) > len(prefix) && channel[:len(prefix)] == prefix {
		return channel[len(prefix):], true
	}
	return "", false
}

type errString string

func (e errString) Error() string { return string(e) }

const errInvalidFakeToken = errString("invalid fake token")

type fakeCatchup struct{}

func (fakeCatchup) CatchupSince(ctx context.Context, channel string, sinceID int64, limit int) ([]events.Envelope, error) {
	return nil, nil
}

func (fakeCatchup) PublishNow(ctx context.Context, channel, event string, data map[string]any) error {
	return nil
}

type fakeSubscriptionStore struct {
	byAgent map[string][]string
}

func (f *fakeSubscriptionStore) ListByAgent(ctx context.Context, agentID string) ([]*ent.Subscription, error) {
	topics := f.byAgent[agentID]
	out := make([]*ent.Subscription, 0, len(topics))
	for _, topic := range topics {
		out = append(out, &ent.Subscription{AgentID: agentID, Topic: topic})
	}
	return out, nil
}

func testGatewayConfig() *config.GatewayConfig {
	return &config.GatewayConfig{
		Host:              "127.0.0.1",
		HeartbeatInterval: config.Duration(30 * time.Second),
		HeartbeatTimeout:  config.Duration(2 * time.Second),
		AckRetryInterval:  config.Duration(2 * time.Second),
		AckStaleAfter:     config.Duration(5 * time.Second),
		AckMaxAttempts:    3,
		CatchupLimit:      200,
	}
}

func newManager(auth Authenticator) *Manager {
	return NewManager(testGatewayConfig(), auth, fakeCatchup{}, &fakeSubscriptionStore{}, false)
}

func newTestServer(t *testing.T, m *Manager) (*httptest.Server, string) {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
		if err != nil {
			return
		}
		m.HandleConnection(r.Context(), conn)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, "ws" + srv.URL[len("http"):]
}

// dialConnect opens a connection and reads through the unconditional
// "connected" frame every connection gets regardless of authentication
// (spec §4.7); the automatic global subscription sends no ack.
func dialConnect(t *testing.T, wsURL string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)

	var ready ServerMessage
	require.NoError(t, readJSON(t, conn, &ready))
	require.Equal(t, msgTypeConnected, ready.Type)
	require.False(t, ready.Timestamp.IsZero())

	return conn
}

// dialAndAuth connects and then authenticates with a token, returning once
// the auth ack has arrived.
func dialAndAuth(t *testing.T, wsURL, token string) *websocket.Conn {
	t.Helper()
	conn := dialConnect(t, wsURL)

	require.NoError(t, writeJSON(t, conn, ClientMessage{Type: "auth", ID: "auth-1", Token: token}))

	var authAck ServerMessage
	require.NoError(t, readJSON(t, conn, &authAck))
	require.Equal(t, msgTypeAck, authAck.Type)
	require.Equal(t, "auth-1", authAck.ID)
	require.True(t, authAck.Success)

	// The agent-channel subscription made during auth carries no client id,
	// so it sends no ack: the next frame after the auth ack is our pong.
	require.NoError(t, writeJSON(t, conn, ClientMessage{Type: "ping"}))
	var pong ServerMessage
	require.NoError(t, readJSON(t, conn, &pong))
	require.Equal(t, msgTypePong, pong.Type)

	return conn
}

func TestManager_ConnectsAndSubscribesToGlobalWithoutAuth(t *testing.T) {
	auth := &fakeAuth{tokens: map[string]string{}}
	m := newManager(auth)
	_, wsURL := newTestServer(t, m)

	conn := dialConnect(t, wsURL)
	defer conn.Close(websocket.StatusNormalClosure, "")

	require.NoError(t, writeJSON(t, conn, ClientMessage{Type: "subscribe", ID: "s-1", Channel: "topics/routing"}))
	var ack ServerMessage
	require.NoError(t, readJSON(t, conn, &ack))
	require.Equal(t, msgTypeAck, ack.Type)
	require.Equal(t, "s-1", ack.ID)
	require.True(t, ack.Success)

	require.Eventually(t, func() bool { return m.ActiveConnections() == 1 }, time.Second, 10*time.Millisecond)
}

func TestManager_AuthenticatesAndSubscribesToAgentChannel(t *testing.T) {
	auth := &fakeAuth{tokens: map[string]string{"tok-1": "agent-1"}}
	m := newManager(auth)
	_, wsURL := newTestServer(t, m)

	conn := dialAndAuth(t, wsURL, "tok-1")
	defer conn.Close(websocket.StatusNormalClosure, "")

	require.Eventually(t, func() bool { return m.ActiveConnections() == 1 }, time.Second, 10*time.Millisecond)
}

func TestManager_RejectsInvalidTokenWithCloseCode(t *testing.T) {
	auth := &fakeAuth{tokens: map[string]string{}}
	m := newManager(auth)
	_, wsURL := newTestServer(t, m)

	conn := dialConnect(t, wsURL)
	defer conn.Close(websocket.StatusNormalClosure, "")

	require.NoError(t, writeJSON(t, conn, ClientMessage{Type: "auth", ID: "auth-1", Token: "bad-token"}))

	var errAck ServerMessage
	require.NoError(t, readJSON(t, conn, &errAck))
	require.Equal(t, msgTypeAck, errAck.Type)
	require.False(t, errAck.Success)
	require.NotEmpty(t, errAck.Error)

	_, _, err := conn.Read(context.Background())
	var closeErr websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	require.Equal(t, websocket.StatusCode(closeCodeInvalidToken), closeErr.Code)
}

func TestManager_NonProductionAcceptsAgentIDWithoutToken(t *testing.T) {
	auth := &fakeAuth{tokens: map[string]string{}}
	m := newManager(auth)
	_, wsURL := newTestServer(t, m)

	conn := dialConnect(t, wsURL)
	defer conn.Close(websocket.StatusNormalClosure, "")

	require.NoError(t, writeJSON(t, conn, ClientMessage{Type: "auth", ID: "auth-1", AgentID: "agent-9"}))

	var ack ServerMessage
	require.NoError(t, readJSON(t, conn, &ack))
	require.Equal(t, msgTypeAck, ack.Type)
	require.True(t, ack.Success)
}

func TestManager_ProductionRequiresTokenOnAuth(t *testing.T) {
	auth := &fakeAuth{tokens: map[string]string{}}
	m := NewManager(testGatewayConfig(), auth, fakeCatchup{}, &fakeSubscriptionStore{}, true)
	_, wsURL := newTestServer(t, m)

	conn := dialConnect(t, wsURL)
	defer conn.Close(websocket.StatusNormalClosure, "")

	require.NoError(t, writeJSON(t, conn, ClientMessage{Type: "auth", ID: "auth-1", AgentID: "agent-9"}))

	var errAck ServerMessage
	require.NoError(t, readJSON(t, conn, &errAck))
	require.False(t, errAck.Success)

	_, _, err := conn.Read(context.Background())
	var closeErr websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	require.Equal(t, websocket.StatusCode(closeCodeTokenRequired), closeErr.Code)
}

func TestManager_SubscribeRejectsPrivateAgentChannel(t *testing.T) {
	auth := &fakeAuth{tokens: map[string]string{"tok-1": "agent-1"}}
	m := newManager(auth)
	_, wsURL := newTestServer(t, m)

	conn := dialAndAuth(t, wsURL, "tok-1")
	defer conn.Close(websocket.StatusNormalClosure, "")

	require.NoError(t, writeJSON(t, conn, ClientMessage{Type: "subscribe", ID: "s-1", Channel: "agents/agent-2"}))

	var denied ServerMessage
	require.NoError(t, readJSON(t, conn, &denied))
	require.Equal(t, msgTypeAck, denied.Type)
	require.False(t, denied.Success)
}

func TestManager_RestoresPersistedSubscriptionsOnAuth(t *testing.T) {
	auth := &fakeAuth{tokens: map[string]string{"tok-1": "agent-1"}}
	m := NewManager(testGatewayConfig(), auth, fakeCatchup{}, &fakeSubscriptionStore{
		byAgent: map[string][]string{"agent-1": {"routing"}},
	}, false)
	_, wsURL := newTestServer(t, m)

	conn := dialAndAuth(t, wsURL, "tok-1")
	defer conn.Close(websocket.StatusNormalClosure, "")

	m.Dispatch(context.Background(), events.Envelope{
		Channel: "topics/routing",
		Event:   "metric.update",
		Data:    map[string]any{"foo": "bar"},
	})

	var delivered ServerMessage
	require.NoError(t, readJSON(t, conn, &delivered))
	require.Equal(t, msgTypeEvent, delivered.Type)
	require.Equal(t, "topics/routing", delivered.Channel)
}

func TestManager_Dispatch_DeliversToSubscribedChannel(t *testing.T) {
	auth := &fakeAuth{tokens: map[string]string{"tok-1": "agent-1"}}
	m := newManager(auth)
	_, wsURL := newTestServer(t, m)

	conn := dialAndAuth(t, wsURL, "tok-1")
	defer conn.Close(websocket.StatusNormalClosure, "")

	require.NoError(t, writeJSON(t, conn, ClientMessage{Type: "subscribe", ID: "s-1", Channel: "topics/routing"}))
	var subscribed ServerMessage
	require.NoError(t, readJSON(t, conn, &subscribed))
	require.Equal(t, msgTypeAck, subscribed.Type)
	require.True(t, subscribed.Success)

	m.Dispatch(context.Background(), events.Envelope{
		Channel: "topics/routing",
		Event:   "metric.update",
		Data:    map[string]any{"foo": "bar"},
	})

	var delivered ServerMessage
	require.NoError(t, readJSON(t, conn, &delivered))
	require.Equal(t, msgTypeEvent, delivered.Type)
	require.Equal(t, "topics/routing", delivered.Channel)
	require.Equal(t, "metric.update", delivered.Event)
	require.NotEmpty(t, delivered.ID)

	require.NoError(t, writeJSON(t, conn, ClientMessage{Type: "ack", ID: delivered.ID}))
}
