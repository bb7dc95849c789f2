package gateway

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/require"
)

func TestServer_StartWithListener_AcceptsUpgrade(t *testing.T) {
	auth := &fakeAuth{tokens: map[string]string{"tok-1": "agent-1"}}
	m := newManager(auth)
	srv := NewServer(m)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	go func() { _ = srv.StartWithListener(ln) }()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})

	wsURL := "ws://" + ln.Addr().String() + "/"
	conn := dialAndAuth(t, wsURL, "tok-1")
	defer conn.Close(websocket.StatusNormalClosure, "")

	require.Eventually(t, func() bool { return m.ActiveConnections() == 1 }, time.Second, 10*time.Millisecond)
}
