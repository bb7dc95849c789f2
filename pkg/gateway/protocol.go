// Package gateway implements the Real-Time Gateway: the persistent
// WebSocket connection pool agents use to subscribe to channels, publish
// messages, and receive at-least-once delivery with acknowledgement
// (spec §4.7, §6.1-§6.3).
package gateway

import (
	"strings"
	"time"
)

// ClientMessage is a frame sent by an agent over its WebSocket connection.
// Type discriminates the frame (spec §6.2); every other field is only
// meaningful for certain types.
type ClientMessage struct {
	Type      string    `json:"type"` // subscribe | unsubscribe | publish | auth | ping | pong | ack
	ID        string    `json:"id,omitempty"`
	Timestamp time.Time `json:"timestamp,omitempty"`
	Channel   string    `json:"channel,omitempty"`
	Event     string    `json:"event,omitempty"`
	Data      any       `json:"data,omitempty"`
	Token     string    `json:"token,omitempty"`      // carried on the auth frame
	AgentID   string    `json:"agent_id,omitempty"`   // auth frame, non-production fallback identity
	SessionID string    `json:"session_id,omitempty"` // auth frame, triggers auto-subscribe to sessions/{id}
	SinceID   int64     `json:"since_id,omitempty"`
}

// ServerMessage is a frame sent from the gateway to an agent. Every frame
// the gateway sends carries Type and Timestamp; ID echoes the triggering
// ClientMessage's ID on ack frames, or carries a server-generated id for
// event deliveries awaiting acknowledgement.
type ServerMessage struct {
	Type       string    `json:"type"`
	ID         string    `json:"id,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	Channel    string    `json:"channel,omitempty"`
	Event      string    `json:"event,omitempty"`
	Data       any       `json:"data,omitempty"`
	SequenceID int64     `json:"sequence_id,omitempty"`
	Message    string    `json:"message,omitempty"`
	ClientID   string    `json:"client_id,omitempty"`
	Success    bool      `json:"success,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// ackMsg builds the unified acknowledgement frame (spec §6.2) used for
// every request/response exchange: auth, subscribe, unsubscribe, publish.
func ackMsg(id string, success bool, errMsg string) ServerMessage {
	return ServerMessage{Type: msgTypeAck, ID: id, Success: success, Error: errMsg}
}

const (
	msgTypeConnected       = "connected"
	msgTypeAck             = "ack"
	msgTypeEvent           = "event"
	msgTypePing            = "ping"
	msgTypePong            = "pong"
	msgTypeError           = "error"
	msgTypeCatchupOverflow = "catchup.overflow"
)

// WebSocket close codes the gateway disconnects with: heartbeat timeout
// (4000) and the three authentication failures (4001-4003, spec §7).
const (
	closeCodeHeartbeatTimeout   = 4000
	closeCodeInvalidToken       = 4001
	closeCodeTokenRequired      = 4002
	closeCodeMissingCredentials = 4003
)

// validEventNames is the enumerated set of event names a client may
// publish (spec §6.5).
var validEventNames = map[string]bool{
	"task.created": true, "task.updated": true, "task.completed": true, "task.failed": true,
	"subtask.created": true, "subtask.updated": true, "subtask.completed": true, "subtask.failed": true, "subtask.running": true,
	"message.new": true, "message.read": true, "message.expired": true,
	"agent.connected": true, "agent.disconnected": true, "agent.heartbeat": true, "agent.blocked": true, "agent.unblocked": true,
	"session.created": true, "session.ended": true,
	"wave.transitioned": true, "wave.completed": true, "wave.failed": true,
	"metric.update": true,
	"system.error": true, "system.info": true,
}

// validChannel checks a channel name against the taxonomy of spec §6.1:
// exact match for global and metrics, prefix match for agents/, sessions/
// and topics/, anything else invalid.
func validChannel(channel string) bool {
	switch channel {
	case "global", "metrics":
		return true
	}
	for _, prefix := range []string{"agents/", "sessions/", "topics/"} {
		if strings.HasPrefix(channel, prefix) && len(channel) > len(prefix) {
			return true
		}
	}
	return false
}
