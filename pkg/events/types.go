// Package events implements the Postgres-backed event bus: a single
// durable dcm_events table plus a NOTIFY/LISTEN fan-out so every backend
// process observes every write without polling (spec §4.1, §4.2).
package events

import "time"

// pgChannel is the one PostgreSQL NOTIFY channel the bus ever LISTENs on.
// Logical routing ("which agents care about this event") happens inside
// the Envelope's Channel field, not at the Postgres LISTEN/NOTIFY layer —
// Postgres channels are a scarce, connection-wide resource; our own
// gateway subscriber table is not.
const pgChannel = "dcm_events"

// Envelope is the payload persisted to dcm_events and the shape of every
// message the gateway fans out to subscribed agents.
type Envelope struct {
	SequenceID int64          `json:"sequence_id"`
	Channel    string         `json:"channel"`
	Event      string         `json:"event"`
	Data       map[string]any `json:"data"`
	CreatedAt  time.Time      `json:"created_at"`
}

// GlobalChannel carries system-wide broadcasts.
const GlobalChannel = "global"

// MetricsChannel carries the periodic metric.update broadcast (spec §4.2).
const MetricsChannel = "metrics"

// SessionChannel returns the logical channel name for a session's events.
func SessionChannel(sessionID string) string { return "sessions/" + sessionID }

// AgentChannel returns the logical channel name for messages addressed to a
// single agent.
func AgentChannel(agentID string) string { return "agents/" + agentID }

// TopicChannel returns the logical channel name for a topic-based grouping.
func TopicChannel(topic string) string { return "topics/" + topic }
