package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"

	"github.com/google/uuid"
)

// AgentMessage holds the schema definition for the AgentMessage entity —
// an inter-agent payload, direct or broadcast, with priority and TTL.
type AgentMessage struct {
	ent.Schema
}

// Fields of the AgentMessage.
func (AgentMessage) Fields() []ent.Field {
	return []ent.Field{
		field.UUID("id", uuid.UUID{}).
			Default(uuid.New).
			Immutable(),
		field.String("from_agent").
			NotEmpty().
			Immutable(),
		field.String("to_agent").
			Optional().
			Nillable().
			Immutable().
			Comment("null means broadcast to every agent"),
		field.String("kind").
			Default("notice").
			Immutable(),
		field.Enum("topic").
			Values(
				"task.created", "task.completed", "task.failed",
				"context.request", "context.response",
				"alert.blocking",
				"agent.heartbeat", "agent.started", "agent.completed",
				"workflow.progress",
			).
			Immutable(),
		field.JSON("payload", map[string]interface{}{}).
			Optional(),
		field.Int("priority").
			Default(0).
			Min(0).
			Max(10).
			Immutable(),
		field.JSON("read_by", []string{}).
			Optional().
			Comment("Agent ids that have already read this message"),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
		field.Time("expires_at").
			Optional().
			Nillable(),
	}
}

// Edges of the AgentMessage.
func (AgentMessage) Edges() []ent.Edge {
	return nil
}

// Indexes of the AgentMessage.
func (AgentMessage) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("to_agent"),
		index.Fields("expires_at"),
		index.Fields("topic"),
		index.Fields("created_at"),
	}
}
