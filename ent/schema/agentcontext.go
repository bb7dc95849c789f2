package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"

	"github.com/google/uuid"
)

// AgentContext holds the schema definition for the AgentContext entity —
// a durable per-agent role snapshot, unique per (project, agent_id).
type AgentContext struct {
	ent.Schema
}

// Fields of the AgentContext.
func (AgentContext) Fields() []ent.Field {
	return []ent.Field{
		field.UUID("id", uuid.UUID{}).
			Default(uuid.New).
			Immutable(),
		field.UUID("project_id", uuid.UUID{}).
			Immutable(),
		field.String("agent_id").
			NotEmpty().
			Immutable(),
		field.String("agent_type").
			Optional().
			Comment(`Set to "compact-snapshot" for pre-compaction context snapshots, which are exempt from the stale-context cleanup task and pruned separately on their own 24h schedule`),
		field.JSON("role_context", map[string]interface{}{}).
			Optional().
			Comment("Free-form snapshot; role_context.status discriminates running/paused/blocked/completed/etc for cleanup"),
		field.Time("last_updated").
			Default(time.Now).
			UpdateDefault(time.Now),
	}
}

// Edges of the AgentContext.
func (AgentContext) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("project", Project.Type).
			Ref("agent_contexts").
			Field("project_id").
			Unique().
			Required().
			Immutable(),
	}
}

// Indexes of the AgentContext.
func (AgentContext) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("project_id", "agent_id").
			Unique(),
		index.Fields("agent_type"),
		index.Fields("last_updated"),
	}
}
