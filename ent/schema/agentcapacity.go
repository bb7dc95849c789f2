package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"

	"github.com/google/uuid"
)

// AgentCapacity holds the schema definition for the AgentCapacity entity —
// a rolling token-usage gauge per agent.
type AgentCapacity struct {
	ent.Schema
}

// Fields of the AgentCapacity.
func (AgentCapacity) Fields() []ent.Field {
	return []ent.Field{
		field.UUID("id", uuid.UUID{}).
			Default(uuid.New).
			Immutable(),
		field.String("agent_id").
			Unique().
			NotEmpty().
			Immutable(),
		field.Int("current_usage").
			Default(0).
			NonNegative(),
		field.Int("max_capacity").
			Positive(),
		field.Enum("zone").
			Values("green", "yellow", "orange", "red", "critical").
			Default("green"),
		field.Time("updated_at").
			Default(time.Now).
			UpdateDefault(time.Now),
	}
}

// Edges of the AgentCapacity.
func (AgentCapacity) Edges() []ent.Edge {
	return nil
}

// Indexes of the AgentCapacity.
func (AgentCapacity) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("zone"),
	}
}
