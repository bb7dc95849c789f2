package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"

	"github.com/google/uuid"
)

// TokenConsumption holds the schema definition for the TokenConsumption
// entity — append-only per-action token accounting.
type TokenConsumption struct {
	ent.Schema
}

// Fields of the TokenConsumption.
func (TokenConsumption) Fields() []ent.Field {
	return []ent.Field{
		field.UUID("id", uuid.UUID{}).
			Default(uuid.New).
			Immutable(),
		field.UUID("action_id", uuid.UUID{}).
			Immutable(),
		field.String("agent_id").
			NotEmpty().
			Immutable(),
		field.Int("tokens_used").
			NonNegative().
			Immutable(),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
	}
}

// Edges of the TokenConsumption.
func (TokenConsumption) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("action", Action.Type).
			Ref("token_consumptions").
			Field("action_id").
			Unique().
			Required().
			Immutable(),
	}
}

// Indexes of the TokenConsumption.
func (TokenConsumption) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("agent_id"),
		index.Fields("created_at"),
	}
}
