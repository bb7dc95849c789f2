package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/dialect/entsql"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"

	"github.com/google/uuid"
)

// Action holds the schema definition for the Action entity — a single
// tool invocation recorded against a subtask.
type Action struct {
	ent.Schema
}

// Fields of the Action.
func (Action) Fields() []ent.Field {
	return []ent.Field{
		field.UUID("id", uuid.UUID{}).
			Default(uuid.New).
			Immutable(),
		field.UUID("subtask_id", uuid.UUID{}).
			Immutable(),
		field.String("tool_name").
			NotEmpty().
			Immutable(),
		field.Enum("tool_kind").
			Values("builtin", "agent", "skill", "command", "mcp").
			Immutable(),
		field.Bytes("input").
			Optional().
			Comment("Compressed opaque input blob — readers must not assume a text encoding"),
		field.Bytes("output").
			Optional().
			Comment("Compressed opaque output blob"),
		field.Int("exit_code").
			Optional().
			Nillable(),
		field.Int("duration_ms").
			Default(0).
			NonNegative(),
		field.JSON("affected_paths", []string{}).
			Optional(),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
	}
}

// Edges of the Action.
func (Action) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("subtask", Subtask.Type).
			Ref("actions").
			Field("subtask_id").
			Unique().
			Required().
			Immutable(),
		edge.To("token_consumptions", TokenConsumption.Type).
			Annotations(entsql.OnDelete(entsql.Cascade)),
	}
}

// Indexes of the Action.
func (Action) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("subtask_id"),
		index.Fields("created_at"),
		index.Fields("tool_name"),
	}
}
