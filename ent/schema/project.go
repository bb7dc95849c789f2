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

// Project holds the schema definition for the Project entity.
// Identity is the canonical filesystem path; creation is an upsert by path.
type Project struct {
	ent.Schema
}

// Fields of the Project.
func (Project) Fields() []ent.Field {
	return []ent.Field{
		field.UUID("id", uuid.UUID{}).
			Default(uuid.New).
			Immutable(),
		field.String("path").
			Unique().
			NotEmpty().
			Immutable().
			Comment("Canonical filesystem path — the project's natural key"),
		field.String("name").
			Optional().
			Comment("Display name, defaults to the last path segment"),
		field.JSON("metadata", map[string]interface{}{}).
			Optional().
			Comment("Free-form project metadata"),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
	}
}

// Edges of the Project.
func (Project) Edges() []ent.Edge {
	return []ent.Edge{
		edge.To("requests", Request.Type).
			Annotations(entsql.OnDelete(entsql.Cascade)),
		edge.To("agent_contexts", AgentContext.Type).
			Annotations(entsql.OnDelete(entsql.Cascade)),
	}
}

// Indexes of the Project.
func (Project) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("created_at"),
	}
}
