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

// Request holds the schema definition for the Request entity — one user
// prompt under a session, owned by exactly one project.
type Request struct {
	ent.Schema
}

// Fields of the Request.
func (Request) Fields() []ent.Field {
	return []ent.Field{
		field.UUID("id", uuid.UUID{}).
			Default(uuid.New).
			Immutable(),
		field.UUID("project_id", uuid.UUID{}).
			Immutable(),
		field.String("session_id").
			Immutable(),
		field.Text("prompt_text").
			NotEmpty(),
		field.Enum("status").
			Values("active", "in_progress", "completed", "failed").
			Default("active"),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
		field.Time("completed_at").
			Optional().
			Nillable(),
	}
}

// Edges of the Request.
func (Request) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("project", Project.Type).
			Ref("requests").
			Field("project_id").
			Unique().
			Required().
			Immutable(),
		edge.From("session", Session.Type).
			Ref("requests").
			Field("session_id").
			Unique().
			Required().
			Immutable(),
		edge.To("task_lists", TaskList.Type).
			Annotations(entsql.OnDelete(entsql.Cascade)),
	}
}

// Indexes of the Request.
func (Request) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("project_id"),
		index.Fields("session_id"),
		index.Fields("status"),
	}
}
