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

// TaskList holds the schema definition for the TaskList (wave) entity —
// an ordered group of subtasks within a request.
//
// session_id is denormalized from the owning request so that invariant 2
// ("within one session, (session, wave_number) is unique") and the Wave
// Controller's (session, wave_number) lookups do not require a join
// through Request on every call — the same denormalization tarsy uses
// for Stage.session_id against AlertSession.
type TaskList struct {
	ent.Schema
}

// Fields of the TaskList.
func (TaskList) Fields() []ent.Field {
	return []ent.Field{
		field.UUID("id", uuid.UUID{}).
			Default(uuid.New).
			Immutable(),
		field.UUID("request_id", uuid.UUID{}).
			Immutable(),
		field.String("session_id").
			Immutable(),
		field.Int("wave_number").
			Min(0).
			Immutable(),
		field.Enum("status").
			Values("pending", "running", "completed", "failed").
			Default("pending"),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
		field.Time("started_at").
			Optional().
			Nillable(),
		field.Time("completed_at").
			Optional().
			Nillable(),
	}
}

// Edges of the TaskList.
func (TaskList) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("request", Request.Type).
			Ref("task_lists").
			Field("request_id").
			Unique().
			Required().
			Immutable(),
		edge.To("subtasks", Subtask.Type).
			Annotations(entsql.OnDelete(entsql.Cascade)),
		edge.To("batches", OrchestrationBatch.Type).
			Annotations(entsql.OnDelete(entsql.Cascade)),
	}
}

// Indexes of the TaskList.
func (TaskList) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("session_id", "wave_number").
			Unique(),
		index.Fields("request_id"),
	}
}
