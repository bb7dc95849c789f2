package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"

	"github.com/google/uuid"
)

// OrchestrationBatch holds the schema definition for the OrchestrationBatch
// entity — a per-wave grouping of subtasks submitted together, used to
// synthesize a combined result once every member subtask has resolved.
type OrchestrationBatch struct {
	ent.Schema
}

// Fields of the OrchestrationBatch.
func (OrchestrationBatch) Fields() []ent.Field {
	return []ent.Field{
		field.UUID("id", uuid.UUID{}).
			Default(uuid.New).
			Immutable(),
		field.UUID("task_list_id", uuid.UUID{}).
			Immutable(),
		field.String("label").
			Optional(),
		field.JSON("synthesis", map[string]interface{}{}).
			Optional().
			Comment("Aggregated result, populated once every member subtask is terminal"),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
		field.Time("completed_at").
			Optional().
			Nillable(),
	}
}

// Edges of the OrchestrationBatch.
func (OrchestrationBatch) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("task_list", TaskList.Type).
			Ref("batches").
			Field("task_list_id").
			Unique().
			Required().
			Immutable(),
		edge.To("subtasks", Subtask.Type),
	}
}

// Indexes of the OrchestrationBatch.
func (OrchestrationBatch) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("task_list_id"),
	}
}
