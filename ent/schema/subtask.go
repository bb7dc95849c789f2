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

// Subtask holds the schema definition for the Subtask entity — a unit of
// work owned by a task-list (wave) and assigned to an agent.
type Subtask struct {
	ent.Schema
}

// Fields of the Subtask.
func (Subtask) Fields() []ent.Field {
	return []ent.Field{
		field.UUID("id", uuid.UUID{}).
			Default(uuid.New).
			Immutable(),
		field.UUID("task_list_id", uuid.UUID{}).
			Immutable(),
		field.Text("description").
			NotEmpty(),
		field.Enum("status").
			Values("pending", "running", "paused", "blocked", "completed", "failed").
			Default("pending"),
		field.String("agent_type").
			Optional().
			Nillable(),
		field.String("agent_id").
			Optional().
			Nillable(),
		field.Int("priority").
			Default(5),
		field.Int("retry_count").
			Default(0).
			NonNegative(),
		field.JSON("blocked_by", []string{}).
			Optional().
			Comment("Sibling subtask ids that must resolve before this one can run"),
		field.String("parent_agent_id").
			Optional().
			Nillable().
			Comment("Set for subtasks created via hierarchical delegation"),
		field.UUID("batch_id", uuid.UUID{}).
			Optional().
			Nillable(),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
		field.Time("started_at").
			Optional().
			Nillable(),
		field.Time("completed_at").
			Optional().
			Nillable(),
		field.JSON("result", map[string]interface{}{}).
			Optional(),
	}
}

// Edges of the Subtask.
func (Subtask) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("task_list", TaskList.Type).
			Ref("subtasks").
			Field("task_list_id").
			Unique().
			Required().
			Immutable(),
		edge.From("batch", OrchestrationBatch.Type).
			Ref("subtasks").
			Field("batch_id").
			Unique(),
		edge.To("actions", Action.Type).
			Annotations(entsql.OnDelete(entsql.Cascade)),
	}
}

// Indexes of the Subtask.
func (Subtask) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("task_list_id"),
		index.Fields("status"),
		index.Fields("agent_type"),
		index.Fields("agent_id"),
		index.Fields("parent_agent_id"),
		index.Fields("task_list_id", "status"),
	}
}
