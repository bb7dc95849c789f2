package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"

	"github.com/google/uuid"
)

// WaveState holds the schema definition for the WaveState entity — the
// Wave Controller's per-(session, wave_number) counters and status.
//
// Rows here can be synthesized at read time from TaskList aggregates when
// absent (see SPEC_FULL.md §13.3's write-through resolution of the
// wave-history Open Question); StartWave/CompleteTask always write through an
// upserted row, so a row's absence only ever happens before the first
// StartWave/CompleteTask call for that (session, wave_number).
type WaveState struct {
	ent.Schema
}

// Fields of the WaveState.
func (WaveState) Fields() []ent.Field {
	return []ent.Field{
		field.UUID("id", uuid.UUID{}).
			Default(uuid.New).
			Immutable(),
		field.String("session_id").
			Immutable(),
		field.Int("wave_number").
			Min(0).
			Immutable(),
		field.Int("total_tasks").
			Default(0).
			NonNegative(),
		field.Int("completed_tasks").
			Default(0).
			NonNegative(),
		field.Int("failed_tasks").
			Default(0).
			NonNegative(),
		field.Enum("status").
			Values("pending", "running", "completed", "failed").
			Default("pending"),
		field.Time("started_at").
			Optional().
			Nillable(),
		field.Time("completed_at").
			Optional().
			Nillable(),
	}
}

// Edges of the WaveState.
func (WaveState) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("session", Session.Type).
			Ref("wave_states").
			Field("session_id").
			Unique().
			Required().
			Immutable(),
	}
}

// Indexes of the WaveState.
func (WaveState) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("session_id", "wave_number").
			Unique(),
		index.Fields("session_id", "status"),
	}
}
