package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"

	"github.com/google/uuid"
)

// Blocking holds the schema definition for the Blocking entity backing the
// Blocking service — an open row means blocker_agent is holding up
// blocked_agent; closing it resolves the pair.
type Blocking struct {
	ent.Schema
}

// Fields of the Blocking.
func (Blocking) Fields() []ent.Field {
	return []ent.Field{
		field.UUID("id", uuid.UUID{}).
			Default(uuid.New).
			Immutable(),
		field.String("blocker_agent").
			NotEmpty().
			Immutable(),
		field.String("blocked_agent").
			NotEmpty().
			Immutable(),
		field.String("reason").
			Optional(),
		field.Time("opened_at").
			Default(time.Now).
			Immutable(),
		field.Time("closed_at").
			Optional().
			Nillable(),
	}
}

// Edges of the Blocking.
func (Blocking) Edges() []ent.Edge {
	return nil
}

// Indexes of the Blocking.
func (Blocking) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("blocked_agent", "closed_at"),
		index.Fields("blocker_agent", "closed_at"),
	}
}
