package schema

import (
	"entgo.io/ent"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// KeywordToolScore holds the schema definition for the KeywordToolScore
// entity — the Routing Engine's feedback-weighted keyword→tool scores.
// Unlike every other entity this uses a surrogate integer id (spec §6.7).
type KeywordToolScore struct {
	ent.Schema
}

// Fields of the KeywordToolScore.
func (KeywordToolScore) Fields() []ent.Field {
	return []ent.Field{
		field.Int("id").
			Immutable(),
		field.String("keyword").
			NotEmpty().
			Immutable(),
		field.String("tool_name").
			NotEmpty().
			Immutable(),
		field.String("tool_type").
			Optional(),
		field.Float("score").
			Default(0).
			Min(0).
			Max(10),
		field.Int("usage_count").
			Default(0).
			NonNegative(),
		field.Int("success_count").
			Default(0).
			NonNegative(),
		field.Time("last_used").
			Optional().
			Nillable(),
	}
}

// Edges of the KeywordToolScore.
func (KeywordToolScore) Edges() []ent.Edge {
	return nil
}

// Indexes of the KeywordToolScore.
func (KeywordToolScore) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("keyword", "tool_name").
			Unique(),
		index.Fields("tool_type"),
		index.Fields("score"),
	}
}
