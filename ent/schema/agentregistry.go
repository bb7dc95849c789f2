package schema

import (
	"entgo.io/ent"
	"entgo.io/ent/schema/field"
)

// AgentRegistry holds the schema definition for the AgentRegistry entity —
// a catalog entry describing an agent type's capabilities and limits.
type AgentRegistry struct {
	ent.Schema
}

// Fields of the AgentRegistry.
func (AgentRegistry) Fields() []ent.Field {
	return []ent.Field{
		field.String("agent_type").
			Unique().
			Immutable().
			Comment("Catalog key, e.g. 'kubernetes-investigator'"),
		field.String("category").
			Optional(),
		field.JSON("allowed_tools", []string{}).
			Optional(),
		field.JSON("forbidden_actions", []string{}).
			Optional(),
		field.Int("max_files").
			Optional().
			Nillable(),
		field.JSON("wave_assignments", []int{}).
			Optional(),
		field.String("recommended_model").
			Optional(),
	}
}

// Edges of the AgentRegistry.
func (AgentRegistry) Edges() []ent.Edge {
	return nil
}
