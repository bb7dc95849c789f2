package services

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"time"

	"github.com/codeready-toolchain/dcm/ent"
	"github.com/codeready-toolchain/dcm/ent/agentmessage"
	"github.com/codeready-toolchain/dcm/pkg/database"
	"github.com/codeready-toolchain/dcm/pkg/events"
)

// MessageService manages inter-agent messages: direct or broadcast,
// with priority and TTL (spec §4.3 "Message service — detail").
type MessageService struct {
	db  *database.Client
	pub *events.Publisher
}

// NewMessageService creates a new MessageService.
func NewMessageService(db *database.Client, pub *events.Publisher) *MessageService {
	return &MessageService{db: db, pub: pub}
}

// PostMessageRequest is the input to PostMessage.
type PostMessageRequest struct {
	FromAgent string              `json:"from_agent"`
	ToAgent   string              `json:"to_agent,omitempty"`
	Topic     agentmessage.Topic  `json:"topic"`
	Content   any                 `json:"content"`
	Priority  int                 `json:"priority,omitempty"`
	TTLSecs   int                 `json:"ttl_seconds,omitempty"`
}

// PostMessage persists a message and emits message.new.
func (s *MessageService) PostMessage(ctx context.Context, req PostMessageRequest) (*ent.AgentMessage, error) {
	if req.FromAgent == "" {
		return nil, NewValidationError("from_agent", "required")
	}
	if err := agentmessage.TopicValidator(req.Topic); err != nil {
		return nil, NewValidationError("topic", err.Error())
	}
	if req.Priority < 0 || req.Priority > 10 {
		return nil, NewValidationError("priority", "must be between 0 and 10")
	}
	ttl := req.TTLSecs
	if ttl == 0 {
		ttl = 3600
	}
	if ttl < 1 || ttl > 86400 {
		return nil, NewValidationError("ttl_seconds", "must be between 1 and 86400")
	}

	payload, ok := req.Content.(map[string]any)
	if !ok {
		payload = map[string]any{"message": req.Content}
	}

	var out *ent.AgentMessage
	err := s.db.WithTx(ctx, func(ctx context.Context, tx *sql.Tx, tc *ent.Client) error {
		builder := tc.AgentMessage.Create().
			SetFromAgent(req.FromAgent).
			SetTopic(req.Topic).
			SetPayload(payload).
			SetPriority(req.Priority).
			SetExpiresAt(time.Now().Add(time.Duration(ttl) * time.Second))
		if req.ToAgent != "" {
			builder = builder.SetToAgent(req.ToAgent)
		}

		created, err := builder.Save(ctx)
		if err != nil {
			return fmt.Errorf("failed to post message: %w", err)
		}
		out = created

		if err := s.pub.Publish(ctx, tx, events.GlobalChannel, "message.new", map[string]any{
			"id":         created.ID.String(),
			"from_agent": created.FromAgent,
			"topic":      string(created.Topic),
		}); err != nil {
			return err
		}

		if req.ToAgent != "" {
			if err := s.pub.Publish(ctx, tx, events.AgentChannel(req.ToAgent), "message.new", map[string]any{
				"id":         created.ID.String(),
				"from_agent": created.FromAgent,
				"topic":      string(created.Topic),
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// VisibleMessage decorates a message with the per-reader flags the spec
// requires (already_read, is_broadcast) that don't belong on the stored
// entity itself.
type VisibleMessage struct {
	*ent.AgentMessage
	AlreadyRead bool `json:"already_read"`
	IsBroadcast bool `json:"is_broadcast"`
}

// MessageFilters filters GetMessages.
type MessageFilters struct {
	Topic             agentmessage.Topic
	Since             *time.Time
	IncludeBroadcasts bool
	Limit             int
}

// GetMessages returns messages visible to agentID: direct messages
// addressed to it, plus broadcasts when requested, excluding expired ones.
func (s *MessageService) GetMessages(ctx context.Context, agentID string, filters MessageFilters) ([]VisibleMessage, error) {
	if agentID == "" {
		return nil, NewValidationError("agent_id", "required")
	}

	query := s.db.AgentMessage.Query().
		Where(agentmessage.Or(
			agentmessage.ExpiresAtIsNil(),
			agentmessage.ExpiresAtGT(time.Now()),
		))

	if filters.IncludeBroadcasts {
		query = query.Where(agentmessage.Or(
			agentmessage.ToAgentEQ(agentID),
			agentmessage.ToAgentIsNil(),
		))
	} else {
		query = query.Where(agentmessage.ToAgentEQ(agentID))
	}

	if filters.Topic != "" {
		query = query.Where(agentmessage.TopicEQ(filters.Topic))
	}
	if filters.Since != nil {
		query = query.Where(agentmessage.CreatedAtGTE(*filters.Since))
	}

	limit := filters.Limit
	if limit <= 0 {
		limit = 100
	}

	messages, err := query.
		Order(ent.Desc(agentmessage.FieldCreatedAt)).
		Limit(limit).
		All(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get messages: %w", err)
	}

	out := make([]VisibleMessage, len(messages))
	for i, m := range messages {
		out[i] = VisibleMessage{
			AgentMessage: m,
			AlreadyRead:  slices.Contains(m.ReadBy, agentID),
			IsBroadcast:  m.ToAgent == nil,
		}
	}
	return out, nil
}

// MarkRead idempotently records that agentID has read a message, emitting
// message.read on the first read only.
func (s *MessageService) MarkRead(ctx context.Context, agentID, messageID string) error {
	if agentID == "" {
		return NewValidationError("agent_id", "required")
	}
	uid, err := parseUUID(messageID)
	if err != nil {
		return NewValidationError("message_id", "must be a UUID")
	}

	return s.db.WithTx(ctx, func(ctx context.Context, tx *sql.Tx, tc *ent.Client) error {
		msg, err := tc.AgentMessage.Get(ctx, uid)
		if err != nil {
			if ent.IsNotFound(err) {
				return ErrNotFound
			}
			return fmt.Errorf("failed to get message: %w", err)
		}

		if slices.Contains(msg.ReadBy, agentID) {
			return nil
		}

		if err := tc.AgentMessage.UpdateOneID(uid).
			SetReadBy(append(slices.Clone(msg.ReadBy), agentID)).
			Exec(ctx); err != nil {
			return fmt.Errorf("failed to mark message read: %w", err)
		}

		return s.pub.Publish(ctx, tx, events.GlobalChannel, "message.read", map[string]any{
			"id":       messageID,
			"agent_id": agentID,
		})
	})
}
