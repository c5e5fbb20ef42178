package mapper

import (
	"time"

	"gardener-chat-be/internal/model"
	"gardener-chat-be/pkg/store"

	"gorm.io/datatypes"
)

type ChatMapper struct{}

func NewChatMapper() *ChatMapper {
	return &ChatMapper{}
}

func (m *ChatMapper) MessageToModel(sess *store.Session, msg store.Message) *model.ChatMessage {
	var metadata datatypes.JSONMap
	if len(msg.Metadata) > 0 {
		metadata = datatypes.JSONMap(msg.Metadata)
	}
	return &model.ChatMessage{
		MessageId: msg.ID,
		SessionId: sess.ID,
		UserId:    sess.UserID,
		Sender:    string(msg.Sender),
		Type:      string(msg.Type),
		Content:   msg.Content,
		Metadata:  metadata,
		SentAt:    time.UnixMilli(msg.Timestamp).UTC(),
	}
}

func (m *ChatMapper) MessageToStore(row *model.ChatMessage) store.Message {
	if row == nil {
		return store.Message{}
	}
	var metadata map[string]interface{}
	if len(row.Metadata) > 0 {
		metadata = map[string]interface{}(row.Metadata)
	}
	return store.Message{
		ID:        row.MessageId,
		Content:   row.Content,
		Sender:    store.Sender(row.Sender),
		Timestamp: row.SentAt.UnixMilli(),
		Type:      store.MessageType(row.Type),
		Metadata:  metadata,
	}
}

func (m *ChatMapper) MessagesToStore(rows []*model.ChatMessage) []store.Message {
	out := make([]store.Message, 0, len(rows))
	for _, row := range rows {
		out = append(out, m.MessageToStore(row))
	}
	return out
}
