package contract

import (
	"context"

	"gardener-chat-be/internal/model"
	"gardener-chat-be/internal/repository/specification"
)

type ChatMessageRepository interface {
	Create(ctx context.Context, message *model.ChatMessage) error
	FindAll(ctx context.Context, specs ...specification.Specification) ([]*model.ChatMessage, error)
	Count(ctx context.Context, specs ...specification.Specification) (int64, error)
	DeleteBySessionId(ctx context.Context, sessionId string) error
}
