package implementation

import (
	"context"

	"gardener-chat-be/internal/mapper"
	"gardener-chat-be/internal/model"
	"gardener-chat-be/internal/repository/contract"
	"gardener-chat-be/internal/repository/specification"
	"gardener-chat-be/pkg/store"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ChatMessageRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.ChatMapper
}

func NewChatMessageRepository(db *gorm.DB) *ChatMessageRepositoryImpl {
	return &ChatMessageRepositoryImpl{
		db:     db,
		mapper: mapper.NewChatMapper(),
	}
}

var _ contract.ChatMessageRepository = (*ChatMessageRepositoryImpl)(nil)

func (r *ChatMessageRepositoryImpl) applySpecifications(db *gorm.DB, specs ...specification.Specification) *gorm.DB {
	for _, spec := range specs {
		db = spec.Apply(db)
	}
	return db
}

// Create inserts the row; a message id that is already archived is ignored.
func (r *ChatMessageRepositoryImpl) Create(ctx context.Context, message *model.ChatMessage) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "message_id"}}, DoNothing: true}).
		Create(message).Error
}

func (r *ChatMessageRepositoryImpl) FindAll(ctx context.Context, specs ...specification.Specification) ([]*model.ChatMessage, error) {
	var rows []*model.ChatMessage
	query := r.applySpecifications(r.db.WithContext(ctx).Model(&model.ChatMessage{}), specs...)
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *ChatMessageRepositoryImpl) Count(ctx context.Context, specs ...specification.Specification) (int64, error) {
	var count int64
	query := r.applySpecifications(r.db.WithContext(ctx).Model(&model.ChatMessage{}), specs...)
	err := query.Count(&count).Error
	return count, err
}

func (r *ChatMessageRepositoryImpl) DeleteBySessionId(ctx context.Context, sessionId string) error {
	return r.db.WithContext(ctx).Where("session_id = ?", sessionId).Delete(&model.ChatMessage{}).Error
}

// Archive stores one tracked message of sess.
func (r *ChatMessageRepositoryImpl) Archive(ctx context.Context, sess *store.Session, msg store.Message) error {
	return r.Create(ctx, r.mapper.MessageToModel(sess, msg))
}

// Transcript loads the newest archived messages of a session owned by userId, oldest first.
func (r *ChatMessageRepositoryImpl) Transcript(ctx context.Context, userId, sessionId string, limit int) ([]store.Message, error) {
	rows, err := r.FindAll(ctx,
		specification.BySessionID{SessionID: sessionId},
		specification.OwnedByUser{UserID: userId},
		specification.OrderBy{Field: "sent_at", Desc: true},
		specification.Limit{N: limit},
	)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
	return r.mapper.MessagesToStore(rows), nil
}
