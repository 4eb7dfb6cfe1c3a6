package repository

import (
	"context"

	accounts "github.com/goliatone/go-accounts"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// DomainGraphRepository implements accounts.DomainGraphs using Bun.
type DomainGraphRepository struct {
	db bun.IDB
}

var _ accounts.DomainGraphs = (*DomainGraphRepository)(nil)

// NewDomainGraphRepository creates a new repository.
func NewDomainGraphRepository(db bun.IDB) *DomainGraphRepository {
	return &DomainGraphRepository{db: db}
}

// ActiveDomains implements accounts.DomainGraphs.
func (r *DomainGraphRepository) ActiveDomains(ctx context.Context, userID uuid.UUID) ([]*accounts.Domain, error) {
	domains := []*accounts.Domain{}
	err := r.db.NewSelect().
		Model(&domains).
		Where("?TableAlias.user_id = ?", userID).
		Where("?TableAlias.is_active = ?", true).
		Relation("ChatBots", activeOnly).
		Relation("ChatBots.FilteredQuestions", activeOnly).
		Relation("Customers", activeOnly).
		Relation("Customers.ChatRooms", activeOnly).
		OrderExpr("?TableAlias.created_at DESC, ?TableAlias.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return domains, nil
}

// RecentMessages implements accounts.DomainGraphs.
func (r *DomainGraphRepository) RecentMessages(ctx context.Context, chatRoomID uuid.UUID, limit int) ([]*accounts.Message, error) {
	messages := []*accounts.Message{}
	err := r.db.NewSelect().
		Model(&messages).
		Where("?TableAlias.chat_room_id = ?", chatRoomID).
		OrderExpr("?TableAlias.created_at DESC, ?TableAlias.id ASC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return messages, nil
}

func activeOnly(q *bun.SelectQuery) *bun.SelectQuery {
	return q.
		Where("?TableAlias.is_active = ?", true).
		OrderExpr("?TableAlias.created_at ASC, ?TableAlias.id ASC")
}
