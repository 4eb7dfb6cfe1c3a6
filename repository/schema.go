package repository

import (
	"context"
	"fmt"

	accounts "github.com/goliatone/go-accounts"
	"github.com/uptrace/bun"
)

type tableSpec struct {
	name    string
	model   any
	fks     []string
	indexes [][]string
}

var schemaTables = []tableSpec{
	{name: "users", model: (*accounts.User)(nil)},
	{
		name:    "domains",
		model:   (*accounts.Domain)(nil),
		fks:     []string{`("user_id") REFERENCES "users" ("id") ON DELETE CASCADE`},
		indexes: [][]string{{"user_id"}},
	},
	{
		name:    "chat_bots",
		model:   (*accounts.ChatBot)(nil),
		fks:     []string{`("domain_id") REFERENCES "domains" ("id") ON DELETE CASCADE`},
		indexes: [][]string{{"domain_id"}},
	},
	{
		name:    "filtered_questions",
		model:   (*accounts.FilteredQuestion)(nil),
		fks:     []string{`("chat_bot_id") REFERENCES "chat_bots" ("id") ON DELETE CASCADE`},
		indexes: [][]string{{"chat_bot_id"}},
	},
	{
		name:    "customers",
		model:   (*accounts.Customer)(nil),
		fks:     []string{`("domain_id") REFERENCES "domains" ("id") ON DELETE CASCADE`},
		indexes: [][]string{{"domain_id"}},
	},
	{
		name:    "chat_rooms",
		model:   (*accounts.ChatRoom)(nil),
		fks:     []string{`("customer_id") REFERENCES "customers" ("id") ON DELETE CASCADE`},
		indexes: [][]string{{"customer_id"}},
	},
	{
		name:    "messages",
		model:   (*accounts.Message)(nil),
		fks:     []string{`("chat_room_id") REFERENCES "chat_rooms" ("id") ON DELETE CASCADE`},
		indexes: [][]string{{"chat_room_id", "created_at"}},
	},
}

// CreateSchema creates the tables, foreign keys and indexes if missing.
func CreateSchema(ctx context.Context, db bun.IDB) error {
	for _, t := range schemaTables {
		q := db.NewCreateTable().Model(t.model).IfNotExists()
		for _, fk := range t.fks {
			q = q.ForeignKey(fk)
		}
		if _, err := q.Exec(ctx); err != nil {
			return fmt.Errorf("create table %T: %w", t.model, err)
		}

		for _, cols := range t.indexes {
			name := t.name + "_" + cols[0] + "_idx"
			_, err := db.NewCreateIndex().
				Model(t.model).
				Index(name).
				Column(cols...).
				IfNotExists().
				Exec(ctx)
			if err != nil {
				return fmt.Errorf("create index %s: %w", name, err)
			}
		}
	}
	return nil
}
