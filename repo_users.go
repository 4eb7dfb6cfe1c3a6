package accounts

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/uptrace/bun"
)

// pgUniqueViolation is the Postgres SQLSTATE for unique_violation
const pgUniqueViolation = "23505"

// Users is the users repository
type Users interface {
	repository.Repository[*User]

	GetByExternalID(ctx context.Context, externalID string) (*User, error)
	GetByExternalIDTx(ctx context.Context, tx bun.IDB, externalID string) (*User, error)
	GetActiveByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetActiveByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*User, error)
	Create(ctx context.Context, record *User, criteria ...repository.InsertCriteria) (*User, error)
	CreateTx(ctx context.Context, tx bun.IDB, record *User, criteria ...repository.InsertCriteria) (*User, error)
	UpdateProfile(ctx context.Context, id uuid.UUID, update ProfileUpdate) (*User, error)
	UpdateProfileTx(ctx context.Context, tx bun.IDB, id uuid.UUID, update ProfileUpdate) (*User, error)
	DeleteCascade(ctx context.Context, id uuid.UUID) error
	DeleteCascadeTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error
}

// ProfileUpdate holds the editable profile fields, nil means unchanged
type ProfileUpdate struct {
	FullName *string   `json:"fullName,omitempty"`
	Type     *UserType `json:"type,omitempty"`
}

// Empty reports whether the update changes nothing.
func (p ProfileUpdate) Empty() bool {
	return p.FullName == nil && p.Type == nil
}

type users struct {
	repository.Repository[*User]
	db  *bun.DB
	now func() time.Time
}

var (
	_ Users                        = (*users)(nil)
	_ repository.Repository[*User] = (*users)(nil)
)

// UsersOption customizes the users repository
type UsersOption func(*users)

// WithUsersClock injects the clock used for timestamps.
func WithUsersClock(now func() time.Time) UsersOption {
	return func(u *users) {
		if now != nil {
			u.now = now
		}
	}
}

// NewUsersRepository returns the bun backed users repository.
func NewUsersRepository(db *bun.DB, opts ...UsersOption) Users {
	repo := repository.NewRepository[*User](db, repository.ModelHandlers[*User]{
		NewRecord: func() *User { return &User{} },
		GetID: func(u *User) uuid.UUID {
			if u == nil {
				return uuid.Nil
			}
			return u.ID
		},
		SetID: func(u *User, id uuid.UUID) {
			if u != nil {
				u.ID = id
			}
		},
		GetIdentifier: func() string {
			return "external_id"
		},
	})

	repoUsers := &users{
		Repository: repo,
		db:         db,
		now:        time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(repoUsers)
		}
	}

	return repoUsers
}

func (a *users) GetByExternalID(ctx context.Context, externalID string) (*User, error) {
	return a.GetByExternalIDTx(ctx, a.db, externalID)
}

func (a *users) GetByExternalIDTx(ctx context.Context, tx bun.IDB, externalID string) (*User, error) {
	record := &User{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.external_id = ?", strings.TrimSpace(externalID)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					"external_id": externalID,
				})
		}
		return nil, err
	}
	return record, nil
}

func (a *users) GetActiveByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return a.GetActiveByIDTx(ctx, a.db, id)
}

func (a *users) GetActiveByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*User, error) {
	record := &User{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id).
		Where("?TableAlias.is_active = ?", true).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					"id": id.String(),
				})
		}
		return nil, err
	}
	return record, nil
}

func (a *users) Create(ctx context.Context, record *User, criteria ...repository.InsertCriteria) (*User, error) {
	return a.CreateTx(ctx, a.db, record, criteria...)
}

func (a *users) CreateTx(ctx context.Context, tx bun.IDB, record *User, criteria ...repository.InsertCriteria) (*User, error) {
	a.prepareUserDefaults(record)
	return a.Repository.CreateTx(ctx, tx, record, criteria...)
}

func (a *users) UpdateProfile(ctx context.Context, id uuid.UUID, update ProfileUpdate) (*User, error) {
	return a.UpdateProfileTx(ctx, a.db, id, update)
}

func (a *users) UpdateProfileTx(ctx context.Context, tx bun.IDB, id uuid.UUID, update ProfileUpdate) (*User, error) {
	record, err := a.GetActiveByIDTx(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	columns := []string{"updated_at"}
	if update.FullName != nil {
		record.FullName = strings.TrimSpace(*update.FullName)
		columns = append(columns, "full_name")
	}

	// role always follows type
	if update.Type != nil {
		record.Type = *update.Type
		record.Role = record.Type.Role()
		columns = append(columns, "type", "role")
	}
	record.UpdatedAt = a.now()

	_, err = tx.NewUpdate().
		Model(record).
		Column(columns...).
		WherePK().
		Exec(ctx)
	if err != nil {
		return nil, err
	}

	return record, nil
}

func (a *users) DeleteCascade(ctx context.Context, id uuid.UUID) error {
	return a.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return a.DeleteCascadeTx(ctx, tx, id)
	})
}

// DeleteCascadeTx removes the user and every owned row, leaves first. The
// caller provides the transaction.
func (a *users) DeleteCascadeTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error {
	domains := tx.NewSelect().Model((*Domain)(nil)).Column("id").Where("user_id = ?", id)
	bots := tx.NewSelect().Model((*ChatBot)(nil)).Column("id").Where("domain_id IN (?)", domains)
	customers := tx.NewSelect().Model((*Customer)(nil)).Column("id").Where("domain_id IN (?)", domains)
	rooms := tx.NewSelect().Model((*ChatRoom)(nil)).Column("id").Where("customer_id IN (?)", customers)

	steps := []*bun.DeleteQuery{
		tx.NewDelete().Model((*Message)(nil)).Where("chat_room_id IN (?)", rooms),
		tx.NewDelete().Model((*ChatRoom)(nil)).Where("customer_id IN (?)", customers),
		tx.NewDelete().Model((*Customer)(nil)).Where("domain_id IN (?)", domains),
		tx.NewDelete().Model((*FilteredQuestion)(nil)).Where("chat_bot_id IN (?)", bots),
		tx.NewDelete().Model((*ChatBot)(nil)).Where("domain_id IN (?)", domains),
		tx.NewDelete().Model((*Domain)(nil)).Where("user_id = ?", id),
	}
	for _, q := range steps {
		if _, err := q.Exec(ctx); err != nil {
			return err
		}
	}

	res, err := tx.NewDelete().Model((*User)(nil)).Where("id = ?", id).Exec(ctx)
	if err != nil {
		return err
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return repository.NewRecordNotFound().
			WithMetadata(map[string]any{
				"id": id.String(),
			})
	}

	return nil
}

func (a *users) prepareUserDefaults(record *User) {
	if record == nil {
		return
	}

	if record.Role == "" {
		record.Role = record.Type.Role()
	}

	now := a.now()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = now
	}

	if record.ID == uuid.Nil {
		record.ID = UserIDFromExternalID(record.ExternalID)
	}
}

// UserIDFromExternalID derives the local user id from the external identity id,
// so every insert for the same identity collides on the primary key too.
func UserIDFromExternalID(externalID string) uuid.UUID {
	if externalID == "" {
		return uuid.New()
	}
	id, err := hashid.NewUUID(externalID)
	if err != nil {
		return uuid.New()
	}
	return id
}

// IsUniqueViolation reports whether err is a unique constraint violation from
// Postgres (pgx) or SQLite.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}

	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value violates unique constraint")
}
