package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"

	accounts "github.com/goliatone/go-accounts"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Open returns a bun database for the given driver and dsn.
func Open(driver, dsn string) (*bun.DB, error) {
	switch driver {
	case DriverPostgres:
		sqldb, err := sql.Open("pgx", dsn)
		if err != nil {
			return nil, err
		}
		return bun.NewDB(sqldb, pgdialect.New()), nil
	case DriverSQLite:
		sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
		if err != nil {
			return nil, err
		}
		// sqlite serialises writers, a single connection also keeps
		// in-memory databases alive
		sqldb.SetMaxOpenConns(1)
		db := bun.NewDB(sqldb, sqlitedialect.New())
		if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
			return nil, err
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

// Stores bundles the repositories the services need.
type Stores struct {
	accounts.RepositoryManager
	graphs *DomainGraphRepository
}

// NewStores wires every repository on top of db.
func NewStores(db *bun.DB, opts ...accounts.UsersOption) *Stores {
	return &Stores{
		RepositoryManager: accounts.NewRepositoryManager(db, opts...),
		graphs:            NewDomainGraphRepository(db),
	}
}

// Graphs returns the domain graph repository.
func (s *Stores) Graphs() *DomainGraphRepository {
	return s.graphs
}

func (s *Stores) Validate() error {
	if s.RepositoryManager == nil {
		return errors.New("repository manager should be initialized")
	}

	if s.graphs == nil {
		return errors.New("repository graphs should be initialized")
	}

	return s.RepositoryManager.Validate()
}

func (s *Stores) MustValidate() {
	if err := s.Validate(); err != nil {
		log.Panic(err)
	}
}

// Migrate creates the schema when missing.
func (s *Stores) Migrate(ctx context.Context) error {
	return CreateSchema(ctx, s.DB())
}
