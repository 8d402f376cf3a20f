package sqlstore

import (
	"database/sql"
	"fmt"

	persistence "github.com/goliatone/go-persistence-bun"
	"github.com/goliatone/go-slack/migrations"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"
)

// Dialect maps a database/sql driver name to its bun dialect.
func Dialect(driver string) (schema.Dialect, error) {
	dialect, err := migrations.NormalizeDialect(driver)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: %w", err)
	}
	if dialect == migrations.DialectSQLite {
		return sqlitedialect.New(), nil
	}
	return pgdialect.New(), nil
}

// NewDB wraps an opened *sql.DB with the dialect for driver.
func NewDB(sqlDB *sql.DB, driver string) (*bun.DB, error) {
	if sqlDB == nil {
		return nil, fmt.Errorf("sqlstore: sql db is required")
	}
	dialect, err := Dialect(driver)
	if err != nil {
		return nil, err
	}
	return bun.NewDB(sqlDB, dialect), nil
}

// NewEventDeliveryStoreFromPersistence accepts a *bun.DB or anything exposing
// DB() *bun.DB, such as a go-persistence-bun client.
func NewEventDeliveryStoreFromPersistence(client any) (*EventDeliveryStore, error) {
	db, err := resolveBunDB(client)
	if err != nil {
		return nil, err
	}
	return NewEventDeliveryStore(db)
}

func resolveBunDB(candidate any) (*bun.DB, error) {
	switch typed := candidate.(type) {
	case nil:
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	case *bun.DB:
		return typed, nil
	case *persistence.Client:
		if typed == nil || typed.DB() == nil {
			return nil, fmt.Errorf("sqlstore: persistence client returned nil bun db")
		}
		return typed.DB(), nil
	case interface{ DB() *bun.DB }:
		db := typed.DB()
		if db == nil {
			return nil, fmt.Errorf("sqlstore: persistence client returned nil bun db")
		}
		return db, nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported persistence client type %T", candidate)
	}
}
