package store

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"

	"github.com/dmitrijs2005/scrollkeeper/internal/dbx"
	pgmigrations "github.com/dmitrijs2005/scrollkeeper/internal/migrations/postgres"
	sqlitemigrations "github.com/dmitrijs2005/scrollkeeper/internal/migrations/sqlite"
	"github.com/dmitrijs2005/scrollkeeper/internal/repositories/metadata"
	"github.com/dmitrijs2005/scrollkeeper/internal/repositories/readings"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	_ "modernc.org/sqlite"
)

// SQLStore implements Store over SQLite or PostgreSQL.
type SQLStore struct {
	db      *sql.DB
	conn    dbx.DBTX
	dialect dbx.Dialect
	txOpts  *sql.TxOptions
	inTx    bool
}

// NewSQLStore wraps an already migrated database.
func NewSQLStore(db *sql.DB, dialect dbx.Dialect) *SQLStore {
	s := &SQLStore{db: db, conn: db, dialect: dialect}
	if dialect == dbx.Postgres {
		// The chain head is read then written inside Atomic; serializable
		// isolation makes concurrent writers fail instead of forking the chain.
		s.txOpts = &sql.TxOptions{Isolation: sql.LevelSerializable}
	}
	return s
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// RunMigrations applies the embedded migrations of the given dialect.
func RunMigrations(ctx context.Context, db *sql.DB, dialect dbx.Dialect) error {
	var (
		fsys        fs.FS
		gooseDialect string
	)
	switch dialect {
	case dbx.SQLite:
		fsys, gooseDialect = sqlitemigrations.Migrations, "sqlite3"
	case dbx.Postgres:
		fsys, gooseDialect = pgmigrations.Migrations, "pgx"
	default:
		return fmt.Errorf("unsupported dialect %q", dialect)
	}

	goose.SetBaseFS(fsys)
	if err := goose.SetDialect(gooseDialect); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	if err := gooseUpContext(ctx, db, "."); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// OpenSQLite opens (creating if needed) a SQLite database and migrates it.
func OpenSQLite(ctx context.Context, dsn string) (*SQLStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	// A single connection serializes writers and keeps ":memory:" databases
	// visible to every query.
	db.SetMaxOpenConns(1)

	if err := RunMigrations(ctx, db, dbx.SQLite); err != nil {
		_ = db.Close()
		return nil, err
	}
	return NewSQLStore(db, dbx.SQLite), nil
}

// OpenPostgres connects through the pgx stdlib driver and migrates.
func OpenPostgres(ctx context.Context, dsn string) (*SQLStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to reach postgres: %w", err)
	}
	if err := RunMigrations(ctx, db, dbx.Postgres); err != nil {
		_ = db.Close()
		return nil, err
	}
	return NewSQLStore(db, dbx.Postgres), nil
}

func (s *SQLStore) Metadata() metadata.Repository {
	return metadata.NewSQLRepository(s.conn, s.dialect)
}

func (s *SQLStore) Readings() readings.Repository {
	return readings.NewSQLRepository(s.conn, s.dialect)
}

func (s *SQLStore) Atomic(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	if s.inTx {
		return fn(ctx, s)
	}
	return dbx.WithTx(ctx, s.db, s.txOpts, func(ctx context.Context, tx dbx.DBTX) error {
		return fn(ctx, &SQLStore{db: s.db, conn: tx, dialect: s.dialect, txOpts: s.txOpts, inTx: true})
	})
}

func (s *SQLStore) Close() error {
	if s.inTx {
		return nil
	}
	return s.db.Close()
}
