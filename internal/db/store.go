package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/randalmurphal/taskboard/internal/db/driver"
)

// DefaultPath is the SQLite database location relative to the board root.
const DefaultPath = ".taskboard/taskboard.db"

// TxRunner provides a transactional execution interface.
type TxRunner interface {
	// RunInTx executes fn within a transaction. If fn returns an error the
	// transaction is rolled back, otherwise it is committed.
	RunInTx(ctx context.Context, fn func(tx *TxOps) error) error
}

// queryer is the statement surface shared by TxOps and a context-bound DB.
type queryer interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

// TxOps provides database operations within a transaction. The context
// passed to RunInTx is used for every statement.
type TxOps struct {
	tx      driver.Tx
	dialect driver.Dialect
	ctx     context.Context
	now     time.Time
}

// Exec executes a query within the transaction.
func (t *TxOps) Exec(query string, args ...any) (sql.Result, error) {
	return t.tx.Exec(t.ctx, query, args...)
}

// Query executes a query that returns rows within the transaction.
func (t *TxOps) Query(query string, args ...any) (*sql.Rows, error) {
	return t.tx.Query(t.ctx, query, args...)
}

// QueryRow executes a query that returns at most one row within the transaction.
func (t *TxOps) QueryRow(query string, args ...any) *sql.Row {
	return t.tx.QueryRow(t.ctx, query, args...)
}

// Context returns the context associated with this transaction.
func (t *TxOps) Context() context.Context {
	return t.ctx
}

// Now returns the timestamp used for every write in this transaction.
func (t *TxOps) Now() time.Time {
	return t.now
}

// ctxDB binds a context to DB so it satisfies queryer.
type ctxDB struct {
	db  *DB
	ctx context.Context
}

func (c ctxDB) Exec(query string, args ...any) (sql.Result, error) {
	return c.db.ExecContext(c.ctx, query, args...)
}

func (c ctxDB) Query(query string, args ...any) (*sql.Rows, error) {
	return c.db.QueryContext(c.ctx, query, args...)
}

func (c ctxDB) QueryRow(query string, args ...any) *sql.Row {
	return c.db.QueryRowContext(c.ctx, query, args...)
}

// Store is the task store. Every other component reads and writes tasks,
// projects, and work notes through it.
type Store struct {
	*DB
	logger *slog.Logger
	clock  func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for data-quality warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.clock = now
		}
	}
}

func newStore(d *DB, opts ...Option) *Store {
	s := &Store{DB: d, logger: slog.Default(), clock: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OpenStore opens and migrates the store. For SQLite, dsn is a file path;
// for PostgreSQL it is a connection string.
func OpenStore(ctx context.Context, dsn string, dialect driver.Dialect, opts ...Option) (*Store, error) {
	d, err := OpenWithDialect(dsn, dialect)
	if err != nil {
		return nil, err
	}
	if err := d.Migrate(ctx); err != nil {
		_ = d.Close()
		return nil, fmt.Errorf("migrate store: %w", err)
	}
	return newStore(d, opts...), nil
}

// OpenBoard opens the SQLite store under a board root directory.
func OpenBoard(ctx context.Context, root string, opts ...Option) (*Store, error) {
	return OpenStore(ctx, filepath.Join(root, DefaultPath), driver.DialectSQLite, opts...)
}

// OpenStoreInMemory opens a migrated in-memory SQLite store.
func OpenStoreInMemory(opts ...Option) (*Store, error) {
	d, err := OpenInMemory()
	if err != nil {
		return nil, err
	}
	if err := d.Migrate(context.Background()); err != nil {
		_ = d.Close()
		return nil, fmt.Errorf("migrate store: %w", err)
	}
	return newStore(d, opts...), nil
}

// Now returns the store's notion of the current time, in UTC.
func (s *Store) Now() time.Time {
	return s.clock().UTC()
}

// Logger returns the store's logger.
func (s *Store) Logger() *slog.Logger {
	return s.logger
}

func (s *Store) conn(ctx context.Context) queryer {
	return ctxDB{db: s.DB, ctx: ctx}
}

// RunInTx executes fn within a database transaction. If fn returns an
// error the transaction is rolled back; otherwise it is committed.
func (s *Store) RunInTx(ctx context.Context, fn func(tx *TxOps) error) error {
	tx, err := s.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	txOps := &TxOps{
		tx:      tx,
		dialect: s.Dialect(),
		ctx:     ctx,
		now:     s.Now(),
	}

	if err := fn(txOps); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback failed: %w (original error: %v)", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Ensure Store implements TxRunner
var _ TxRunner = (*Store)(nil)

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

func parseNullTime(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	t := parseTime(ns.String)
	return &t
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullInt(n int) any {
	if n == 0 {
		return nil
	}
	return n
}
