package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	"github.com/pocketbase/dbx"
	_ "modernc.org/sqlite"
)

var ErrNotFound = errors.New("store: record not found")

const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite"
)

// Store owns the database handle. All mutations go through RunInTx.
type Store struct {
	db     *dbx.DB
	driver string
}

// Open connects to driver/dsn and applies pending migrations.
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	switch driver {
	case DriverMySQL, DriverSQLite:
	default:
		return nil, fmt.Errorf("store: unsupported driver %q", driver)
	}

	db, err := dbx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", driver, err)
	}

	if driver == DriverSQLite {
		// sqlite has a single writer; one connection turns every transaction into an exclusive section.
		db.DB().SetMaxOpenConns(1)
	}

	if err := db.DB().PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: ping %s: %w", driver, err)
	}

	s := &Store{db: db, driver: driver}
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Driver() string {
	return s.driver
}

// RunInTx executes fn inside one transaction. Returning an error rolls everything back.
func (s *Store) RunInTx(ctx context.Context, fn func(tx *Tx) error) error {
	return s.db.TransactionalContext(ctx, nil, func(dtx *dbx.Tx) error {
		return fn(&Tx{b: dtx, ctx: ctx, lock: s.lockClause()})
	})
}

// Read runs lock-free queries outside a transaction.
func (s *Store) Read(ctx context.Context) *Tx {
	return &Tx{b: s.db, ctx: ctx}
}

func (s *Store) lockClause() string {
	if s.driver == DriverMySQL {
		return " FOR UPDATE"
	}
	return ""
}

// Tx is the unit every repository method runs against.
type Tx struct {
	b    dbx.Builder
	ctx  context.Context
	lock string
}

func (tx *Tx) Context() context.Context {
	return tx.ctx
}

func (tx *Tx) lockOne(dest any, table, where string, params dbx.Params) error {
	q := "SELECT * FROM " + table + " WHERE " + where + tx.lock
	return translate(tx.b.NewQuery(q).Bind(params).WithContext(tx.ctx).One(dest))
}

func (tx *Tx) findOne(dest any, table string, where dbx.Expression) error {
	return translate(tx.b.Select("*").From(table).Where(where).WithContext(tx.ctx).One(dest))
}

func translate(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func (tx *Tx) insert(table string, params dbx.Params) error {
	if _, err := tx.b.Insert(table, params).WithContext(tx.ctx).Execute(); err != nil {
		return fmt.Errorf("insert %s: %w", table, err)
	}
	return nil
}

func (tx *Tx) update(table, id string, params dbx.Params) error {
	if _, err := tx.b.Update(table, params, dbx.HashExp{"id": id}).WithContext(tx.ctx).Execute(); err != nil {
		return fmt.Errorf("update %s: %w", table, err)
	}
	return nil
}

func (tx *Tx) exists(table string, where dbx.Expression) (bool, error) {
	var count int
	err := tx.b.Select("COUNT(*)").From(table).Where(where).WithContext(tx.ctx).Row(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func inStatuses[T ~string](col string, statuses []T) dbx.Expression {
	values := make([]any, len(statuses))
	for i, s := range statuses {
		values[i] = string(s)
	}
	return dbx.In(col, values...)
}

// IsUniqueViolation reports whether err came from a unique constraint.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate entry")
}

func nullable[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}
