// Package dbtest provides a *sql.DB whose transactions do nothing, for
// exercising services against in-memory repository fakes.
package dbtest

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"sync/atomic"
	"testing"
)

var errNoStatements = errors.New("dbtest: statements are not supported, use a repository fake")

// Stats counts transaction outcomes.
type Stats struct {
	Begins    atomic.Int32
	Commits   atomic.Int32
	Rollbacks atomic.Int32
}

// Open returns a pool backed by the no-op driver. It is closed with the test.
func Open(t testing.TB) (*sql.DB, *Stats) {
	t.Helper()
	stats := &Stats{}
	db := sql.OpenDB(connector{stats})
	t.Cleanup(func() { db.Close() })
	return db, stats
}

type connector struct{ stats *Stats }

func (c connector) Connect(context.Context) (driver.Conn, error) { return &conn{c.stats}, nil }

func (c connector) Driver() driver.Driver { return noopDriver{} }

type noopDriver struct{}

func (noopDriver) Open(string) (driver.Conn, error) {
	return nil, errors.New("dbtest: open through dbtest.Open")
}

type conn struct{ stats *Stats }

func (c *conn) Prepare(string) (driver.Stmt, error) { return nil, errNoStatements }

func (c *conn) Close() error { return nil }

func (c *conn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

func (c *conn) BeginTx(context.Context, driver.TxOptions) (driver.Tx, error) {
	c.stats.Begins.Add(1)
	return tx{c.stats}, nil
}

type tx struct{ stats *Stats }

func (t tx) Commit() error {
	t.stats.Commits.Add(1)
	return nil
}

func (t tx) Rollback() error {
	t.stats.Rollbacks.Add(1)
	return nil
}
