// Package dbopen opens the SQLite cache files of screengallery.
//
//	import _ "modernc.org/sqlite"
//	db, err := dbopen.Open("data/gallery.db", dbopen.WithMkdirAll(), dbopen.WithSchema(schema))
//
// Tests use dbopen.OpenMemory(t).
package dbopen

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

const memoryPath = ":memory:"

type pragma struct{ name, value string }

type options struct {
	pragmas  []pragma
	mkdirAll bool
	schemas  []string
}

// Option customises Open.
type Option func(*options)

// WithPragma sets PRAGMA name = value, replacing an earlier setting of name.
func WithPragma(name, value string) Option {
	return func(o *options) { o.setPragma(name, value) }
}

// WithBusyTimeout sets busy_timeout in milliseconds. Default: 10000.
func WithBusyTimeout(ms int) Option {
	return func(o *options) {
		if ms > 0 {
			o.setPragma("busy_timeout", fmt.Sprint(ms))
		}
	}
}

// WithMkdirAll creates the parent directory of the database file.
func WithMkdirAll() Option { return func(o *options) { o.mkdirAll = true } }

// WithSchema runs s after the pragmas. Schemas run in the order given.
func WithSchema(s string) Option { return func(o *options) { o.schemas = append(o.schemas, s) } }

func (o *options) setPragma(name, value string) {
	for i := range o.pragmas {
		if o.pragmas[i].name == name {
			o.pragmas[i].value = value
			return
		}
	}
	o.pragmas = append(o.pragmas, pragma{name, value})
}

func newOptions(opts []Option) *options {
	o := &options{pragmas: []pragma{
		{"journal_mode", "WAL"},
		{"busy_timeout", "10000"},
		{"synchronous", "NORMAL"},
	}}
	for _, fn := range opts {
		fn(o)
	}
	return o
}

// Open opens the database at path with the "sqlite" driver, applies pragmas
// and schemas, and pings it.
func Open(path string, opts ...Option) (*sql.DB, error) {
	o := newOptions(opts)

	if o.mkdirAll && path != memoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("dbopen: mkdir %s: %w", path, err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("dbopen: open %s: %w", path, err)
	}
	if err := o.apply(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func (o *options) apply(db *sql.DB) error {
	for _, p := range o.pragmas {
		if _, err := db.Exec("PRAGMA " + p.name + " = " + p.value); err != nil {
			return fmt.Errorf("dbopen: pragma %s: %w", p.name, err)
		}
	}
	for i, s := range o.schemas {
		if _, err := db.Exec(s); err != nil {
			return fmt.Errorf("dbopen: schema %d: %w", i, err)
		}
	}
	if err := db.Ping(); err != nil {
		return fmt.Errorf("dbopen: ping: %w", err)
	}
	return nil
}

// OpenMemory opens an in-memory database closed by t.Cleanup. It keeps a
// single connection: each connection to ":memory:" is its own database.
func OpenMemory(t testing.TB, opts ...Option) *sql.DB {
	t.Helper()
	db, err := Open(memoryPath, opts...)
	if err != nil {
		t.Fatalf("dbopen.OpenMemory: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}
