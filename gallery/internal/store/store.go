// Package store is the SQLite persistence layer of the gallery: the
// persistent thumbnail tier and the history of metadata loads.
package store

import (
	"database/sql"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/screengallery/dbopen"
)

// Store is the gallery database handle.
type Store struct {
	DB *sql.DB
}

// Open opens (or creates) the gallery database at path and applies the schema.
func Open(path string, opts ...dbopen.Option) (*Store, error) {
	allOpts := append([]dbopen.Option{
		dbopen.WithMkdirAll(),
		dbopen.WithSchema(Schema),
	}, opts...)

	db, err := dbopen.Open(path, allOpts...)
	if err != nil {
		return nil, err
	}
	return &Store{DB: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.DB.Close()
}
