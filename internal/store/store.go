package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// Store wraps the shared relational connection pool. It is constructed once
// at boot and passed by reference into every component that needs it
// (forward proxy, gateway proxy, monitor); its lifetime is the process.
type Store struct {
	db *sql.DB
}

// Open establishes the pool used by every component. databaseURL is a
// standard postgres:// DSN (spec.md §6 "database URL").
func Open(databaseURL string) (*Store, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("store: DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}
	db.SetMaxOpenConns(40)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// ErrNotFound is returned by lookups whose row is absent.
var ErrNotFound = sql.ErrNoRows
