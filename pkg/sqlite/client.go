package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"time"

	_ "modernc.org/sqlite"
)

// ClientOption configures Client.
type ClientOption func(*ClientConfig)

// ClientConfig holds SQLite configuration.
type ClientConfig struct {
	Path        string
	BusyTimeout time.Duration
	WAL         bool
}

// Client wraps a modernc.org/sqlite pool.
type Client struct {
	db *sql.DB
}

// WithPath sets the database file. ":memory:" opens a private in-memory database.
func WithPath(path string) ClientOption {
	return func(c *ClientConfig) { c.Path = path }
}

func WithBusyTimeout(d time.Duration) ClientOption {
	return func(c *ClientConfig) { c.BusyTimeout = d }
}

// WithWAL toggles write-ahead logging. It has no effect in memory.
func WithWAL(enabled bool) ClientOption {
	return func(c *ClientConfig) { c.WAL = enabled }
}

// NewClient opens the database. Pragmas go into the DSN so every pooled
// connection gets them, not only the first one. An in-memory database is
// pinned to a single connection so every query sees the same data.
func NewClient(opts ...ClientOption) (*Client, error) {
	cfg := ClientConfig{
		Path:        "shrimpcast.db",
		BusyTimeout: 5 * time.Second,
		WAL:         true,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Path == "" {
		return nil, errors.New("sqlite: path is required")
	}

	db, err := sql.Open("sqlite", dsn(cfg))
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	if cfg.Path == ":memory:" {
		db.SetMaxOpenConns(1)
		db.SetConnMaxLifetime(0)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite ping %s: %w", cfg.Path, err)
	}
	return &Client{db: db}, nil
}

func dsn(cfg ClientConfig) string {
	q := url.Values{}
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", cfg.BusyTimeout.Milliseconds()))
	q.Add("_pragma", "foreign_keys(1)")
	if cfg.WAL && cfg.Path != ":memory:" {
		q.Add("_pragma", "journal_mode(WAL)")
		q.Add("_pragma", "synchronous(NORMAL)")
	}
	return "file:" + cfg.Path + "?" + q.Encode()
}

func (c *Client) DB() *sql.DB {
	return c.db
}

func (c *Client) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}
