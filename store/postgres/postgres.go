package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/juju/errors"
	_ "github.com/lib/pq"
	"github.com/spf13/cast"
	"github.com/warriorguo/nodesync/store"
	"github.com/warriorguo/nodesync/types"
)

var (
	_ store.Store = &pgStore{}
)

const (
	createTableSQL = `
		CREATE TABLE IF NOT EXISTS sync_store (
			prefix VARCHAR(255) NOT NULL,
			key VARCHAR(255) NOT NULL,
			value BYTEA,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (prefix, key)
		);

		CREATE INDEX IF NOT EXISTS idx_sync_store_prefix ON sync_store(prefix);
	`
	getSQL    = `SELECT value FROM sync_store WHERE prefix = $1 AND key = $2`
	upsertSQL = `
		INSERT INTO sync_store (prefix, key, value, updated_at)
		VALUES ($1, $2, $3, CURRENT_TIMESTAMP)
		ON CONFLICT (prefix, key)
		DO UPDATE SET value = EXCLUDED.value, updated_at = CURRENT_TIMESTAMP
	`
	removeSQL = `DELETE FROM sync_store WHERE prefix = $1 AND key = $2`
	listSQL   = `SELECT key FROM sync_store WHERE prefix = $1 ORDER BY key`
)

// Config holds PostgreSQL connection configuration
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string // disable, require, verify-ca, verify-full
}

func DefaultConfig() *Config {
	return &Config{
		Host:     "localhost",
		Port:     5432,
		User:     "postgres",
		Password: "postgres",
		Database: "nodesync",
		SSLMode:  "disable",
	}
}

// ConfigFrom converts the engine options form, empty fields keep the
// defaults.
func ConfigFrom(c *types.PostgresConfig) *Config {
	config := DefaultConfig()
	if c == nil {
		return config
	}
	if c.Host != "" {
		config.Host = c.Host
	}
	if c.Port != 0 {
		config.Port = c.Port
	}
	if c.User != "" {
		config.User = c.User
	}
	if c.Password != "" {
		config.Password = c.Password
	}
	if c.Database != "" {
		config.Database = c.Database
	}
	if c.SSLMode != "" {
		config.SSLMode = c.SSLMode
	}
	return config
}

type pgStore struct {
	db *sql.DB
}

func NewPostgresStore(config *Config) (store.Store, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}

	db, err := sql.Open("postgres", config.DSN())
	if err != nil {
		return nil, errors.Annotatef(err, "failed to open postgres connection")
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Annotatef(err, "failed to ping postgres")
	}

	s, err := NewPostgresStoreWithDB(db)
	if err != nil {
		db.Close()
		return nil, errors.Trace(err)
	}
	return s, nil
}

// NewPostgresStoreWithDB uses an existing connection and creates the
// table when missing.
func NewPostgresStoreWithDB(db *sql.DB) (store.Store, error) {
	if db == nil {
		return nil, errors.NotValidf("nil db")
	}

	s := &pgStore{db: db}
	if err := s.initTable(context.Background()); err != nil {
		return nil, errors.Annotatef(err, "failed to initialize table")
	}
	return s, nil
}

func (p *pgStore) initTable(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, createTableSQL); err != nil {
		return errors.Annotatef(err, "failed to create table")
	}
	return nil
}

func (p *pgStore) Get(ctx context.Context, prefix, key string) ([]byte, error) {
	var value []byte
	err := p.db.QueryRowContext(ctx, getSQL, prefix, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Annotatef(err, "failed to get value for prefix=%s, key=%s", prefix, key)
	}
	return value, nil
}

func (p *pgStore) Set(ctx context.Context, prefix, key string, value []byte) error {
	if _, err := p.db.ExecContext(ctx, upsertSQL, prefix, key, value); err != nil {
		return errors.Annotatef(err, "failed to set value for prefix=%s, key=%s", prefix, key)
	}
	return nil
}

func (p *pgStore) Remove(ctx context.Context, prefix, key string) error {
	if _, err := p.db.ExecContext(ctx, removeSQL, prefix, key); err != nil {
		return errors.Annotatef(err, "failed to remove value for prefix=%s, key=%s", prefix, key)
	}
	return nil
}

func (p *pgStore) List(ctx context.Context, prefix string, iterator func(key string) bool) error {
	rows, err := p.db.QueryContext(ctx, listSQL, prefix)
	if err != nil {
		return errors.Annotatef(err, "failed to list keys for prefix=%s", prefix)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return errors.Annotatef(err, "failed to scan key")
		}
		if !iterator(key) {
			break
		}
	}
	if err := rows.Err(); err != nil {
		return errors.Annotatef(err, "error iterating rows")
	}
	return nil
}

func (p *pgStore) Close() error {
	if p.db != nil {
		return p.db.Close()
	}
	return nil
}

// DSN builds a lib/pq connection string.
func (c *Config) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

var validSSLModes = map[string]bool{
	"disable":     true,
	"require":     true,
	"verify-ca":   true,
	"verify-full": true,
}

// Validate checks the configuration, an empty sslmode becomes disable.
func (c *Config) Validate() error {
	if c.Host == "" {
		return errors.NotValidf("empty host")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return errors.NotValidf("port %d", c.Port)
	}
	if c.User == "" {
		return errors.NotValidf("empty user")
	}
	if c.Database == "" {
		return errors.NotValidf("empty database")
	}
	if c.SSLMode == "" {
		c.SSLMode = "disable"
	}
	if !validSSLModes[c.SSLMode] {
		return errors.NotValidf("sslmode %s", c.SSLMode)
	}
	return nil
}

// ParseDSN parses a connection string of the form
// "host=localhost port=5432 user=postgres password=secret dbname=nodesync sslmode=disable".
// Missing keys keep their defaults.
func ParseDSN(dsn string) (*Config, error) {
	config := DefaultConfig()

	for _, part := range strings.Fields(dsn) {
		key, value, found := strings.Cut(part, "=")
		if !found {
			continue
		}
		switch key {
		case "host":
			config.Host = value
		case "port":
			port, err := cast.ToIntE(value)
			if err != nil {
				return nil, errors.NotValidf("port %q", value)
			}
			config.Port = port
		case "user":
			config.User = value
		case "password":
			config.Password = value
		case "dbname":
			config.Database = value
		case "sslmode":
			config.SSLMode = value
		}
	}
	return config, config.Validate()
}
