package database

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// DB represents the database connection with pooling
type DB struct {
	*sql.DB
	pool *ConnectionPool
}

// ConnectionPool manages database connection pooling
type ConnectionPool struct {
	db           *sql.DB
	maxOpenConns int
	maxIdleConns int
	maxLifetime  time.Duration
}

// NewConnectionPool creates a new database connection pool
func NewConnectionPool(db *sql.DB, maxOpen, maxIdle int, maxLifetime time.Duration) *ConnectionPool {
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(maxLifetime)

	return &ConnectionPool{
		db:           db,
		maxOpenConns: maxOpen,
		maxIdleConns: maxIdle,
		maxLifetime:  maxLifetime,
	}
}

// GetStats returns connection pool statistics
func (cp *ConnectionPool) GetStats() map[string]interface{} {
	stats := cp.db.Stats()

	return map[string]interface{}{
		"open_connections":     stats.OpenConnections,
		"in_use":               stats.InUse,
		"idle":                 stats.Idle,
		"max_open_connections": cp.maxOpenConns,
		"max_idle_connections": cp.maxIdleConns,
		"max_lifetime_seconds": cp.maxLifetime.Seconds(),
		"wait_count":           stats.WaitCount,
		"wait_duration_ms":     stats.WaitDuration.Milliseconds(),
	}
}

// NewDB creates a new database connection with optimized pooling
func NewDB(dataDir string) (*DB, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "vanguardia_performance.db")

	connStr := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_foreign_keys=on&_busy_timeout=5000", dbPath)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	pool := NewConnectionPool(db, 25, 5, 5*time.Minute)

	database := &DB{
		DB:   db,
		pool: pool,
	}

	if err := database.migrate(); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	slog.Info("Database initialized with connection pooling",
		"path", dbPath,
		"max_open_conns", pool.maxOpenConns,
		"max_idle_conns", pool.maxIdleConns)

	return database, nil
}

// migrate creates the necessary tables
func (db *DB) migrate() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS owners (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			email TEXT,
			active BOOLEAN DEFAULT TRUE,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS companies (
			id TEXT PRIMARY KEY,
			owner_id TEXT NOT NULL,
			name TEXT NOT NULL,
			health_status TEXT NOT NULL DEFAULT 'healthy',
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			FOREIGN KEY (owner_id) REFERENCES owners(id)
		)`,

		`CREATE TABLE IF NOT EXISTS deliveries (
			id TEXT PRIMARY KEY,
			owner_id TEXT NOT NULL,
			company_id TEXT NOT NULL,
			title TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			created_at DATETIME NOT NULL,
			first_action_at DATETIME,
			completed_at DATETIME,
			FOREIGN KEY (owner_id) REFERENCES owners(id),
			FOREIGN KEY (company_id) REFERENCES companies(id)
		)`,

		`CREATE TABLE IF NOT EXISTS surveys (
			id TEXT PRIMARY KEY,
			owner_id TEXT NOT NULL,
			company_id TEXT NOT NULL,
			score REAL NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			completed_at DATETIME,
			FOREIGN KEY (owner_id) REFERENCES owners(id),
			FOREIGN KEY (company_id) REFERENCES companies(id)
		)`,

		`CREATE TABLE IF NOT EXISTS bookings (
			id TEXT PRIMARY KEY,
			owner_id TEXT NOT NULL,
			company_id TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'scheduled',
			scheduled_at DATETIME NOT NULL,
			FOREIGN KEY (owner_id) REFERENCES owners(id),
			FOREIGN KEY (company_id) REFERENCES companies(id)
		)`,

		`CREATE TABLE IF NOT EXISTS performance_snapshots (
			id TEXT PRIMARY KEY,
			owner_id TEXT NOT NULL,
			snapshot_date DATE NOT NULL,
			raw_metrics TEXT NOT NULL, -- JSON MetricSet
			sub_scores TEXT NOT NULL,  -- JSON map sub-score -> value
			performance_score REAL NOT NULL,
			ranking INTEGER,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			UNIQUE(owner_id, snapshot_date),
			FOREIGN KEY (owner_id) REFERENCES owners(id)
		)`,

		`CREATE TABLE IF NOT EXISTS goals (
			id TEXT PRIMARY KEY,
			owner_id TEXT, -- NULL = team-wide goal
			metric TEXT NOT NULL,
			target_value REAL NOT NULL,
			period TEXT NOT NULL,
			start_date DATE NOT NULL,
			end_date DATE NOT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			FOREIGN KEY (owner_id) REFERENCES owners(id)
		)`,

		// Indexes for performance
		`CREATE INDEX IF NOT EXISTS idx_companies_owner ON companies(owner_id)`,
		`CREATE INDEX IF NOT EXISTS idx_deliveries_owner ON deliveries(owner_id, completed_at)`,
		`CREATE INDEX IF NOT EXISTS idx_surveys_owner ON surveys(owner_id, completed_at)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_owner ON bookings(owner_id, scheduled_at)`,
		`CREATE INDEX IF NOT EXISTS idx_snapshots_owner_date ON performance_snapshots(owner_id, snapshot_date DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_snapshots_date_score ON performance_snapshots(snapshot_date, performance_score DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_goals_owner ON goals(owner_id)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute migration: %w", err)
		}
	}

	return nil
}

// GetPoolStats returns database connection pool statistics
func (db *DB) GetPoolStats() map[string]interface{} {
	return db.pool.GetStats()
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.DB.Close()
}
