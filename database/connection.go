package database

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
)

// StatsDB wraps a raw database/sql connection used for aggregate stats
// queries. The pipeline's transactional writes go through GORM; this
// connection exists for read-only reporting queries that are easier to
// express in plain SQL.
type StatsDB struct {
	conn *sql.DB
}

// NewStatsDB opens the raw stats connection
func NewStatsDB(host, port, dbname, user, password string) (*StatsDB, error) {
	connStr := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname,
	)

	conn, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Stats queries are infrequent; a small pool is enough
	conn.SetMaxOpenConns(5)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(5 * time.Minute)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &StatsDB{conn: conn}, nil
}

// Close closes the stats connection
func (s *StatsDB) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

// Ping checks if the stats connection is alive
func (s *StatsDB) Ping() error {
	return s.conn.Ping()
}
