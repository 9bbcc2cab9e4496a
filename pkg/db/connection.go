package db

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// dialAttempts bounds the startup wait while the database comes up.
const dialAttempts = 5

// Config holds the MySQL connection and pool settings.
type Config struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

func (c Config) dsn() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4&collation=utf8mb4_unicode_ci",
		c.User, c.Password, c.Host, c.Port, c.Database)
}

// Connection wraps the sql.DB pool.
type Connection struct {
	DB *sql.DB
}

// NewConnection opens the database and verifies it responds, retrying with a
// growing pause between attempts.
func NewConnection(cfg Config) (*Connection, error) {
	var db *sql.DB
	var err error

	for attempt := 1; ; attempt++ {
		db, err = sql.Open("mysql", cfg.dsn())
		if err == nil {
			if err = db.Ping(); err == nil {
				break
			}
		}

		if attempt == dialAttempts {
			return nil, fmt.Errorf("failed to connect to database after %d attempts: %w", dialAttempts, err)
		}
		time.Sleep(time.Second * time.Duration(attempt))
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	return &Connection{DB: db}, nil
}

// Close closes the connection pool.
func (c *Connection) Close() error {
	return c.DB.Close()
}

// Ping verifies the database is reachable.
func (c *Connection) Ping() error {
	return c.DB.Ping()
}
