package database

import (
	"errors"
	"time"
)

// Config holds database configuration
type Config struct {
	Driver          string        `json:"driver"`
	DatabasePath    string        `json:"database_path"`
	DSN             string        `json:"dsn"`
	MaxConnections  int           `json:"max_connections"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `json:"conn_max_idle_time"`
}

// DefaultConfig returns a local SQLite configuration suited to one classroom
// server. SQLite performs best with a small pool in front of a single writer.
func DefaultConfig() *Config {
	return &Config{
		Driver:          DriverSQLite,
		DatabasePath:    "./data/pulseroom.db",
		MaxConnections:  10,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: time.Minute * 10,
	}
}

// Validate ensures the configuration is valid
func (c *Config) Validate() error {
	dialect, err := DialectFor(c.Driver)
	if err != nil {
		return err
	}
	switch dialect {
	case SQLite:
		if c.DatabasePath == "" {
			return errors.New("database path cannot be empty")
		}
	case Postgres:
		if c.DSN == "" {
			return errors.New("postgres DSN cannot be empty")
		}
	}
	if c.MaxConnections <= 0 {
		return errors.New("max connections must be greater than 0")
	}
	if c.ConnMaxLifetime <= 0 {
		return errors.New("connection max lifetime must be greater than 0")
	}
	if c.ConnMaxIdleTime <= 0 {
		return errors.New("connection max idle time must be greater than 0")
	}
	return nil
}

// DataSourceName builds the string handed to sql.Open.
// SQLite gets WAL, a busy timeout and enforced foreign keys on every connection.
func (c *Config) DataSourceName() string {
	if c.Driver == DriverPostgres {
		return c.DSN
	}
	return c.DatabasePath + "?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on"
}
