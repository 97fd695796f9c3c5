// Package database opens the MySQL pool and applies the embedded schema.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
)

// Params describes how to reach MySQL.  When DSN is set it wins over the
// individual fields.
type Params struct {
	DSN  string
	User string
	Pass string
	Host string
	Port string
	Name string
}

// FormatDSN builds a go-sql-driver DSN with parseTime and a UTC location so
// DATETIME columns map to time.Time consistently.  The driver's default
// charset is utf8mb4.
func (p Params) FormatDSN() (string, error) {
	var cfg *mysql.Config
	if p.DSN != "" {
		parsed, err := mysql.ParseDSN(p.DSN)
		if err != nil {
			return "", fmt.Errorf("parse dsn: %w", err)
		}
		cfg = parsed
	} else {
		cfg = mysql.NewConfig()
		cfg.User = p.User
		cfg.Passwd = p.Pass
		cfg.Net = "tcp"
		cfg.Addr = p.Host + ":" + p.Port
		cfg.DBName = p.Name
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	return cfg.FormatDSN(), nil
}

// Open connects to MySQL and verifies the connection.
func Open(ctx context.Context, p Params) (*sqlx.DB, error) {
	dsn, err := p.FormatDSN()
	if err != nil {
		return nil, err
	}
	db, err := sqlx.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}
