package db

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/yourorg/together/internal/config"
)

// DSN builds the MariaDB/MySQL connection string for cfg.
func DSN(cfg config.Server) string {
	mc := mysql.NewConfig()
	mc.User = cfg.DBUser
	mc.Passwd = cfg.DBPass
	mc.Net = "tcp"
	mc.Addr = cfg.DBHost + ":" + cfg.DBPort
	mc.DBName = cfg.DBName
	mc.ParseTime = true
	mc.Loc = time.UTC
	mc.Params = map[string]string{"charset": "utf8mb4,utf8"}
	return mc.FormatDSN()
}

// Connect returns a MariaDB connection and checks it answers.
func Connect(ctx context.Context, cfg config.Server) (*sql.DB, error) {
	db, err := sql.Open("mysql", DSN(cfg))
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return db, nil
}

// ConnectWithRetry keeps trying until the database answers and the schema is
// in place or ctx is done.
func ConnectWithRetry(ctx context.Context, cfg config.Server, every time.Duration) (*sql.DB, error) {
	for {
		db, err := Connect(ctx, cfg)
		if err == nil {
			if err = EnsureSchema(ctx, db, cfg.DBSkipSchema); err == nil {
				return db, nil
			}
			db.Close()
		}
		log.Printf("⚠️  db not ready: %v (retrying in %s)", err, every)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(every):
		}
	}
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		username VARCHAR(50) NOT NULL UNIQUE,
		email VARCHAR(255) NOT NULL UNIQUE,
		name VARCHAR(100) NOT NULL,
		profile_photo VARCHAR(500) NOT NULL DEFAULT '',
		partner_id BIGINT NULL,
		password_hash VARCHAR(255) NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (partner_id) REFERENCES users(id) ON DELETE SET NULL
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;`,
	`CREATE TABLE IF NOT EXISTS location_shares (
		id CHAR(36) PRIMARY KEY,
		user_id BIGINT NOT NULL,
		latitude DOUBLE NOT NULL,
		longitude DOUBLE NOT NULL,
		accuracy DOUBLE NULL,
		duration_minutes INT NOT NULL,
		created_at DATETIME NOT NULL,
		expires_at DATETIME NOT NULL,
		stopped_at DATETIME NULL,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		last_updated_at DATETIME NOT NULL,
		FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;`,
	`CREATE INDEX idx_location_shares_user_active ON location_shares(user_id, is_active, expires_at);`,
}

// EnsureSchema creates required tables if not exist.
func EnsureSchema(ctx context.Context, db *sql.DB, skip bool) error {
	if skip {
		log.Printf("EnsureSchema: skipped (DB_SKIP_SCHEMA)")
		return nil
	}
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			errMsg := strings.ToLower(err.Error())
			if strings.HasPrefix(strings.TrimSpace(stmt), "CREATE INDEX") && strings.Contains(errMsg, "duplicate") {
				// index already exists, nothing to do
				continue
			}
			return err
		}
	}
	return nil
}
