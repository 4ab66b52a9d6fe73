package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/yourorg/together/internal/config"
	appdb "github.com/yourorg/together/internal/db"
)

type seedUser struct {
	username, email, name, password string
}

var seedCouple = [2]seedUser{
	{"demo", "demo@example.com", "Demo", "demo1234"},
	{"alex", "alex@example.com", "Alex", "alex1234"},
}

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Create a sample paired couple in the database (uses DB_* settings)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadServer()
			ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
			defer cancel()

			db, err := appdb.Connect(ctx, cfg)
			if err != nil {
				return fmt.Errorf("db connect: %w", err)
			}
			defer db.Close()
			if err := appdb.EnsureSchema(ctx, db, cfg.DBSkipSchema); err != nil {
				return fmt.Errorf("ensure schema: %w", err)
			}

			var ids [2]int64
			for i, u := range seedCouple {
				if ids[i], err = ensureUser(ctx, db, u); err != nil {
					return err
				}
			}
			if _, err := db.ExecContext(ctx, `UPDATE users SET partner_id = ? WHERE id = ?`, ids[1], ids[0]); err != nil {
				return fmt.Errorf("pair: %w", err)
			}
			if _, err := db.ExecContext(ctx, `UPDATE users SET partner_id = ? WHERE id = ?`, ids[0], ids[1]); err != nil {
				return fmt.Errorf("pair: %w", err)
			}
			fmt.Printf("Seed: '%s' and '%s' are paired (passwords %s / %s)\n",
				seedCouple[0].username, seedCouple[1].username, seedCouple[0].password, seedCouple[1].password)
			return nil
		},
	}
}

func ensureUser(ctx context.Context, db *sql.DB, u seedUser) (int64, error) {
	var id int64
	err := db.QueryRowContext(ctx, "SELECT id FROM users WHERE username = ?", u.username).Scan(&id)
	if err == nil {
		fmt.Printf("Seed: user '%s' already exists\n", u.username)
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("lookup %s: %w", u.username, err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
	if err != nil {
		return 0, fmt.Errorf("bcrypt: %w", err)
	}
	res, err := db.ExecContext(ctx, "INSERT INTO users (username,email,name,password_hash) VALUES (?,?,?,?)",
		u.username, u.email, u.name, string(hash))
	if err != nil {
		return 0, fmt.Errorf("insert %s: %w", u.username, err)
	}
	return res.LastInsertId()
}
