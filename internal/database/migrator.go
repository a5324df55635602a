package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

const MigrationTableName = "tbl_migration"

type Migration interface {
	Identifier() string
	Up() string
}

type Migrator struct {
	Database *sql.DB
}

func NewMigrator(db *sql.DB) *Migrator {
	return &Migrator{
		Database: db,
	}
}

// Up applies, in identifier order, every migration newer than the last one
// recorded. All of them run in one transaction.
func (migrator *Migrator) Up(ctx context.Context, migrations []Migration) error {
	// Check if there is anything to do
	if len(migrations) < 1 {
		return nil
	}

	currentIdentifier, err := migrator.currentVersion(ctx)
	if err != nil {
		return errors.Join(errors.New("getting current migration version failed"), err)
	}

	scheduled := make([]Migration, 0, len(migrations))
	for _, migration := range migrations {
		if migration.Identifier() > currentIdentifier {
			scheduled = append(scheduled, migration)
		}
	}
	if len(scheduled) < 1 {
		return nil
	}
	slices.SortFunc(scheduled, func(m1, m2 Migration) int {
		return strings.Compare(m1.Identifier(), m2.Identifier())
	})

	transaction, err := migrator.Database.BeginTx(ctx, nil)
	if err != nil {
		return errors.Join(errors.New("starting migration transaction failed"), err)
	}
	defer transaction.Rollback()

	for _, migration := range scheduled {
		for _, statement := range splitStatements(migration.Up()) {
			if _, err := transaction.ExecContext(ctx, statement); err != nil {
				return errors.Join(fmt.Errorf("migration up failed for %s", migration.Identifier()), err)
			}
		}

		if _, err := transaction.ExecContext(ctx,
			`INSERT INTO `+MigrationTableName+` (id, performed_at) VALUES ($1, $2)`,
			migration.Identifier(), time.Now().UTC().Unix(),
		); err != nil {
			return errors.Join(fmt.Errorf("recording migration %s failed", migration.Identifier()), err)
		}
	}

	return transaction.Commit()
}

// currentVersion returns the identifier of the latest recorded migration, or
// "" when there is no history yet.
func (migrator *Migrator) currentVersion(ctx context.Context) (string, error) {
	if _, err := migrator.Database.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS `+MigrationTableName+` (
			id TEXT NOT NULL,
			performed_at BIGINT NOT NULL,
			PRIMARY KEY (id)
		)`); err != nil {
		return "", errors.Join(errors.New("migration setup failed"), err)
	}

	var current string
	row := migrator.Database.QueryRowContext(ctx, `SELECT id FROM `+MigrationTableName+` ORDER BY id DESC LIMIT 1`)
	if err := row.Scan(&current); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", errors.Join(errors.New("getting last successful migration failed"), err)
	}

	return current, nil
}

func splitStatements(script string) []string {
	var statements []string
	for _, statement := range strings.Split(script, ";") {
		if statement = strings.TrimSpace(statement); statement != "" {
			statements = append(statements, statement)
		}
	}
	return statements
}
