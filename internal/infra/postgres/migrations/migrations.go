package migrations

import (
	"context"
	_ "embed"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
)

var (
	//go:embed 0001_create_questions.sql
	createQuestionsSQL string
	//go:embed 0002_create_results.sql
	createResultsSQL string
	//go:embed 0003_create_users.sql
	createUsersSQL string
)

var Migrations = migrate.NewMigrations()

func init() {
	Migrations.Add(migrate.Migration{
		Name: "20250301000001",
		Up:   execSQL(createQuestionsSQL),
		Down: execSQL(`DROP TABLE IF EXISTS questions`),
	})
	Migrations.Add(migrate.Migration{
		Name: "20250301000002",
		Up:   execSQL(createResultsSQL),
		Down: execSQL(`DROP TABLE IF EXISTS results`),
	})
	Migrations.Add(migrate.Migration{
		Name: "20250301000003",
		Up:   execSQL(createUsersSQL),
		Down: execSQL(`DROP TABLE IF EXISTS users`),
	})
}

func execSQL(query string) migrate.MigrationFunc {
	return func(ctx context.Context, db *bun.DB) error {
		_, err := db.ExecContext(ctx, query)
		return err
	}
}
