package cli

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"

	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"

	"quiz-session-engine/internal/config"
	pgmigrations "quiz-session-engine/internal/infra/postgres/migrations"
)

// NewMigrateCmd applies database migrations for the local quiz store.
func NewMigrateCmd(configPath *string) *cobra.Command {
	var seed bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if err := runMigrationsWithConfig(cmd.Context(), cfg); err != nil {
				return err
			}
			if seed {
				return seedSampleQuiz(cmd.Context(), cfg)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&seed, "seed", false, "insert a sample quiz after migrating")
	return cmd
}

func runMigrationsWithConfig(ctx context.Context, cfg config.Config) error {
	if cfg.Postgres.URL == "" {
		return fmt.Errorf("postgres url not configured")
	}

	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.Postgres.URL)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)

	if err := migrator.Init(ctx); err != nil {
		return err
	}

	if _, err := migrator.Migrate(ctx); err != nil {
		return err
	}
	log.Printf("migrations applied")
	return nil
}

func seedSampleQuiz(ctx context.Context, cfg config.Config) error {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.Postgres.URL)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	data, err := json.Marshal(sampleWireQuiz())
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx,
		`INSERT INTO quizzes (id, data) VALUES (?, ?::jsonb) ON CONFLICT (id) DO UPDATE SET data=EXCLUDED.data`,
		1, string(data))
	if err != nil {
		return err
	}
	log.Printf("sample quiz seeded")
	return nil
}

// sampleWireQuiz is in the backend wire shape (answer letters, not indexes).
func sampleWireQuiz() map[string]any {
	return map[string]any{
		"id":    1,
		"title": "General knowledge warm-up",
		"questions": []map[string]any{
			{
				"id":        1,
				"text":      "What is 2 + 2?",
				"options":   []string{"3", "4", "5", "22"},
				"correct":   "B",
				"timeLimit": 20,
				"score":     100,
				"type":      "multiple_choice",
			},
			{
				"id":        2,
				"text":      "The capital of France is Paris.",
				"options":   []string{"True", "False"},
				"correct":   "T",
				"timeLimit": 10,
				"score":     50,
				"type":      "true_false",
			},
			{
				"id":        3,
				"text":      "Which planet is closest to the sun?",
				"options":   []string{"Venus", "Earth", "Mercury", "Mars"},
				"correct":   "C",
				"timeLimit": 15,
				"score":     100,
				"type":      "multiple_choice",
			},
		},
	}
}
