package migrations

import (
	"context"
	"fmt"

	"github.com/Tab-To-LightSpeed24/CommunityClara/internal/database/types"
	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		// Create tables
		models := []any{
			(*types.Server)(nil),
			(*types.Member)(nil),
			(*types.Violation)(nil),
			(*types.ServerAnalytics)(nil),
		}

		for _, model := range models {
			_, err := db.NewCreateTable().
				Model(model).
				IfNotExists().
				Exec(ctx)
			if err != nil {
				return fmt.Errorf("failed to create table %T: %w", model, err)
			}
		}

		// Indexes for the hot violation queries: active-warning counts,
		// feedback correlation, and the learner's review window.
		indexes := []struct {
			name    string
			table   string
			columns string
		}{
			{"idx_violations_server_user_created", "violations", "(server_id, user_id, created_at)"},
			{"idx_violations_log_message_id", "violations", "(log_message_id)"},
			{"idx_violations_server_created", "violations", "(server_id, created_at)"},
			{"idx_server_analytics_server_date", "server_analytics", "(server_id, date)"},
		}

		for _, idx := range indexes {
			_, err := db.NewRaw(fmt.Sprintf(
				"CREATE INDEX IF NOT EXISTS %s ON %s %s",
				idx.name, idx.table, idx.columns)).
				Exec(ctx)
			if err != nil {
				return fmt.Errorf("failed to create index %s: %w", idx.name, err)
			}
		}

		// Analytics rows are upserted once per server per day.
		_, err := db.NewRaw(
			"CREATE UNIQUE INDEX IF NOT EXISTS idx_server_analytics_unique ON server_analytics (server_id, date)").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to create unique analytics index: %w", err)
		}

		return nil
	}, func(ctx context.Context, db *bun.DB) error {
		// Down migration - drop all tables
		models := []any{
			(*types.ServerAnalytics)(nil),
			(*types.Violation)(nil),
			(*types.Member)(nil),
			(*types.Server)(nil),
		}

		for _, model := range models {
			_, err := db.NewDropTable().
				Model(model).
				IfExists().
				Exec(ctx)
			if err != nil {
				return fmt.Errorf("failed to drop table %T: %w", model, err)
			}
		}

		return nil
	})
}
