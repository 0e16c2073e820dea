package models

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Tab-To-LightSpeed24/CommunityClara/internal/database/dbretry"
	"github.com/Tab-To-LightSpeed24/CommunityClara/internal/database/types"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// ErrServerNotFound is returned when no configuration row exists for a guild.
var ErrServerNotFound = errors.New("server not found")

// ServerModel handles database operations for per-guild configuration.
type ServerModel struct {
	db     *bun.DB
	logger *zap.Logger
}

// NewServer creates a new server model instance.
func NewServer(db *bun.DB, logger *zap.Logger) *ServerModel {
	return &ServerModel{
		db:     db,
		logger: logger.Named("db_server"),
	}
}

// GetServer retrieves a server's configuration. Stored values are clamped
// back into their valid ranges before being handed to callers.
func (m *ServerModel) GetServer(ctx context.Context, serverID string) (*types.Server, error) {
	server, err := dbretry.Operation(ctx, func(ctx context.Context) (*types.Server, error) {
		var server types.Server

		err := m.db.NewSelect().
			Model(&server).
			Where("id = ?", serverID).
			Scan(ctx)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, ErrServerNotFound
			}

			return nil, fmt.Errorf("failed to get server: %w", err)
		}

		return &server, nil
	})
	if err != nil {
		return nil, err
	}

	server.ApplyDefaults()

	return server, nil
}

// CreateServerIfNotExists inserts a server row, leaving any existing row
// untouched.
func (m *ServerModel) CreateServerIfNotExists(ctx context.Context, server *types.Server) error {
	err := dbretry.NoResult(ctx, func(ctx context.Context) error {
		_, err := m.db.NewInsert().
			Model(server).
			On("CONFLICT (id) DO NOTHING").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to create server: %w", err)
		}

		return nil
	})
	if err != nil {
		return err
	}

	m.logger.Debug("Ensured server exists",
		zap.String("serverID", server.ID),
		zap.String("name", server.Name))

	return nil
}

// GetLearningServers returns all servers with adaptive learning enabled.
func (m *ServerModel) GetLearningServers(ctx context.Context) ([]*types.Server, error) {
	servers, err := dbretry.Operation(ctx, func(ctx context.Context) ([]*types.Server, error) {
		var servers []*types.Server

		err := m.db.NewSelect().
			Model(&servers).
			Where("learning_enabled = TRUE").
			Scan(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get learning servers: %w", err)
		}

		return servers, nil
	})
	if err != nil {
		return nil, err
	}

	for _, server := range servers {
		server.ApplyDefaults()
	}

	return servers, nil
}

// UpdateToxicityThreshold sets a server's sensitivity threshold. Used by
// the adaptive learner; administrator updates go through the same path.
func (m *ServerModel) UpdateToxicityThreshold(ctx context.Context, serverID string, threshold float64) error {
	err := dbretry.NoResult(ctx, func(ctx context.Context) error {
		_, err := m.db.NewUpdate().
			Model((*types.Server)(nil)).
			Set("toxicity_threshold = ?", threshold).
			Set("updated_at = ?", time.Now()).
			Where("id = ?", serverID).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to update toxicity threshold: %w", err)
		}

		return nil
	})
	if err != nil {
		return err
	}

	m.logger.Info("Updated toxicity threshold",
		zap.String("serverID", serverID),
		zap.Float64("threshold", threshold))

	return nil
}

// IncrementMessageCount tallies one processed message for the server.
func (m *ServerModel) IncrementMessageCount(ctx context.Context, serverID string) error {
	return dbretry.NoResult(ctx, func(ctx context.Context) error {
		_, err := m.db.NewUpdate().
			Model((*types.Server)(nil)).
			Set("total_messages_processed = total_messages_processed + 1").
			Where("id = ?", serverID).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to increment message count: %w", err)
		}

		return nil
	})
}

// IncrementFeedbackCount bumps the server's false-positive or confirmed
// counter. Counters only ever increase; re-reviews increment again.
func (m *ServerModel) IncrementFeedbackCount(ctx context.Context, serverID string, falsePositive bool) error {
	column := "true_positive_count"
	if falsePositive {
		column = "false_positive_count"
	}

	err := dbretry.NoResult(ctx, func(ctx context.Context) error {
		_, err := m.db.NewUpdate().
			Model((*types.Server)(nil)).
			Set(column+" = "+column+" + 1").
			Where("id = ?", serverID).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to increment feedback count: %w", err)
		}

		return nil
	})
	if err != nil {
		return err
	}

	m.logger.Debug("Incremented feedback count",
		zap.String("serverID", serverID),
		zap.Bool("falsePositive", falsePositive))

	return nil
}
