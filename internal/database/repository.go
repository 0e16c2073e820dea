package database

import (
	"github.com/Tab-To-LightSpeed24/CommunityClara/internal/database/models"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// Repository provides access to all database models.
type Repository struct {
	server    *models.ServerModel
	member    *models.MemberModel
	violation *models.ViolationModel
	analytics *models.AnalyticsModel
}

// NewRepository creates a new repository instance with all models.
func NewRepository(db *bun.DB, logger *zap.Logger) *Repository {
	return &Repository{
		server:    models.NewServer(db, logger),
		member:    models.NewMember(db, logger),
		violation: models.NewViolation(db, logger),
		analytics: models.NewAnalytics(db, logger),
	}
}

// Server returns the server model repository.
func (r *Repository) Server() *models.ServerModel {
	return r.server
}

// Member returns the member model repository.
func (r *Repository) Member() *models.MemberModel {
	return r.member
}

// Violation returns the violation model repository.
func (r *Repository) Violation() *models.ViolationModel {
	return r.violation
}

// Analytics returns the analytics model repository.
func (r *Repository) Analytics() *models.AnalyticsModel {
	return r.analytics
}
