package repository

import (
	"context"

	"github.com/vertextoedge/photo-triage/internal/domain"
)

// StatsRepository defines the interface for index statistics
type StatsRepository interface {
	// GetIndexStats returns photo counts per bucket
	GetIndexStats(ctx context.Context) (*domain.IndexStats, error)
}
