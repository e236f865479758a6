package port

import (
	"github.com/vertextoedge/photo-triage/internal/domain/repository"
)

// PhotoRepository is an alias to domain repository interface
type PhotoRepository = repository.PhotoRepository

// ThumbnailRepository is an alias to domain repository interface
type ThumbnailRepository = repository.ThumbnailRepository

// StatsRepository is an alias to domain repository interface
type StatsRepository = repository.StatsRepository

// Store is an alias to domain repository interface
type Store = repository.Store
