package slot

import (
	"fmt"
)

// RepositoryConfig contains configuration for creating a slot repository
type RepositoryConfig struct {
	// DB is required for PostgreSQL repositories (DBTX interface)
	DB DBTX
	// DataDir is required for file-based repositories
	DataDir string
	// Options for the slot repository (device cap, etc.)
	// If not provided, DefaultRepositoryOptions() will be used
	Options *RepositoryOptions
}

// NewRepository creates a new slot repository based on the persistence type
func NewRepository(persistenceType string, config RepositoryConfig) (Repository, error) {
	// Get options or use defaults
	options := DefaultRepositoryOptions()
	if config.Options != nil {
		options = *config.Options
	}

	switch persistenceType {
	case "postgres", "postgresql":
		if config.DB == nil {
			return nil, fmt.Errorf("db required for postgres repository")
		}
		return NewPostgresRepositoryWithOptions(config.DB, options), nil
	case "file":
		if config.DataDir == "" {
			return nil, fmt.Errorf("dataDir required for file repository")
		}
		return NewFileRepository(config.DataDir, options)
	case "inmem", "memory":
		return NewInMemRepositoryWithOptions(options), nil
	default:
		return nil, fmt.Errorf("unsupported persistence type: %s (supported: postgres, file, inmem)", persistenceType)
	}
}
