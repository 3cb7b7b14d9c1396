package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/phrazzld/tasktrail-api/internal/domain"
)

// ProjectStore defines read access to projects.
type ProjectStore interface {
	// GetByID returns ErrProjectNotFound if the project does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Project, error)
}

// TagStore defines read access to tags.
type TagStore interface {
	// GetByIDs returns the tags that exist, in the order of ids. Missing ids
	// are skipped; callers compare lengths to detect them.
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]domain.Tag, error)
}
