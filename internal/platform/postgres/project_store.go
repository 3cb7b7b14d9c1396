package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/phrazzld/tasktrail-api/internal/domain"
	"github.com/phrazzld/tasktrail-api/internal/store"
)

const projectColumns = "id, name, created_at"

// PostgresProjectStore implements store.ProjectStore.
type PostgresProjectStore struct {
	db store.DBTX
}

// NewPostgresProjectStore creates a project store on db.
func NewPostgresProjectStore(db store.DBTX) *PostgresProjectStore {
	return &PostgresProjectStore{db: db}
}

var _ store.ProjectStore = (*PostgresProjectStore)(nil)

// GetByID implements store.ProjectStore.
func (s *PostgresProjectStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Project, error) {
	var p domain.Project
	err := s.db.QueryRowContext(ctx, "SELECT "+projectColumns+" FROM projects WHERE id = $1", id).
		Scan(&p.ID, &p.Name, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrProjectNotFound
	}
	if err != nil {
		return nil, MapError(err)
	}
	return &p, nil
}

func projectsByID(ctx context.Context, db store.DBTX, ids []uuid.UUID) (map[uuid.UUID]*domain.Project, error) {
	out := make(map[uuid.UUID]*domain.Project, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	var b queryBuilder
	rows, err := db.QueryContext(ctx, "SELECT "+projectColumns+" FROM projects WHERE id IN "+b.in(ids), b.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to load projects: %w", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var p domain.Project
		if err := rows.Scan(&p.ID, &p.Name, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan project row: %w", err)
		}
		out[p.ID] = &p
	}
	return out, rows.Err()
}

// PostgresTagStore implements store.TagStore.
type PostgresTagStore struct {
	db store.DBTX
}

// NewPostgresTagStore creates a tag store on db.
func NewPostgresTagStore(db store.DBTX) *PostgresTagStore {
	return &PostgresTagStore{db: db}
}

var _ store.TagStore = (*PostgresTagStore)(nil)

// GetByIDs implements store.TagStore. Tags are returned in the order of ids.
func (s *PostgresTagStore) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]domain.Tag, error) {
	if len(ids) == 0 {
		return []domain.Tag{}, nil
	}

	var b queryBuilder
	rows, err := s.db.QueryContext(ctx, "SELECT id, name FROM tags WHERE id IN "+b.in(ids), b.args...)
	if err != nil {
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	found := make(map[uuid.UUID]domain.Tag, len(ids))
	for rows.Next() {
		var t domain.Tag
		if err := rows.Scan(&t.ID, &t.Name); err != nil {
			return nil, fmt.Errorf("failed to scan tag row: %w", err)
		}
		found[t.ID] = t
	}
	if err := rows.Err(); err != nil {
		return nil, MapError(err)
	}

	tags := make([]domain.Tag, 0, len(found))
	for _, id := range ids {
		if t, ok := found[id]; ok {
			tags = append(tags, t)
		}
	}
	return tags, nil
}
