package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/tasktrail-api/internal/domain"
	"github.com/phrazzld/tasktrail-api/internal/platform/logger"
	"github.com/phrazzld/tasktrail-api/internal/store"
)

const userColumns = "id, email, name, created_at"

// PostgresUserStore implements store.UserStore.
type PostgresUserStore struct {
	db store.DBTX
}

// NewPostgresUserStore creates a user store on db.
func NewPostgresUserStore(db store.DBTX) *PostgresUserStore {
	return &PostgresUserStore{db: db}
}

var _ store.UserStore = (*PostgresUserStore)(nil)

// GetByID implements store.UserStore.
func (s *PostgresUserStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE id = $1", id)
	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrUserNotFound
	}
	if err != nil {
		logger.FromContext(ctx).Error("failed to get user by ID",
			slog.String("user_id", id.String()),
			slog.String("error", err.Error()))
		return nil, MapError(err)
	}
	return user, nil
}

// GetEarliest implements store.UserStore.
func (s *PostgresUserStore) GetEarliest(ctx context.Context) (*domain.User, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users ORDER BY created_at ASC, id ASC LIMIT 1")
	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrUserNotFound
	}
	if err != nil {
		return nil, MapError(err)
	}
	return user, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*domain.User, error) {
	var u domain.User
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &u.CreatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

// usersByID loads the users with the given ids.
func usersByID(ctx context.Context, db store.DBTX, ids []uuid.UUID) (map[uuid.UUID]*domain.User, error) {
	out := make(map[uuid.UUID]*domain.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	var b queryBuilder
	rows, err := db.QueryContext(ctx, "SELECT "+userColumns+" FROM users WHERE id IN "+b.in(ids), b.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to load users: %w", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user row: %w", err)
		}
		out[u.ID] = u
	}
	return out, rows.Err()
}
