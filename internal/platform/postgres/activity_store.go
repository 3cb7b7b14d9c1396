package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/tasktrail-api/internal/domain"
	"github.com/phrazzld/tasktrail-api/internal/pagination"
	"github.com/phrazzld/tasktrail-api/internal/platform/logger"
	"github.com/phrazzld/tasktrail-api/internal/store"
)

const activityColumns = "id, task_id, task_title, user_id, user_name, action, changes, created_at"

var activityFields = columns{
	"id":                         "id",
	store.ActivityFieldTaskID:    "task_id",
	store.ActivityFieldUserID:    "user_id",
	store.ActivityFieldAction:    "action",
	store.ActivityFieldCreatedAt: "created_at",
}

// PostgresActivityStore implements store.ActivityStore.
type PostgresActivityStore struct {
	db store.DBTX
}

// NewPostgresActivityStore creates an activity store on db.
func NewPostgresActivityStore(db store.DBTX) *PostgresActivityStore {
	return &PostgresActivityStore{db: db}
}

var _ store.ActivityStore = (*PostgresActivityStore)(nil)

// Create implements store.ActivityStore.
func (s *PostgresActivityStore) Create(ctx context.Context, a *domain.Activity) error {
	if err := a.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	changes := a.Changes
	if changes == nil {
		changes = domain.Changes{}
	}
	raw, err := json.Marshal(changes)
	if err != nil {
		return fmt.Errorf("failed to marshal activity changes: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO activities (`+activityColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		a.ID,
		a.TaskID,
		a.TaskTitle,
		a.UserID,
		a.UserName,
		a.Action,
		string(raw),
		a.CreatedAt,
	)
	if err != nil {
		logger.FromContext(ctx).Error("failed to insert activity",
			slog.String("activity_id", a.ID.String()),
			slog.String("task_id", a.TaskID.String()),
			slog.String("error", err.Error()))
		return MapError(err)
	}
	return nil
}

// Count implements pagination.Collection.
func (s *PostgresActivityStore) Count(ctx context.Context, where pagination.Where) (int, error) {
	return count(ctx, s.db, "activities", where, activityFields)
}

// FindMany implements pagination.Collection. Activities carry their own
// denormalized titles and names, so includes are ignored.
func (s *PostgresActivityStore) FindMany(ctx context.Context, args pagination.FindArgs) ([]domain.Activity, error) {
	var b queryBuilder
	where, err := b.where(args.Where, activityFields)
	if err != nil {
		return nil, err
	}
	order, err := orderBy(args.OrderBy, activityFields, "created_at DESC", "id ASC")
	if err != nil {
		return nil, err
	}
	query := "SELECT " + activityColumns + " FROM activities" + where + order + b.limitOffset(args.Take, args.Skip)

	rows, err := s.db.QueryContext(ctx, query, b.args...)
	if err != nil {
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	activities := make([]domain.Activity, 0)
	for rows.Next() {
		var (
			a   domain.Activity
			raw []byte
		)
		if err := rows.Scan(
			&a.ID,
			&a.TaskID,
			&a.TaskTitle,
			&a.UserID,
			&a.UserName,
			&a.Action,
			&raw,
			&a.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan activity row: %w", err)
		}
		a.Changes = domain.Changes{}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &a.Changes); err != nil {
				return nil, fmt.Errorf("failed to decode changes of activity %s: %w", a.ID, err)
			}
		}
		a.CreatedAt = a.CreatedAt.UTC()
		activities = append(activities, a)
	}
	if err := rows.Err(); err != nil {
		return nil, MapError(err)
	}
	return activities, nil
}

// UpdateTaskTitle implements store.ActivityStore.
func (s *PostgresActivityStore) UpdateTaskTitle(ctx context.Context, taskID uuid.UUID, title string) (int64, error) {
	return s.rewrite(ctx, "UPDATE activities SET task_title = $1 WHERE task_id = $2", title, taskID)
}

// UpdateUserName implements store.ActivityStore.
func (s *PostgresActivityStore) UpdateUserName(ctx context.Context, userID uuid.UUID, name string) (int64, error) {
	return s.rewrite(ctx, "UPDATE activities SET user_name = $1 WHERE user_id = $2", name, userID)
}

func (s *PostgresActivityStore) rewrite(ctx context.Context, query string, args ...any) (int64, error) {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, store.NewStoreError("activity", "denormalize", "failed to rewrite snapshots", MapError(err))
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, store.NewStoreError("activity", "denormalize", "failed to get rows affected", err)
	}
	return n, nil
}
