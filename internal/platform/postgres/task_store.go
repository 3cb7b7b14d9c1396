package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/google/uuid"
	"github.com/phrazzld/tasktrail-api/internal/domain"
	"github.com/phrazzld/tasktrail-api/internal/pagination"
	"github.com/phrazzld/tasktrail-api/internal/platform/logger"
	"github.com/phrazzld/tasktrail-api/internal/store"
)

const taskColumns = "id, title, description, status, priority, due_date, project_id, assignee_id, created_at, updated_at"

var taskFields = columns{
	"id":                      "id",
	store.TaskFieldStatus:     "status",
	store.TaskFieldPriority:   "priority",
	store.TaskFieldAssigneeID: "assignee_id",
	store.TaskFieldProjectID:  "project_id",
	store.TaskFieldTitle:      "title",
	store.TaskFieldDueDate:    "due_date",
	store.TaskFieldCreatedAt:  "created_at",
	"updatedAt":               "updated_at",
}

// PostgresTaskStore implements store.TaskStore.
type PostgresTaskStore struct {
	db store.DBTX
}

// NewPostgresTaskStore creates a task store on db. When db is a *sql.DB,
// writes touching several tables run in their own transaction.
func NewPostgresTaskStore(db store.DBTX) *PostgresTaskStore {
	return &PostgresTaskStore{db: db}
}

var _ store.TaskStore = (*PostgresTaskStore)(nil)

// Create implements store.TaskStore.
func (s *PostgresTaskStore) Create(ctx context.Context, task *domain.Task) error {
	if err := task.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	err := inTx(ctx, s.db, func(q store.DBTX) error {
		_, err := q.ExecContext(ctx, `
			INSERT INTO tasks (`+taskColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			task.ID,
			task.Title,
			task.Description,
			task.Status,
			task.Priority,
			task.DueDate,
			task.ProjectID,
			nullUUID(task.AssigneeID),
			task.CreatedAt,
			task.UpdatedAt,
		)
		if err != nil {
			return MapError(err)
		}
		return insertTaskTags(ctx, q, task.ID, task.TagIDs)
	})
	if err != nil {
		logger.FromContext(ctx).Error("failed to create task",
			slog.String("task_id", task.ID.String()),
			slog.String("error", err.Error()))
		return err
	}
	return nil
}

// GetByID implements store.TaskStore.
func (s *PostgresTaskStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+taskColumns+" FROM tasks WHERE id = $1", id)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrTaskNotFound
	}
	if err != nil {
		return nil, MapError(err)
	}

	tasks := []domain.Task{*task}
	include := []string{store.TaskIncludeAssignee, store.TaskIncludeProject, store.TaskIncludeTags}
	if err := s.loadRelations(ctx, tasks, include); err != nil {
		return nil, err
	}
	return &tasks[0], nil
}

// Update implements store.TaskStore.
func (s *PostgresTaskStore) Update(ctx context.Context, task *domain.Task) error {
	if err := task.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	return inTx(ctx, s.db, func(q store.DBTX) error {
		result, err := q.ExecContext(ctx, `
			UPDATE tasks
			SET title = $1, description = $2, status = $3, priority = $4, due_date = $5,
			    project_id = $6, assignee_id = $7, updated_at = $8
			WHERE id = $9`,
			task.Title,
			task.Description,
			task.Status,
			task.Priority,
			task.DueDate,
			task.ProjectID,
			nullUUID(task.AssigneeID),
			task.UpdatedAt,
			task.ID,
		)
		if err != nil {
			return MapError(err)
		}
		if err := CheckRowsAffected(result, store.ErrTaskNotFound); err != nil {
			return err
		}

		if _, err := q.ExecContext(ctx, "DELETE FROM task_tags WHERE task_id = $1", task.ID); err != nil {
			return MapError(err)
		}
		return insertTaskTags(ctx, q, task.ID, task.TagIDs)
	})
}

// Delete implements store.TaskStore. Tag links are removed by cascade.
func (s *PostgresTaskStore) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM tasks WHERE id = $1", id)
	if err != nil {
		return MapError(err)
	}
	return CheckRowsAffected(result, store.ErrTaskNotFound)
}

// Count implements pagination.Collection.
func (s *PostgresTaskStore) Count(ctx context.Context, where pagination.Where) (int, error) {
	return count(ctx, s.db, "tasks", where, taskFields)
}

// FindMany implements pagination.Collection. Tag ids are always loaded;
// assignee, project and tags only when included.
func (s *PostgresTaskStore) FindMany(ctx context.Context, args pagination.FindArgs) ([]domain.Task, error) {
	var b queryBuilder
	where, err := b.where(args.Where, taskFields)
	if err != nil {
		return nil, err
	}
	order, err := orderBy(args.OrderBy, taskFields, "created_at DESC", "id ASC")
	if err != nil {
		return nil, err
	}
	query := "SELECT " + taskColumns + " FROM tasks" + where + order + b.limitOffset(args.Take, args.Skip)

	rows, err := s.db.QueryContext(ctx, query, b.args...)
	if err != nil {
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	tasks := make([]domain.Task, 0)
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task row: %w", err)
		}
		tasks = append(tasks, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, MapError(err)
	}
	if err := rows.Close(); err != nil {
		return nil, MapError(err)
	}

	if err := s.loadRelations(ctx, tasks, args.Include); err != nil {
		return nil, err
	}
	return tasks, nil
}

func (s *PostgresTaskStore) loadRelations(ctx context.Context, tasks []domain.Task, include []string) error {
	if len(tasks) == 0 {
		return nil
	}

	ids := make([]uuid.UUID, len(tasks))
	for i := range tasks {
		ids[i] = tasks[i].ID
	}
	tags, err := tagsByTask(ctx, s.db, ids)
	if err != nil {
		return err
	}
	withTags := slices.Contains(include, store.TaskIncludeTags)
	for i := range tasks {
		ts := tags[tasks[i].ID]
		tasks[i].TagIDs = make([]uuid.UUID, 0, len(ts))
		for _, t := range ts {
			tasks[i].TagIDs = append(tasks[i].TagIDs, t.ID)
		}
		if withTags {
			tasks[i].Tags = append([]domain.Tag{}, ts...)
		}
	}

	if slices.Contains(include, store.TaskIncludeAssignee) {
		var assigneeIDs []uuid.UUID
		for i := range tasks {
			if tasks[i].AssigneeID != nil {
				assigneeIDs = append(assigneeIDs, *tasks[i].AssigneeID)
			}
		}
		users, err := usersByID(ctx, s.db, dedupe(assigneeIDs))
		if err != nil {
			return err
		}
		for i := range tasks {
			if tasks[i].AssigneeID != nil {
				tasks[i].Assignee = users[*tasks[i].AssigneeID]
			}
		}
	}

	if slices.Contains(include, store.TaskIncludeProject) {
		projectIDs := make([]uuid.UUID, 0, len(tasks))
		for i := range tasks {
			projectIDs = append(projectIDs, tasks[i].ProjectID)
		}
		projects, err := projectsByID(ctx, s.db, dedupe(projectIDs))
		if err != nil {
			return err
		}
		for i := range tasks {
			tasks[i].Project = projects[tasks[i].ProjectID]
		}
	}
	return nil
}

func tagsByTask(ctx context.Context, db store.DBTX, taskIDs []uuid.UUID) (map[uuid.UUID][]domain.Tag, error) {
	var b queryBuilder
	rows, err := db.QueryContext(ctx, `
		SELECT tt.task_id, t.id, t.name
		FROM task_tags tt
		JOIN tags t ON t.id = tt.tag_id
		WHERE tt.task_id IN `+b.in(taskIDs)+`
		ORDER BY t.name ASC, t.id ASC`, b.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to load task tags: %w", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	out := make(map[uuid.UUID][]domain.Tag, len(taskIDs))
	for rows.Next() {
		var taskID uuid.UUID
		var t domain.Tag
		if err := rows.Scan(&taskID, &t.ID, &t.Name); err != nil {
			return nil, fmt.Errorf("failed to scan task tag row: %w", err)
		}
		out[taskID] = append(out[taskID], t)
	}
	return out, rows.Err()
}

func insertTaskTags(ctx context.Context, q store.DBTX, taskID uuid.UUID, tagIDs []uuid.UUID) error {
	for _, tagID := range dedupe(tagIDs) {
		if _, err := q.ExecContext(ctx,
			"INSERT INTO task_tags (task_id, tag_id) VALUES ($1, $2)", taskID, tagID); err != nil {
			if IsForeignKeyViolation(err) {
				return fmt.Errorf("%w: %s", store.ErrTagNotFound, tagID)
			}
			return MapError(err)
		}
	}
	return nil
}

func scanTask(row rowScanner) (*domain.Task, error) {
	var (
		t           domain.Task
		description sql.NullString
		dueDate     sql.NullTime
		assigneeID  uuid.NullUUID
	)
	if err := row.Scan(
		&t.ID,
		&t.Title,
		&description,
		&t.Status,
		&t.Priority,
		&dueDate,
		&t.ProjectID,
		&assigneeID,
		&t.CreatedAt,
		&t.UpdatedAt,
	); err != nil {
		return nil, err
	}

	if description.Valid {
		t.Description = &description.String
	}
	if dueDate.Valid {
		d := dueDate.Time.UTC()
		t.DueDate = &d
	}
	if assigneeID.Valid {
		id := assigneeID.UUID
		t.AssigneeID = &id
	}
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()
	t.TagIDs = []uuid.UUID{}
	return &t, nil
}

func nullUUID(id *uuid.UUID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: *id, Valid: true}
}

func dedupe(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
