package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/phrazzld/tasktrail-api/internal/domain"
	"github.com/phrazzld/tasktrail-api/internal/pagination"
	"github.com/phrazzld/tasktrail-api/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var taskRowColumns = []string{
	"id", "title", "description", "status", "priority", "due_date",
	"project_id", "assignee_id", "created_at", "updated_at",
}

func newTestTask(t *testing.T) *domain.Task {
	t.Helper()
	task, err := domain.NewTask("Write docs", uuid.New())
	require.NoError(t, err)
	return task
}

func TestPostgresTaskStore_Create(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewPostgresTaskStore(db)
	task := newTestTask(t)
	tagID := uuid.New()
	task.TagIDs = []uuid.UUID{tagID, tagID}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO tasks").
		WithArgs(task.ID, task.Title, nil, "todo", "medium", nil, task.ProjectID, nil, task.CreatedAt, task.UpdatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO task_tags \(task_id, tag_id\)`).
		WithArgs(task.ID, tagID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, s.Create(context.Background(), task))
}

func TestPostgresTaskStore_CreateUnknownTagRollsBack(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewPostgresTaskStore(db)
	task := newTestTask(t)
	tagID := uuid.New()
	task.TagIDs = []uuid.UUID{tagID}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO tasks").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO task_tags").
		WillReturnError(&pgconn.PgError{Code: foreignKeyViolationCode})
	mock.ExpectRollback()

	err := s.Create(context.Background(), task)
	assert.ErrorIs(t, err, store.ErrTagNotFound)
	assert.Contains(t, err.Error(), tagID.String())
}

func TestPostgresTaskStore_CreateInvalid(t *testing.T) {
	db, _ := newMockDB(t)
	s := NewPostgresTaskStore(db)

	err := s.Create(context.Background(), &domain.Task{})
	assert.ErrorIs(t, err, store.ErrInvalidEntity)
}

func TestPostgresTaskStore_GetByID(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewPostgresTaskStore(db)
	id, projectID, assigneeID, tagID := uuid.New(), uuid.New(), uuid.New(), uuid.New()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	due := now.Add(48 * time.Hour)

	mock.ExpectQuery(`FROM tasks WHERE id = \$1`).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows(taskRowColumns).
			AddRow(id.String(), "Ship", "details", "in_progress", "high", due,
				projectID.String(), assigneeID.String(), now, now))
	mock.ExpectQuery(`FROM task_tags tt`).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"task_id", "id", "name"}).
			AddRow(id.String(), tagID.String(), "urgent"))
	mock.ExpectQuery(`FROM users WHERE id IN`).
		WithArgs(assigneeID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "name", "created_at"}).
			AddRow(assigneeID.String(), "bob@example.com", "Bob", now))
	mock.ExpectQuery(`FROM projects WHERE id IN`).
		WithArgs(projectID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "created_at"}).
			AddRow(projectID.String(), "Website", now))

	task, err := s.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "Ship", task.Title)
	require.NotNil(t, task.Description)
	assert.Equal(t, "details", *task.Description)
	assert.Equal(t, domain.TaskStatusInProgress, task.Status)
	require.NotNil(t, task.DueDate)
	assert.Equal(t, due, *task.DueDate)
	require.NotNil(t, task.AssigneeID)
	assert.Equal(t, assigneeID, *task.AssigneeID)
	assert.Equal(t, []uuid.UUID{tagID}, task.TagIDs)
	require.Len(t, task.Tags, 1)
	assert.Equal(t, "urgent", task.Tags[0].Name)
	require.NotNil(t, task.Assignee)
	assert.Equal(t, "Bob", task.Assignee.Name)
	require.NotNil(t, task.Project)
	assert.Equal(t, "Website", task.Project.Name)
}

func TestPostgresTaskStore_GetByIDNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewPostgresTaskStore(db)

	mock.ExpectQuery(`FROM tasks WHERE id`).WillReturnRows(sqlmock.NewRows(taskRowColumns))

	_, err := s.GetByID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, store.ErrTaskNotFound)
}

func TestPostgresTaskStore_Update(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewPostgresTaskStore(db)
	task := newTestTask(t)
	tagID := uuid.New()
	task.TagIDs = []uuid.UUID{tagID}

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE tasks").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM task_tags WHERE task_id = \$1`).
		WithArgs(task.ID).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("INSERT INTO task_tags").
		WithArgs(task.ID, tagID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, s.Update(context.Background(), task))
}

func TestPostgresTaskStore_UpdateMissing(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewPostgresTaskStore(db)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE tasks").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := s.Update(context.Background(), newTestTask(t))
	assert.ErrorIs(t, err, store.ErrTaskNotFound)
}

func TestPostgresTaskStore_Delete(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewPostgresTaskStore(db)
	id := uuid.New()

	mock.ExpectExec(`DELETE FROM tasks WHERE id = \$1`).WithArgs(id).WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, s.Delete(context.Background(), id))

	mock.ExpectExec(`DELETE FROM tasks`).WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, s.Delete(context.Background(), id), store.ErrTaskNotFound)
}

func TestPostgresTaskStore_Count(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewPostgresTaskStore(db)
	projectID := uuid.New()
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM tasks WHERE assignee_id IS NULL AND due_date >= \$1 AND project_id = \$2 AND status = \$3 AND title ILIKE \$4`).
		WithArgs(from, projectID, "todo", `%50\%%`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

	n, err := s.Count(context.Background(), pagination.Where{
		store.TaskFieldStatus:     "todo",
		store.TaskFieldProjectID:  projectID,
		store.TaskFieldAssigneeID: nil,
		store.TaskFieldDueDate:    pagination.Range{Gte: from},
		store.TaskFieldTitle:      pagination.Contains("50%"),
	})
	require.NoError(t, err)
	assert.Equal(t, 7, n)
}

func TestPostgresTaskStore_CountRejectsUnknownField(t *testing.T) {
	db, _ := newMockDB(t)
	s := NewPostgresTaskStore(db)

	_, err := s.Count(context.Background(), pagination.Where{"description": "x"})
	assert.ErrorIs(t, err, store.ErrInvalidFilter)
}

func TestPostgresTaskStore_FindMany(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewPostgresTaskStore(db)
	a, b, projectID := uuid.New(), uuid.New(), uuid.New()
	now := time.Now().UTC()

	mock.ExpectQuery(`FROM tasks WHERE status = \$1 ORDER BY created_at DESC, id ASC LIMIT \$2 OFFSET \$3`).
		WithArgs("todo", 2, 4).
		WillReturnRows(sqlmock.NewRows(taskRowColumns).
			AddRow(a.String(), "A", nil, "todo", "low", nil, projectID.String(), nil, now, now).
			AddRow(b.String(), "B", nil, "todo", "low", nil, projectID.String(), nil, now, now))
	mock.ExpectQuery(`FROM task_tags tt`).
		WithArgs(a, b).
		WillReturnRows(sqlmock.NewRows([]string{"task_id", "id", "name"}))
	mock.ExpectQuery(`FROM projects WHERE id IN \(\$1\)`).
		WithArgs(projectID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "created_at"}).
			AddRow(projectID.String(), "Website", now))

	tasks, err := s.FindMany(context.Background(), pagination.FindArgs{
		Where:   pagination.Where{store.TaskFieldStatus: "todo"},
		Include: []string{store.TaskIncludeProject, store.TaskIncludeAssignee},
		Skip:    4,
		Take:    2,
	})
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, "A", tasks[0].Title)
	assert.Nil(t, tasks[0].Assignee)
	assert.Empty(t, tasks[0].TagIDs)
	assert.NotNil(t, tasks[0].TagIDs)
	require.NotNil(t, tasks[1].Project)
	assert.Equal(t, "Website", tasks[1].Project.Name)
}

func TestPostgresTaskStore_FindManyEmpty(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewPostgresTaskStore(db)

	mock.ExpectQuery(`FROM tasks ORDER BY title ASC, id ASC`).
		WillReturnRows(sqlmock.NewRows(taskRowColumns))

	tasks, err := s.FindMany(context.Background(), pagination.FindArgs{
		OrderBy: []pagination.Order{{Field: store.TaskFieldTitle, Direction: pagination.Asc}},
	})
	require.NoError(t, err)
	assert.NotNil(t, tasks)
	assert.Empty(t, tasks)
}

func TestPostgresTaskStore_FindManyQueryError(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewPostgresTaskStore(db)
	boom := errors.New("timeout")

	mock.ExpectQuery(`FROM tasks`).WillReturnError(boom)

	_, err := s.FindMany(context.Background(), pagination.FindArgs{})
	assert.ErrorIs(t, err, boom)
}
