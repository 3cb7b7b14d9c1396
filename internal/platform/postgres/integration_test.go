//go:build integration

package postgres_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/tasktrail-api/internal/domain"
	"github.com/phrazzld/tasktrail-api/internal/job"
	"github.com/phrazzld/tasktrail-api/internal/pagination"
	"github.com/phrazzld/tasktrail-api/internal/platform/postgres"
	"github.com/phrazzld/tasktrail-api/internal/store"
	"github.com/phrazzld/tasktrail-api/internal/testdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixtures struct {
	user    domain.User
	project domain.Project
	tag     domain.Tag
}

func seed(t *testing.T, tx *sql.Tx) fixtures {
	t.Helper()
	ctx := context.Background()
	f := fixtures{
		user:    domain.User{ID: uuid.New(), Email: uuid.NewString() + "@example.com", Name: "Ada"},
		project: domain.Project{ID: uuid.New(), Name: "Apollo"},
		tag:     domain.Tag{ID: uuid.New(), Name: "tag-" + uuid.NewString()},
	}
	_, err := tx.ExecContext(ctx, "INSERT INTO users (id, email, name) VALUES ($1, $2, $3)",
		f.user.ID, f.user.Email, f.user.Name)
	require.NoError(t, err)
	_, err = tx.ExecContext(ctx, "INSERT INTO projects (id, name) VALUES ($1, $2)", f.project.ID, f.project.Name)
	require.NoError(t, err)
	_, err = tx.ExecContext(ctx, "INSERT INTO tags (id, name) VALUES ($1, $2)", f.tag.ID, f.tag.Name)
	require.NoError(t, err)
	return f
}

func TestTaskStoreRoundTrip(t *testing.T) {
	db := testdb.Open(t)

	testdb.WithTx(t, db, func(t *testing.T, tx *sql.Tx) {
		ctx := context.Background()
		f := seed(t, tx)
		tasks := postgres.NewPostgresTaskStore(tx)

		task, err := domain.NewTask("Write report", f.project.ID)
		require.NoError(t, err)
		task.AssigneeID = &f.user.ID
		task.TagIDs = []uuid.UUID{f.tag.ID}
		require.NoError(t, tasks.Create(ctx, task))

		got, err := tasks.GetByID(ctx, task.ID)
		require.NoError(t, err)
		assert.Equal(t, "Write report", got.Title)
		require.NotNil(t, got.AssigneeID)
		assert.Equal(t, f.user.ID, *got.AssigneeID)
		assert.Equal(t, []uuid.UUID{f.tag.ID}, got.TagIDs)

		got.Title = "Write final report"
		got.AssigneeID = nil
		got.TagIDs = nil
		require.NoError(t, tasks.Update(ctx, got))

		updated, err := tasks.GetByID(ctx, task.ID)
		require.NoError(t, err)
		assert.Equal(t, "Write final report", updated.Title)
		assert.Nil(t, updated.AssigneeID)
		assert.Empty(t, updated.TagIDs)

		require.NoError(t, tasks.Delete(ctx, task.ID))
		_, err = tasks.GetByID(ctx, task.ID)
		assert.ErrorIs(t, err, store.ErrTaskNotFound)
		assert.ErrorIs(t, tasks.Delete(ctx, task.ID), store.ErrTaskNotFound)
	})
}

func TestTaskStoreFindMany(t *testing.T) {
	db := testdb.Open(t)

	testdb.WithTx(t, db, func(t *testing.T, tx *sql.Tx) {
		ctx := context.Background()
		f := seed(t, tx)
		tasks := postgres.NewPostgresTaskStore(tx)

		for _, title := range []string{"Alpha launch", "Beta launch", "Gamma review"} {
			task, err := domain.NewTask(title, f.project.ID)
			require.NoError(t, err)
			task.AssigneeID = &f.user.ID
			task.TagIDs = []uuid.UUID{f.tag.ID}
			require.NoError(t, tasks.Create(ctx, task))
		}

		where := pagination.Where{
			store.TaskFieldProjectID: f.project.ID,
			store.TaskFieldTitle:     pagination.Contains("LAUNCH"),
		}
		total, err := tasks.Count(ctx, where)
		require.NoError(t, err)
		assert.Equal(t, 2, total)

		page, err := tasks.FindMany(ctx, pagination.FindArgs{
			Where:   where,
			Include: []string{store.TaskIncludeAssignee, store.TaskIncludeProject, store.TaskIncludeTags},
			OrderBy: []pagination.Order{{Field: store.TaskFieldTitle, Direction: pagination.Asc}},
			Take:    1,
		})
		require.NoError(t, err)
		require.Len(t, page, 1)
		assert.Equal(t, "Alpha launch", page[0].Title)
		require.NotNil(t, page[0].Assignee)
		assert.Equal(t, "Ada", page[0].Assignee.Name)
		require.NotNil(t, page[0].Project)
		assert.Equal(t, "Apollo", page[0].Project.Name)
		require.Len(t, page[0].Tags, 1)
		assert.Equal(t, f.tag.Name, page[0].Tags[0].Name)
	})
}

func TestActivityStoreDenormalizedFields(t *testing.T) {
	db := testdb.Open(t)

	testdb.WithTx(t, db, func(t *testing.T, tx *sql.Tx) {
		ctx := context.Background()
		f := seed(t, tx)
		activities := postgres.NewPostgresActivityStore(tx)
		taskID := uuid.New()

		for _, action := range []domain.ActivityAction{domain.ActivityCreated, domain.ActivityUpdated} {
			a, err := domain.NewActivity(taskID, f.user.ID, action, domain.Changes{
				"title": domain.Change{New: "Old title", HasNew: true},
			}, "Old title", f.user.Name)
			require.NoError(t, err)
			require.NoError(t, activities.Create(ctx, a))
		}

		n, err := activities.UpdateTaskTitle(ctx, taskID, "New title")
		require.NoError(t, err)
		assert.EqualValues(t, 2, n)

		n, err = activities.UpdateUserName(ctx, f.user.ID, "Ada L.")
		require.NoError(t, err)
		assert.EqualValues(t, 2, n)

		list, err := activities.FindMany(ctx, pagination.FindArgs{
			Where:   pagination.Where{store.ActivityFieldTaskID: taskID},
			OrderBy: []pagination.Order{{Field: store.ActivityFieldCreatedAt, Direction: pagination.Desc}},
			Take:    10,
		})
		require.NoError(t, err)
		require.Len(t, list, 2)
		for _, a := range list {
			assert.Equal(t, "New title", a.TaskTitle)
			assert.Equal(t, "Ada L.", a.UserName)
			assert.True(t, a.Changes["title"].HasNew)
			assert.False(t, a.Changes["title"].HasOld)
		}
	})
}

func TestUserStore(t *testing.T) {
	db := testdb.Open(t)

	testdb.WithTx(t, db, func(t *testing.T, tx *sql.Tx) {
		ctx := context.Background()
		f := seed(t, tx)
		users := postgres.NewPostgresUserStore(tx)

		got, err := users.GetByID(ctx, f.user.ID)
		require.NoError(t, err)
		assert.Equal(t, f.user.Email, got.Email)

		earliest, err := users.GetEarliest(ctx)
		require.NoError(t, err)
		assert.NotNil(t, earliest)

		_, err = users.GetByID(ctx, uuid.New())
		assert.ErrorIs(t, err, store.ErrUserNotFound)
	})
}

func TestJobStoreLifecycle(t *testing.T) {
	db := testdb.Open(t)

	testdb.WithTx(t, db, func(t *testing.T, tx *sql.Tx) {
		ctx := context.Background()
		jobs := postgres.NewPostgresJobStore(tx)

		j, err := job.New("task-assigned", map[string]string{"taskTitle": "Ship"}, job.Options{
			Attempts: 3,
			Backoff:  time.Second,
		})
		require.NoError(t, err)
		require.NoError(t, jobs.Save(ctx, j))

		pending, err := jobs.GetPending(ctx)
		require.NoError(t, err)
		assert.True(t, containsJob(pending, j.ID))

		j.Status = job.StatusProcessing
		j.Attempts = 1
		require.NoError(t, jobs.UpdateStatus(ctx, j))

		processing, err := jobs.GetProcessing(ctx, 0)
		require.NoError(t, err)
		require.True(t, containsJob(processing, j.ID))
		for _, p := range processing {
			if p.ID == j.ID {
				assert.Equal(t, 1, p.Attempts)
				assert.Equal(t, 3, p.MaxAttempts)
				assert.Equal(t, time.Second, p.Backoff)
			}
		}
	})
}

func containsJob(jobs []*job.Job, id uuid.UUID) bool {
	for _, j := range jobs {
		if j.ID == id {
			return true
		}
	}
	return false
}
