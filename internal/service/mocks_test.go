package service

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/tasktrail-api/internal/cache"
	"github.com/phrazzld/tasktrail-api/internal/domain"
	"github.com/phrazzld/tasktrail-api/internal/events"
	"github.com/phrazzld/tasktrail-api/internal/pagination"
	"github.com/phrazzld/tasktrail-api/internal/store"
	"github.com/stretchr/testify/mock"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memUsers is an in-memory store.UserStore.
type memUsers struct {
	users []*domain.User
}

func (m *memUsers) GetByID(_ context.Context, id uuid.UUID) (*domain.User, error) {
	for _, u := range m.users {
		if u.ID == id {
			c := *u
			return &c, nil
		}
	}
	return nil, store.ErrUserNotFound
}

func (m *memUsers) GetEarliest(_ context.Context) (*domain.User, error) {
	var earliest *domain.User
	for _, u := range m.users {
		if earliest == nil || u.CreatedAt.Before(earliest.CreatedAt) {
			earliest = u
		}
	}
	if earliest == nil {
		return nil, store.ErrUserNotFound
	}
	c := *earliest
	return &c, nil
}

// memProjects is an in-memory store.ProjectStore.
type memProjects struct {
	projects map[uuid.UUID]*domain.Project
}

func (m *memProjects) GetByID(_ context.Context, id uuid.UUID) (*domain.Project, error) {
	p, ok := m.projects[id]
	if !ok {
		return nil, store.ErrProjectNotFound
	}
	return p, nil
}

// memTags is an in-memory store.TagStore.
type memTags struct {
	tags map[uuid.UUID]domain.Tag
}

func (m *memTags) GetByIDs(_ context.Context, ids []uuid.UUID) ([]domain.Tag, error) {
	out := []domain.Tag{}
	for _, id := range ids {
		if t, ok := m.tags[id]; ok {
			out = append(out, t)
		}
	}
	return out, nil
}

// memTasks is an in-memory store.TaskStore supporting equality filters.
type memTasks struct {
	mu      sync.Mutex
	tasks   map[uuid.UUID]domain.Task
	updates int
}

func newMemTasks() *memTasks {
	return &memTasks{tasks: make(map[uuid.UUID]domain.Task)}
}

func (m *memTasks) Create(_ context.Context, t *domain.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks[t.ID] = *t
	return nil
}

func (m *memTasks) GetByID(_ context.Context, id uuid.UUID) (*domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return nil, store.ErrTaskNotFound
	}
	t.TagIDs = append([]uuid.UUID{}, t.TagIDs...)
	return &t, nil
}

func (m *memTasks) Update(_ context.Context, t *domain.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[t.ID]; !ok {
		return store.ErrTaskNotFound
	}
	m.tasks[t.ID] = *t
	m.updates++
	return nil
}

func (m *memTasks) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[id]; !ok {
		return store.ErrTaskNotFound
	}
	delete(m.tasks, id)
	return nil
}

func (m *memTasks) Count(ctx context.Context, w pagination.Where) (int, error) {
	all, err := m.FindMany(ctx, pagination.FindArgs{Where: w})
	return len(all), err
}

func (m *memTasks) FindMany(_ context.Context, args pagination.FindArgs) ([]domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []domain.Task{}
	for _, t := range m.tasks {
		if v, ok := args.Where[store.TaskFieldStatus]; ok && v != string(t.Status) {
			continue
		}
		if v, ok := args.Where[store.TaskFieldProjectID]; ok && v != t.ProjectID {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return window(out, args.Skip, args.Take), nil
}

// memActivities is an in-memory store.ActivityStore.
type memActivities struct {
	mu         sync.Mutex
	activities []domain.Activity
}

func (m *memActivities) Create(_ context.Context, a *domain.Activity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.activities = append(m.activities, *a)
	return nil
}

func (m *memActivities) all() []domain.Activity {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Activity{}, m.activities...)
}

func (m *memActivities) Count(ctx context.Context, w pagination.Where) (int, error) {
	all, err := m.FindMany(ctx, pagination.FindArgs{Where: w})
	return len(all), err
}

func (m *memActivities) FindMany(_ context.Context, args pagination.FindArgs) ([]domain.Activity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []domain.Activity{}
	for i := len(m.activities) - 1; i >= 0; i-- {
		a := m.activities[i]
		if v, ok := args.Where[store.ActivityFieldTaskID]; ok && v != a.TaskID {
			continue
		}
		if v, ok := args.Where[store.ActivityFieldUserID]; ok && v != a.UserID {
			continue
		}
		if v, ok := args.Where[store.ActivityFieldAction]; ok && v != string(a.Action) {
			continue
		}
		if r, ok := args.Where[store.ActivityFieldCreatedAt].(pagination.Range); ok {
			if gte, ok := r.Gte.(time.Time); ok && a.CreatedAt.Before(gte) {
				continue
			}
			if lte, ok := r.Lte.(time.Time); ok && a.CreatedAt.After(lte) {
				continue
			}
		}
		out = append(out, a)
	}
	return window(out, args.Skip, args.Take), nil
}

func (m *memActivities) UpdateTaskTitle(_ context.Context, taskID uuid.UUID, title string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for i := range m.activities {
		if m.activities[i].TaskID == taskID {
			m.activities[i].TaskTitle = title
			n++
		}
	}
	return n, nil
}

func (m *memActivities) UpdateUserName(_ context.Context, userID uuid.UUID, name string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for i := range m.activities {
		if m.activities[i].UserID == userID {
			m.activities[i].UserName = name
			n++
		}
	}
	return n, nil
}

func window[T any](items []T, skip, take int) []T {
	if skip >= len(items) {
		return []T{}
	}
	items = items[skip:]
	if take > 0 && take < len(items) {
		items = items[:take]
	}
	return items
}

// MockActivityStore mocks store.ActivityStore for failure paths.
type MockActivityStore struct {
	mock.Mock
}

func (m *MockActivityStore) Create(ctx context.Context, a *domain.Activity) error {
	args := m.Called(ctx, a)
	return args.Error(0)
}

func (m *MockActivityStore) Count(ctx context.Context, w pagination.Where) (int, error) {
	args := m.Called(ctx, w)
	return args.Int(0), args.Error(1)
}

func (m *MockActivityStore) FindMany(ctx context.Context, a pagination.FindArgs) ([]domain.Activity, error) {
	args := m.Called(ctx, a)
	activities, _ := args.Get(0).([]domain.Activity)
	return activities, args.Error(1)
}

func (m *MockActivityStore) UpdateTaskTitle(ctx context.Context, taskID uuid.UUID, title string) (int64, error) {
	args := m.Called(ctx, taskID, title)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockActivityStore) UpdateUserName(ctx context.Context, userID uuid.UUID, name string) (int64, error) {
	args := m.Called(ctx, userID, name)
	return args.Get(0).(int64), args.Error(1)
}

// MockEventEmitter records emitted events.
type MockEventEmitter struct {
	mock.Mock
}

func (m *MockEventEmitter) EmitEvent(ctx context.Context, event *events.TaskRequestEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

// fixture wires a TaskService and ActivityService over in-memory stores.
type fixture struct {
	users      *memUsers
	projects   *memProjects
	tags       *memTags
	tasks      *memTasks
	activities *memActivities
	emitter    *MockEventEmitter
	paginator  *pagination.Paginator

	activitySvc *ActivityService
	taskSvc     *TaskService

	system  *domain.User
	alice   *domain.User
	project *domain.Project
	tagA    domain.Tag
	tagB    domain.Tag
}

func newFixture() *fixture {
	now := time.Now().UTC()
	f := &fixture{
		system:  &domain.User{ID: uuid.New(), Email: "system@example.com", Name: "System", CreatedAt: now.Add(-time.Hour)},
		alice:   &domain.User{ID: uuid.New(), Email: "alice@example.com", Name: "Alice", CreatedAt: now},
		project: &domain.Project{ID: uuid.New(), Name: "Website", CreatedAt: now},
		tagA:    domain.Tag{ID: uuid.New(), Name: "backend"},
		tagB:    domain.Tag{ID: uuid.New(), Name: "urgent"},
		emitter: new(MockEventEmitter),
	}
	f.users = &memUsers{users: []*domain.User{f.alice, f.system}}
	f.projects = &memProjects{projects: map[uuid.UUID]*domain.Project{f.project.ID: f.project}}
	f.tags = &memTags{tags: map[uuid.UUID]domain.Tag{f.tagA.ID: f.tagA, f.tagB.ID: f.tagB}}
	f.tasks = newMemTasks()
	f.activities = &memActivities{}
	f.paginator = pagination.NewPaginator(cache.NewMemoryStore(), discardLogger())

	var err error
	f.activitySvc, err = NewActivityService(f.activities, f.tasks, f.users, f.paginator, discardLogger(), nil)
	if err != nil {
		panic(err)
	}
	f.taskSvc, err = NewTaskService(f.tasks, f.users, f.projects, f.tags, f.activitySvc, f.paginator, f.emitter, discardLogger())
	if err != nil {
		panic(err)
	}
	return f
}
