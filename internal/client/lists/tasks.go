package lists

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"taskcal/internal/apperr"
	"taskcal/internal/client/cache"
	"taskcal/internal/client/devicestore"
	"taskcal/internal/model"
	"taskcal/internal/validation"
)

// TaskBackend is the server side of the task list.
type TaskBackend interface {
	ListTasks(ctx context.Context) ([]model.Task, error)
	CreateTask(ctx context.Context, in model.TaskInput) (*model.Task, error)
	UpdateTask(ctx context.Context, id string, in model.TaskInput) (*model.Task, error)
	ToggleTask(ctx context.Context, id string) (*model.Task, error)
	DeleteTask(ctx context.Context, id string) error
}

// TaskList is the signed-in user's tasks.
type TaskList struct {
	backend TaskBackend
	cache   *cache.Cache[model.Task]
	opt     *optimistic[model.Task]
	now     func() time.Time
}

func NewTaskList(backend TaskBackend, store devicestore.Store) *TaskList {
	c := cache.New[model.Task](store, devicestore.KeyTasksCache)
	return &TaskList{
		backend: backend,
		cache:   c,
		opt:     &optimistic[model.Task]{cache: c, fetch: backend.ListTasks},
		now:     time.Now,
	}
}

// WithClock replaces the time source for freshness checks and placeholders.
func (l *TaskList) WithClock(now func() time.Time) *TaskList {
	l.now = now
	l.cache.WithClock(now)
	return l
}

// List returns the cached tasks, fetching when the snapshot is stale.
func (l *TaskList) List(ctx context.Context) ([]model.Task, error) {
	return l.cache.Load(ctx, l.backend.ListTasks)
}

// Refresh fetches from the server regardless of freshness.
func (l *TaskList) Refresh(ctx context.Context) ([]model.Task, error) {
	return l.cache.Refresh(ctx, l.backend.ListTasks)
}

// ApplyRemote replaces the snapshot with a full list pushed by the server.
func (l *TaskList) ApplyRemote(ctx context.Context, tasks []model.Task) error {
	return l.cache.Put(ctx, tasks)
}

// Create adds a placeholder row, then the server's task.
func (l *TaskList) Create(ctx context.Context, in model.TaskInput) (*model.Task, error) {
	if err := validation.NewTask(in); err != nil {
		return nil, apperr.New(apperr.Validation, err.Error())
	}
	now := l.now()
	placeholder := model.Task{
		ID:        "local-" + uuid.NewString(),
		Status:    model.TaskPending,
		Priority:  model.PriorityMedium,
		CreatedAt: now,
		UpdatedAt: now,
	}
	in.Apply(&placeholder)
	placeholder.Title = strings.TrimSpace(placeholder.Title)

	var created *model.Task
	err := l.opt.apply(ctx,
		func(tasks []model.Task) []model.Task { return append([]model.Task{placeholder}, tasks...) },
		func(ctx context.Context) (func([]model.Task) []model.Task, error) {
			t, err := l.backend.CreateTask(ctx, in)
			if err != nil {
				return nil, err
			}
			created = t
			return replaceTask(placeholder.ID, *t), nil
		})
	return created, err
}

// Update applies a partial edit.
func (l *TaskList) Update(ctx context.Context, id string, in model.TaskInput) (*model.Task, error) {
	if err := validation.TaskUpdate(in); err != nil {
		return nil, apperr.New(apperr.Validation, err.Error())
	}
	var updated *model.Task
	err := l.opt.apply(ctx,
		editTask(id, func(t *model.Task) { in.Apply(t); t.UpdatedAt = l.now() }),
		func(ctx context.Context) (func([]model.Task) []model.Task, error) {
			t, err := l.backend.UpdateTask(ctx, id, in)
			if err != nil {
				return nil, err
			}
			updated = t
			return replaceTask(id, *t), nil
		})
	return updated, err
}

// Toggle flips a task between pending and completed.
func (l *TaskList) Toggle(ctx context.Context, id string) (*model.Task, error) {
	var toggled *model.Task
	err := l.opt.apply(ctx,
		editTask(id, func(t *model.Task) { t.Status = t.Status.Toggled(); t.UpdatedAt = l.now() }),
		func(ctx context.Context) (func([]model.Task) []model.Task, error) {
			t, err := l.backend.ToggleTask(ctx, id)
			if err != nil {
				return nil, err
			}
			toggled = t
			return replaceTask(id, *t), nil
		})
	return toggled, err
}

func (l *TaskList) Delete(ctx context.Context, id string) error {
	remove := func(tasks []model.Task) []model.Task {
		return slices.DeleteFunc(tasks, func(t model.Task) bool { return t.ID == id })
	}
	return l.opt.apply(ctx, remove,
		func(ctx context.Context) (func([]model.Task) []model.Task, error) {
			return remove, l.backend.DeleteTask(ctx, id)
		})
}

// Resolve finds a task by id or unique id prefix in the current list.
func (l *TaskList) Resolve(ctx context.Context, prefix string) (model.Task, error) {
	tasks, err := l.List(ctx)
	if err != nil {
		return model.Task{}, err
	}
	return resolve(tasks, prefix, func(t model.Task) string { return t.ID }, "task")
}

func editTask(id string, fn func(*model.Task)) func([]model.Task) []model.Task {
	return func(tasks []model.Task) []model.Task {
		for i := range tasks {
			if tasks[i].ID == id {
				fn(&tasks[i])
			}
		}
		return tasks
	}
}

func replaceTask(id string, t model.Task) func([]model.Task) []model.Task {
	return editTask(id, func(dst *model.Task) { *dst = t })
}

func resolve[T any](items []T, prefix string, id func(T) string, what string) (T, error) {
	var zero T
	prefix = strings.ToLower(strings.TrimSpace(prefix))
	if prefix == "" {
		return zero, apperr.Newf(apperr.Validation, "%s id is required", what)
	}
	var matches []T
	for _, item := range items {
		if id(item) == prefix {
			return item, nil
		}
		if strings.HasPrefix(id(item), prefix) {
			matches = append(matches, item)
		}
	}
	switch len(matches) {
	case 0:
		return zero, apperr.Newf(apperr.NotFound, "no %s matches %q", what, prefix)
	case 1:
		return matches[0], nil
	default:
		return zero, apperr.Newf(apperr.Conflict, "%q matches %d %ss, use more characters", prefix, len(matches), what)
	}
}
