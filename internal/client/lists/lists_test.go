package lists

import (
	"context"
	"fmt"
	"slices"
	"testing"
	"time"

	"taskcal/internal/apperr"
	"taskcal/internal/client/devicestore"
	"taskcal/internal/model"
)

type fakeTasks struct {
	tasks     []model.Task
	nextID    int
	failWrite error
	failList  error
	lists     int
	// during runs inside every write, before it takes effect.
	during func()
}

func (f *fakeTasks) ListTasks(context.Context) ([]model.Task, error) {
	f.lists++
	if f.failList != nil {
		return nil, f.failList
	}
	return slices.Clone(f.tasks), nil
}

func (f *fakeTasks) write() error {
	if f.during != nil {
		f.during()
	}
	return f.failWrite
}

func (f *fakeTasks) CreateTask(_ context.Context, in model.TaskInput) (*model.Task, error) {
	if err := f.write(); err != nil {
		return nil, err
	}
	f.nextID++
	t := model.Task{ID: fmt.Sprintf("srv-%d", f.nextID), Status: model.TaskPending, Priority: model.PriorityMedium}
	in.Apply(&t)
	f.tasks = append([]model.Task{t}, f.tasks...)
	return &t, nil
}

func (f *fakeTasks) find(id string) (*model.Task, error) {
	for i := range f.tasks {
		if f.tasks[i].ID == id {
			return &f.tasks[i], nil
		}
	}
	return nil, apperr.New(apperr.NotFound, "task not found")
}

func (f *fakeTasks) UpdateTask(_ context.Context, id string, in model.TaskInput) (*model.Task, error) {
	if err := f.write(); err != nil {
		return nil, err
	}
	t, err := f.find(id)
	if err != nil {
		return nil, err
	}
	in.Apply(t)
	out := *t
	return &out, nil
}

func (f *fakeTasks) ToggleTask(_ context.Context, id string) (*model.Task, error) {
	if err := f.write(); err != nil {
		return nil, err
	}
	t, err := f.find(id)
	if err != nil {
		return nil, err
	}
	t.Status = t.Status.Toggled()
	out := *t
	return &out, nil
}

func (f *fakeTasks) DeleteTask(_ context.Context, id string) error {
	if err := f.write(); err != nil {
		return err
	}
	if _, err := f.find(id); err != nil {
		return err
	}
	f.tasks = slices.DeleteFunc(f.tasks, func(t model.Task) bool { return t.ID == id })
	return nil
}

func cached(t *testing.T, l *TaskList) []model.Task {
	t.Helper()
	snap, _, err := l.cache.Snapshot(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	return snap.Items
}

func titles(tasks []model.Task) []string {
	out := make([]string, len(tasks))
	for i, t := range tasks {
		out[i] = t.Title
	}
	return out
}

func ptr[T any](v T) *T { return &v }

var errOffline = apperr.New(apperr.Unavailable, "offline")

func TestTaskCreateOptimistic(t *testing.T) {
	tests := []struct {
		name       string
		failWrite  error
		failList   bool
		wantTitles []string
		wantErr    apperr.Kind
	}{
		{"write succeeds", nil, false, []string{"New", "Existing"}, apperr.Unknown},
		{"write fails, refetch reverts", errOffline, false, []string{"Existing"}, apperr.Unavailable},
		{"write and refetch fail, local revert", errOffline, true, []string{"Existing"}, apperr.Unavailable},
		{"write succeeds, refetch fails", nil, true, []string{"New", "Existing"}, apperr.Unknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			backend := &fakeTasks{tasks: []model.Task{{ID: "srv-0", Title: "Existing", Status: model.TaskPending}}}
			l := NewTaskList(backend, devicestore.NewMemory())
			if _, err := l.List(ctx); err != nil {
				t.Fatal(err)
			}

			var seenDuringWrite []string
			backend.during = func() { seenDuringWrite = titles(cached(t, l)) }
			backend.failWrite = tt.failWrite
			if tt.failList {
				backend.failList = errOffline
			}

			created, err := l.Create(ctx, model.TaskInput{Title: ptr("New")})
			if tt.wantErr != apperr.Unknown {
				if !apperr.Is(err, tt.wantErr) {
					t.Fatalf("Create() error = %v, want %v", err, tt.wantErr)
				}
			} else if err != nil || created == nil || created.ID == "" {
				t.Fatalf("Create() = %+v, %v", created, err)
			}

			if !slices.Equal(seenDuringWrite, []string{"New", "Existing"}) {
				t.Errorf("snapshot during write = %v, want placeholder first", seenDuringWrite)
			}
			got := cached(t, l)
			if !slices.Equal(titles(got), tt.wantTitles) {
				t.Errorf("snapshot after = %v, want %v", titles(got), tt.wantTitles)
			}
			for _, task := range got {
				if tt.wantErr == apperr.Unknown && task.Title == "New" && task.ID != created.ID {
					t.Errorf("placeholder id %q left in snapshot, want %q", task.ID, created.ID)
				}
			}
		})
	}
}

func TestTaskToggleRevertedOnFailure(t *testing.T) {
	ctx := context.Background()
	backend := &fakeTasks{tasks: []model.Task{{ID: "a1", Title: "Report", Status: model.TaskPending}}}
	l := NewTaskList(backend, devicestore.NewMemory())
	l.List(ctx)

	var during model.TaskStatus
	backend.during = func() { during = cached(t, l)[0].Status }
	backend.failWrite = errOffline

	if _, err := l.Toggle(ctx, "a1"); !apperr.Is(err, apperr.Unavailable) {
		t.Fatalf("Toggle() error = %v", err)
	}
	if during != model.TaskCompleted {
		t.Errorf("status during write = %s, want completed", during)
	}
	if got := cached(t, l)[0].Status; got != model.TaskPending {
		t.Errorf("status after failed toggle = %s, want pending", got)
	}

	backend.failWrite = nil
	toggled, err := l.Toggle(ctx, "a1")
	if err != nil || toggled.Status != model.TaskCompleted {
		t.Fatalf("Toggle() = %+v, %v", toggled, err)
	}
	if got := cached(t, l)[0].Status; got != model.TaskCompleted {
		t.Errorf("status after toggle = %s", got)
	}
}

func TestTaskUpdateAndDelete(t *testing.T) {
	ctx := context.Background()
	backend := &fakeTasks{tasks: []model.Task{
		{ID: "a1", Title: "One", Priority: model.PriorityLow},
		{ID: "b2", Title: "Two", Priority: model.PriorityLow},
	}}
	l := NewTaskList(backend, devicestore.NewMemory())
	l.List(ctx)

	if _, err := l.Update(ctx, "a1", model.TaskInput{Priority: ptr(model.PriorityHigh)}); err != nil {
		t.Fatal(err)
	}
	if got := cached(t, l)[0].Priority; got != model.PriorityHigh {
		t.Errorf("priority = %s", got)
	}
	if _, err := l.Update(ctx, "a1", model.TaskInput{Priority: ptr(model.Priority("urgent"))}); !apperr.Is(err, apperr.Validation) {
		t.Errorf("Update(bad priority) error = %v", err)
	}

	backend.failWrite = errOffline
	if err := l.Delete(ctx, "b2"); !apperr.Is(err, apperr.Unavailable) {
		t.Fatalf("Delete() error = %v", err)
	}
	if got := titles(cached(t, l)); !slices.Equal(got, []string{"One", "Two"}) {
		t.Errorf("after failed delete = %v", got)
	}

	backend.failWrite = nil
	if err := l.Delete(ctx, "b2"); err != nil {
		t.Fatal(err)
	}
	if got := titles(cached(t, l)); !slices.Equal(got, []string{"One"}) {
		t.Errorf("after delete = %v", got)
	}
}

func TestTaskCreateRejectsBlankTitle(t *testing.T) {
	backend := &fakeTasks{}
	l := NewTaskList(backend, devicestore.NewMemory())
	if _, err := l.Create(context.Background(), model.TaskInput{Title: ptr("   ")}); !apperr.Is(err, apperr.Validation) {
		t.Errorf("Create() error = %v, want validation", err)
	}
	if backend.lists != 0 {
		t.Errorf("backend touched %d times", backend.lists)
	}
}

func TestApplyRemoteAndResolve(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	backend := &fakeTasks{}
	l := NewTaskList(backend, devicestore.NewMemory()).WithClock(func() time.Time { return start })

	pushed := []model.Task{{ID: "abc123", Title: "Pushed"}, {ID: "abd456", Title: "Other"}}
	if err := l.ApplyRemote(ctx, pushed); err != nil {
		t.Fatal(err)
	}
	got, err := l.List(ctx)
	if err != nil || !slices.Equal(titles(got), []string{"Pushed", "Other"}) {
		t.Fatalf("List() = %v, %v", titles(got), err)
	}
	if backend.lists != 0 {
		t.Errorf("fresh pushed snapshot refetched %d times", backend.lists)
	}

	tests := []struct {
		prefix string
		want   string
		kind   apperr.Kind
	}{
		{"abc", "abc123", apperr.Unknown},
		{"ABD", "abd456", apperr.Unknown},
		{"ab", "", apperr.Conflict},
		{"zz", "", apperr.NotFound},
		{" ", "", apperr.Validation},
	}
	for _, tt := range tests {
		task, err := l.Resolve(ctx, tt.prefix)
		if tt.kind != apperr.Unknown {
			if !apperr.Is(err, tt.kind) {
				t.Errorf("Resolve(%q) error = %v, want %v", tt.prefix, err, tt.kind)
			}
			continue
		}
		if err != nil || task.ID != tt.want {
			t.Errorf("Resolve(%q) = %q, %v", tt.prefix, task.ID, err)
		}
	}
}

type fakeEvents struct {
	events    []model.Event
	failWrite error
	nextID    int
}

func (f *fakeEvents) ListEvents(context.Context, time.Time, time.Time) ([]model.Event, error) {
	return slices.Clone(f.events), nil
}

func (f *fakeEvents) CreateEvent(_ context.Context, in model.EventInput) (*model.Event, error) {
	if f.failWrite != nil {
		return nil, f.failWrite
	}
	f.nextID++
	e := model.Event{ID: fmt.Sprintf("ev-%d", f.nextID)}
	in.Apply(&e)
	i, _ := slices.BinarySearchFunc(f.events, e, func(a, b model.Event) int { return a.StartTime.Compare(b.StartTime) })
	f.events = slices.Insert(f.events, i, e)
	return &e, nil
}

func (f *fakeEvents) UpdateEvent(_ context.Context, id string, in model.EventInput) (*model.Event, error) {
	if f.failWrite != nil {
		return nil, f.failWrite
	}
	for i := range f.events {
		if f.events[i].ID == id {
			in.Apply(&f.events[i])
			out := f.events[i]
			return &out, nil
		}
	}
	return nil, apperr.New(apperr.NotFound, "event not found")
}

func (f *fakeEvents) DeleteEvent(_ context.Context, id string) error {
	if f.failWrite != nil {
		return f.failWrite
	}
	f.events = slices.DeleteFunc(f.events, func(e model.Event) bool { return e.ID == id })
	return nil
}

func TestEventListOptimistic(t *testing.T) {
	ctx := context.Background()
	day := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	backend := &fakeEvents{events: []model.Event{
		{ID: "ev-a", Title: "Morning", StartTime: day.Add(9 * time.Hour)},
		{ID: "ev-b", Title: "Evening", StartTime: day.Add(19 * time.Hour)},
	}}
	l := NewEventList(backend, devicestore.NewMemory())
	l.List(ctx)

	created, err := l.Create(ctx, model.EventInput{Title: ptr("Lunch"), StartTime: ptr(day.Add(12 * time.Hour))})
	if err != nil {
		t.Fatal(err)
	}
	events, _ := l.List(ctx)
	if len(events) != 3 || events[1].ID != created.ID {
		t.Fatalf("events = %+v", events)
	}

	backend.failWrite = errOffline
	if _, err := l.Update(ctx, created.ID, model.EventInput{Title: ptr("Brunch")}); !apperr.Is(err, apperr.Unavailable) {
		t.Fatalf("Update() error = %v", err)
	}
	events, _ = l.List(ctx)
	if events[1].Title != "Lunch" {
		t.Errorf("failed update left %q", events[1].Title)
	}

	end := day.Add(8 * time.Hour)
	if _, err := l.Create(ctx, model.EventInput{Title: ptr("Bad"), StartTime: ptr(day.Add(9 * time.Hour)), EndTime: &end}); !apperr.Is(err, apperr.Validation) {
		t.Errorf("Create(end before start) error = %v", err)
	}

	backend.failWrite = nil
	if err := l.Delete(ctx, "ev-a"); err != nil {
		t.Fatal(err)
	}
	afternoon, err := l.Between(ctx, day.Add(12*time.Hour), day.Add(24*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if len(afternoon) != 2 || afternoon[0].Title != "Lunch" || afternoon[1].Title != "Evening" {
		t.Errorf("Between() = %+v", afternoon)
	}
}
