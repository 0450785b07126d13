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

// EventBackend is the server side of the event list.
type EventBackend interface {
	ListEvents(ctx context.Context, from, to time.Time) ([]model.Event, error)
	CreateEvent(ctx context.Context, in model.EventInput) (*model.Event, error)
	UpdateEvent(ctx context.Context, id string, in model.EventInput) (*model.Event, error)
	DeleteEvent(ctx context.Context, id string) error
}

// EventList caches the user's whole calendar; range queries filter locally.
type EventList struct {
	backend EventBackend
	cache   *cache.Cache[model.Event]
	opt     *optimistic[model.Event]
	now     func() time.Time
}

func NewEventList(backend EventBackend, store devicestore.Store) *EventList {
	c := cache.New[model.Event](store, devicestore.KeyEventsCache)
	l := &EventList{backend: backend, cache: c, now: time.Now}
	l.opt = &optimistic[model.Event]{cache: c, fetch: l.fetchAll}
	return l
}

func (l *EventList) WithClock(now func() time.Time) *EventList {
	l.now = now
	l.cache.WithClock(now)
	return l
}

func (l *EventList) fetchAll(ctx context.Context) ([]model.Event, error) {
	return l.backend.ListEvents(ctx, time.Time{}, time.Time{})
}

// List returns every event, fetching when the snapshot is stale.
func (l *EventList) List(ctx context.Context) ([]model.Event, error) {
	return l.cache.Load(ctx, l.fetchAll)
}

// Between returns events starting in [from, to). A zero bound is open.
func (l *EventList) Between(ctx context.Context, from, to time.Time) ([]model.Event, error) {
	events, err := l.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]model.Event, 0, len(events))
	for _, e := range events {
		if !from.IsZero() && e.StartTime.Before(from) {
			continue
		}
		if !to.IsZero() && !e.StartTime.Before(to) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (l *EventList) Refresh(ctx context.Context) ([]model.Event, error) {
	return l.cache.Refresh(ctx, l.fetchAll)
}

// ApplyRemote replaces the snapshot with a full list pushed by the server.
func (l *EventList) ApplyRemote(ctx context.Context, events []model.Event) error {
	return l.cache.Put(ctx, events)
}

func (l *EventList) Create(ctx context.Context, in model.EventInput) (*model.Event, error) {
	if err := validation.NewEvent(in); err != nil {
		return nil, apperr.New(apperr.Validation, err.Error())
	}
	now := l.now()
	placeholder := model.Event{ID: "local-" + uuid.NewString(), CreatedAt: now, UpdatedAt: now}
	in.Apply(&placeholder)
	placeholder.Title = strings.TrimSpace(placeholder.Title)

	var created *model.Event
	err := l.opt.apply(ctx,
		func(events []model.Event) []model.Event { return insertByStart(events, placeholder) },
		func(ctx context.Context) (func([]model.Event) []model.Event, error) {
			e, err := l.backend.CreateEvent(ctx, in)
			if err != nil {
				return nil, err
			}
			created = e
			return replaceEvent(placeholder.ID, *e), nil
		})
	return created, err
}

func (l *EventList) Update(ctx context.Context, id string, in model.EventInput) (*model.Event, error) {
	if err := validation.EventUpdate(in); err != nil {
		return nil, apperr.New(apperr.Validation, err.Error())
	}
	var updated *model.Event
	err := l.opt.apply(ctx,
		editEvent(id, func(e *model.Event) { in.Apply(e); e.UpdatedAt = l.now() }),
		func(ctx context.Context) (func([]model.Event) []model.Event, error) {
			e, err := l.backend.UpdateEvent(ctx, id, in)
			if err != nil {
				return nil, err
			}
			updated = e
			return replaceEvent(id, *e), nil
		})
	return updated, err
}

func (l *EventList) Delete(ctx context.Context, id string) error {
	remove := func(events []model.Event) []model.Event {
		return slices.DeleteFunc(events, func(e model.Event) bool { return e.ID == id })
	}
	return l.opt.apply(ctx, remove,
		func(ctx context.Context) (func([]model.Event) []model.Event, error) {
			return remove, l.backend.DeleteEvent(ctx, id)
		})
}

// Resolve finds an event by id or unique id prefix.
func (l *EventList) Resolve(ctx context.Context, prefix string) (model.Event, error) {
	events, err := l.List(ctx)
	if err != nil {
		return model.Event{}, err
	}
	return resolve(events, prefix, func(e model.Event) string { return e.ID }, "event")
}

func insertByStart(events []model.Event, e model.Event) []model.Event {
	i, _ := slices.BinarySearchFunc(events, e, func(a, b model.Event) int { return a.StartTime.Compare(b.StartTime) })
	return slices.Insert(events, i, e)
}

func editEvent(id string, fn func(*model.Event)) func([]model.Event) []model.Event {
	return func(events []model.Event) []model.Event {
		for i := range events {
			if events[i].ID == id {
				fn(&events[i])
			}
		}
		return events
	}
}

func replaceEvent(id string, e model.Event) func([]model.Event) []model.Event {
	return editEvent(id, func(dst *model.Event) { *dst = e })
}
