package service

import (
	"context"
	"strings"
	"time"

	"taskcal/internal/model"
	"taskcal/internal/repository"
	"taskcal/internal/validation"
)

// EventService wraps calendar event logic.
type EventService struct {
	eventRepo *repository.EventRepository
	pub       Publisher
}

func NewEventService(eventRepo *repository.EventRepository, pub Publisher) *EventService {
	if pub == nil {
		pub = nopPublisher{}
	}
	return &EventService{eventRepo: eventRepo, pub: pub}
}

// List returns events starting in [from, to). Zero bounds are open.
func (s *EventService) List(ctx context.Context, userID string, from, to time.Time) ([]model.Event, error) {
	events, err := s.eventRepo.List(ctx, userID, from, to)
	if err != nil {
		return nil, storeErr(err, "events")
	}
	return events, nil
}

func (s *EventService) Create(ctx context.Context, userID string, input model.EventInput) (*model.Event, error) {
	if err := validation.NewEvent(input); err != nil {
		return nil, invalid(err)
	}
	event := model.Event{UserID: userID}
	input.Apply(&event)
	event.Title = strings.TrimSpace(event.Title)

	if err := s.eventRepo.Create(ctx, &event); err != nil {
		return nil, storeErr(err, "event")
	}
	s.pub.Publish(userID, model.TableEvents)
	return &event, nil
}

func (s *EventService) Update(ctx context.Context, userID, eventID string, input model.EventInput) (*model.Event, error) {
	if err := validation.EventUpdate(input); err != nil {
		return nil, invalid(err)
	}
	event, err := s.eventRepo.FindByID(ctx, userID, eventID)
	if err != nil {
		return nil, storeErr(err, "event")
	}
	input.Apply(event)
	event.Title = strings.TrimSpace(event.Title)
	// The merged event can still be inverted when only one end was edited.
	if err := validation.EventSpan(*event); err != nil {
		return nil, invalid(err)
	}

	if err := s.eventRepo.Save(ctx, event); err != nil {
		return nil, storeErr(err, "event")
	}
	s.pub.Publish(userID, model.TableEvents)
	return event, nil
}

func (s *EventService) Delete(ctx context.Context, userID, eventID string) error {
	if err := s.eventRepo.Delete(ctx, userID, eventID); err != nil {
		return storeErr(err, "event")
	}
	s.pub.Publish(userID, model.TableEvents)
	return nil
}
