package service

import (
	"context"
	"strings"

	"taskcal/internal/apperr"
	"taskcal/internal/logger"
	"taskcal/internal/model"
	"taskcal/internal/repository"
	"taskcal/internal/validation"
)

// Publisher is told whenever one of a user's tables changes.
type Publisher interface {
	Publish(userID, table string)
}

type nopPublisher struct{}

func (nopPublisher) Publish(string, string) {}

// TaskService wraps task-related business logic.
type TaskService struct {
	taskRepo *repository.TaskRepository
	pub      Publisher
}

func NewTaskService(taskRepo *repository.TaskRepository, pub Publisher) *TaskService {
	if pub == nil {
		pub = nopPublisher{}
	}
	return &TaskService{taskRepo: taskRepo, pub: pub}
}

func (s *TaskService) List(ctx context.Context, userID string) ([]model.Task, error) {
	tasks, err := s.taskRepo.List(ctx, userID)
	if err != nil {
		return nil, storeErr(err, "tasks")
	}
	return tasks, nil
}

// Create stores a new task. Status defaults to pending and priority to medium.
func (s *TaskService) Create(ctx context.Context, userID string, input model.TaskInput) (*model.Task, error) {
	if err := validation.NewTask(input); err != nil {
		return nil, invalid(err)
	}

	task := model.Task{
		UserID:   userID,
		Status:   model.TaskPending,
		Priority: model.PriorityMedium,
	}
	input.Apply(&task)
	task.Title = strings.TrimSpace(task.Title)

	if err := s.taskRepo.Create(ctx, &task); err != nil {
		return nil, storeErr(err, "task")
	}
	logger.Debug("task created", "user", userID, "id", task.ID)
	s.pub.Publish(userID, model.TableTasks)
	return &task, nil
}

// Update applies a partial edit.
func (s *TaskService) Update(ctx context.Context, userID, taskID string, input model.TaskInput) (*model.Task, error) {
	if err := validation.TaskUpdate(input); err != nil {
		return nil, invalid(err)
	}
	task, err := s.taskRepo.FindByID(ctx, userID, taskID)
	if err != nil {
		return nil, storeErr(err, "task")
	}
	input.Apply(task)
	task.Title = strings.TrimSpace(task.Title)

	if err := s.taskRepo.Save(ctx, task); err != nil {
		return nil, storeErr(err, "task")
	}
	s.pub.Publish(userID, model.TableTasks)
	return task, nil
}

// Toggle flips a task between pending and completed.
func (s *TaskService) Toggle(ctx context.Context, userID, taskID string) (*model.Task, error) {
	task, err := s.taskRepo.FindByID(ctx, userID, taskID)
	if err != nil {
		return nil, storeErr(err, "task")
	}
	task.Status = task.Status.Toggled()
	if err := s.taskRepo.Save(ctx, task); err != nil {
		return nil, storeErr(err, "task")
	}
	s.pub.Publish(userID, model.TableTasks)
	return task, nil
}

// FindByPrefix resolves a task from a full id or a unique id prefix, the way
// ids are typed into chat commands.
func (s *TaskService) FindByPrefix(ctx context.Context, userID, prefix string) (*model.Task, error) {
	prefix = strings.ToLower(strings.TrimSpace(prefix))
	if prefix == "" {
		return nil, apperr.New(apperr.Validation, "task id is required")
	}
	tasks, err := s.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	var found *model.Task
	for i := range tasks {
		if !strings.HasPrefix(tasks[i].ID, prefix) {
			continue
		}
		if found != nil {
			return nil, apperr.Newf(apperr.Conflict, "id prefix %q matches more than one task", prefix)
		}
		found = &tasks[i]
	}
	if found == nil {
		return nil, apperr.New(apperr.NotFound, "task not found")
	}
	return found, nil
}

func (s *TaskService) Delete(ctx context.Context, userID, taskID string) error {
	if err := s.taskRepo.Delete(ctx, userID, taskID); err != nil {
		return storeErr(err, "task")
	}
	s.pub.Publish(userID, model.TableTasks)
	return nil
}
