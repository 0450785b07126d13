package service

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"taskcal/internal/model"
	"taskcal/internal/repository"
)

// AgendaService builds human-readable daily summaries.
type AgendaService struct {
	taskRepo  *repository.TaskRepository
	eventRepo *repository.EventRepository
}

func NewAgendaService(taskRepo *repository.TaskRepository, eventRepo *repository.EventRepository) *AgendaService {
	return &AgendaService{taskRepo: taskRepo, eventRepo: eventRepo}
}

// DailySummary lists today's events and the open tasks due by the end of the
// day, overdue ones flagged. The text uses Telegram's HTML subset.
func (s *AgendaService) DailySummary(ctx context.Context, userID string, now time.Time) (string, error) {
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	dayEnd := dayStart.AddDate(0, 0, 1)

	events, err := s.eventRepo.List(ctx, userID, dayStart, dayEnd)
	if err != nil {
		return "", err
	}
	tasks, err := s.taskRepo.ListPendingDueBefore(ctx, userID, dayEnd)
	if err != nil {
		return "", err
	}

	var builder strings.Builder
	builder.WriteString("📋 <b>Daily agenda</b>\n")
	builder.WriteString(fmt.Sprintf("🗓 %s\n\n", now.Format("Mon, 02 Jan 2006")))

	builder.WriteString("📅 <b>Events</b>\n")
	if len(events) == 0 {
		builder.WriteString("— nothing scheduled\n")
	} else {
		for _, event := range events {
			builder.WriteString(formatEvent(event, now.Location()))
		}
	}

	builder.WriteString("\n🔥 <b>Tasks due</b>\n")
	if len(tasks) == 0 {
		builder.WriteString("— no open tasks due today\n")
	} else {
		for _, task := range tasks {
			builder.WriteString(formatTask(task, now))
		}
	}

	return strings.TrimSpace(builder.String()), nil
}

func formatEvent(event model.Event, loc *time.Location) string {
	when := event.StartTime.In(loc).Format("15:04")
	if event.EndTime != nil {
		when += "–" + event.EndTime.In(loc).Format("15:04")
	}
	line := fmt.Sprintf("• %s %s", when, html.EscapeString(event.Title))
	if event.Location != nil && *event.Location != "" {
		line += fmt.Sprintf(" <i>@ %s</i>", html.EscapeString(*event.Location))
	}
	return line + "\n"
}

func formatTask(task model.Task, now time.Time) string {
	marker := "•"
	if task.Priority == model.PriorityHigh {
		marker = "❗"
	}
	line := fmt.Sprintf("%s %s <code>%s</code>", marker, html.EscapeString(task.Title), shortID(task.ID))
	if task.DueDate != nil && task.DueDate.Before(now) {
		line += " ⚠️ overdue"
	}
	return line + "\n"
}

// shortID is the prefix shown to users and accepted back by FindByPrefix.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
