package cli

import (
	"fmt"
	"strings"
	"time"

	"taskcal/internal/apperr"
	"taskcal/internal/model"
)

const dateLayout = "2006-01-02"

var errEmailRequired = apperr.New(apperr.Validation, "email is required")

type TaskListCmd struct {
	All     bool `short:"a" help:"Include completed tasks."`
	Refresh bool `short:"r" help:"Fetch from the server even when the cached list is fresh."`
}

func (c *TaskListCmd) Run(app *App) error {
	if err := app.RequireSession(); err != nil {
		return err
	}
	var (
		tasks []model.Task
		err   error
	)
	if c.Refresh {
		tasks, err = app.Tasks.Refresh(app.Context())
	} else {
		tasks, err = app.Tasks.List(app.Context())
	}
	if err != nil {
		return err
	}

	shown := 0
	for _, t := range tasks {
		if !c.All && t.Status == model.TaskCompleted {
			continue
		}
		app.printf("%s\n", formatTask(t, time.Now()))
		shown++
	}
	if shown == 0 {
		app.printf("No tasks\n")
	}
	return nil
}

type TaskAddCmd struct {
	Title       string `arg:"" help:"Task title."`
	Description string `short:"d" help:"Longer description."`
	Priority    string `short:"p" help:"Priority (low|medium|high)." enum:"low,medium,high" default:"medium"`
	Due         string `help:"Due date (YYYY-MM-DD)."`
}

func (c *TaskAddCmd) Run(app *App) error {
	if err := app.RequireSession(); err != nil {
		return err
	}
	in := model.TaskInput{Title: &c.Title}
	priority := model.Priority(c.Priority)
	in.Priority = &priority
	if c.Description != "" {
		in.Description = &c.Description
	}
	if c.Due != "" {
		due, err := parseDate(c.Due)
		if err != nil {
			return err
		}
		in.DueDate = &due
	}

	task, err := app.Tasks.Create(app.Context(), in)
	if err != nil {
		return err
	}
	app.printf("Added %s\n", formatTask(*task, time.Now()))
	return nil
}

type TaskDoneCmd struct {
	ID string `arg:"" help:"Task id or unique prefix."`
}

func (c *TaskDoneCmd) Run(app *App) error {
	if err := app.RequireSession(); err != nil {
		return err
	}
	task, err := app.Tasks.Resolve(app.Context(), c.ID)
	if err != nil {
		return err
	}
	toggled, err := app.Tasks.Toggle(app.Context(), task.ID)
	if err != nil {
		return err
	}
	app.printf("%s\n", formatTask(*toggled, time.Now()))
	return nil
}

type TaskEditCmd struct {
	ID          string  `arg:"" help:"Task id or unique prefix."`
	Title       *string `short:"t" help:"New title."`
	Description *string `short:"d" help:"New description."`
	Priority    *string `short:"p" help:"New priority (low|medium|high)."`
	Status      *string `short:"s" help:"New status (pending|completed)."`
	Due         *string `help:"New due date (YYYY-MM-DD)."`
}

func (c *TaskEditCmd) Run(app *App) error {
	if err := app.RequireSession(); err != nil {
		return err
	}
	in := model.TaskInput{Title: c.Title, Description: c.Description}
	if c.Priority != nil {
		p := model.Priority(*c.Priority)
		in.Priority = &p
	}
	if c.Status != nil {
		s := model.TaskStatus(*c.Status)
		in.Status = &s
	}
	if c.Due != nil {
		due, err := parseDate(*c.Due)
		if err != nil {
			return err
		}
		in.DueDate = &due
	}
	if in == (model.TaskInput{}) {
		return apperr.New(apperr.Validation, "nothing to change")
	}

	task, err := app.Tasks.Resolve(app.Context(), c.ID)
	if err != nil {
		return err
	}
	updated, err := app.Tasks.Update(app.Context(), task.ID, in)
	if err != nil {
		return err
	}
	app.printf("Updated %s\n", formatTask(*updated, time.Now()))
	return nil
}

type TaskRmCmd struct {
	ID string `arg:"" help:"Task id or unique prefix."`
}

func (c *TaskRmCmd) Run(app *App) error {
	if err := app.RequireSession(); err != nil {
		return err
	}
	task, err := app.Tasks.Resolve(app.Context(), c.ID)
	if err != nil {
		return err
	}
	if err := app.Tasks.Delete(app.Context(), task.ID); err != nil {
		return err
	}
	app.printf("Deleted task: %s (%s)\n", task.Title, shortID(task.ID))
	return nil
}

func formatTask(t model.Task, now time.Time) string {
	box := "[ ]"
	if t.Status == model.TaskCompleted {
		box = "[x]"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s  %s", box, shortID(t.ID), t.Title)
	if t.Priority != "" && t.Priority != model.PriorityMedium {
		fmt.Fprintf(&b, " (%s)", t.Priority)
	}
	if t.DueDate != nil {
		fmt.Fprintf(&b, " due %s", t.DueDate.Local().Format(dateLayout))
		if t.Status != model.TaskCompleted && t.DueDate.Before(startOfDay(now)) {
			b.WriteString(" overdue")
		}
	}
	return b.String()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func parseDate(raw string) (time.Time, error) {
	t, err := time.ParseInLocation(dateLayout, strings.TrimSpace(raw), time.Local)
	if err != nil {
		return time.Time{}, apperr.Newf(apperr.Validation, "invalid date %q, want YYYY-MM-DD", raw)
	}
	return t, nil
}
