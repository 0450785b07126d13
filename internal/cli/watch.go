package cli

import (
	"context"
	"encoding/json"
	"time"

	"taskcal/internal/apperr"
	"taskcal/internal/logger"
	"taskcal/internal/model"
)

type WatchCmd struct {
	Tables []string `arg:"" optional:"" help:"Tables to follow (tasks, events)." default:"tasks,events"`
}

const maxWatchBackoff = 30 * time.Second

func (c *WatchCmd) Run(app *App) error {
	if err := app.RequireSession(); err != nil {
		return err
	}
	for _, table := range c.Tables {
		if table != model.TableTasks && table != model.TableEvents {
			return apperr.Newf(apperr.Validation, "cannot watch %q", table)
		}
	}
	client, _ := app.Backend()
	ctx := app.Context()

	backoff := time.Second
	for {
		started := time.Now()
		err := client.Subscribe(ctx, c.Tables, func(table string, rows json.RawMessage) {
			if err := c.apply(ctx, app, table, rows); err != nil {
				logger.Warn("apply pushed rows", "table", table, "error", err)
			}
		})
		if ctx.Err() != nil {
			return nil
		}
		if err == nil || !apperr.Retryable(err) {
			return err
		}
		if time.Since(started) > maxWatchBackoff {
			backoff = time.Second
		}
		logger.Warn("realtime disconnected, reconnecting", "error", err, "in", backoff)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, maxWatchBackoff)
	}
}

func (c *WatchCmd) apply(ctx context.Context, app *App, table string, rows json.RawMessage) error {
	now := time.Now().Format("15:04:05")
	switch table {
	case model.TableTasks:
		var tasks []model.Task
		if err := json.Unmarshal(rows, &tasks); err != nil {
			return err
		}
		if err := app.Tasks.ApplyRemote(ctx, tasks); err != nil {
			return err
		}
		open := 0
		for _, t := range tasks {
			if t.Status != model.TaskCompleted {
				open++
			}
		}
		app.printf("%s tasks: %d open, %d total\n", now, open, len(tasks))
	case model.TableEvents:
		var events []model.Event
		if err := json.Unmarshal(rows, &events); err != nil {
			return err
		}
		if err := app.Events.ApplyRemote(ctx, events); err != nil {
			return err
		}
		app.printf("%s events: %d\n", now, len(events))
	}
	return nil
}
