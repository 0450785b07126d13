package cli

import (
	"fmt"
	"strings"
	"time"

	"taskcal/internal/apperr"
	"taskcal/internal/model"
)

var timeLayouts = []string{time.RFC3339, "2006-01-02 15:04", "2006-01-02T15:04", dateLayout}

type EventListCmd struct {
	From    string `help:"First day to show (YYYY-MM-DD). Defaults to today."`
	To      string `help:"Last day to show (YYYY-MM-DD)."`
	Days    int    `short:"n" help:"Number of days to show when --to is omitted." default:"7"`
	Refresh bool   `short:"r" help:"Fetch from the server even when the cached list is fresh."`
}

func (c *EventListCmd) Run(app *App) error {
	if err := app.RequireSession(); err != nil {
		return err
	}
	from := startOfDay(time.Now())
	if c.From != "" {
		d, err := parseDate(c.From)
		if err != nil {
			return err
		}
		from = d
	}
	to := from.AddDate(0, 0, c.Days)
	if c.To != "" {
		d, err := parseDate(c.To)
		if err != nil {
			return err
		}
		to = d.AddDate(0, 0, 1)
	}

	if c.Refresh {
		if _, err := app.Events.Refresh(app.Context()); err != nil {
			return err
		}
	}
	events, err := app.Events.Between(app.Context(), from, to)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		app.printf("No events\n")
		return nil
	}
	day := ""
	for _, e := range events {
		local := e.StartTime.Local()
		if d := local.Format("Mon 2006-01-02"); d != day {
			app.printf("%s\n", d)
			day = d
		}
		app.printf("  %s\n", formatEvent(e))
	}
	return nil
}

type EventAddCmd struct {
	Title       string `arg:"" help:"Event title."`
	Start       string `short:"s" required:"" help:"Start time (RFC3339 or \"YYYY-MM-DD HH:MM\")."`
	End         string `short:"e" help:"End time."`
	Location    string `short:"l" help:"Where it happens."`
	Description string `short:"d" help:"Longer description."`
}

func (c *EventAddCmd) Run(app *App) error {
	if err := app.RequireSession(); err != nil {
		return err
	}
	start, err := parseTime(c.Start)
	if err != nil {
		return err
	}
	in := model.EventInput{Title: &c.Title, StartTime: &start}
	if c.End != "" {
		end, err := parseTime(c.End)
		if err != nil {
			return err
		}
		in.EndTime = &end
	}
	if c.Location != "" {
		in.Location = &c.Location
	}
	if c.Description != "" {
		in.Description = &c.Description
	}

	event, err := app.Events.Create(app.Context(), in)
	if err != nil {
		return err
	}
	app.printf("Added %s\n", formatEvent(*event))
	return nil
}

type EventEditCmd struct {
	ID       string  `arg:"" help:"Event id or unique prefix."`
	Title    *string `short:"t" help:"New title."`
	Start    *string `short:"s" help:"New start time."`
	End      *string `short:"e" help:"New end time."`
	Location *string `short:"l" help:"New location."`
}

func (c *EventEditCmd) Run(app *App) error {
	if err := app.RequireSession(); err != nil {
		return err
	}
	in := model.EventInput{Title: c.Title, Location: c.Location}
	for _, f := range []struct {
		raw *string
		dst **time.Time
	}{{c.Start, &in.StartTime}, {c.End, &in.EndTime}} {
		if f.raw == nil {
			continue
		}
		t, err := parseTime(*f.raw)
		if err != nil {
			return err
		}
		*f.dst = &t
	}
	if in == (model.EventInput{}) {
		return apperr.New(apperr.Validation, "nothing to change")
	}

	event, err := app.Events.Resolve(app.Context(), c.ID)
	if err != nil {
		return err
	}
	updated, err := app.Events.Update(app.Context(), event.ID, in)
	if err != nil {
		return err
	}
	app.printf("Updated %s\n", formatEvent(*updated))
	return nil
}

type EventRmCmd struct {
	ID string `arg:"" help:"Event id or unique prefix."`
}

func (c *EventRmCmd) Run(app *App) error {
	if err := app.RequireSession(); err != nil {
		return err
	}
	event, err := app.Events.Resolve(app.Context(), c.ID)
	if err != nil {
		return err
	}
	if err := app.Events.Delete(app.Context(), event.ID); err != nil {
		return err
	}
	app.printf("Deleted event: %s (%s)\n", event.Title, shortID(event.ID))
	return nil
}

func formatEvent(e model.Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s", shortID(e.ID), e.StartTime.Local().Format("15:04"))
	if e.EndTime != nil {
		fmt.Fprintf(&b, "-%s", e.EndTime.Local().Format("15:04"))
	}
	fmt.Fprintf(&b, "  %s", e.Title)
	if e.Location != nil && *e.Location != "" {
		fmt.Fprintf(&b, " @ %s", *e.Location)
	}
	return b.String()
}

func parseTime(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, raw, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, apperr.Newf(apperr.Validation, "invalid time %q, want RFC3339 or YYYY-MM-DD HH:MM", raw)
}
