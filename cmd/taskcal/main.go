package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"taskcal/internal/apperr"
	"taskcal/internal/cli"
	"taskcal/internal/config"
	"taskcal/internal/logger"
)

var CLI struct {
	Version kong.VersionFlag
	Server  string `help:"Server URL." env:"TASKCAL_SERVER"`
	Debug   bool   `help:"Verbose logging to stderr."`

	Signup cli.SignupCmd `cmd:"" help:"Create an account."`
	Login  cli.LoginCmd  `cmd:"" help:"Sign in."`
	Logout cli.LogoutCmd `cmd:"" help:"Sign out and forget cached lists."`
	Whoami cli.WhoamiCmd `cmd:"" help:"Show the signed-in account."`
	Task   struct {
		List cli.TaskListCmd `cmd:"" help:"List tasks." default:"1"`
		Add  cli.TaskAddCmd  `cmd:"" help:"Add a task."`
		Done cli.TaskDoneCmd `cmd:"" help:"Toggle a task between pending and completed."`
		Edit cli.TaskEditCmd `cmd:"" help:"Edit a task."`
		Rm   cli.TaskRmCmd   `cmd:"" help:"Delete a task."`
	} `cmd:"" help:"Manage tasks."`
	Event struct {
		List cli.EventListCmd `cmd:"" help:"List upcoming events." default:"1"`
		Add  cli.EventAddCmd  `cmd:"" help:"Add an event."`
		Edit cli.EventEditCmd `cmd:"" help:"Edit an event."`
		Rm   cli.EventRmCmd   `cmd:"" help:"Delete an event."`
	} `cmd:"" help:"Manage calendar events."`
	Profile struct {
		Show     cli.ProfileShowCmd     `cmd:"" help:"Show your profile." default:"1"`
		Set      cli.ProfileSetCmd      `cmd:"" help:"Update your profile."`
		Telegram cli.ProfileTelegramCmd `cmd:"" help:"Get a code to link the Telegram bot."`
	} `cmd:"" help:"Manage your profile."`
	Reset struct {
		Request  cli.ResetRequestCmd  `cmd:"" help:"Email a one-time code."`
		Verify   cli.ResetVerifyCmd   `cmd:"" help:"Check the code you received."`
		Password cli.ResetPasswordCmd `cmd:"" help:"Choose a new password."`
		Status   cli.ResetStatusCmd   `cmd:"" help:"Show reset progress." default:"1"`
		Cancel   cli.ResetCancelCmd   `cmd:"" help:"Abandon the reset."`
	} `cmd:"" help:"Reset a forgotten password."`
	Watch cli.WatchCmd `cmd:"" help:"Follow live changes to your lists."`
}

func main() {
	kctx := kong.Parse(&CLI,
		kong.Name("taskcal"),
		kong.Description("Tasks and calendar from the terminal"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact:             true,
			NoExpandSubcommands: true,
		}),
		kong.Vars{"version": "v0.1.0"},
	)

	cfg, err := config.LoadClient()
	if err != nil {
		fail(err)
	}
	if CLI.Server != "" {
		cfg.ServerURL = CLI.Server
	}
	cfg.Debug = cfg.Debug || CLI.Debug
	if err := logger.Init(logger.Config{Debug: cfg.Debug, Quiet: true, Prefix: "taskcal"}); err != nil {
		fail(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := cli.Open(ctx, cfg)
	if err != nil {
		fail(err)
	}
	defer app.Close()

	if err := kctx.Run(app); err != nil {
		app.Close()
		fail(err)
	}
}

func fail(err error) {
	logger.Debug("command failed", "error", err)
	msg := err.Error()
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		msg = apperr.UserMessage(err)
	}
	fmt.Fprintf(os.Stderr, "Error: %s\n", msg)
	os.Exit(1)
}
