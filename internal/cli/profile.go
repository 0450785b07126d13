package cli

import (
	"time"

	"taskcal/internal/apperr"
	"taskcal/internal/model"
)

type ProfileShowCmd struct{}

func (c *ProfileShowCmd) Run(app *App) error {
	if err := app.RequireSession(); err != nil {
		return err
	}
	client, _ := app.Backend()
	p, err := client.GetProfile(app.Context())
	if err != nil {
		return err
	}
	app.printf("Name:   %s\n", orDash(p.FullName))
	avatar := ""
	if p.AvatarURL != nil {
		avatar = *p.AvatarURL
	}
	app.printf("Avatar: %s\n", orDash(avatar))
	app.printf("Since:  %s\n", p.CreatedAt.Local().Format(dateLayout))
	return nil
}

type ProfileSetCmd struct {
	Name   *string `short:"n" help:"Full name."`
	Avatar *string `help:"Avatar image URL."`
}

func (c *ProfileSetCmd) Run(app *App) error {
	if err := app.RequireSession(); err != nil {
		return err
	}
	in := model.ProfileInput{FullName: c.Name, AvatarURL: c.Avatar}
	if in == (model.ProfileInput{}) {
		return apperr.New(apperr.Validation, "nothing to change")
	}
	client, _ := app.Backend()
	p, err := client.UpdateProfile(app.Context(), in)
	if err != nil {
		return err
	}
	app.printf("Profile updated: %s\n", orDash(p.FullName))
	return nil
}

type ProfileTelegramCmd struct{}

func (c *ProfileTelegramCmd) Run(app *App) error {
	if err := app.RequireSession(); err != nil {
		return err
	}
	client, _ := app.Backend()
	link, err := client.CreateTelegramLink(app.Context())
	if err != nil {
		return err
	}
	app.printf("Send this to the bot within %s:\n\n  /link %s\n", time.Until(link.ExpiresAt).Round(time.Minute), link.Code)
	return nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
