package cli

import (
	"taskcal/internal/model"
)

type SignupCmd struct {
	Email    string `arg:"" help:"Account email."`
	Name     string `short:"n" help:"Full name shown on your profile."`
	Password string `short:"p" help:"Password. Read from stdin when omitted." env:"TASKCAL_PASSWORD"`
}

func (c *SignupCmd) Run(app *App) error {
	password, err := app.readSecret(c.Password, "Password")
	if err != nil {
		return err
	}
	client, err := app.Backend()
	if err != nil {
		return err
	}
	session, err := client.SignUp(app.Context(), model.Credentials{Email: c.Email, Password: password, FullName: c.Name})
	if err != nil {
		return err
	}
	if err := app.SignIn(session.Token); err != nil {
		return err
	}
	app.printf("Signed up as %s\n", session.User.Email)
	return nil
}

type LoginCmd struct {
	Email    string `arg:"" optional:"" help:"Account email."`
	Password string `short:"p" help:"Password. Read from stdin when omitted." env:"TASKCAL_PASSWORD"`
	Link     string `help:"Sign in with the token from an emailed sign-in link instead."`
}

func (c *LoginCmd) Run(app *App) error {
	client, err := app.Backend()
	if err != nil {
		return err
	}

	var session *model.AuthSession
	if c.Link != "" {
		session, err = client.ConsumeMagicLink(app.Context(), c.Link)
	} else {
		if c.Email == "" {
			return errEmailRequired
		}
		password, perr := app.readSecret(c.Password, "Password")
		if perr != nil {
			return perr
		}
		session, err = client.SignIn(app.Context(), c.Email, password)
	}
	if err != nil {
		return err
	}
	if err := app.SignIn(session.Token); err != nil {
		return err
	}
	app.printf("Signed in as %s\n", session.User.Email)
	return nil
}

type LogoutCmd struct{}

func (c *LogoutCmd) Run(app *App) error {
	if err := app.SignOut(); err != nil {
		return err
	}
	app.printf("Signed out\n")
	return nil
}

type WhoamiCmd struct{}

func (c *WhoamiCmd) Run(app *App) error {
	if err := app.RequireSession(); err != nil {
		return err
	}
	client, _ := app.Backend()
	who, err := client.Verify(app.Context())
	if err != nil {
		return err
	}
	app.printf("%s (%s)\n", who.Email, who.UserID)
	return nil
}
