package cli

import (
	"time"

	"taskcal/internal/apperr"
	"taskcal/internal/client/recovery"
)

type ResetRequestCmd struct {
	Email string `arg:"" help:"Account email to send the code to."`
}

func (c *ResetRequestCmd) Run(app *App) error {
	if err := app.Wait(); err != nil {
		return err
	}
	expires, err := app.Recovery.RequestNewOTP(app.Context(), c.Email)
	if err != nil {
		return err
	}
	app.printf("A 6-digit code was sent to %s. It expires at %s.\n", c.Email, expires.Local().Format("15:04:05"))
	app.printf("Next: taskcal reset verify CODE\n")
	return nil
}

type ResetVerifyCmd struct {
	Code string `arg:"" help:"The 6-digit code you received."`
}

func (c *ResetVerifyCmd) Run(app *App) error {
	if err := app.Wait(); err != nil {
		return err
	}
	res, err := app.Recovery.VerifyOTP(app.Context(), c.Code)
	if err != nil {
		return err
	}
	switch res.Outcome {
	case recovery.OutcomeVerified:
		if res.State == recovery.StateLocalOnly {
			app.printf("Server unreachable; the code will be checked when you set the password.\n")
		} else {
			app.printf("Code accepted.\n")
		}
		app.printf("Next: taskcal reset password\n")
		return nil
	case recovery.OutcomeExpired:
		return apperr.New(apperr.CodeExpired, "code expired")
	case recovery.OutcomeRateLimited:
		return apperr.Limited(res.RetryAfter, "too many attempts")
	default:
		return apperr.New(apperr.CodeInvalid, "code does not match")
	}
}

type ResetPasswordCmd struct {
	Password string `short:"p" help:"New password. Read from stdin when omitted." env:"TASKCAL_NEW_PASSWORD"`
}

func (c *ResetPasswordCmd) Run(app *App) error {
	if err := app.Wait(); err != nil {
		return err
	}
	password, err := app.readSecret(c.Password, "New password")
	if err != nil {
		return err
	}
	state, err := app.Recovery.SetNewPassword(app.Context(), password)
	if err != nil {
		return err
	}
	if state == recovery.StateMagicLinkSent {
		app.printf("We could not change your password right now. A sign-in link was emailed instead.\n")
		return nil
	}
	app.printf("Password updated. Sign in with: taskcal login EMAIL\n")
	return nil
}

type ResetStatusCmd struct{}

func (c *ResetStatusCmd) Run(app *App) error {
	if err := app.Wait(); err != nil {
		return err
	}
	st, err := app.Recovery.Status(app.Context())
	if err != nil {
		return err
	}
	app.printf("State:   %s\n", st.State)
	app.printf("Email:   %s\n", orDash(st.Email))
	if !st.CodeExpiresAt.IsZero() {
		left := time.Until(st.CodeExpiresAt).Round(time.Second)
		if left < 0 {
			left = 0
		}
		app.printf("Code:    expires in %s\n", left)
	}
	if st.CooldownLeft > 0 {
		app.printf("Resend:  in %s\n", st.CooldownLeft.Round(time.Second))
	}
	if st.HasSession {
		app.printf("Session: confirmed by server\n")
	}
	return nil
}

type ResetCancelCmd struct{}

func (c *ResetCancelCmd) Run(app *App) error {
	if err := app.Wait(); err != nil {
		return err
	}
	if err := app.Recovery.Reset(app.Context()); err != nil {
		return err
	}
	app.printf("Password reset cancelled\n")
	return nil
}
