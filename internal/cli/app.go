// Package cli holds the taskcal command line client: the kong commands and
// the application context they run against.
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"taskcal/internal/apperr"
	"taskcal/internal/client/backend"
	"taskcal/internal/client/devicestore"
	"taskcal/internal/client/lists"
	"taskcal/internal/client/recovery"
	"taskcal/internal/client/session"
	"taskcal/internal/config"
	"taskcal/internal/logger"
	"taskcal/internal/ready"
)

// TokenStore persists the sign-in token between runs.
type TokenStore interface {
	Load() (string, error)
	Save(token string) error
	Clear() error
}

// App is what every command runs against. Commands wait on Ready before
// touching the session.
type App struct {
	ctx     context.Context
	server  string
	store   devicestore.Store
	tokens  TokenStore
	backend *backend.Client
	token   string

	Tasks    *lists.TaskList
	Events   *lists.EventList
	Recovery *recovery.Flow
	Ready    *ready.Signal

	In  io.Reader
	Out io.Writer

	closers []io.Closer
}

// Open opens the device store under cfg.DataDir and the keyring session.
func Open(ctx context.Context, cfg config.ClientConfig) (*App, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	store, err := devicestore.OpenSQLite(filepath.Join(cfg.DataDir, "device.db"))
	if err != nil {
		return nil, err
	}
	app := NewApp(ctx, cfg.ServerURL, store, session.New(cfg.ServerURL))
	app.closers = append(app.closers, store)
	return app, nil
}

// NewApp wires an App over the given collaborators and starts loading the
// session in the background.
func NewApp(ctx context.Context, serverURL string, store devicestore.Store, tokens TokenStore) *App {
	app := &App{
		ctx:     ctx,
		server:  serverURL,
		store:   store,
		tokens:  tokens,
		backend: backend.New(serverURL),
		Ready:   ready.New(),
		In:      os.Stdin,
		Out:     os.Stdout,
	}
	app.Recovery = recovery.New(store, app.backend)
	app.bind()
	go app.load()
	return app
}

// bind points the lists at the current token.
func (a *App) bind() {
	a.Tasks = lists.NewTaskList(a.backend, a.store)
	a.Events = lists.NewEventList(a.backend, a.store)
}

func (a *App) load() {
	token, err := a.tokens.Load()
	switch {
	case err == nil:
	case errors.Is(err, session.ErrNotFound):
		logger.Debug("no stored session")
	default:
		logger.Warn("session token unavailable", "error", err)
	}
	a.token = token
	a.backend = a.backend.WithToken(token)
	a.bind()

	if err := devicestore.SetJSON(a.ctx, a.store, devicestore.KeyReady, time.Now()); err != nil {
		a.Ready.FireErr(fmt.Errorf("mark ready: %w", err))
		return
	}
	a.Ready.Fire()
}

func (a *App) Context() context.Context { return a.ctx }

// Wait blocks until the session is loaded.
func (a *App) Wait() error {
	if err := a.Ready.Wait(a.ctx); err != nil {
		return err
	}
	return a.Ready.Err()
}

// Backend returns the API client bound to the current session.
func (a *App) Backend() (*backend.Client, error) {
	if err := a.Wait(); err != nil {
		return nil, err
	}
	return a.backend, nil
}

// RequireSession fails when nobody is signed in.
func (a *App) RequireSession() error {
	if err := a.Wait(); err != nil {
		return err
	}
	if a.token == "" {
		return apperr.New(apperr.Unauthorized, "not signed in, run `taskcal login` first")
	}
	return nil
}

// SignIn stores token and rebinds the client to it. Cached lists belong to
// the previous account and are dropped.
func (a *App) SignIn(token string) error {
	if err := a.Wait(); err != nil {
		return err
	}
	if err := a.tokens.Save(token); err != nil {
		return err
	}
	a.token = token
	a.backend = a.backend.WithToken(token)
	a.bind()
	return a.dropCaches()
}

// SignOut forgets the token and cached lists.
func (a *App) SignOut() error {
	if err := a.Wait(); err != nil {
		return err
	}
	if err := a.tokens.Clear(); err != nil {
		return err
	}
	a.token = ""
	a.backend = a.backend.WithToken("")
	a.bind()
	return a.dropCaches()
}

func (a *App) dropCaches() error {
	for _, key := range []string{devicestore.KeyTasksCache, devicestore.KeyEventsCache} {
		if err := a.store.Delete(a.ctx, key); err != nil {
			return err
		}
	}
	return nil
}

func (a *App) Close() error {
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

func (a *App) printf(format string, args ...any) {
	fmt.Fprintf(a.Out, format, args...)
}

// readSecret returns flag when set, otherwise the first line of input.
func (a *App) readSecret(flag, prompt string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	a.printf("%s: ", prompt)
	line, err := bufio.NewReader(a.In).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	line = strings.TrimRight(line, "\r\n")
	a.printf("\n")
	if line == "" {
		return "", apperr.Newf(apperr.Validation, "%s is required", strings.ToLower(prompt))
	}
	return line, nil
}
