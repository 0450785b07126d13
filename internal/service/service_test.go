package service

import (
	"context"
	"path/filepath"
	"regexp"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"taskcal/internal/model"
	"taskcal/internal/repository"
)

type testEnv struct {
	users    *repository.UserRepository
	tasks    *repository.TaskRepository
	events   *repository.EventRepository
	recovery *repository.RecoveryRepository
	notifier *recordingNotifier
	pub      *recordingPublisher
	clock    *fakeClock
	codes    []string
	auth     *AuthService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := repository.NewDB(filepath.Join(t.TempDir(), "service.db"))
	if err != nil {
		t.Fatalf("NewDB() error = %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	env := &testEnv{
		users:    repository.NewUserRepository(db),
		tasks:    repository.NewTaskRepository(db),
		events:   repository.NewEventRepository(db),
		recovery: repository.NewRecoveryRepository(db),
		notifier: &recordingNotifier{},
		pub:      &recordingPublisher{},
		clock:    &fakeClock{now: time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)},
	}
	env.auth = NewAuthService(env.users, env.recovery, env.notifier, AuthOptions{
		Secret:     []byte("test-secret-0123456789"),
		SessionTTL: time.Hour,
		Cooldown:   30 * time.Second,
		PublicURL:  "http://localhost:8080",
		HashCost:   bcrypt.MinCost,
		Now:        env.clock.Now,
		Codes:      env.nextCode,
	})
	return env
}

// nextCode hands out queued reset codes, then 123456.
func (e *testEnv) nextCode() (string, error) {
	if len(e.codes) == 0 {
		return "123456", nil
	}
	code := e.codes[0]
	e.codes = e.codes[1:]
	return code, nil
}

var codePattern = regexp.MustCompile(`\b\d{6}\b`)

func codeIn(t *testing.T, body string) string {
	t.Helper()
	code := codePattern.FindString(body)
	if code == "" {
		t.Fatalf("no code in %q", body)
	}
	return code
}

func flipDigit(code string) string {
	b := []byte(code)
	b[0] = '0' + (b[0]-'0'+1)%10
	return string(b)
}

func (e *testEnv) signUp(t *testing.T, email string) *model.User {
	t.Helper()
	_, user, err := e.auth.SignUp(context.Background(), email, "Str0ng!pass", "Test User")
	if err != nil {
		t.Fatalf("SignUp(%s) error = %v", email, err)
	}
	return user
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []Message
	err  error
}

func (n *recordingNotifier) Notify(_ context.Context, _ *model.User, msg Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, msg)
	return nil
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

func (n *recordingNotifier) last() Message {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.sent) == 0 {
		return Message{}
	}
	return n.sent[len(n.sent)-1]
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []string
}

func (p *recordingPublisher) Publish(userID, table string) {
	p.mu.Lock()
	p.events = append(p.events, userID+"/"+table)
	p.mu.Unlock()
}

func (p *recordingPublisher) all() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.events...)
}

func ptr[T any](v T) *T { return &v }
