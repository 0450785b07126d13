package recovery

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"testing"
	"time"

	"taskcal/internal/apperr"
	"taskcal/internal/client/devicestore"
	"taskcal/internal/otp"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

// fakeBackend issues its own codes and, like the server, accepts each one
// once.
type fakeBackend struct {
	code       string
	used       bool
	expiresAt  time.Time
	requests   int
	requestErr error
	verifyErrs []error
	updateErrs []error
	linkErrs   []error

	verifyCalls int
	updates     []string
	links       []string
}

func pop(errs *[]error) error {
	if len(*errs) == 0 {
		return nil
	}
	err := (*errs)[0]
	*errs = (*errs)[1:]
	return err
}

func (b *fakeBackend) RequestRecovery(context.Context, string) (time.Time, error) {
	if b.requestErr != nil {
		return time.Time{}, b.requestErr
	}
	b.requests++
	b.code = fmt.Sprintf("%06d", 482913+b.requests)
	b.used = false
	return b.expiresAt, nil
}

func (b *fakeBackend) VerifyRecovery(_ context.Context, _, code string) (string, error) {
	b.verifyCalls++
	if err := pop(&b.verifyErrs); err != nil {
		return "", err
	}
	if b.used || code != b.code {
		return "", apperr.New(apperr.CodeInvalid, "code does not match")
	}
	b.used = true
	return fmt.Sprintf("session-%d", b.verifyCalls), nil
}

func (b *fakeBackend) UpdatePassword(_ context.Context, token, _ string) error {
	b.updates = append(b.updates, token)
	return pop(&b.updateErrs)
}

func (b *fakeBackend) SendMagicLink(_ context.Context, email string) error {
	b.links = append(b.links, email)
	return pop(&b.linkErrs)
}

type harness struct {
	flow    *Flow
	store   devicestore.Store
	backend *fakeBackend
	clock   *fakeClock
	sleeps  []time.Duration
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store:   devicestore.NewMemory(),
		backend: &fakeBackend{},
		clock:   &fakeClock{t: time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)},
	}
	h.flow = h.reopen()
	return h
}

// reopen builds a new Flow over the same device store, like a fresh CLI run.
func (h *harness) reopen() *Flow {
	return New(h.store, h.backend,
		WithClock(h.clock.now),
		WithSleep(func(_ context.Context, d time.Duration) error {
			h.sleeps = append(h.sleeps, d)
			return nil
		}),
	)
}

func (h *harness) request(t *testing.T) string {
	t.Helper()
	if _, err := h.flow.RequestNewOTP(context.Background(), "Ada@Example.com"); err != nil {
		t.Fatalf("RequestNewOTP() error = %v", err)
	}
	return h.backend.code
}

func (h *harness) state(t *testing.T) State {
	t.Helper()
	st, err := h.flow.Status(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	return st.State
}

var (
	errDown    = apperr.New(apperr.Unavailable, "down")
	errBusy    = apperr.Limited(30*time.Second, "slow down")
	errExpired = apperr.New(apperr.SessionMissing, "session expired")
)

func TestRequestCooldown(t *testing.T) {
	tests := []struct {
		name    string
		after   time.Duration
		wantErr bool
	}{
		{"immediately", 0, true},
		{"ten seconds", 10 * time.Second, true},
		{"just before", otp.RequestCooldown - time.Millisecond, true},
		{"at cooldown", otp.RequestCooldown, false},
		{"twenty seconds", 20 * time.Second, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.request(t)
			h.clock.advance(tt.after)

			// The timestamp lives in the device store, so a new process sees it.
			_, err := h.reopen().RequestNewOTP(context.Background(), "ada@example.com")
			if tt.wantErr {
				if !apperr.Is(err, apperr.RateLimited) {
					t.Fatalf("error = %v, want rate_limited", err)
				}
				if got, want := apperr.RetryAfter(err), otp.RequestCooldown-tt.after; got != want {
					t.Errorf("RetryAfter = %v, want %v", got, want)
				}
				if h.backend.requests != 1 {
					t.Errorf("backend called %d times", h.backend.requests)
				}
				return
			}
			if err != nil {
				t.Fatalf("error = %v", err)
			}
			if h.backend.requests != 2 {
				t.Errorf("backend called %d times, want 2", h.backend.requests)
			}
		})
	}
}

func TestRequestStoresCode(t *testing.T) {
	h := newHarness(t)
	expires, err := h.flow.RequestNewOTP(context.Background(), " Ada@Example.com ")
	if err != nil {
		t.Fatal(err)
	}
	if want := h.clock.t.Add(otp.CodeTTL); !expires.Equal(want) {
		t.Errorf("expires = %v, want %v", expires, want)
	}
	var stored storedCode
	if err := devicestore.GetJSON(context.Background(), h.store, devicestore.KeyOTP, &stored); err != nil {
		t.Fatal(err)
	}
	if stored.Email != "ada@example.com" || !stored.ExpiresAt.Equal(expires) {
		t.Errorf("stored = %+v", stored)
	}
	if stored.Code != "" {
		t.Errorf("device knows the mailed code: %+v", stored)
	}
	if st := h.state(t); st != StateCodeSent {
		t.Errorf("state = %s", st)
	}
}

func TestRequestUsesServerExpiry(t *testing.T) {
	h := newHarness(t)
	h.backend.expiresAt = h.clock.t.Add(90 * time.Second)
	expires, err := h.flow.RequestNewOTP(context.Background(), "ada@example.com")
	if err != nil {
		t.Fatal(err)
	}
	if !expires.Equal(h.backend.expiresAt) {
		t.Errorf("expires = %v, want %v", expires, h.backend.expiresAt)
	}
}

func TestRequestErrors(t *testing.T) {
	h := newHarness(t)
	if _, err := h.flow.RequestNewOTP(context.Background(), "not-an-email"); !apperr.Is(err, apperr.Validation) {
		t.Errorf("bad email error = %v", err)
	}

	h.backend.requestErr = errBusy
	_, err := h.flow.RequestNewOTP(context.Background(), "ada@example.com")
	if !apperr.Is(err, apperr.RateLimited) || apperr.RetryAfter(err) != 30*time.Second {
		t.Fatalf("error = %v, retry %v", err, apperr.RetryAfter(err))
	}
	st, err := h.flow.Status(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if st.State != StateIdle || st.CooldownLeft != 0 {
		t.Errorf("status after refused request = %+v", st)
	}
	if _, err := h.store.Get(context.Background(), devicestore.KeyOTP); !errors.Is(err, devicestore.ErrNotFound) {
		t.Errorf("pending code stored for a refused request: %v", err)
	}
}

func TestRefusedResendKeepsEarlierCode(t *testing.T) {
	for _, refusal := range []error{errBusy, errDown} {
		t.Run(apperr.KindOf(refusal).Code(), func(t *testing.T) {
			h := newHarness(t)
			first := h.request(t)
			h.clock.advance(20 * time.Second)

			h.backend.requestErr = refusal
			if _, err := h.reopen().RequestNewOTP(context.Background(), "ada@example.com"); !apperr.Is(err, apperr.KindOf(refusal)) {
				t.Fatalf("resend error = %v, want %v", err, apperr.KindOf(refusal))
			}
			st, err := h.flow.Status(context.Background())
			if err != nil {
				t.Fatal(err)
			}
			if st.State != StateCodeSent || st.CodeExpiresAt.IsZero() || st.CooldownLeft != 0 {
				t.Errorf("status after refused resend = %+v", st)
			}

			res, err := h.flow.VerifyOTP(context.Background(), first)
			if err != nil {
				t.Fatalf("VerifyOTP(first code) error = %v", err)
			}
			if res.Outcome != OutcomeVerified || res.State != StateSessionEstablished {
				t.Errorf("VerifyOTP(first code) = %+v", res)
			}
		})
	}
}

func TestVerifyGraceWindow(t *testing.T) {
	tests := []struct {
		name      string
		pastTTL   time.Duration
		want      Outcome
		wantState State
	}{
		{"before expiry", -time.Second, OutcomeVerified, StateSessionEstablished},
		{"expiry plus four seconds", 4 * time.Second, OutcomeVerified, StateSessionEstablished},
		{"expiry plus grace", otp.Grace, OutcomeVerified, StateSessionEstablished},
		{"expiry plus six seconds", 6 * time.Second, OutcomeExpired, StateIdle},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			code := h.request(t)
			h.clock.advance(otp.CodeTTL + tt.pastTTL)

			res, err := h.flow.VerifyOTP(context.Background(), code)
			if err != nil {
				t.Fatal(err)
			}
			if res.Outcome != tt.want || res.State != tt.wantState {
				t.Errorf("VerifyOTP() = %+v, want %s in %s", res, tt.want, tt.wantState)
			}
			if tt.want == OutcomeExpired {
				if _, err := h.store.Get(context.Background(), devicestore.KeyOTP); !errors.Is(err, devicestore.ErrNotFound) {
					t.Error("expired code not cleared")
				}
				if h.backend.verifyCalls != 0 {
					t.Error("expired code sent to the server")
				}
			}
		})
	}
}

func TestVerifyOutcomes(t *testing.T) {
	tests := []struct {
		name        string
		code        func(sent string) string
		verifyErr   error
		want        Outcome
		wantState   State
		wantSession bool
		wantRetry   time.Duration
		wantCalls   int
	}{
		{"malformed", func(string) string { return "12ab56" }, nil, OutcomeInvalid, StateCodeSent, false, 0, 0},
		{"too short", func(string) string { return "123" }, nil, OutcomeInvalid, StateCodeSent, false, 0, 0},
		{"mismatch", func(sent string) string { return flip(sent) }, nil, OutcomeInvalid, StateCodeSent, false, 0, 1},
		{"server session", func(sent string) string { return " " + sent + " " }, nil, OutcomeVerified, StateSessionEstablished, true, 0, 1},
		{"server rate limited", func(sent string) string { return sent }, errBusy, OutcomeRateLimited, StateCodeSent, false, 30 * time.Second, 1},
		{"server down", func(sent string) string { return sent }, errDown, OutcomeVerified, StateLocalOnly, false, 0, 1},
		{"server expired", func(sent string) string { return sent }, apperr.New(apperr.CodeExpired, "too many attempts"), OutcomeExpired, StateIdle, false, 0, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			sent := h.request(t)
			if tt.verifyErr != nil {
				h.backend.verifyErrs = []error{tt.verifyErr}
			}

			res, err := h.flow.VerifyOTP(context.Background(), tt.code(sent))
			if err != nil {
				t.Fatal(err)
			}
			if res.Outcome != tt.want || res.State != tt.wantState || res.RetryAfter != tt.wantRetry {
				t.Errorf("VerifyOTP() = %+v, want %s/%s/%v", res, tt.want, tt.wantState, tt.wantRetry)
			}
			if h.backend.verifyCalls != tt.wantCalls {
				t.Errorf("server checked %d times, want %d", h.backend.verifyCalls, tt.wantCalls)
			}
			st, _ := h.flow.Status(context.Background())
			if st.HasSession != tt.wantSession {
				t.Errorf("HasSession = %v, want %v", st.HasSession, tt.wantSession)
			}
			if tt.wantState == StateCodeSent && st.CodeExpiresAt.IsZero() {
				t.Error("code dropped after a retryable outcome")
			}
			if tt.wantState == StateIdle && !st.CodeExpiresAt.IsZero() {
				t.Error("expired code kept")
			}
		})
	}
}

func TestVerifyUnexpectedError(t *testing.T) {
	h := newHarness(t)
	sent := h.request(t)
	h.backend.verifyErrs = []error{apperr.New(apperr.Validation, "bad request")}
	if _, err := h.flow.VerifyOTP(context.Background(), sent); !apperr.Is(err, apperr.Validation) {
		t.Fatalf("error = %v, want validation", err)
	}
	if st := h.state(t); st != StateCodeSent {
		t.Errorf("state = %s, want code_sent", st)
	}
}

func flip(code string) string {
	b := []byte(code)
	b[0] = '0' + (b[0]-'0'+1)%10
	return string(b)
}

func TestVerifyWithoutRequest(t *testing.T) {
	h := newHarness(t)
	if _, err := h.flow.VerifyOTP(context.Background(), "123456"); !apperr.Is(err, apperr.SessionMissing) {
		t.Errorf("error = %v, want session_missing", err)
	}
}

func TestSetNewPasswordPaths(t *testing.T) {
	const strong = "N3w!password"
	tests := []struct {
		name       string
		wrongCode  bool
		verifyErrs []error
		updateErrs []error
		linkErrs   []error
		want       State
		wantErr    apperr.Kind
		wantTokens []string
		wantLinks  int
		wantSleeps []time.Duration
	}{
		{
			name:       "stored session",
			want:       StatePasswordUpdated,
			wantTokens: []string{"session-1"},
		},
		{
			name:       "stored session after transient failures",
			updateErrs: []error{errDown, errDown},
			want:       StatePasswordUpdated,
			wantTokens: []string{"session-1", "session-1", "session-1"},
			wantSleeps: []time.Duration{time.Second, 2 * time.Second},
		},
		{
			name:       "session rejected, code already spent, sign-in link",
			updateErrs: []error{errExpired},
			want:       StateMagicLinkSent,
			wantTokens: []string{"session-1"},
			wantLinks:  1,
		},
		{
			name:       "local only, session from held code",
			verifyErrs: []error{errDown},
			want:       StatePasswordUpdated,
			wantTokens: []string{"session-2"},
		},
		{
			name:       "local only, update retried with the same session",
			verifyErrs: []error{errDown},
			updateErrs: []error{errDown, errDown},
			want:       StatePasswordUpdated,
			wantTokens: []string{"session-2", "session-2", "session-2"},
			wantSleeps: []time.Duration{time.Second, 2 * time.Second},
		},
		{
			name:       "local only, confirm retried, then update",
			verifyErrs: []error{errDown, errDown},
			want:       StatePasswordUpdated,
			wantTokens: []string{"session-3"},
			wantSleeps: []time.Duration{time.Second},
		},
		{
			name:       "local only, server rejects held code, sign-in link",
			wrongCode:  true,
			verifyErrs: []error{errDown},
			want:       StateMagicLinkSent,
			wantLinks:  1,
		},
		{
			name:       "local only, server still down, sign-in link",
			verifyErrs: []error{errDown, errDown, errDown, errDown},
			want:       StateMagicLinkSent,
			wantLinks:  1,
			wantSleeps: []time.Duration{time.Second, 2 * time.Second},
		},
		{
			name:       "everything fails",
			verifyErrs: []error{errDown, errDown, errDown, errDown},
			linkErrs:   []error{errDown, errDown, errDown},
			want:       StateLocalOnly,
			wantErr:    apperr.Unavailable,
			wantLinks:  3,
			wantSleeps: []time.Duration{time.Second, 2 * time.Second, time.Second, 2 * time.Second},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			code := h.request(t)
			if tt.wrongCode {
				code = flip(code)
			}
			h.backend.verifyErrs = tt.verifyErrs
			h.backend.updateErrs = tt.updateErrs
			h.backend.linkErrs = tt.linkErrs
			if _, err := h.flow.VerifyOTP(context.Background(), code); err != nil {
				t.Fatal(err)
			}

			got, err := h.reopen().SetNewPassword(context.Background(), strong)
			if tt.wantErr != apperr.Unknown {
				if !apperr.Is(err, tt.wantErr) {
					t.Fatalf("error = %v, want %v", err, tt.wantErr)
				}
			} else if err != nil {
				t.Fatalf("error = %v", err)
			}
			if got != tt.want || h.state(t) != tt.want {
				t.Errorf("state = %s (stored %s), want %s", got, h.state(t), tt.want)
			}
			if !slices.Equal(h.backend.updates, tt.wantTokens) {
				t.Errorf("updates with %v, want %v", h.backend.updates, tt.wantTokens)
			}
			if len(h.backend.links) != tt.wantLinks {
				t.Errorf("links sent = %d, want %d", len(h.backend.links), tt.wantLinks)
			}
			if !slices.Equal(h.sleeps, tt.wantSleeps) {
				t.Errorf("sleeps = %v, want %v", h.sleeps, tt.wantSleeps)
			}
			if got.Terminal() {
				st, _ := h.flow.Status(context.Background())
				if st.HasSession || !st.CodeExpiresAt.IsZero() {
					t.Errorf("finished flow kept secrets: %+v", st)
				}
			}
		})
	}
}

func TestSetNewPasswordGuards(t *testing.T) {
	h := newHarness(t)
	if _, err := h.flow.SetNewPassword(context.Background(), "weak"); !apperr.Is(err, apperr.Validation) {
		t.Errorf("weak password error = %v", err)
	}
	if _, err := h.flow.SetNewPassword(context.Background(), "N3w!password"); !apperr.Is(err, apperr.Conflict) {
		t.Errorf("unverified error = %v", err)
	}
	h.request(t)
	if _, err := h.flow.SetNewPassword(context.Background(), "N3w!password"); !apperr.Is(err, apperr.Conflict) {
		t.Errorf("code sent but unverified error = %v", err)
	}
	if len(h.backend.updates) != 0 || len(h.backend.links) != 0 {
		t.Error("backend reached without a verified code")
	}
}

func TestResetKeepsCooldown(t *testing.T) {
	h := newHarness(t)
	h.request(t)
	if err := h.flow.Reset(context.Background()); err != nil {
		t.Fatal(err)
	}
	st, err := h.flow.Status(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if st.State != StateIdle || !st.CodeExpiresAt.IsZero() {
		t.Errorf("status after reset = %+v", st)
	}
	if st.CooldownLeft != otp.RequestCooldown {
		t.Errorf("cooldown = %v, want %v", st.CooldownLeft, otp.RequestCooldown)
	}
	if _, err := h.flow.VerifyOTP(context.Background(), h.backend.code); !apperr.Is(err, apperr.SessionMissing) {
		t.Errorf("verify after reset = %v", err)
	}
}

func TestRequestAfterFinishStartsOver(t *testing.T) {
	h := newHarness(t)
	code := h.request(t)
	h.flow.VerifyOTP(context.Background(), code)
	if _, err := h.flow.SetNewPassword(context.Background(), "N3w!password"); err != nil {
		t.Fatal(err)
	}
	h.clock.advance(time.Minute)
	h.request(t)
	if st := h.state(t); st != StateCodeSent {
		t.Errorf("state = %s, want code_sent", st)
	}
}
