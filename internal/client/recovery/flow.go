package recovery

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"taskcal/internal/apperr"
	"taskcal/internal/client/devicestore"
	"taskcal/internal/logger"
	"taskcal/internal/otp"
	"taskcal/internal/validation"
)

const (
	// Attempts is how many times each password path is tried.
	Attempts = 3
	// DefaultBackoff is the base of the linear backoff between attempts.
	DefaultBackoff = time.Second
)

// Backend is the part of the server API the reset flow uses.
type Backend interface {
	RequestRecovery(ctx context.Context, email string) (time.Time, error)
	VerifyRecovery(ctx context.Context, email, code string) (string, error)
	UpdatePassword(ctx context.Context, token, password string) error
	SendMagicLink(ctx context.Context, email string) error
}

// storedCode is the outstanding reset request kept on the device. The server
// mails the code and alone knows it; Code holds the user's entry only while
// the server has not confirmed it yet.
type storedCode struct {
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"expires_at"`
	Code      string    `json:"code,omitempty"`
}

type record struct {
	State     State     `json:"state"`
	Email     string    `json:"email,omitempty"`
	Session   string    `json:"session,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Status describes the flow for display.
type Status struct {
	State         State
	Email         string
	CodeExpiresAt time.Time
	CooldownLeft  time.Duration
	HasSession    bool
}

// VerifyResult is returned by VerifyOTP.
type VerifyResult struct {
	Outcome Outcome
	// State is the flow state after the check.
	State      State
	RetryAfter time.Duration
}

// Flow is the persisted reset state machine. Methods are safe for concurrent
// use within one process.
type Flow struct {
	store   devicestore.Store
	backend Backend
	now     func() time.Time
	sleep   func(context.Context, time.Duration) error
	backoff time.Duration
	mu      sync.Mutex
}

// Option configures a Flow.
type Option func(*Flow)

func WithClock(now func() time.Time) Option { return func(f *Flow) { f.now = now } }

// WithSleep replaces the wait between attempts.
func WithSleep(sleep func(context.Context, time.Duration) error) Option {
	return func(f *Flow) { f.sleep = sleep }
}

func WithBackoff(d time.Duration) Option { return func(f *Flow) { f.backoff = d } }

func New(store devicestore.Store, backend Backend, opts ...Option) *Flow {
	f := &Flow{
		store:   store,
		backend: backend,
		now:     time.Now,
		sleep:   sleepContext,
		backoff: DefaultBackoff,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// RequestNewOTP asks the server to mail a fresh code for email. Requests
// closer than otp.RequestCooldown apart are refused locally. A request the
// server refuses leaves the earlier code, its state and the cooldown as they
// were.
func (f *Flow) RequestNewOTP(ctx context.Context, email string) (time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	email = strings.ToLower(strings.TrimSpace(email))
	if err := validation.Email(email); err != nil {
		return time.Time{}, apperr.New(apperr.Validation, err.Error())
	}

	now := f.now()
	last, err := f.lastRequest(ctx)
	if err != nil {
		return time.Time{}, err
	}
	if left := otp.CooldownLeft(last, now); left > 0 {
		return time.Time{}, apperr.Limited(left, "a code was requested moments ago")
	}

	prev, err := f.load(ctx)
	if err != nil {
		return time.Time{}, err
	}
	rec := prev
	if rec.State != StateIdle && rec.State != StateCodeSent {
		// Requesting again starts over.
		rec = record{State: StateIdle}
	}
	rec.Email = email
	rec.Session = ""
	if err := f.move(ctx, &rec, StateRequestingCode); err != nil {
		return time.Time{}, err
	}

	expires, err := f.backend.RequestRecovery(ctx, email)
	if err != nil {
		logger.Warn("code request failed", "email", email, "error", err)
		if serr := f.save(ctx, prev); serr != nil {
			logger.Warn("restore reset state", "error", serr)
		}
		return time.Time{}, err
	}
	if expires.IsZero() {
		expires = now.Add(otp.CodeTTL)
	}

	pending := storedCode{Email: email, ExpiresAt: expires}
	if err := devicestore.SetJSON(ctx, f.store, devicestore.KeyOTP, pending); err != nil {
		return time.Time{}, err
	}
	if err := devicestore.SetJSON(ctx, f.store, devicestore.KeyOTPLastRequest, now); err != nil {
		return time.Time{}, err
	}
	if err := f.move(ctx, &rec, StateCodeSent); err != nil {
		return time.Time{}, err
	}
	logger.Info("reset code sent", "email", email, "expires_at", expires)
	return expires, nil
}

// VerifyOTP screens code locally for shape and expiry, then has the server
// check it in exchange for a recovery session. When the server cannot be
// reached the entry is kept and the flow moves to LocalOnly; SetNewPassword
// submits it again later.
func (f *Flow) VerifyOTP(ctx context.Context, code string) (VerifyResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	rec, err := f.load(ctx)
	if err != nil {
		return VerifyResult{}, err
	}
	pending, err := f.pendingCode(ctx)
	if err != nil {
		return VerifyResult{}, err
	}
	if pending == nil {
		return VerifyResult{}, apperr.New(apperr.SessionMissing, "no reset code is pending")
	}
	if rec.State != StateVerifying && !rec.State.CanTransition(StateVerifying) {
		return VerifyResult{}, apperr.Newf(apperr.Conflict, "cannot verify a code while %s", rec.State)
	}
	if err := f.move(ctx, &rec, StateVerifying); err != nil {
		return VerifyResult{}, err
	}

	code = strings.TrimSpace(code)
	switch {
	case !otp.WellFormed(code):
		return f.settle(ctx, &rec, StateCodeSent, OutcomeInvalid, 0)
	case otp.Expired(pending.ExpiresAt, f.now()):
		return f.expire(ctx, &rec)
	}

	token, err := f.backend.VerifyRecovery(ctx, pending.Email, code)
	switch {
	case err == nil:
		rec.Session = token
		return f.settle(ctx, &rec, StateSessionEstablished, OutcomeVerified, 0)
	case apperr.Is(err, apperr.CodeInvalid):
		return f.settle(ctx, &rec, StateCodeSent, OutcomeInvalid, 0)
	case apperr.Is(err, apperr.CodeExpired):
		return f.expire(ctx, &rec)
	case apperr.Is(err, apperr.RateLimited):
		return f.settle(ctx, &rec, StateCodeSent, OutcomeRateLimited, apperr.RetryAfter(err))
	case apperr.Is(err, apperr.Unavailable):
		logger.Warn("server could not check code, continuing locally", "email", pending.Email, "error", err)
		pending.Code = code
		if err := devicestore.SetJSON(ctx, f.store, devicestore.KeyOTP, pending); err != nil {
			return VerifyResult{}, err
		}
		return f.settle(ctx, &rec, StateLocalOnly, OutcomeVerified, 0)
	default:
		if merr := f.move(ctx, &rec, StateCodeSent); merr != nil {
			logger.Warn("reset state", "error", merr)
		}
		return VerifyResult{}, err
	}
}

func (f *Flow) expire(ctx context.Context, rec *record) (VerifyResult, error) {
	if err := f.store.Delete(ctx, devicestore.KeyOTP); err != nil {
		return VerifyResult{}, err
	}
	return f.settle(ctx, rec, StateIdle, OutcomeExpired, 0)
}

func (f *Flow) settle(ctx context.Context, rec *record, next State, outcome Outcome, retry time.Duration) (VerifyResult, error) {
	if err := f.move(ctx, rec, next); err != nil {
		return VerifyResult{}, err
	}
	return VerifyResult{Outcome: outcome, State: next, RetryAfter: retry}, nil
}

// SetNewPassword changes the password once the code was verified. It tries
// the stored recovery session, then a session for a code the server has not
// confirmed yet, and finally sends a sign-in link. The returned state is
// PasswordUpdated or MagicLinkSent.
func (f *Flow) SetNewPassword(ctx context.Context, password string) (State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := validation.Password(password); err != nil {
		return "", apperr.Wrap(apperr.Validation, err, err.Error())
	}
	rec, err := f.load(ctx)
	if err != nil {
		return "", err
	}
	if rec.State != StateSessionEstablished && rec.State != StateLocalOnly {
		return rec.State, apperr.Newf(apperr.Conflict, "verify a reset code before choosing a password (state %s)", rec.State)
	}

	if rec.Session != "" {
		if err := f.updateWith(ctx, rec.Session, password); err == nil {
			return f.finish(ctx, &rec, StatePasswordUpdated)
		}
		rec.Session = ""
	}

	pending, err := f.pendingCode(ctx)
	if err != nil {
		return rec.State, err
	}
	if pending != nil && pending.Code != "" && !otp.Expired(pending.ExpiresAt, f.now()) {
		err := f.confirm(ctx, &rec, pending)
		if err == nil {
			err = f.updateWith(ctx, rec.Session, password)
		}
		if err == nil {
			return f.finish(ctx, &rec, StatePasswordUpdated)
		}
		logger.Warn("could not confirm code and update password", "error", err)
	}

	err = f.retry(ctx, func(ctx context.Context) error {
		return f.backend.SendMagicLink(ctx, rec.Email)
	})
	if err != nil {
		if perr := f.save(ctx, rec); perr != nil {
			logger.Warn("persist state", "error", perr)
		}
		return rec.State, err
	}
	return f.finish(ctx, &rec, StateMagicLinkSent)
}

// updateWith retries the password change with one recovery token.
func (f *Flow) updateWith(ctx context.Context, token, password string) error {
	err := f.retry(ctx, func(ctx context.Context) error {
		return f.backend.UpdatePassword(ctx, token, password)
	})
	if err != nil {
		logger.Warn("password update with recovery session failed", "error", err)
	}
	return err
}

// confirm exchanges the held entry for a recovery session. The server spends
// the code on success, so the entry is dropped and the session persisted
// before anything else can fail.
func (f *Flow) confirm(ctx context.Context, rec *record, pending *storedCode) error {
	var token string
	err := f.retry(ctx, func(ctx context.Context) error {
		var err error
		token, err = f.backend.VerifyRecovery(ctx, pending.Email, pending.Code)
		return err
	})
	if err != nil {
		return err
	}
	pending.Code = ""
	if err := devicestore.SetJSON(ctx, f.store, devicestore.KeyOTP, pending); err != nil {
		logger.Warn("drop confirmed code", "error", err)
	}
	rec.Session = token
	return f.move(ctx, rec, StateSessionEstablished)
}

func (f *Flow) finish(ctx context.Context, rec *record, final State) (State, error) {
	rec.Session = ""
	if err := f.store.Delete(ctx, devicestore.KeyOTP); err != nil {
		return rec.State, err
	}
	if err := f.move(ctx, rec, final); err != nil {
		return rec.State, err
	}
	logger.Info("password reset finished", "email", rec.Email, "state", final)
	return final, nil
}

// retry runs fn up to Attempts times, waiting backoff*n after the nth
// retryable failure.
func (f *Flow) retry(ctx context.Context, fn func(context.Context) error) error {
	var err error
	for attempt := 1; attempt <= Attempts; attempt++ {
		if err = fn(ctx); err == nil || !apperr.Retryable(err) {
			return err
		}
		if attempt == Attempts {
			break
		}
		if serr := f.sleep(ctx, f.backoff*time.Duration(attempt)); serr != nil {
			return serr
		}
	}
	return err
}

// Status reports where the flow stands.
func (f *Flow) Status(ctx context.Context) (Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	rec, err := f.load(ctx)
	if err != nil {
		return Status{}, err
	}
	last, err := f.lastRequest(ctx)
	if err != nil {
		return Status{}, err
	}
	st := Status{
		State:        rec.State,
		Email:        rec.Email,
		HasSession:   rec.Session != "",
		CooldownLeft: otp.CooldownLeft(last, f.now()),
	}
	pending, err := f.pendingCode(ctx)
	if err != nil {
		return Status{}, err
	}
	if pending != nil {
		st.CodeExpiresAt = pending.ExpiresAt
	}
	return st, nil
}

// Reset abandons the flow. The request cooldown is kept.
func (f *Flow) Reset(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.store.Delete(ctx, devicestore.KeyOTP); err != nil {
		return err
	}
	rec := record{State: StateIdle}
	return f.save(ctx, rec)
}

func (f *Flow) move(ctx context.Context, rec *record, next State) error {
	if next != rec.State && !rec.State.CanTransition(next) {
		return apperr.Newf(apperr.Conflict, "reset flow cannot go from %s to %s", rec.State, next)
	}
	logger.Debug("reset state", "from", rec.State, "to", next)
	rec.State = next
	return f.save(ctx, *rec)
}

func (f *Flow) save(ctx context.Context, rec record) error {
	rec.UpdatedAt = f.now()
	return devicestore.SetJSON(ctx, f.store, devicestore.KeyRecoveryState, rec)
}

func (f *Flow) load(ctx context.Context) (record, error) {
	var rec record
	err := devicestore.GetJSON(ctx, f.store, devicestore.KeyRecoveryState, &rec)
	if errors.Is(err, devicestore.ErrNotFound) {
		return record{State: StateIdle}, nil
	}
	if err != nil {
		return record{}, err
	}
	if !rec.State.Valid() {
		logger.Warn("unknown reset state, starting over", "state", rec.State)
		return record{State: StateIdle}, nil
	}
	return rec, nil
}

func (f *Flow) pendingCode(ctx context.Context) (*storedCode, error) {
	var code storedCode
	err := devicestore.GetJSON(ctx, f.store, devicestore.KeyOTP, &code)
	if errors.Is(err, devicestore.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &code, nil
}

func (f *Flow) lastRequest(ctx context.Context) (time.Time, error) {
	var last time.Time
	err := devicestore.GetJSON(ctx, f.store, devicestore.KeyOTPLastRequest, &last)
	if errors.Is(err, devicestore.ErrNotFound) {
		return time.Time{}, nil
	}
	return last, err
}
