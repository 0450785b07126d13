package service

import (
	"context"
	"crypto/rand"
	"encoding/base32"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"taskcal/internal/apperr"
	"taskcal/internal/logger"
	"taskcal/internal/model"
	"taskcal/internal/otp"
	"taskcal/internal/repository"
	"taskcal/internal/validation"
)

// Token purposes. Recovery tokens are only good for changing the password.
const (
	PurposeSession  = "session"
	PurposeRecovery = "recovery"
)

const (
	recoveryTokenTTL = 15 * time.Minute
	magicLinkTTL     = 15 * time.Minute
	telegramLinkTTL  = 10 * time.Minute
	maxCodeAttempts  = 5
)

// Claims identify the caller of an authenticated request.
type Claims struct {
	UserID  string
	Email   string
	Purpose string
}

// AuthOptions tune AuthService. Zero values fall back to defaults.
type AuthOptions struct {
	Secret     []byte
	SessionTTL time.Duration
	Cooldown   time.Duration
	PublicURL  string
	HashCost   int
	Now        func() time.Time
	// Codes generates reset codes. Defaults to otp.Generate.
	Codes func() (string, error)
}

// AuthService owns credentials, sessions and every out-of-band sign-in path.
type AuthService struct {
	users    *repository.UserRepository
	recovery *repository.RecoveryRepository
	notifier Notifier
	opts     AuthOptions
}

func NewAuthService(users *repository.UserRepository, recovery *repository.RecoveryRepository, notifier Notifier, opts AuthOptions) *AuthService {
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 7 * 24 * time.Hour
	}
	if opts.Cooldown <= 0 {
		opts.Cooldown = otp.RequestCooldown
	}
	if opts.HashCost == 0 {
		opts.HashCost = bcrypt.DefaultCost
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Codes == nil {
		opts.Codes = otp.Generate
	}
	return &AuthService{users: users, recovery: recovery, notifier: notifier, opts: opts}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// SignUp registers an account and returns a session token for it.
func (s *AuthService) SignUp(ctx context.Context, email, password, fullName string) (string, *model.User, error) {
	email = normalizeEmail(email)
	if err := validation.Email(email); err != nil {
		return "", nil, invalid(err)
	}
	if err := validation.Password(password); err != nil {
		return "", nil, invalid(err)
	}

	if _, err := s.users.FindByEmail(ctx, email); err == nil {
		return "", nil, apperr.New(apperr.Conflict, "an account with this email already exists")
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil, storeErr(err, "user")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.opts.HashCost)
	if err != nil {
		return "", nil, fmt.Errorf("hash password: %w", err)
	}

	user := &model.User{Email: email, PasswordHash: string(hash)}
	if _, err := s.users.Create(ctx, user, strings.TrimSpace(fullName)); err != nil {
		return "", nil, storeErr(err, "user")
	}
	logger.Info("user signed up", "user", user.ID)

	token, err := s.IssueToken(user, PurposeSession)
	if err != nil {
		return "", nil, err
	}
	return token, user, nil
}

// SignIn checks credentials and returns a session token.
func (s *AuthService) SignIn(ctx context.Context, email, password string) (string, *model.User, error) {
	user, err := s.users.FindByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil, apperr.New(apperr.Unauthorized, "invalid email or password")
		}
		return "", nil, storeErr(err, "user")
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return "", nil, apperr.New(apperr.Unauthorized, "invalid email or password")
	}
	token, err := s.IssueToken(user, PurposeSession)
	if err != nil {
		return "", nil, err
	}
	return token, user, nil
}

// IssueToken signs a JWT for user.
func (s *AuthService) IssueToken(user *model.User, purpose string) (string, error) {
	ttl := s.opts.SessionTTL
	if purpose == PurposeRecovery {
		ttl = recoveryTokenTTL
	}
	now := s.opts.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":     user.ID,
		"email":   user.Email,
		"purpose": purpose,
		"iat":     now.Unix(),
		"exp":     now.Add(ttl).Unix(),
	})
	signed, err := token.SignedString(s.opts.Secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// VerifyToken parses a JWT and returns its claims.
func (s *AuthService) VerifyToken(tokenString string) (*Claims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.opts.Secret, nil
	}, jwt.WithTimeFunc(s.opts.Now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperr.New(apperr.SessionMissing, "session expired")
		}
		return nil, apperr.Wrap(apperr.Unauthorized, err, "invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, apperr.New(apperr.Unauthorized, "invalid token claims")
	}
	sub, _ := claims["sub"].(string)
	email, _ := claims["email"].(string)
	purpose, _ := claims["purpose"].(string)
	if sub == "" {
		return nil, apperr.New(apperr.Unauthorized, "subject claim missing")
	}
	return &Claims{UserID: sub, Email: email, Purpose: purpose}, nil
}

// RequestRecovery issues a fresh reset code for email and delivers it out of
// band. The code never appears in the response; only its expiry does.
// Unknown emails get the same answer so the endpoint cannot be used to probe
// for accounts.
func (s *AuthService) RequestRecovery(ctx context.Context, email string) (time.Time, error) {
	email = normalizeEmail(email)
	if err := validation.Email(email); err != nil {
		return time.Time{}, invalid(err)
	}

	now := s.opts.Now()
	expires := now.Add(otp.CodeTTL)
	if last, err := s.recovery.LatestCode(ctx, email); err == nil {
		if wait := last.CreatedAt.Add(s.opts.Cooldown).Sub(now); wait > 0 {
			return time.Time{}, apperr.Limited(wait, "a code was requested recently")
		}
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return time.Time{}, storeErr(err, "recovery code")
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			logger.Debug("recovery requested for unknown email")
			return expires, nil
		}
		return time.Time{}, storeErr(err, "user")
	}

	code, err := s.opts.Codes()
	if err != nil {
		return time.Time{}, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), s.opts.HashCost)
	if err != nil {
		return time.Time{}, fmt.Errorf("hash code: %w", err)
	}
	rec := &model.RecoveryCode{
		Email:     email,
		CodeHash:  string(hash),
		ExpiresAt: expires,
		CreatedAt: now,
	}
	if err := s.recovery.ReplaceCode(ctx, rec); err != nil {
		return time.Time{}, storeErr(err, "recovery code")
	}

	msg := Message{
		Subject: "Your password reset code",
		Body: fmt.Sprintf("Your code is %s. It expires in %d minutes.\n\nIf you did not ask to reset your password you can ignore this message.",
			code, int(otp.CodeTTL.Minutes())),
	}
	if err := s.notifier.Notify(ctx, user, msg); err != nil {
		logger.Error("deliver recovery code", "user", user.ID, "error", err)
		return time.Time{}, apperr.Wrap(apperr.Unavailable, err, "could not deliver the code")
	}
	return expires, nil
}

// VerifyRecovery checks a reset code and returns a recovery token.
func (s *AuthService) VerifyRecovery(ctx context.Context, email, code string) (string, error) {
	email = normalizeEmail(email)
	if !otp.WellFormed(code) {
		return "", apperr.New(apperr.CodeInvalid, "code must be 6 digits")
	}

	rec, err := s.recovery.LatestCode(ctx, email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", apperr.New(apperr.CodeInvalid, "no code was requested for this email")
		}
		return "", storeErr(err, "recovery code")
	}

	now := s.opts.Now()
	switch {
	case rec.UsedAt != nil:
		return "", apperr.New(apperr.CodeInvalid, "code already used")
	case rec.Attempts >= maxCodeAttempts:
		return "", apperr.New(apperr.CodeExpired, "too many attempts")
	case otp.Expired(rec.ExpiresAt, now):
		return "", apperr.New(apperr.CodeExpired, "code expired")
	}

	if bcrypt.CompareHashAndPassword([]byte(rec.CodeHash), []byte(code)) != nil {
		if err := s.recovery.IncrementAttempts(ctx, rec.ID); err != nil {
			return "", storeErr(err, "recovery code")
		}
		return "", apperr.New(apperr.CodeInvalid, "code does not match")
	}

	if err := s.recovery.MarkCodeUsed(ctx, rec.ID, now); err != nil {
		return "", storeErr(err, "recovery code")
	}
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return "", storeErr(err, "user")
	}
	logger.Info("recovery code verified", "user", user.ID)
	return s.IssueToken(user, PurposeRecovery)
}

// UpdatePassword sets a new password for the caller.
func (s *AuthService) UpdatePassword(ctx context.Context, claims *Claims, password string) error {
	if err := validation.Password(password); err != nil {
		return invalid(err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.opts.HashCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.users.UpdatePassword(ctx, claims.UserID, string(hash)); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.New(apperr.SessionMissing, "account no longer exists")
		}
		return storeErr(err, "user")
	}
	logger.Info("password updated", "user", claims.UserID, "purpose", claims.Purpose)
	return nil
}

// SendMagicLink mails a single-use sign-in link. Unknown emails succeed
// silently.
func (s *AuthService) SendMagicLink(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	if err := validation.Email(email); err != nil {
		return invalid(err)
	}
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return storeErr(err, "user")
	}

	token, err := randomToken(32)
	if err != nil {
		return err
	}
	now := s.opts.Now()
	if err := s.recovery.CreateMagicLink(ctx, &model.MagicLink{
		Token:     token,
		Email:     email,
		ExpiresAt: now.Add(magicLinkTTL),
		CreatedAt: now,
	}); err != nil {
		return storeErr(err, "magic link")
	}

	link := fmt.Sprintf("%s/api/auth/magic-link?token=%s", s.opts.PublicURL, url.QueryEscape(token))
	msg := Message{
		Subject: "Your sign-in link",
		Body:    fmt.Sprintf("Open this link to sign in:\n\n%s\n\nIt works once and expires in %d minutes.", link, int(magicLinkTTL.Minutes())),
	}
	if err := s.notifier.Notify(ctx, user, msg); err != nil {
		return apperr.Wrap(apperr.Unavailable, err, "could not deliver the link")
	}
	return nil
}

// ConsumeMagicLink redeems a link token for a session token.
func (s *AuthService) ConsumeMagicLink(ctx context.Context, token string) (string, *model.User, error) {
	link, err := s.recovery.ConsumeMagicLink(ctx, token, s.opts.Now())
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil, apperr.New(apperr.Unauthorized, "invalid or expired link")
		}
		return "", nil, storeErr(err, "magic link")
	}
	user, err := s.users.FindByEmail(ctx, link.Email)
	if err != nil {
		return "", nil, storeErr(err, "user")
	}
	session, err := s.IssueToken(user, PurposeSession)
	if err != nil {
		return "", nil, err
	}
	return session, user, nil
}

// CreateTelegramLink returns a short code the user sends to the bot.
func (s *AuthService) CreateTelegramLink(ctx context.Context, userID string) (string, time.Time, error) {
	buf := make([]byte, 5)
	if _, err := rand.Read(buf); err != nil {
		return "", time.Time{}, fmt.Errorf("generate link code: %w", err)
	}
	code := base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(buf)
	now := s.opts.Now()
	expires := now.Add(telegramLinkTTL)
	if err := s.recovery.CreateTelegramLink(ctx, &model.TelegramLink{
		Code:      code,
		UserID:    userID,
		ExpiresAt: expires,
		CreatedAt: now,
	}); err != nil {
		return "", time.Time{}, storeErr(err, "telegram link")
	}
	return code, expires, nil
}

// LinkTelegram binds chatID to the account that issued code.
func (s *AuthService) LinkTelegram(ctx context.Context, code string, chatID int64) (*model.User, error) {
	link, err := s.recovery.ConsumeTelegramLink(ctx, strings.ToUpper(strings.TrimSpace(code)), s.opts.Now())
	if err != nil {
		return nil, storeErr(err, "link code")
	}
	if err := s.users.SetTelegramChat(ctx, link.UserID, &chatID); err != nil {
		return nil, storeErr(err, "user")
	}
	user, err := s.users.FindByID(ctx, link.UserID)
	if err != nil {
		return nil, storeErr(err, "user")
	}
	return user, nil
}

// UnlinkTelegram detaches chatID from whichever account holds it.
func (s *AuthService) UnlinkTelegram(ctx context.Context, chatID int64) error {
	user, err := s.users.FindByTelegramChat(ctx, chatID)
	if err != nil {
		return storeErr(err, "linked account")
	}
	return storeErr(s.users.SetTelegramChat(ctx, user.ID, nil), "user")
}

// UserByChat resolves the account linked to a Telegram chat.
func (s *AuthService) UserByChat(ctx context.Context, chatID int64) (*model.User, error) {
	user, err := s.users.FindByTelegramChat(ctx, chatID)
	if err != nil {
		return nil, storeErr(err, "linked account")
	}
	return user, nil
}

// PurgeExpired drops credentials that can no longer be redeemed. Codes are
// kept through their grace window.
func (s *AuthService) PurgeExpired(ctx context.Context) (int64, error) {
	return s.recovery.PurgeExpired(ctx, s.opts.Now().Add(-otp.Grace))
}

func randomToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
