package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"
)

func TestCodeRoundTrip(t *testing.T) {
	for kind := range kindCodes {
		if got := KindFromCode(kind.Code()); got != kind {
			t.Errorf("KindFromCode(%q) = %v, want %v", kind.Code(), got, kind)
		}
	}
	if got := KindFromCode("something_else"); got != Unknown {
		t.Errorf("KindFromCode(unknown) = %v, want Unknown", got)
	}
}

func TestKindOf(t *testing.T) {
	wrapped := fmt.Errorf("list tasks: %w", New(NotFound, "task not found"))

	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, Unknown},
		{"plain", errors.New("boom"), Unknown},
		{"direct", New(Conflict, "exists"), Conflict},
		{"wrapped", wrapped, NotFound},
		{"deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), Unavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRetryable(t *testing.T) {
	if !Retryable(Limited(time.Second, "slow down")) {
		t.Error("RateLimited should be retryable")
	}
	if !Retryable(New(Unavailable, "down")) {
		t.Error("Unavailable should be retryable")
	}
	if Retryable(New(Unauthorized, "no")) {
		t.Error("Unauthorized should not be retryable")
	}
	if Retryable(errors.New("plain")) {
		t.Error("plain errors should not be retryable")
	}
}

func TestUserMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"rate limited with hint", Limited(12*time.Second, ""), "Too many requests. Please wait 12 seconds and try again."},
		{"rate limited rounds up", Limited(1500*time.Millisecond, ""), "Too many requests. Please wait 2 seconds and try again."},
		{"rate limited no hint", Limited(0, ""), "Too many requests. Please wait a moment and try again."},
		{"expired", New(CodeExpired, "x"), "Your code has expired. Request a new one."},
		{"invalid", New(CodeInvalid, "x"), "That code is not valid. Check it and try again."},
		{"validation keeps message", New(Validation, "title is required"), "title is required"},
		{"unauthorized default", New(Unauthorized, ""), "Please sign in again."},
		{"unknown", errors.New("sql: connection reset"), genericMessage},
		{"nil", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := UserMessage(tt.err); got != tt.want {
				t.Errorf("UserMessage() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPayload(t *testing.T) {
	p := ToPayload(Limited(2500*time.Millisecond, "wait"))
	if p.Code != "rate_limited" || p.RetryAfterSeconds != 3 {
		t.Errorf("ToPayload() = %+v", p)
	}

	back := FromPayload(http.StatusTooManyRequests, p)
	if back.Kind != RateLimited || back.RetryAfter != 3*time.Second || back.Message != "wait" {
		t.Errorf("FromPayload() = %+v", back)
	}

	leaked := ToPayload(errors.New("pq: password authentication failed"))
	if leaked.Code != "unknown" || leaked.Message != "internal error" {
		t.Errorf("ToPayload(plain) = %+v, want generic", leaked)
	}

	guessed := FromPayload(http.StatusServiceUnavailable, Payload{})
	if guessed.Kind != Unavailable {
		t.Errorf("FromPayload(503, empty) kind = %v, want Unavailable", guessed.Kind)
	}
}

func TestHTTPStatus(t *testing.T) {
	if RateLimited.HTTPStatus() != http.StatusTooManyRequests {
		t.Error("RateLimited status")
	}
	if NotFound.HTTPStatus() != http.StatusNotFound {
		t.Error("NotFound status")
	}
	if Unknown.HTTPStatus() != http.StatusInternalServerError {
		t.Error("Unknown status")
	}
}
