// Package validation holds the presence and format checks applied to user
// input before it reaches storage.
package validation

import (
	"fmt"
	"strings"
	"unicode"

	"taskcal/internal/model"
)

// MinPasswordLength is the shortest password accepted.
const MinPasswordLength = 8

// Rule names a single password requirement.
type Rule string

const (
	RuleLength  Rule = "at least 8 characters"
	RuleUpper   Rule = "an uppercase letter"
	RuleLower   Rule = "a lowercase letter"
	RuleDigit   Rule = "a digit"
	RuleSpecial Rule = "a special character"
)

// PasswordError lists every rule a password failed.
type PasswordError struct {
	Failed []Rule
}

func (e *PasswordError) Error() string {
	parts := make([]string, len(e.Failed))
	for i, r := range e.Failed {
		parts[i] = string(r)
	}
	return "password must contain " + strings.Join(parts, ", ")
}

// Password checks pw against the strength rules.
func Password(pw string) error {
	var hasUpper, hasLower, hasDigit, hasSpecial bool
	n := 0
	for _, r := range pw {
		n++
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			hasSpecial = true
		}
	}

	var failed []Rule
	if n < MinPasswordLength {
		failed = append(failed, RuleLength)
	}
	if !hasUpper {
		failed = append(failed, RuleUpper)
	}
	if !hasLower {
		failed = append(failed, RuleLower)
	}
	if !hasDigit {
		failed = append(failed, RuleDigit)
	}
	if !hasSpecial {
		failed = append(failed, RuleSpecial)
	}
	if len(failed) > 0 {
		return &PasswordError{Failed: failed}
	}
	return nil
}

// Email does a shallow shape check; delivery is the real test.
func Email(email string) error {
	email = strings.TrimSpace(email)
	at := strings.LastIndex(email, "@")
	if at <= 0 || at == len(email)-1 || strings.ContainsAny(email, " \t\n") {
		return fmt.Errorf("invalid email address %q", email)
	}
	return nil
}

// NewTask validates input used to create a task.
func NewTask(in model.TaskInput) error {
	if in.Title == nil || strings.TrimSpace(*in.Title) == "" {
		return fmt.Errorf("title is required")
	}
	return TaskUpdate(in)
}

// TaskUpdate validates the fields present in a partial update.
func TaskUpdate(in model.TaskInput) error {
	if in.Title != nil && strings.TrimSpace(*in.Title) == "" {
		return fmt.Errorf("title cannot be empty")
	}
	if in.Status != nil && !in.Status.Valid() {
		return fmt.Errorf("status must be pending or completed, got %q", *in.Status)
	}
	if in.Priority != nil && !in.Priority.Valid() {
		return fmt.Errorf("priority must be low, medium or high, got %q", *in.Priority)
	}
	return nil
}

// NewEvent validates input used to create an event.
func NewEvent(in model.EventInput) error {
	if in.Title == nil || strings.TrimSpace(*in.Title) == "" {
		return fmt.Errorf("title is required")
	}
	if in.StartTime == nil || in.StartTime.IsZero() {
		return fmt.Errorf("start_time is required")
	}
	return EventUpdate(in)
}

// EventUpdate validates the fields present in a partial update.
func EventUpdate(in model.EventInput) error {
	if in.Title != nil && strings.TrimSpace(*in.Title) == "" {
		return fmt.Errorf("title cannot be empty")
	}
	if in.StartTime != nil && in.EndTime != nil && in.EndTime.Before(*in.StartTime) {
		return fmt.Errorf("end_time must not be before start_time")
	}
	return nil
}

// EventSpan checks a fully merged event.
func EventSpan(e model.Event) error {
	if e.EndTime != nil && e.EndTime.Before(e.StartTime) {
		return fmt.Errorf("end_time must not be before start_time")
	}
	return nil
}
