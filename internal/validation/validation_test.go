package validation

import (
	"errors"
	"testing"
	"time"

	"taskcal/internal/model"
)

func TestPassword(t *testing.T) {
	tests := []struct {
		name     string
		password string
		failed   []Rule
	}{
		{name: "all rules satisfied", password: "Sunny#Day9", failed: nil},
		{name: "too short", password: "Ab1!xyz", failed: []Rule{RuleLength}},
		{name: "no uppercase", password: "sunny#day9", failed: []Rule{RuleUpper}},
		{name: "no lowercase", password: "SUNNY#DAY9", failed: []Rule{RuleLower}},
		{name: "no digit", password: "Sunny#Days", failed: []Rule{RuleDigit}},
		{name: "no special", password: "SunnyDay99", failed: []Rule{RuleSpecial}},
		{name: "empty", password: "", failed: []Rule{RuleLength, RuleUpper, RuleLower, RuleDigit, RuleSpecial}},
		{name: "eight chars exactly", password: "Ab1!Ab1!", failed: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Password(tt.password)
			if tt.failed == nil {
				if err != nil {
					t.Fatalf("Password(%q) = %v, want nil", tt.password, err)
				}
				return
			}
			var pe *PasswordError
			if !errors.As(err, &pe) {
				t.Fatalf("Password(%q) = %v, want *PasswordError", tt.password, err)
			}
			if len(pe.Failed) != len(tt.failed) {
				t.Fatalf("Password(%q) failed rules = %v, want %v", tt.password, pe.Failed, tt.failed)
			}
			for i := range tt.failed {
				if pe.Failed[i] != tt.failed[i] {
					t.Errorf("rule %d = %q, want %q", i, pe.Failed[i], tt.failed[i])
				}
			}
		})
	}
}

func TestEmail(t *testing.T) {
	valid := []string{"a@b.co", "first.last@example.com"}
	invalid := []string{"", "plain", "@example.com", "user@", "us er@example.com"}
	for _, e := range valid {
		if err := Email(e); err != nil {
			t.Errorf("Email(%q) = %v, want nil", e, err)
		}
	}
	for _, e := range invalid {
		if err := Email(e); err == nil {
			t.Errorf("Email(%q) = nil, want error", e)
		}
	}
}

func ptr[T any](v T) *T { return &v }

func TestNewTask(t *testing.T) {
	tests := []struct {
		name    string
		in      model.TaskInput
		wantErr bool
	}{
		{"title only", model.TaskInput{Title: ptr("Buy milk")}, false},
		{"missing title", model.TaskInput{}, true},
		{"blank title", model.TaskInput{Title: ptr("   ")}, true},
		{"bad status", model.TaskInput{Title: ptr("x"), Status: ptr(model.TaskStatus("done"))}, true},
		{"bad priority", model.TaskInput{Title: ptr("x"), Priority: ptr(model.Priority("urgent"))}, true},
		{"full", model.TaskInput{Title: ptr("x"), Status: ptr(model.TaskCompleted), Priority: ptr(model.PriorityHigh)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := NewTask(tt.in); (err != nil) != tt.wantErr {
				t.Errorf("NewTask() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNewEvent(t *testing.T) {
	start := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	before := start.Add(-time.Hour)
	after := start.Add(time.Hour)

	tests := []struct {
		name    string
		in      model.EventInput
		wantErr bool
	}{
		{"ok", model.EventInput{Title: ptr("Standup"), StartTime: &start}, false},
		{"with end", model.EventInput{Title: ptr("Standup"), StartTime: &start, EndTime: &after}, false},
		{"end before start", model.EventInput{Title: ptr("Standup"), StartTime: &start, EndTime: &before}, true},
		{"no start", model.EventInput{Title: ptr("Standup")}, true},
		{"no title", model.EventInput{StartTime: &start}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := NewEvent(tt.in); (err != nil) != tt.wantErr {
				t.Errorf("NewEvent() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
