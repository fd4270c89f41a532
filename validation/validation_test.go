package validation

import (
	"strings"
	"testing"

	"github.com/kbukum/pipegraph/errors"
)

func TestValidatorRequired(t *testing.T) {
	if New().Required("id", "lint").HasErrors() {
		t.Error("expected no errors for valid input")
	}
	if !New().Required("id", "").HasErrors() {
		t.Error("expected error for empty required field")
	}
	if !New().Required("id", "   ").HasErrors() {
		t.Error("expected error for whitespace-only required field")
	}
}

func TestValidatorIdentifier(t *testing.T) {
	tests := []struct {
		value   string
		wantErr bool
	}{
		{"build", false},
		{"unit_tests", false},
		{"go-1", false},
		{"_private", false},
		{"", false},
		{"1build", true},
		{"has space", true},
		{"dot.ted", true},
	}
	for _, tc := range tests {
		t.Run(tc.value, func(t *testing.T) {
			if got := New().Identifier("id", tc.value).HasErrors(); got != tc.wantErr {
				t.Errorf("Identifier(%q) error = %v, want %v", tc.value, got, tc.wantErr)
			}
		})
	}
}

func TestValidatorOptionalUUID(t *testing.T) {
	if New().OptionalUUID("run_id", "").HasErrors() {
		t.Error("expected empty value to pass")
	}
	if New().OptionalUUID("run_id", "6ba7b810-9dad-11d1-80b4-00c04fd430c8").HasErrors() {
		t.Error("expected valid UUID to pass")
	}
	if !New().OptionalUUID("run_id", "not-a-uuid").HasErrors() {
		t.Error("expected invalid UUID to fail")
	}
}

func TestValidatorOneOf(t *testing.T) {
	v := New().OneOf("when", "sometimes", []string{"success", "always"})
	if !v.HasErrors() {
		t.Fatal("expected error for value outside the allowed set")
	}
	if !strings.Contains(v.Errors()[0].Message, "success, always") {
		t.Errorf("expected allowed values in message, got %q", v.Errors()[0].Message)
	}
}

func TestValidatorValidate_AppError(t *testing.T) {
	v := New()
	v.Required("jobs[0].id", "")
	v.Min("engine.max_concurrency", -1, 0)
	v.Custom(false, "gate", "must name a declared job")

	appErr := v.Validate()
	if appErr == nil {
		t.Fatal("expected an AppError")
	}
	if appErr.Code != errors.ErrCodeInvalidInput {
		t.Errorf("expected INVALID_INPUT, got %s", appErr.Code)
	}
	fields, ok := appErr.Details["fields"].([]FieldError)
	if !ok || len(fields) != 3 {
		t.Fatalf("expected 3 field errors, got %v", appErr.Details["fields"])
	}
	if !strings.Contains(appErr.Message, "jobs[0].id: is required") {
		t.Errorf("unexpected message %q", appErr.Message)
	}
}

func TestValidatorValidate_NoErrors(t *testing.T) {
	if New().Required("id", "x").Validate() != nil {
		t.Error("expected nil when no errors were collected")
	}
}

type testStep struct {
	Name string `yaml:"name" validate:"required,identifier"`
}

type testJob struct {
	ID    string     `yaml:"id" validate:"required,identifier"`
	When  string     `yaml:"when" validate:"omitempty,oneof=success always"`
	Steps []testStep `yaml:"steps" validate:"required,min=1,dive"`
}

type testPipeline struct {
	Jobs []testJob `yaml:"jobs" validate:"required,min=1,dive"`
}

func TestValidate_StructTags(t *testing.T) {
	valid := testPipeline{Jobs: []testJob{{ID: "lint", Steps: []testStep{{Name: "run"}}}}}
	if err := Validate(valid); err != nil {
		t.Fatalf("expected valid pipeline, got %v", err)
	}

	invalid := testPipeline{Jobs: []testJob{{ID: "9lint", When: "never", Steps: []testStep{{Name: ""}}}}}
	err := Validate(invalid)
	if err == nil {
		t.Fatal("expected validation error")
	}
	appErr, ok := errors.AsAppError(err)
	if !ok {
		t.Fatalf("expected AppError, got %T", err)
	}
	fields, _ := appErr.Details["fields"].([]FieldError)
	got := map[string]bool{}
	for _, f := range fields {
		got[f.Field] = true
	}
	for _, want := range []string{"jobs[0].id", "jobs[0].when", "jobs[0].steps[0].name"} {
		if !got[want] {
			t.Errorf("expected field error for %q, got %v", want, fields)
		}
	}
}

func TestValidate_EmptySlice(t *testing.T) {
	err := Validate(testPipeline{})
	if err == nil {
		t.Fatal("expected error for missing jobs")
	}
	if !strings.Contains(err.Error(), "jobs") {
		t.Errorf("expected jobs in error, got %v", err)
	}
}
