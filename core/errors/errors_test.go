package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestNotFoundError(t *testing.T) {
	tests := []struct {
		name     string
		err      *NotFoundError
		wantMsg  string
		wantBase error
	}{
		{
			name:     "with ID",
			err:      &NotFoundError{Resource: "book", ID: "psalms"},
			wantMsg:  "book not found: psalms",
			wantBase: ErrNotFound,
		},
		{
			name:     "without ID",
			err:      &NotFoundError{Resource: "chapter"},
			wantMsg:  "chapter not found",
			wantBase: ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMsg {
				t.Errorf("Error() = %q, want %q", got, tt.wantMsg)
			}
			if got := tt.err.Unwrap(); !errors.Is(got, tt.wantBase) {
				t.Errorf("Unwrap() = %v, want %v", got, tt.wantBase)
			}
		})
	}

	t.Run("with underlying error", func(t *testing.T) {
		underlyingErr := fmt.Errorf("disk error")
		err := &NotFoundError{Resource: "book", ID: "genesis", Err: underlyingErr}
		if got := err.Unwrap(); got != underlyingErr {
			t.Errorf("Unwrap() = %v, want %v", got, underlyingErr)
		}
	})
}

func TestValidationError(t *testing.T) {
	err := NewValidation("theme", "purple", "must be one of light, dark")
	if got, want := err.Error(), "validation failed for theme: must be one of light, dark"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !errors.Is(err, ErrInvalidInput) {
		t.Error("ValidationError should unwrap to ErrInvalidInput")
	}

	bare := &ValidationError{Message: "empty"}
	if got, want := bare.Error(), "validation failed: empty"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestIOError(t *testing.T) {
	base := fmt.Errorf("connection refused")
	err := NewIO("fetch", "http://localhost/versification.json", base)
	if got, want := err.Error(), "failed to fetch http://localhost/versification.json: connection refused"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !errors.Is(err, base) {
		t.Error("IOError should unwrap to underlying error")
	}

	noPath := &IOError{Operation: "read", Err: base}
	if got, want := noPath.Error(), "failed to read: connection refused"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestParseError(t *testing.T) {
	err := NewParse("JSON", "books/psalms.json", "unexpected end of input", nil)
	if got, want := err.Error(), "failed to parse JSON at books/psalms.json: unexpected end of input"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !errors.Is(err, ErrInvalidInput) {
		t.Error("ParseError without cause should unwrap to ErrInvalidInput")
	}
}

func TestStorageError(t *testing.T) {
	tests := []struct {
		name     string
		err      *StorageError
		wantMsg  string
		wantBase error
	}{
		{
			name:     "quota with key",
			err:      NewStorage("file", "nikud", ErrQuotaExceeded),
			wantMsg:  "file store: key nikud: storage quota exceeded",
			wantBase: ErrQuotaExceeded,
		},
		{
			name:     "unavailable default",
			err:      &StorageError{Backend: "memory"},
			wantMsg:  "memory store: storage unavailable",
			wantBase: ErrUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMsg {
				t.Errorf("Error() = %q, want %q", got, tt.wantMsg)
			}
			if !errors.Is(tt.err, tt.wantBase) {
				t.Errorf("errors.Is(%v, %v) = false", tt.err, tt.wantBase)
			}
		})
	}
}

func TestIsStorageFailure(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"quota", ErrQuotaExceeded, true},
		{"wrapped unavailable", fmt.Errorf("set: %w", ErrUnavailable), true},
		{"storage error with io cause", NewStorage("sqlite", "theme", fmt.Errorf("disk I/O error")), true},
		{"not found", ErrNotFound, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsStorageFailure(tt.err); got != tt.want {
				t.Errorf("IsStorageFailure(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestErrorsAs(t *testing.T) {
	err := fmt.Errorf("loading book: %w", NewNotFound("book", "job"))
	var nf *NotFoundError
	if !errors.As(err, &nf) || nf.ID != "job" {
		t.Fatalf("errors.As did not find NotFoundError in %v", err)
	}
	if !errors.Is(err, ErrNotFound) {
		t.Error("wrapped NotFoundError should match ErrNotFound")
	}
	if errors.Is(err, ErrInvalidInput) {
		t.Error("NotFoundError should not match ErrInvalidInput")
	}
}
