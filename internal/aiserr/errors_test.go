package aiserr

import (
	"fmt"
	"net/http"
	"testing"
)

func TestStatusOfKnownErrorKinds(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", Validation("bad input", nil), http.StatusBadRequest},
		{"not found", NotFound("missing", nil), http.StatusNotFound},
		{"conflict", Conflict("already running", nil), http.StatusConflict},
		{"database", Database("boom", nil), http.StatusInternalServerError},
		{"plain error", fmt.Errorf("unexpected"), http.StatusInternalServerError},
		{"wrapped", fmt.Errorf("wrap: %w", NotFound("missing", nil)), http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StatusOf(tt.err); got != tt.want {
				t.Errorf("StatusOf() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestErrorMessage(t *testing.T) {
	err := Validation("path must be within data dir", map[string]any{"path": "/etc/passwd"})
	if err.Error() != "path must be within data dir" {
		t.Errorf("Error() = %q", err.Error())
	}
}
