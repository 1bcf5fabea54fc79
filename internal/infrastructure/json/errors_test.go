package json

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hilthontt/burner/internal/domain"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{domain.ErrRoomNotFound, http.StatusNotFound},
		{fmt.Errorf("get room r1: %w", domain.ErrRoomNotFound), http.StatusNotFound},
		{domain.ErrRoomFull, http.StatusConflict},
		{domain.ErrNotOwner, http.StatusForbidden},
		{domain.ErrInvalidInput, http.StatusBadRequest},
		{fmt.Errorf("%w: dial tcp: refused", domain.ErrStoreUnavailable), http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		if got, _ := StatusFor(tt.err); got != tt.want {
			t.Errorf("StatusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestWriteDomainErrorHidesInternalText(t *testing.T) {
	rec := httptest.NewRecorder()
	status := WriteDomainError(rec, errors.New("redis: connection pool exhausted"))

	if status != http.StatusInternalServerError || rec.Code != status {
		t.Fatalf("status = %d, recorded %d", status, rec.Code)
	}

	var body ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Message != "An unexpected error occurred" {
		t.Fatalf("message = %q", body.Message)
	}
}

func TestWriteRateLimitError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteRateLimitError(rec, 2)

	if rec.Code != http.StatusTooManyRequests || rec.Header().Get("Retry-After") != "2" {
		t.Fatalf("code = %d, Retry-After = %q", rec.Code, rec.Header().Get("Retry-After"))
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content type = %q", ct)
	}
}
