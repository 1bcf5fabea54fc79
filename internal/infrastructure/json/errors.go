package json

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/hilthontt/burner/internal/domain"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

var domainStatuses = []struct {
	err     error
	status  int
	message string
}{
	{domain.ErrRoomNotFound, http.StatusNotFound, "Room not found"},
	{domain.ErrRoomFull, http.StatusConflict, "Room is full"},
	{domain.ErrNotOwner, http.StatusForbidden, "Only the room owner can do that"},
	{domain.ErrNotMember, http.StatusForbidden, "Room access was not granted"},
	{domain.ErrInvalidInput, http.StatusBadRequest, "Invalid input"},
	{domain.ErrStoreUnavailable, http.StatusServiceUnavailable, "The room store is unavailable. Please try again later."},
}

// StatusFor maps a domain error to an HTTP status and a public message.
// Anything else is a 500 whose text stays private.
func StatusFor(err error) (int, string) {
	for _, s := range domainStatuses {
		if errors.Is(err, s.err) {
			return s.status, s.message
		}
	}
	return http.StatusInternalServerError, "An unexpected error occurred"
}

func WriteError(w http.ResponseWriter, status int, msg string) {
	_ = Write(w, status, ErrorResponse{
		Error:   http.StatusText(status),
		Message: msg,
	})
}

// WriteDomainError writes err as StatusFor classifies it and returns the
// status for the caller's log line.
func WriteDomainError(w http.ResponseWriter, err error) int {
	status, msg := StatusFor(err)
	WriteError(w, status, msg)
	return status
}

func WriteRateLimitError(w http.ResponseWriter, retryAfter int) {
	if retryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	}
	WriteError(w, http.StatusTooManyRequests, "Too many requests. Please try again later.")
}
