package domain

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Message is a relayed chat line. It lives only as long as its delivery.
type Message struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	Sender    string `json:"sender"`
	Timestamp int64  `json:"timestamp"` // unix milliseconds
}

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewMessage stamps text with a time-sortable id and the relay's clock.
func NewMessage(text, sender string) Message {
	now := time.Now()

	entropyMu.Lock()
	id := ulid.MustNew(ulid.Timestamp(now), entropy)
	entropyMu.Unlock()

	return Message{
		ID:        id.String(),
		Text:      text,
		Sender:    sender,
		Timestamp: now.UnixMilli(),
	}
}
