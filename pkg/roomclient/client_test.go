package roomclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
)

func newFakeRoomServer(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/room/create", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"roomId": "room-1"})
	})
	mux.HandleFunc("GET /room/{roomId}", func(w http.ResponseWriter, r *http.Request) {
		switch r.PathValue("roomId") {
		case "room-1":
			http.SetCookie(w, &http.Cookie{Name: authTokenCookie, Value: "token-1", Path: "/", HttpOnly: true})
			_ = json.NewEncoder(w).Encode(RoomInfo{RoomID: "room-1", IsOwner: true, TTL: 600})
		case "full":
			http.Redirect(w, r, "/?error=room-full", http.StatusTemporaryRedirect)
		case "broken":
			http.Redirect(w, r, "/?error=service-unavailable", http.StatusTemporaryRedirect)
		default:
			http.Redirect(w, r, "/?error=room-not-found", http.StatusTemporaryRedirect)
		}
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestCreateRoom(t *testing.T) {
	srv := newFakeRoomServer(t)

	c, err := New(srv.URL)
	if err != nil {
		t.Fatal(err)
	}

	roomID, err := c.CreateRoom(context.Background())
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	if roomID != "room-1" {
		t.Fatalf("roomID = %q", roomID)
	}
}

func TestCreateRoomFailures(t *testing.T) {
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer failing.Close()

	closed := httptest.NewServer(http.NotFoundHandler())
	closed.Close()

	for name, base := range map[string]string{
		"server error": failing.URL,
		"unreachable":  closed.URL,
	} {
		t.Run(name, func(t *testing.T) {
			c, err := New(base)
			if err != nil {
				t.Fatal(err)
			}
			if _, err := c.CreateRoom(context.Background()); !errors.Is(err, ErrCreateFailed) {
				t.Fatalf("err = %v, want ErrCreateFailed", err)
			}
		})
	}
}

func TestEnter(t *testing.T) {
	srv := newFakeRoomServer(t)

	tests := []struct {
		roomID  string
		wantErr error
	}{
		{"room-1", nil},
		{"full", ErrRoomFull},
		{"gone", ErrRoomNotFound},
		{"broken", ErrUnavailable},
		{"", ErrMissingRoomID},
	}

	for _, tt := range tests {
		t.Run(tt.roomID, func(t *testing.T) {
			c, err := New(srv.URL)
			if err != nil {
				t.Fatal(err)
			}

			info, err := c.Enter(context.Background(), tt.roomID)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr != nil {
				if c.Token() != "" {
					t.Fatalf("token = %q after rejection", c.Token())
				}
				return
			}

			if !info.IsOwner || info.TTL != 600 || info.RoomID != "room-1" {
				t.Fatalf("info = %+v", info)
			}
			if c.Token() != "token-1" {
				t.Fatalf("token = %q", c.Token())
			}
		})
	}
}

func TestNewRejectsBadBaseURL(t *testing.T) {
	if _, err := New("ftp://example.com"); err == nil {
		t.Fatal("expected an error for a non-http scheme")
	}
}

func TestRelayURL(t *testing.T) {
	tests := map[string]string{
		"http://localhost:5000":       "ws://localhost:5000/api/relay",
		"https://burner.example/":     "wss://burner.example/api/relay",
		"https://burner.example/chat": "wss://burner.example/chat/api/relay",
	}
	for base, want := range tests {
		c, err := New(base)
		if err != nil {
			t.Fatal(err)
		}
		if got := c.relayURL(); got != want {
			t.Errorf("relayURL(%q) = %q, want %q", base, got, want)
		}
	}
}

func TestGenerateUsername(t *testing.T) {
	pattern := regexp.MustCompile(`^anonymous-(Lion|Tiger|Bear|Wolf|Fox|Eagle|Shark|Dolphin)-[A-Za-z0-9_-]{5}$`)
	for range 50 {
		if name := GenerateUsername(); !pattern.MatchString(name) {
			t.Fatalf("username %q does not match %s", name, pattern)
		}
	}
}
