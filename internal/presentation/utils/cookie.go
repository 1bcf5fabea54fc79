package utils

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/hilthontt/burner/internal/application/gate"
)

const (
	CookieAuthToken = "x-auth-token"
	CookieIsOwner   = "is-owner"
)

type decisionKey struct{}

func FormatRoomPath(roomID string) string {
	return fmt.Sprintf("/room/%s", url.PathEscape(roomID))
}

// GetAuthToken returns the identity token the browser presented, or "".
func GetAuthToken(r *http.Request) string {
	cookie, err := r.Cookie(CookieAuthToken)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// SetAuthTokenCookie hands a freshly minted identity token to the browser.
// The token is a session cookie: it lives as long as the browser session.
func SetAuthTokenCookie(w http.ResponseWriter, token string, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieAuthToken,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
		Secure:   secure,
	})
}

// SetOwnerCookie marks the owner for the room page. It is readable from
// JavaScript and scoped to the room path.
func SetOwnerCookie(w http.ResponseWriter, roomID string, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieIsOwner,
		Value:    "true",
		Path:     FormatRoomPath(roomID),
		HttpOnly: false,
		SameSite: http.SameSiteStrictMode,
		Secure:   secure,
	})
}

func WithDecision(ctx context.Context, d gate.Decision) context.Context {
	return context.WithValue(ctx, decisionKey{}, d)
}

// DecisionFrom returns the Gate decision attached by the room middleware.
func DecisionFrom(ctx context.Context) (gate.Decision, bool) {
	d, ok := ctx.Value(decisionKey{}).(gate.Decision)
	return d, ok
}
