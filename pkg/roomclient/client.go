package roomclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"strings"
	"time"
)

const (
	defaultBaseURL  = "http://localhost:5000"
	defaultTimeout  = 10 * time.Second
	authTokenCookie = "x-auth-token"
)

// RoomInfo is what the room page reports to an admitted visitor.
type RoomInfo struct {
	RoomID  string `json:"roomId"`
	IsOwner bool   `json:"isOwner"`
	TTL     int64  `json:"ttl"` // seconds
}

// Client talks to a burner server over HTTP. Its cookie jar holds the
// identity tokens the Gate hands out, one browser's worth.
type Client struct {
	baseURL *url.URL
	jar     http.CookieJar
	http    *http.Client
}

type Option func(*Client)

// WithHTTPTimeout bounds each HTTP request.
func WithHTTPTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.http.Timeout = d
	}
}

// DefaultBaseURL honours BURNER_BASE_URL.
func DefaultBaseURL() string {
	if u, ok := os.LookupEnv("BURNER_BASE_URL"); ok && u != "" {
		return u
	}
	return defaultBaseURL
}

func New(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL()
	}

	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid base url scheme %q", u.Scheme)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}

	c := &Client{
		baseURL: u,
		jar:     jar,
		http: &http.Client{
			Jar:     jar,
			Timeout: defaultTimeout,
			// The Gate answers with redirects that carry the rejection reason.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

func (c *Client) endpoint(path string) string {
	return c.baseURL.String() + path
}

func (c *Client) relayURL() string {
	u := *c.baseURL
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/api/relay"
	return u.String()
}

// CreateRoom asks the server for a new room. Any failure, network or server,
// is reported as ErrCreateFailed and is not retried.
func (c *Client) CreateRoom(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/api/room/create"), nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCreateFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCreateFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: status %d", ErrCreateFailed, resp.StatusCode)
	}

	var body struct {
		RoomID string `json:"roomId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.RoomID == "" {
		return "", fmt.Errorf("%w: malformed response", ErrCreateFailed)
	}

	return body.RoomID, nil
}

// Enter navigates to the room page. On admission the jar keeps the identity
// token, so entering again re-presents it and never takes a second slot.
func (c *Client) Enter(ctx context.Context, roomID string) (RoomInfo, error) {
	if roomID == "" {
		return RoomInfo{}, ErrMissingRoomID
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("/room/"+url.PathEscape(roomID)), nil)
	if err != nil {
		return RoomInfo{}, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return RoomInfo{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		var info RoomInfo
		if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
			return RoomInfo{}, fmt.Errorf("%w: malformed room response", ErrUnavailable)
		}
		return info, nil

	case resp.StatusCode >= 300 && resp.StatusCode < 400:
		loc, err := url.Parse(resp.Header.Get("Location"))
		if err != nil {
			return RoomInfo{}, fmt.Errorf("%w: bad redirect", ErrUnavailable)
		}
		return RoomInfo{}, errorFromReason(loc.Query().Get("error"))

	default:
		return RoomInfo{}, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}
}

// Token returns the identity token held for this server, or "".
func (c *Client) Token() string {
	for _, cookie := range c.jar.Cookies(c.baseURL) {
		if cookie.Name == authTokenCookie {
			return cookie.Value
		}
	}
	return ""
}
