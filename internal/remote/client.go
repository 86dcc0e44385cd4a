// Package remote is the typed HTTP client of the central server's REST API.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/xelth-com/eckwmsfield/internal/logging"
)

var (
	// ErrUnauthenticated is returned on 401: the credential is missing or expired.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrUnauthorized is returned on 403.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrNotFound is returned on 404.
	ErrNotFound = errors.New("not found")
	// ErrTransport marks network failures and timeouts. The cause is wrapped
	// alongside it.
	ErrTransport = errors.New("transport failure")
	// ErrProvisionalReference is returned before any request is made when a
	// record or one of its references only has a device-local identity.
	ErrProvisionalReference = errors.New("record references a provisional id")
	// ErrBadResponse is returned when a 2xx body cannot be decoded.
	ErrBadResponse = errors.New("malformed server response")
)

// StatusError is any other non-2xx answer of the server.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("server returned %d", e.Code)
	}
	return fmt.Sprintf("server returned %d: %s", e.Code, e.Body)
}

const maxBodySize = 16 << 20

// TokenSource supplies the bearer credential attached to requests.
type TokenSource interface {
	Token() (string, bool)
}

// TokenFunc adapts a function to TokenSource.
type TokenFunc func() (string, bool)

func (f TokenFunc) Token() (string, bool) { return f() }

// Client talks JSON to the server. It never retries; failed records are
// picked up again by the next sync cycle.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenSource
	log     logging.Logger
}

// New returns a client for baseURL. tokens may be nil for anonymous calls.
func New(baseURL string, timeout time.Duration, tokens TokenSource, log logging.Logger) *Client {
	if log == nil {
		log = logging.Discard()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		tokens:  tokens,
		log:     log.With("component", "remote"),
	}
}

// BaseURL returns the server root the client talks to.
func (c *Client) BaseURL() string { return c.baseURL }

// Do sends in as JSON (when non-nil) and decodes the response into out
// (when non-nil).
func (c *Client) Do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	reqID := uuid.NewString()
	req.Header.Set("X-Request-ID", reqID)
	if c.tokens != nil {
		if token, ok := c.tokens.Token(); ok {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w: %w", method, path, ErrTransport, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return fmt.Errorf("%s %s: read body: %w: %w", method, path, ErrTransport, err)
	}
	c.log.Debug(ctx, "request", "method", method, "path", path, "status", resp.StatusCode,
		"request_id", reqID, "took", time.Since(start))

	if err := statusError(resp.StatusCode, data); err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%s %s: %w: %v", method, path, ErrBadResponse, err)
	}
	return nil
}

func statusError(code int, body []byte) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusUnauthorized:
		return ErrUnauthenticated
	case code == http.StatusForbidden:
		return ErrUnauthorized
	case code == http.StatusNotFound:
		return ErrNotFound
	default:
		return &StatusError{Code: code, Body: errorMessage(body)}
	}
}

// errorMessage extracts {"error": "..."} bodies and falls back to the raw
// text.
func errorMessage(body []byte) string {
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &e) == nil && e.Error != "" {
		return e.Error
	}
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
