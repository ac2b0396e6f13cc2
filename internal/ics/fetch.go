// Package ics fetches and parses iCalendar feeds.
package ics

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	neturl "net/url"
	"strings"
	"time"

	applog "famcal/internal/log"
)

// Failure modes of a single feed fetch. The aggregator treats all of them
// as "this source contributed nothing this week"; they are never fatal.
var (
	ErrInvalidURL    = errors.New("invalid calendar URL")
	ErrTimeout       = errors.New("calendar fetch timed out")
	ErrNotFound      = errors.New("calendar URL not found")
	ErrAccessDenied  = errors.New("calendar access denied")
	ErrInvalidFormat = errors.New("response does not contain calendar data")
)

// StatusError reports a non-2xx HTTP status other than 404/401/403.
type StatusError struct {
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("calendar fetch failed: status %d", e.Status)
}

// fetchTimeout bounds a single feed request. There is no retry at this
// layer and no aggregate deadline across feeds.
const fetchTimeout = 10 * time.Second

const maxBodyBytes = 10 * 1024 * 1024

// calendarMarker guards against endpoints that answer an HTML error page
// with a 200 status.
const calendarMarker = "BEGIN:VCALENDAR"

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Fetcher retrieves raw iCalendar text from remote URLs.
type Fetcher struct {
	client HTTPClient
}

// NewFetcher creates a Fetcher with a default client bounded by fetchTimeout.
func NewFetcher() *Fetcher {
	return &Fetcher{
		client: &http.Client{Timeout: fetchTimeout},
	}
}

// NewFetcherWithClient creates a Fetcher with the given HTTP client.
// Useful for tests.
func NewFetcherWithClient(client HTTPClient) *Fetcher {
	return &Fetcher{client: client}
}

// Fetch retrieves the raw calendar body from url.
//
// Failure taxonomy:
//   - syntactically malformed URL          -> ErrInvalidURL
//   - request exceeded the 10s budget      -> ErrTimeout
//   - 404                                  -> ErrNotFound
//   - 401 / 403                            -> ErrAccessDenied
//   - other non-2xx status                 -> *StatusError
//   - 2xx body without BEGIN:VCALENDAR     -> ErrInvalidFormat
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	if err := validateURL(url); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	req.Header.Set("Accept", "text/calendar,text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("User-Agent", "famcal/1.0")
	req.Header.Set("Cache-Control", "no-cache, no-store, must-revalidate")
	req.Header.Set("Pragma", "no-cache")

	applog.Debug("ics fetch start", "url", redactURL(url))

	resp, err := f.client.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, fmt.Errorf("%w after %s", ErrTimeout, fetchTimeout)
		}
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return nil, ErrAccessDenied
	case resp.StatusCode/100 != 2:
		return nil, &StatusError{Status: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	if !bytes.Contains(body, []byte(calendarMarker)) {
		return nil, ErrInvalidFormat
	}

	applog.Debug("ics fetch success", "url", redactURL(url), "bytes", len(body))
	return body, nil
}

func validateURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("%w: empty", ErrInvalidURL)
	}
	u, err := neturl.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrInvalidURL, raw)
	}
	return nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// redactURL hides the path and query of a feed URL for logging. Private
// calendar URLs routinely embed access tokens.
func redactURL(u string) string {
	const suffix = "/...(redacted)"

	i := strings.Index(u, "://")
	if i < 0 {
		return "ics://...(redacted)"
	}
	rest := u[i+3:]
	if j := strings.IndexByte(rest, '/'); j >= 0 {
		return u[:i+3+j] + suffix
	}
	return u + suffix
}
