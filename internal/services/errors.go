package services

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/desertthunder/mangax/internal/shared"
)

// APIError is a failed catalog call. Err is one of the shared sentinel errors so callers can test
// it with [errors.Is].
type APIError struct {
	Status     int           // HTTP status, 0 for transport failures
	Query      string        // title or ID list being resolved
	RetryAfter time.Duration // from the Retry-After header on 429
	Message    string
	Err        error
}

func (e *APIError) Error() string {
	var b strings.Builder
	b.WriteString(e.Err.Error())
	if e.Status > 0 {
		fmt.Fprintf(&b, " (status %d)", e.Status)
	}
	if e.Query != "" {
		fmt.Fprintf(&b, " for %q", e.Query)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	return b.String()
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// Temporary reports whether retrying the same call may succeed.
func (e *APIError) Temporary() bool {
	switch {
	case errors.Is(e.Err, shared.ErrAuthFailed), errors.Is(e.Err, shared.ErrRateLimited):
		return false
	case errors.Is(e.Err, shared.ErrMalformedResponse):
		return true
	}
	return e.Status == 0 || e.Status >= http.StatusInternalServerError
}

// IsTemporary reports whether err is an [APIError] worth retrying.
func IsTemporary(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Temporary()
}

// IsBatchFatal reports whether err must stop a whole batch rather than a single entry.
func IsBatchFatal(err error) bool {
	return errors.Is(err, shared.ErrAuthFailed) || errors.Is(err, shared.ErrRateLimited)
}

// statusError maps a non-2xx response to an [APIError].
func statusError(resp *http.Response, query, body string) *APIError {
	e := &APIError{Status: resp.StatusCode, Query: query, Message: truncateBody(body)}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		e.Err = shared.ErrAuthFailed
	case resp.StatusCode == http.StatusTooManyRequests:
		e.Err = shared.ErrRateLimited
		e.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"), time.Now())
	case resp.StatusCode >= http.StatusInternalServerError:
		e.Err = shared.ErrServiceUnavailable
	default:
		e.Err = shared.ErrAPIRequest
	}
	return e
}

// parseRetryAfter accepts delta-seconds or an HTTP date.
func parseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil && t.After(now) {
		return t.Sub(now)
	}
	return 0
}

func truncateBody(body string) string {
	const limit = 200
	body = strings.TrimSpace(body)
	if len(body) > limit {
		cut := limit
		for cut > 0 && !utf8.RuneStart(body[cut]) {
			cut--
		}
		return body[:cut] + "..."
	}
	return body
}
