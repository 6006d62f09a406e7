package services

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/desertthunder/mangax/internal/shared"
)

func TestAPIError(t *testing.T) {
	t.Run("Error Message", func(t *testing.T) {
		err := &APIError{Status: 429, Query: "Berserk", Message: "slow down", Err: shared.ErrRateLimited}
		msg := err.Error()

		for _, want := range []string{"rate limited", "429", `"Berserk"`, "slow down"} {
			if !strings.Contains(msg, want) {
				t.Errorf("expected %q in %q", want, msg)
			}
		}
	})

	t.Run("Unwrap Through Wrapping", func(t *testing.T) {
		err := fmt.Errorf("search failed: %w", &APIError{Status: 401, Err: shared.ErrAuthFailed})
		if !errors.Is(err, shared.ErrAuthFailed) {
			t.Error("expected errors.Is to reach the sentinel")
		}
		if !IsBatchFatal(err) {
			t.Error("expected auth failure to be batch fatal")
		}
		if IsTemporary(err) {
			t.Error("expected auth failure not to be temporary")
		}
	})

	t.Run("Plain Errors", func(t *testing.T) {
		err := errors.New("boom")
		if IsTemporary(err) || IsBatchFatal(err) {
			t.Error("expected plain errors to be neither temporary nor fatal")
		}
	})
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	tt := []struct {
		name     string
		value    string
		expected time.Duration
	}{
		{name: "Seconds", value: "60", expected: time.Minute},
		{name: "HTTP Date", value: now.Add(90 * time.Second).Format(http.TimeFormat), expected: 90 * time.Second},
		{name: "Past Date", value: now.Add(-time.Minute).Format(http.TimeFormat), expected: 0},
		{name: "Empty", value: "", expected: 0},
		{name: "Garbage", value: "soon", expected: 0},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			if got := parseRetryAfter(tc.value, now); got != tc.expected {
				t.Errorf("expected %v, got %v", tc.expected, got)
			}
		})
	}
}

func TestTruncateBody(t *testing.T) {
	long := strings.Repeat("a", 199) + "ワンピース"

	tt := []struct {
		name     string
		body     string
		expected string
	}{
		{name: "Short", body: "  not found \n", expected: "not found"},
		{name: "Exact Limit", body: strings.Repeat("b", 200), expected: strings.Repeat("b", 200)},
		{name: "Ascii Overflow", body: strings.Repeat("c", 250), expected: strings.Repeat("c", 200) + "..."},
		{name: "Multibyte Boundary", body: long, expected: strings.Repeat("a", 199) + "..."},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			got := truncateBody(tc.body)
			if got != tc.expected {
				t.Errorf("expected %q, got %q", tc.expected, got)
			}
			if !utf8.ValidString(got) {
				t.Errorf("truncated body is not valid UTF-8: %q", got)
			}
		})
	}
}
