package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/mangax/internal/models"
	"github.com/desertthunder/mangax/internal/shared"
	"github.com/desertthunder/mangax/internal/tasks"
	tu "github.com/desertthunder/mangax/internal/testing"
	"github.com/urfave/cli/v3"
)

func testConfig(t *testing.T) *shared.Config {
	t.Helper()
	cfg := shared.DefaultConfig()
	cfg.Database.Path = filepath.Join(t.TempDir(), "mangax.db")
	cfg.Limiter.RequestsPerMinute = 600000
	cfg.Limiter.SafetyMargin = 0
	cfg.Retry.BaseDelay = time.Millisecond
	return cfg
}

func record(id int, title string) models.CandidateRecord {
	return models.CandidateRecord{ExternalID: id, Titles: models.TitleSet{Primary: title}, Format: "MANGA"}
}

func newTestRunner(t *testing.T, catalog *tu.MockCatalog) (*Runner, *bytes.Buffer) {
	t.Helper()
	output := &bytes.Buffer{}
	return NewRunner(RunnerOpts{
		Config:  testConfig(t),
		Catalog: catalog,
		Logger:  shared.NewNopLogger(),
		Output:  output,
	}), output
}

// run executes the CLI with args against r.
func run(r *Runner, args ...string) error {
	app := &cli.Command{
		Name:     "mangax",
		Flags:    globalFlags(),
		Before:   r.Configure,
		Commands: r.register(),
	}
	return app.Run(context.Background(), append([]string{"mangax", "--config", ""}, args...))
}

func TestRunner(t *testing.T) {
	t.Run("NewRunner", func(t *testing.T) {
		t.Run("with all dependencies provided", func(t *testing.T) {
			config := shared.DefaultConfig()
			logger := shared.NewLogger(nil)
			output := &bytes.Buffer{}
			catalog := tu.NewMockCatalog()

			runner := NewRunner(RunnerOpts{
				Config:     config,
				ConfigPath: "/test/path/config.toml",
				Catalog:    catalog,
				Logger:     logger,
				Output:     output,
			})

			if runner.config != config {
				t.Error("expected config to be set")
			}
			if runner.logger != logger {
				t.Error("expected logger to be set")
			}
			if runner.output != output {
				t.Error("expected output to be set")
			}
			if runner.catalog != catalog {
				t.Error("expected catalog to be set")
			}
			if runner.configPath != "/test/path/config.toml" {
				t.Errorf("expected configPath to be set, got %s", runner.configPath)
			}
		})

		t.Run("with nil config uses defaults", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Config: nil})

			if runner.config == nil {
				t.Error("expected default config to be set")
			}
			if runner.config.Limiter.RequestsPerMinute != 28 {
				t.Errorf("expected default limiter of 28 rpm, got %d", runner.config.Limiter.RequestsPerMinute)
			}
		})

		t.Run("with nil logger uses default", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Logger: nil})

			if runner.logger == nil {
				t.Error("expected default logger to be set")
			}
		})

		t.Run("with nil output uses stdout", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: nil})

			if runner.output != os.Stdout {
				t.Error("expected output to default to os.Stdout")
			}
		})
	})

	t.Run("writeJSON", func(t *testing.T) {
		t.Run("writes formatted JSON successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writeJSON(map[string]string{"key": "value"}, true); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			result := output.String()
			if !strings.Contains(result, `"key": "value"`) {
				t.Errorf("expected formatted JSON, got %s", result)
			}
			if !strings.HasSuffix(result, "\n") {
				t.Error("expected output to end with newline")
			}
		})

		t.Run("writes compact JSON successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writeJSON(map[string]string{"key": "value"}, false); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			expected := `{"key":"value"}` + "\n"
			if result := output.String(); result != expected {
				t.Errorf("expected %q, got %q", expected, result)
			}
		})

		t.Run("handles marshal error with non-serializable data", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &bytes.Buffer{}})

			err := runner.writeJSON(make(chan int), false)
			if err == nil {
				t.Fatal("expected error for non-serializable data")
			}
			if !strings.Contains(err.Error(), "failed to marshal JSON") {
				t.Errorf("expected marshal error, got %v", err)
			}
		})

		t.Run("handles write failure", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &tu.FWriter{}})

			err := runner.writeJSON(map[string]string{"key": "value"}, false)
			if err == nil {
				t.Fatal("expected error from failing writer")
			}
			if !strings.Contains(err.Error(), "failed to write output") {
				t.Errorf("expected write error, got %v", err)
			}
		})

		t.Run("handles newline write failure", func(t *testing.T) {
			limitedWriter := tu.NewLimitedWriter(1, 0, &bytes.Buffer{})
			runner := NewRunner(RunnerOpts{Output: &limitedWriter})

			err := runner.writeJSON(map[string]string{"key": "value"}, false)
			if err == nil {
				t.Fatal("expected error writing newline")
			}
			if !strings.Contains(err.Error(), "failed to write newline") {
				t.Errorf("expected newline write error, got %v", err)
			}
		})
	})

	t.Run("writePlain", func(t *testing.T) {
		t.Run("writes plain text successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writePlain("hello %s", "world"); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if result := output.String(); result != "hello world" {
				t.Errorf("expected 'hello world', got %q", result)
			}
		})

		t.Run("handles write failure", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &tu.FWriter{}})

			err := runner.writePlain("test")
			if err == nil {
				t.Fatal("expected error from failing writer")
			}
			if !strings.Contains(err.Error(), "failed to write output") {
				t.Errorf("expected write error, got %v", err)
			}
		})
	})

	t.Run("register", func(t *testing.T) {
		runner := NewRunner(RunnerOpts{})
		commands := runner.register()

		names := make(map[string]bool)
		for i, cmd := range commands {
			if cmd == nil {
				t.Fatalf("command at index %d is nil", i)
			}
			names[cmd.Name] = true
		}
		for _, want := range []string{"setup", "match", "review", "export", "cache", "serve"} {
			if !names[want] {
				t.Errorf("expected %q command to be registered", want)
			}
		}
	})
}

func TestOpenLocksDatabase(t *testing.T) {
	runner, _ := newTestRunner(t, tu.NewMockCatalog())

	first, err := runner.open()
	if err != nil {
		t.Fatalf("open() error = %v", err)
	}

	if _, err := runner.open(); !errors.Is(err, shared.ErrStateLocked) {
		t.Errorf("second open() error = %v, want ErrStateLocked", err)
	}

	if err := first.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	again, err := runner.open()
	if err != nil {
		t.Fatalf("open() after Close error = %v", err)
	}
	again.Close()
}

func TestSetupCommand(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.toml")
	dbPath := filepath.Join(dir, "state.db")

	runner, output := newTestRunner(t, tu.NewMockCatalog())
	app := &cli.Command{Name: "mangax", Flags: globalFlags(), Before: runner.Configure, Commands: runner.register()}
	err := app.Run(context.Background(), []string{"mangax", "--config", configPath, "--db", dbPath, "setup"})
	if err != nil {
		t.Fatalf("setup error = %v", err)
	}

	tu.AssertFileExists(t, configPath)
	tu.AssertFileExists(t, dbPath)
	if !strings.Contains(output.String(), "Setup complete") {
		t.Errorf("expected completion message, got %q", output.String())
	}
}

func TestMatchWorkflow(t *testing.T) {
	catalog := tu.NewMockCatalog()
	catalog.AddTitle("One Piece", record(30013, "One Piece"))
	catalog.AddTitle("Monster", record(11, "Monster Musume"), record(12, "Monster Hunter"))

	input := filepath.Join(t.TempDir(), "list.csv")
	tu.MustWriteFile(t, input, "id,title,chapters_read\no,One Piece,1100\nm,Monster,12\nz,Zetman,3\n")

	runner, output := newTestRunner(t, catalog)

	if err := run(runner, "match", "run", "--input", input); err != nil {
		t.Fatalf("match run error = %v", err)
	}
	for _, want := range []string{"One Piece", "Monster", "Zetman", "searched: 3"} {
		if !strings.Contains(output.String(), want) {
			t.Errorf("expected %q in batch output:\n%s", want, output.String())
		}
	}

	listResults := func(t *testing.T, args ...string) []models.MatchResult {
		t.Helper()
		output.Reset()
		if err := run(runner, append([]string{"review", "list", "--json"}, args...)...); err != nil {
			t.Fatalf("review list error = %v", err)
		}
		var results []models.MatchResult
		if err := json.Unmarshal(output.Bytes(), &results); err != nil {
			t.Fatalf("review list output is not JSON: %v\n%s", err, output.String())
		}
		return results
	}

	t.Run("results are persisted", func(t *testing.T) {
		if got := len(listResults(t)); got != 3 {
			t.Errorf("expected 3 results, got %d", got)
		}
		conflicts := listResults(t, "--status", "conflict")
		if len(conflicts) != 2 {
			t.Errorf("expected 2 conflicts, got %d", len(conflicts))
		}
	})

	t.Run("review actions", func(t *testing.T) {
		tt := []struct {
			name    string
			args    []string
			wantErr error
			status  models.MatchStatus
		}{
			{name: "accept conflict", args: []string{"review", "accept", "m"}, status: models.StatusMatched},
			{name: "accept without candidates", args: []string{"review", "accept", "z"}, wantErr: shared.ErrNoCandidates},
			{name: "reject conflict", args: []string{"review", "reject", "z"}, status: models.StatusSkipped},
			{name: "reset matched", args: []string{"review", "reset", "m"}, status: models.StatusPending},
			{name: "select alternative", args: []string{"review", "select", "m", "0"}, status: models.StatusManual},
			{name: "select out of range", args: []string{"review", "select", "m", "5"}, wantErr: shared.ErrInvalidTransition},
			{name: "unknown id", args: []string{"review", "accept", "nope"}, wantErr: shared.ErrNotFound},
			{name: "missing id", args: []string{"review", "accept"}, wantErr: shared.ErrMissingArgument},
			{name: "bad index", args: []string{"review", "select", "m", "x"}, wantErr: shared.ErrInvalidArgument},
		}

		for _, tc := range tt {
			t.Run(tc.name, func(t *testing.T) {
				err := run(runner, tc.args...)
				if tc.wantErr != nil {
					if !errors.Is(err, tc.wantErr) {
						t.Fatalf("expected %v, got %v", tc.wantErr, err)
					}
					return
				}
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}

				id := tc.args[2]
				for _, r := range listResults(t) {
					if r.Source.ID == id && r.Status != tc.status {
						t.Errorf("%s: expected %s, got %s", id, tc.status, r.Status)
					}
				}
			})
		}
	})

	t.Run("export", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "out.md")
		if err := run(runner, "export", "--format", "markdown", "--output", path); err != nil {
			t.Fatalf("export error = %v", err)
		}
		content := tu.MustReadFile(t, path)
		if !strings.Contains(content, "# Migration Results") || !strings.Contains(content, "One Piece") {
			t.Errorf("unexpected export:\n%s", content)
		}

		if err := run(runner, "export", "--format", "xml"); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument for unknown format, got %v", err)
		}
	})

	t.Run("runs are logged", func(t *testing.T) {
		output.Reset()
		if err := run(runner, "match", "runs", "--json"); err != nil {
			t.Fatalf("match runs error = %v", err)
		}
		var runs []models.BatchRun
		if err := json.Unmarshal(output.Bytes(), &runs); err != nil {
			t.Fatalf("runs output is not JSON: %v", err)
		}
		if len(runs) != 1 || runs[0].Total != 3 || runs[0].FinishedAt == nil {
			t.Errorf("unexpected run log %+v", runs)
		}
	})

	t.Run("cache stats and clear", func(t *testing.T) {
		stats := func() tasks.Stats {
			output.Reset()
			if err := run(runner, "cache", "stats", "--json"); err != nil {
				t.Fatalf("cache stats error = %v", err)
			}
			var s tasks.Stats
			if err := json.Unmarshal(output.Bytes(), &s); err != nil {
				t.Fatalf("stats output is not JSON: %v", err)
			}
			return s
		}

		if got := stats().CacheEntries; got != 3 {
			t.Errorf("expected 3 cached searches, got %d", got)
		}
		if err := run(runner, "cache", "clear", "Zetman"); err != nil {
			t.Fatalf("cache clear error = %v", err)
		}
		if got := stats().CacheEntries; got != 2 {
			t.Errorf("expected 2 cached searches after clearing one title, got %d", got)
		}
		if err := run(runner, "cache", "clear"); err != nil {
			t.Fatalf("cache clear error = %v", err)
		}
		if got := stats().CacheEntries; got != 0 {
			t.Errorf("expected empty cache, got %d", got)
		}
	})

	t.Run("search", func(t *testing.T) {
		output.Reset()
		if err := run(runner, "match", "search", "One", "Piece"); err != nil {
			t.Fatalf("match search error = %v", err)
		}
		if !strings.Contains(output.String(), "30013") {
			t.Errorf("expected candidate id in output, got %q", output.String())
		}

		if err := run(runner, "match", "search"); !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("expected ErrMissingArgument, got %v", err)
		}
	})
}

func TestMatchRunValidation(t *testing.T) {
	runner, _ := newTestRunner(t, tu.NewMockCatalog())

	empty := filepath.Join(t.TempDir(), "empty.csv")
	tu.MustWriteFile(t, empty, "id,title\n")

	if err := run(runner, "match", "run", "--input", empty); !errors.Is(err, shared.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for empty list, got %v", err)
	}
	if err := run(runner, "match", "resume"); !errors.Is(err, shared.ErrNotFound) {
		t.Errorf("expected ErrNotFound with nothing to resume, got %v", err)
	}
}
