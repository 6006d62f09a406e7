package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/mangax/internal/repositories"
	"github.com/desertthunder/mangax/internal/services"
	"github.com/desertthunder/mangax/internal/shared"
	"github.com/desertthunder/mangax/internal/tasks"
	"github.com/gofrs/flock"
	"github.com/urfave/cli/v3"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config     *shared.Config
	configPath string
	catalog    services.Catalog
	logger     *log.Logger
	output     io.Writer
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config     *shared.Config
	ConfigPath string
	Catalog    services.Catalog // defaults to the AniList client built from Config
	Logger     *log.Logger
	Output     io.Writer
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}

	return &Runner{
		config:     opts.Config,
		configPath: opts.ConfigPath,
		catalog:    opts.Catalog,
		logger:     opts.Logger,
		output:     opts.Output,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, matchCommand, reviewCommand, exportCommand, cacheCommand, serveCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// Configure loads the configuration file named by --config, when it exists, and applies the log level.
func (r *Runner) Configure(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	if path := cmd.String("config"); path != "" {
		r.configPath = path
	}

	if r.configPath != "" {
		if _, err := os.Stat(r.configPath); err == nil {
			config, err := shared.LoadConfig(r.configPath)
			if err != nil {
				return ctx, err
			}
			r.config = config
		} else {
			r.logger.Debug("config file not found, using defaults", "path", r.configPath)
		}
	}

	if db := cmd.String("db"); db != "" {
		r.config.Database.Path = db
	}

	level := shared.ParseLevel(r.config.Logging.Level)
	if cmd.Bool("verbose") {
		level = log.DebugLevel
	}
	shared.SetLogLevel(r.logger, level)
	return ctx, nil
}

// session is an open state database plus the service built on it. The database lock is held until
// Close.
type session struct {
	db   *sql.DB
	lock *flock.Flock
	runs *repositories.RunRepository
	svc  *tasks.Service
}

func (s *session) Close() error {
	err := s.db.Close()
	if s.lock != nil {
		if uerr := s.lock.Unlock(); uerr != nil && err == nil {
			err = uerr
		}
	}
	return err
}

// open locks and opens the state database and wires the matching service on top of it.
func (r *Runner) open() (*session, error) {
	path := r.config.Database.Path

	var lock *flock.Flock
	if path != ":memory:" {
		lock = flock.New(path + ".lock")
		ok, err := lock.TryLock()
		if err != nil {
			return nil, fmt.Errorf("failed to lock %s: %w", path, err)
		}
		if !ok {
			return nil, fmt.Errorf("%w: %s", shared.ErrStateLocked, path)
		}
	}

	db, err := shared.OpenDatabase(r.config.Database)
	if err != nil {
		if lock != nil {
			_ = lock.Unlock()
		}
		return nil, err
	}
	s := &session{db: db, lock: lock, runs: repositories.NewRunRepository(db)}

	catalog := r.catalog
	if catalog == nil {
		anilist := services.NewAniListServiceFromConfig(r.config.Catalog)
		anilist.SetLogger(shared.WithLogger(r.logger, "service", anilist.Name()))
		catalog = anilist
	}

	s.svc, err = tasks.NewService(r.config, catalog, repositories.NewKVStore(db),
		tasks.WithRunLog(s.runs),
		tasks.WithLogger(r.logger),
	)
	if err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	output, err := shared.MarshalJSON(data, pretty)
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
