package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/garagebay/staffgate/config"
	"github.com/garagebay/staffgate/internal/bootstrap"
	"github.com/garagebay/staffgate/internal/migrate"
)

type commandFn func(ctx *commandContext, args []string) error

type command struct {
	name        string
	description string
	run         commandFn
}

type commandContext struct {
	Ctx    context.Context
	Logger *slog.Logger
	Config config.AppConfig
	Out    io.Writer
	In     io.Reader
}

const (
	defaultMigrationTimeout = 5 * time.Minute
	defaultCommandTimeout   = 2 * time.Minute
)

// Exit codes.
const (
	exitOK     = 0
	exitFailed = 1
	exitUsage  = 2
)

func main() {
	os.Exit(execute(os.Args[1:], os.Stdin, os.Stdout, os.Stderr)) //nolint:forbidigo // exit status is the CLI contract
}

// execute runs one command and returns the process exit code. Config is
// loaded only after the command name checks out.
func execute(args []string, in io.Reader, out, errOut io.Writer) int {
	logger := bootstrap.InitLogger()

	if len(args) == 0 || args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
		code := exitUsage
		w := errOut
		if len(args) > 0 {
			code, w = exitOK, out
		}
		if err := printUsage(w); err != nil {
			logger.Error("print usage failed", "error", err)
		}
		return code
	}

	cmd, ok := commands()[args[0]]
	if !ok {
		if err := writef(errOut, "unknown command %q\n\n", args[0]); err != nil {
			logger.Error("print unknown command message failed", "error", err)
		}
		if err := printUsage(errOut); err != nil {
			logger.Error("print usage failed", "error", err)
		}
		return exitUsage
	}

	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		logger.Error("load config", "error", err)
		return exitFailed
	}
	logger = bootstrap.ConfigureLogger(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	cmdCtx := &commandContext{Ctx: ctx, Logger: logger, Config: cfg, Out: out, In: in}
	if err = cmd.run(cmdCtx, args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitUsage
		}
		logger.ErrorContext(ctx, "command failed", "command", cmd.name, "error", err)
		return exitFailed
	}
	return exitOK
}

func commands() map[string]command {
	return map[string]command{
		"migrate": {
			name:        "migrate",
			description: "Run database migrations",
			run:         runMigrations,
		},
		"auth-events": {
			name:        "auth-events",
			description: "Show the recent staff sign-in audit trail",
			run:         runAuthEvents,
		},
		"prune-auth-events": {
			name:        "prune-auth-events",
			description: "Delete audit events older than a retention period",
			run:         runPruneAuthEvents,
		},
		"list-sessions": {
			name:        "list-sessions",
			description: "List portal sessions holding a persisted back-office credential",
			run:         runListSessions,
		},
		"revoke-session": {
			name:        "revoke-session",
			description: "Delete persisted back-office credentials so the sessions sign in again",
			run:         runRevokeSessions,
		},
	}
}

func printUsage(w io.Writer) error {
	if err := writef(w, "Usage: staffgate-admin <command> [flags]\n\n"); err != nil {
		return err
	}
	if err := writef(w, "Available commands:\n"); err != nil {
		return err
	}
	cmds := commands()
	names := make([]string, 0, len(cmds))
	for name := range cmds {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		if err := writef(w, "  %-16s %s\n", name, cmds[name].description); err != nil {
			return err
		}
	}
	return nil
}

type migrateOptions struct {
	Timeout time.Duration
	Status  bool
}

func parseMigrateFlags(args []string) (migrateOptions, error) {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	opts := migrateOptions{}
	fs.DurationVar(
		&opts.Timeout,
		"timeout",
		defaultMigrationTimeout,
		"Maximum duration to wait for migrations to complete",
	)
	fs.BoolVar(&opts.Status, "status", false, "List migrations and whether they are applied, without applying")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if opts.Timeout <= 0 {
		return opts, errors.New("timeout must be positive")
	}
	return opts, nil
}

func runMigrations(cmdCtx *commandContext, args []string) error {
	opts, err := parseMigrateFlags(args)
	if err != nil {
		return err
	}
	if !cmdCtx.Config.Postgres.Enabled {
		return errors.New("postgres is disabled (DB_ENABLED=false)")
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, opts.Timeout)
	defer cancel()

	db, err := bootstrap.ConnectDB(bootstrap.DatabaseConfig{
		DBConfig: cmdCtx.Config.Postgres,
		Logger:   cmdCtx.Logger,
	})
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			cmdCtx.Logger.Warn("db close failed", "error", closeErr)
		}
	}()

	if opts.Status {
		status, statusErr := migrate.Status(ctx, db)
		if statusErr != nil {
			return statusErr
		}
		return printMigrationStatus(cmdCtx.Out, status)
	}

	cmdCtx.Logger.Info("running database migrations")
	if migrateErr := bootstrap.RunMigrations(ctx, db, cmdCtx.Logger); migrateErr != nil {
		return migrateErr
	}
	cmdCtx.Logger.Info("migrations completed successfully")
	return nil
}

func printMigrationStatus(w io.Writer, status []migrate.VersionStatus) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if err := writef(tw, "VERSION\tAPPLIED AT\n"); err != nil {
		return err
	}
	for _, s := range status {
		applied := "pending"
		if !s.Pending() {
			applied = s.AppliedAt.UTC().Format(time.RFC3339)
		}
		if err := writef(tw, "%s\t%s\n", s.Version, applied); err != nil {
			return err
		}
	}
	return tw.Flush()
}

// confirm asks on in/out unless yes is set.
func confirm(in io.Reader, out io.Writer, prompt string, yes bool) error {
	if yes {
		return nil
	}
	if err := writef(out, "%s\nContinue? [y/N]: ", prompt); err != nil {
		return fmt.Errorf("print confirmation prompt: %w", err)
	}
	resp, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("read confirmation: %w", err)
	}
	resp = strings.ToLower(strings.TrimSpace(resp))
	if resp == "y" || resp == "yes" {
		return nil
	}
	return errors.New("aborted by user")
}

func writef(w io.Writer, format string, args ...any) error {
	_, err := fmt.Fprintf(w, format, args...)
	return err
}

func renderTTL(d time.Duration) string {
	switch {
	case d == -1*time.Second:
		return "no expiry"
	case d == -2*time.Second:
		return "key missing"
	default:
		return d.Round(time.Second).String()
	}
}
