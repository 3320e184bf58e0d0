package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/garagebay/staffgate/internal/bootstrap"
	"github.com/garagebay/staffgate/internal/data"
)

type authEventsOptions struct {
	Limit     int
	Login     string
	Outcome   string
	BeforeAgo time.Duration
	JSON      bool
}

func parseAuthEventsFlags(args []string) (authEventsOptions, error) {
	fs := flag.NewFlagSet("auth-events", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	opts := authEventsOptions{}
	fs.IntVar(&opts.Limit, "limit", 50, "Maximum number of events to show")
	fs.StringVar(&opts.Login, "login", "", "Only show events for this login")
	fs.StringVar(&opts.Outcome, "outcome", "", "Only show events with this outcome (e.g. demo_fallback)")
	fs.DurationVar(&opts.BeforeAgo, "before-ago", 0, "Only show events older than this duration")
	fs.BoolVar(&opts.JSON, "json", false, "Print events as JSON")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if opts.Limit <= 0 {
		return opts, errors.New("limit must be positive")
	}
	return opts, nil
}

func (o authEventsOptions) listOptions(now time.Time) data.ListAuthEventsOptions {
	out := data.ListAuthEventsOptions{Limit: o.Limit, Login: o.Login, Outcome: o.Outcome}
	if o.BeforeAgo > 0 {
		out.Before = now.Add(-o.BeforeAgo)
	}
	return out
}

func runAuthEvents(cmdCtx *commandContext, args []string) error {
	opts, err := parseAuthEventsFlags(args)
	if err != nil {
		return err
	}
	if !cmdCtx.Config.Postgres.Enabled {
		return errors.New("postgres is disabled (DB_ENABLED=false), no audit trail is stored")
	}
	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, defaultCommandTimeout)
	defer cancel()

	db, err := bootstrap.ConnectDB(bootstrap.DatabaseConfig{DBConfig: cmdCtx.Config.Postgres, Logger: cmdCtx.Logger})
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			cmdCtx.Logger.Warn("db close failed", "error", closeErr)
		}
	}()

	events, err := data.NewAuthEventRepo(db).ListRecent(ctx, opts.listOptions(time.Now()))
	if err != nil {
		return err
	}
	return printAuthEvents(cmdCtx, events, opts.JSON)
}

type pruneOptions struct {
	OlderThan time.Duration
	Batch     int
	Yes       bool
}

func parsePruneFlags(args []string) (pruneOptions, error) {
	fs := flag.NewFlagSet("prune-auth-events", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	opts := pruneOptions{}
	fs.DurationVar(&opts.OlderThan, "older-than", 90*24*time.Hour, "Delete events older than this duration")
	fs.IntVar(&opts.Batch, "batch", 1000, "Rows deleted per transaction")
	fs.BoolVar(&opts.Yes, "yes", false, "Skip the confirmation prompt")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if opts.OlderThan < 24*time.Hour {
		return opts, errors.New("older-than must be at least 24h")
	}
	if opts.Batch <= 0 {
		return opts, errors.New("batch must be positive")
	}
	return opts, nil
}

func runPruneAuthEvents(cmdCtx *commandContext, args []string) error {
	opts, err := parsePruneFlags(args)
	if err != nil {
		return err
	}
	if !cmdCtx.Config.Postgres.Enabled {
		return errors.New("postgres is disabled (DB_ENABLED=false), no audit trail is stored")
	}

	cutoff := time.Now().Add(-opts.OlderThan).UTC()
	prompt := fmt.Sprintf("This deletes every auth event recorded before %s.", cutoff.Format(time.RFC3339))
	if err = confirm(cmdCtx.In, cmdCtx.Out, prompt, opts.Yes); err != nil {
		return err
	}

	db, err := bootstrap.ConnectDB(bootstrap.DatabaseConfig{DBConfig: cmdCtx.Config.Postgres, Logger: cmdCtx.Logger})
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			cmdCtx.Logger.Warn("db close failed", "error", closeErr)
		}
	}()

	removed, err := data.NewAuthEventRepo(db).Prune(cmdCtx.Ctx, cutoff, opts.Batch)
	if wErr := writef(cmdCtx.Out, "Deleted %d auth events.\n", removed); wErr != nil && err == nil {
		err = wErr
	}
	return err
}

func printAuthEvents(cmdCtx *commandContext, events []data.AuthEventRecord, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(cmdCtx.Out)
		enc.SetIndent("", "  ")
		return enc.Encode(events)
	}
	if len(events) == 0 {
		return writef(cmdCtx.Out, "No auth events.\n")
	}
	tw := tabwriter.NewWriter(cmdCtx.Out, 0, 4, 2, ' ', 0)
	if err := writef(tw, "TIME\tLOGIN\tOUTCOME\tERROR\tSESSION\n"); err != nil {
		return err
	}
	for _, ev := range events {
		if err := writef(tw, "%s\t%s\t%s\t%s\t%s\n",
			ev.CreatedAt.UTC().Format(time.RFC3339), ev.Login, ev.Outcome, ev.ErrorClass, ev.SessionID); err != nil {
			return err
		}
	}
	return tw.Flush()
}
