package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/garagebay/staffgate/internal/adapters/redis"
	"github.com/garagebay/staffgate/internal/bootstrap"
)

type listSessionsOptions struct {
	Limit int
}

func parseListSessionsFlags(args []string) (listSessionsOptions, error) {
	fs := flag.NewFlagSet("list-sessions", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	opts := listSessionsOptions{}
	fs.IntVar(&opts.Limit, "limit", 100, "Maximum number of sessions to show (0 for all)")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if opts.Limit < 0 {
		return opts, errors.New("limit must not be negative")
	}
	return opts, nil
}

type revokeOptions struct {
	SIDs   []string
	All    bool
	DryRun bool
	Yes    bool
}

func parseRevokeFlags(args []string) (revokeOptions, error) {
	fs := flag.NewFlagSet("revoke-session", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	opts := revokeOptions{}
	fs.BoolVar(&opts.All, "all", false, "Revoke every persisted session")
	fs.BoolVar(&opts.DryRun, "dry-run", false, "Show what would be revoked")
	fs.BoolVar(&opts.Yes, "yes", false, "Skip the confirmation prompt")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	opts.SIDs = fs.Args()
	switch {
	case opts.All && len(opts.SIDs) > 0:
		return opts, errors.New("pass either -all or session ids, not both")
	case !opts.All && len(opts.SIDs) == 0:
		return opts, errors.New("at least one session id (or -all) is required")
	}
	return opts, nil
}

func openCredentialStore(cmdCtx *commandContext) (*redis.CredentialStore, func(), error) {
	client, err := bootstrap.ConnectRedis(bootstrap.DatabaseConfig{
		RedisConfig: cmdCtx.Config.Redis,
		Logger:      cmdCtx.Logger,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("connect redis: %w", err)
	}
	closeFn := func() {
		if closeErr := client.Close(); closeErr != nil {
			cmdCtx.Logger.Warn("redis close failed", "error", closeErr)
		}
	}
	return redis.NewCredentialStoreWithPrefix(client, cmdCtx.Config.Staff.CredentialPrefix), closeFn, nil
}

func runListSessions(cmdCtx *commandContext, args []string) error {
	opts, err := parseListSessionsFlags(args)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, defaultCommandTimeout)
	defer cancel()

	store, closeStore, err := openCredentialStore(cmdCtx)
	if err != nil {
		return err
	}
	defer closeStore()

	sessions, err := store.List(ctx, opts.Limit)
	if err != nil {
		return err
	}
	return printSessions(cmdCtx, sessions)
}

func printSessions(cmdCtx *commandContext, sessions []redis.StoredSession) error {
	if len(sessions) == 0 {
		return writef(cmdCtx.Out, "No persisted sessions.\n")
	}
	tw := tabwriter.NewWriter(cmdCtx.Out, 0, 4, 2, ' ', 0)
	if err := writef(tw, "SESSION\tTTL\tDEMO\n"); err != nil {
		return err
	}
	for _, s := range sessions {
		demo := ""
		if s.Demo {
			demo = "yes"
		}
		if err := writef(tw, "%s\t%s\t%s\n", s.SID, renderTTL(s.TTL), demo); err != nil {
			return err
		}
	}
	return tw.Flush()
}

func runRevokeSessions(cmdCtx *commandContext, args []string) error {
	opts, err := parseRevokeFlags(args)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, defaultCommandTimeout)
	defer cancel()

	store, closeStore, err := openCredentialStore(cmdCtx)
	if err != nil {
		return err
	}
	defer closeStore()

	return revokeSessions(ctx, cmdCtx, store, opts)
}

type credentialRevoker interface {
	List(ctx context.Context, limit int) ([]redis.StoredSession, error)
	Clear(ctx context.Context, sid string) error
}

func revokeSessions(ctx context.Context, cmdCtx *commandContext, store credentialRevoker, opts revokeOptions) error {
	sids := opts.SIDs
	if opts.All {
		sessions, err := store.List(ctx, 0)
		if err != nil {
			return err
		}
		sids = make([]string, 0, len(sessions))
		for _, s := range sessions {
			sids = append(sids, s.SID)
		}
	}
	if len(sids) == 0 {
		return writef(cmdCtx.Out, "Nothing to revoke.\n")
	}

	if opts.DryRun {
		for _, sid := range sids {
			if err := writef(cmdCtx.Out, "would revoke %s\n", sid); err != nil {
				return err
			}
		}
		return nil
	}

	if err := confirm(cmdCtx.In, cmdCtx.Out, fmt.Sprintf("About to revoke %d session(s).", len(sids)), opts.Yes); err != nil {
		return err
	}

	var errs []error
	revoked := 0
	for _, sid := range sids {
		if err := store.Clear(ctx, sid); err != nil {
			errs = append(errs, fmt.Errorf("revoke %s: %w", sid, err))
			continue
		}
		revoked++
	}
	cmdCtx.Logger.Info("revoke sessions complete", "revoked", revoked, "failed", len(errs))
	return errors.Join(errs...)
}
