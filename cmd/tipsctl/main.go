// Command tipsctl moderates tips directly against the tip database.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/sundayezeilo/tips/internal/app"
	"github.com/sundayezeilo/tips/internal/config"
	"github.com/sundayezeilo/tips/internal/tips"
)

const usage = `usage: tipsctl <command> [flags]

commands:
  migrate                  create the tips schema
  pending                  list tips awaiting moderation
  list -conn a,b [-all]    list visible tips per connection
  approve -id N            approve a tip (supersedes its parent if it is an edit)
  reject -id N             clear a tip's approval
  delete -id N             soft-delete a tip
  revert -id N             revert an approved edit to its parent`

var errUsage = errors.New(usage)

// tipStore is the part of *tips.Store the commands use.
type tipStore interface {
	Migrate(ctx context.Context) error
	ApproveTip(ctx context.Context, tipID int64, approved bool) error
	DeleteTip(ctx context.Context, tipID int64) error
	RevertEdit(ctx context.Context, tipID int64) error
	GetTips(ctx context.Context, connectionIDs []string, includeUnapproved bool) ([]tips.Tip, error)
	GetUnapprovedTips(ctx context.Context) ([]tips.Tip, error)
}

func main() {
	os.Exit(realMain())
}

// realMain returns the process exit code so deferred cleanup runs before exit.
func realMain() int {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app.LoadEnv()
	cfg, err := config.LoadDatabase()
	if err != nil {
		fmt.Fprintln(os.Stderr, "tipsctl:", err)
		return 1
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	store, err := app.OpenStore(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, "tipsctl:", err)
		return 1
	}

	return exitCode(run(ctx, store, os.Args[1:], os.Stdout), os.Stderr)
}

// exitCode reports err on stderr and maps it to an exit status: 2 for usage
// errors, 1 for anything else.
func exitCode(err error, stderr io.Writer) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errUsage):
		fmt.Fprintln(stderr, usage)
		return 2
	default:
		fmt.Fprintln(stderr, "tipsctl:", err)
		return 1
	}
}

func run(ctx context.Context, store tipStore, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}
	cmd, args := args[0], args[1:]

	switch cmd {
	case "migrate":
		if err := store.Migrate(ctx); err != nil {
			return err
		}
		fmt.Fprintln(out, "schema up to date")
		return nil

	case "pending":
		pending, err := store.GetUnapprovedTips(ctx)
		if err != nil {
			return err
		}
		return writeJSON(out, pending)

	case "list":
		fs := flag.NewFlagSet("list", flag.ContinueOnError)
		fs.SetOutput(io.Discard)
		conns := fs.String("conn", "", "comma-separated connection ids")
		all := fs.Bool("all", false, "include unapproved tips")
		if err := fs.Parse(args); err != nil {
			return fmt.Errorf("list: %w", err)
		}
		ids := splitConnections(*conns)
		if len(ids) == 0 {
			return errors.New("list: -conn is required")
		}
		byConn, err := listByConnection(ctx, store, ids, *all)
		if err != nil {
			return err
		}
		return writeJSON(out, byConn)

	case "approve", "reject", "delete", "revert":
		fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
		fs.SetOutput(io.Discard)
		id := fs.Int64("id", 0, "tip id")
		if err := fs.Parse(args); err != nil {
			return fmt.Errorf("%s: %w", cmd, err)
		}
		if *id <= 0 {
			return fmt.Errorf("%s: -id must be a positive tip id", cmd)
		}
		if err := moderate(ctx, store, cmd, *id); err != nil {
			return err
		}
		fmt.Fprintf(out, "%s: tip %d\n", cmd, *id)
		return nil

	default:
		return errUsage
	}
}

func moderate(ctx context.Context, store tipStore, cmd string, id int64) error {
	switch cmd {
	case "approve":
		return store.ApproveTip(ctx, id, true)
	case "reject":
		return store.ApproveTip(ctx, id, false)
	case "delete":
		return store.DeleteTip(ctx, id)
	default:
		return store.RevertEdit(ctx, id)
	}
}

// listByConnection fetches each connection's tips concurrently. Reads take no
// store lock, so the queries run in parallel.
func listByConnection(ctx context.Context, store tipStore, ids []string, includeUnapproved bool) (map[string][]tips.Tip, error) {
	results := make([][]tips.Tip, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, id := range ids {
		g.Go(func() error {
			found, err := store.GetTips(gctx, []string{id}, includeUnapproved)
			if err != nil {
				return fmt.Errorf("list %s: %w", id, err)
			}
			results[i] = found
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	byConn := make(map[string][]tips.Tip, len(ids))
	for i, id := range ids {
		byConn[id] = results[i]
	}
	return byConn, nil
}

func splitConnections(raw string) []string {
	var ids []string
	seen := make(map[string]bool)
	for _, id := range strings.Split(raw, ",") {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
