package cli

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/odyssey-erp/odyssey-orders/jobs"
)

var nowUTC = func() time.Time { return time.Now().UTC() }

// Deps provides the collaborators subcommands need. Fields are built lazily
// so `jobs` does not open a database pool.
type Deps struct {
	Jobs       func() (*JobsCLI, error)
	Reconciler func(ctx context.Context) (Reconciler, func(), error)
	Stdout     io.Writer
	Stderr     io.Writer
}

// Run executes an operator subcommand and returns the process exit code.
func Run(ctx context.Context, args []string, deps Deps) int {
	if deps.Stdout == nil {
		deps.Stdout = os.Stdout
	}
	if deps.Stderr == nil {
		deps.Stderr = os.Stderr
	}
	if len(args) == 0 {
		usage(deps.Stderr)
		return 2
	}
	switch args[0] {
	case "jobs":
		return runJobs(ctx, args[1:], deps)
	case "reconcile":
		fs := flag.NewFlagSet("reconcile", flag.ContinueOnError)
		fs.SetOutput(deps.Stderr)
		jsonOut := fs.Bool("json", false, "print JSON")
		if err := fs.Parse(args[1:]); err != nil {
			return 2
		}
		inv, closeFn, err := deps.Reconciler(ctx)
		if err != nil {
			_, _ = fmt.Fprintf(deps.Stderr, "reconcile: %v\n", err)
			return 1
		}
		defer closeFn()
		return ReconcileCommand(ctx, inv, ReconcileOptions{JSONOutput: *jsonOut, Stdout: deps.Stdout, Stderr: deps.Stderr})
	default:
		usage(deps.Stderr)
		return 2
	}
}

func runJobs(ctx context.Context, args []string, deps Deps) int {
	if len(args) == 0 {
		usage(deps.Stderr)
		return 2
	}
	cli, err := deps.Jobs()
	if err != nil {
		_, _ = fmt.Fprintf(deps.Stderr, "jobs: %v\n", err)
		return 1
	}
	defer func() { _ = cli.Close() }()

	switch args[0] {
	case "inspect":
		stats, err := cli.InspectQueue(ctx)
		if err != nil {
			_, _ = fmt.Fprintf(deps.Stderr, "jobs inspect: %v\n", err)
			return 1
		}
		_ = json.NewEncoder(deps.Stdout).Encode(stats)
		return 0
	case "trigger":
		fs := flag.NewFlagSet("jobs trigger", flag.ContinueOnError)
		fs.SetOutput(deps.Stderr)
		customer := fs.Int64("customer", 0, "customer id (statements)")
		period := fs.String("period", "", "YYYY-MM (statements)")
		hours := fs.Int("older-than", 0, "retention hours (cleanup)")
		if err := fs.Parse(args[1:]); err != nil {
			return 2
		}
		if fs.NArg() != 1 {
			_, _ = fmt.Fprintf(deps.Stderr, "jobs trigger: want one of %s, %s, %s\n",
				jobs.TaskStatementsGenerate, jobs.TaskInventoryReconcile, jobs.TaskIdempotencyCleanup)
			return 2
		}
		info, err := cli.Trigger(ctx, fs.Arg(0), TriggerArgs{CustomerID: *customer, Period: *period, OlderThanHours: *hours})
		if err != nil {
			_, _ = fmt.Fprintf(deps.Stderr, "jobs trigger: %v\n", err)
			return 1
		}
		_, _ = fmt.Fprintf(deps.Stdout, "enqueued %s as %s\n", info.Type, info.ID)
		return 0
	default:
		usage(deps.Stderr)
		return 2
	}
}

func usage(w io.Writer) {
	_, _ = fmt.Fprintln(w, `usage:
  odyssey                      start the HTTP server
  odyssey jobs inspect         show default queue counters
  odyssey jobs trigger [flags] <statements:generate|inventory:reconcile|idempotency:cleanup>
  odyssey reconcile [-json]    compare cached stock with the ledger`)
}
