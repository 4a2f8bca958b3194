package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/odyssey-erp/odyssey-orders/internal/inventory"
)

// Reconciler folds the ledger and reports drifted products.
type Reconciler interface {
	Reconcile(ctx context.Context) ([]inventory.Drift, error)
}

// ReconcileOptions defines available flags for the reconcile command.
type ReconcileOptions struct {
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// ReconcileSummary describes the JSON response for reconcile.
type ReconcileSummary struct {
	OK     bool              `json:"ok"`
	Drifts []inventory.Drift `json:"drifts"`
}

// ReconcileCommand compares cached stock against the ledger. It exits 10
// when any product drifted.
func ReconcileCommand(ctx context.Context, inv Reconciler, opts ReconcileOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	drifts, err := inv.Reconcile(ctx)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "reconcile: %v\n", err)
		return 1
	}
	if drifts == nil {
		drifts = []inventory.Drift{}
	}
	if opts.JSONOutput {
		if err := json.NewEncoder(opts.Stdout).Encode(ReconcileSummary{OK: len(drifts) == 0, Drifts: drifts}); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "reconcile: encode json: %v\n", err)
			return 1
		}
	} else {
		renderReconcileHuman(opts.Stdout, drifts)
	}
	if len(drifts) > 0 {
		return 10
	}
	return 0
}

func renderReconcileHuman(out io.Writer, drifts []inventory.Drift) {
	if len(drifts) == 0 {
		_, _ = fmt.Fprintln(out, "Inventory matches the ledger.")
		return
	}
	_, _ = fmt.Fprintf(out, "%d product(s) drifted:\n", len(drifts))
	for _, d := range drifts {
		_, _ = fmt.Fprintf(out, " - product %d: cached %d, ledger %d (%+d)\n", d.ProductID, d.Cached, d.Ledger, d.Difference)
	}
}
