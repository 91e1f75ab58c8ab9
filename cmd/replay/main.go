// Command replay rebuilds a ledger.Manager from a durable journal directory
// and prints the resulting account snapshot, mirroring the teacher's
// cmd/sign-order as a small single-purpose tool outside the main daemon.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/mn-exchange/engine/internal/catalog"
	"github.com/mn-exchange/engine/internal/config"
	"github.com/mn-exchange/engine/internal/journal"
	"github.com/mn-exchange/engine/internal/ledger"
)

func main() {
	dataDir := flag.String("data-dir", "data", "directory containing the journal's pebble store")
	symbolsFile := flag.String("symbols", "config/symbols.json", "catalog seed file, needed to validate replayed trades")
	flag.Parse()

	reg := catalog.NewRegistry()
	if err := config.LoadSymbols(*symbolsFile, reg); err != nil {
		fmt.Fprintf(os.Stderr, "replay: load symbols: %v\n", err)
		os.Exit(1)
	}

	store, err := journal.OpenPebbleStore(*dataDir + "/journal")
	if err != nil {
		fmt.Fprintf(os.Stderr, "replay: open journal store: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	mgr := ledger.NewManager(reg)
	lastSeq, count, err := journal.Replay(store, mgr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "replay: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("replayed %d records, last_seq=%d\n", count, lastSeq)
	for _, acc := range mgr.ListAccounts() {
		fmt.Printf("%s free=%d reserved=%d equity=%d\n", acc.Owner.Hex(), acc.Free, acc.Reserved(), acc.Equity())
		for _, pos := range acc.Positions {
			fmt.Printf("  %s size=%d entry=%d realized_pnl=%d\n", pos.Symbol, pos.Size, pos.Entry, pos.RealizedPnL)
		}
	}
}
