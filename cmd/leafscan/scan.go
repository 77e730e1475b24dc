// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/leafscan/internal/connectivity"
	"github.com/pdiddy/leafscan/internal/reconcile"
	"github.com/pdiddy/leafscan/internal/scan"
	"github.com/pdiddy/leafscan/internal/store"
	"github.com/pdiddy/leafscan/pkg/types"
)

var scanCmd = &cobra.Command{
	Use:   "scan <photo>...",
	Short: "Classify leaf photos and show the treatment guide",
	Long: `Scan classifies each photo with the on-device model, resolves the
predicted label to a guide in the active catalog language, and records the
result in the local history.

Scans are attributed to the signed-in user, or recorded anonymously and
claimed at the next login. With --sync, pending scans are pushed right away
when the history endpoint is reachable.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runScan,
}

func runScan(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := appConfig()
	jsonOutput, _ := cmd.Flags().GetBool("json")
	syncAfter, _ := cmd.Flags().GetBool("sync")

	engine, err := newEngine(cfg.Model)
	if err != nil {
		return describeScanError(err)
	}
	defer engine.Close()

	// Without a catalog every result carries the generic guide.
	var resolver scan.Resolver
	if r, err := newResolver(cfg.Catalog); err != nil {
		log.WithError(err).Warn("disease catalog unavailable")
	} else {
		resolver = r
	}

	db, err := openStore(ctx, cfg.Store)
	if err != nil {
		// The prediction is still shown without a history.
		log.WithError(err).Warn("local history unavailable")
	}
	if db != nil {
		defer db.Close()
	}

	p := scan.New(engine, resolver, db,
		scan.WithLogger(log.WithField("component", "scan")),
		scan.WithMinConfidence(cfg.Model.MinConfidence),
		scan.WithUserID(session.UserID),
	)

	var results []scan.Result
	for _, path := range args {
		res, err := p.Scan(ctx, path)
		if err != nil {
			return fmt.Errorf("%s: %w", path, describeScanError(err))
		}
		results = append(results, res)
		if !jsonOutput {
			printResult(path, res)
		}
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(results); err != nil {
			return err
		}
	}

	if syncAfter && db != nil {
		syncOnce(ctx, cfg.Sync, db)
	}
	return nil
}

func printResult(path string, res scan.Result) {
	g := res.Guide
	fmt.Printf("%s\n", path)
	fmt.Println(strings.Repeat("-", 60))
	fmt.Printf("Prediction:  %s\n", res.DisplayLabel)
	fmt.Printf("Confidence:  %.1f%%\n", res.Classification.Confidence*100)
	fmt.Printf("Health:      %s\n", res.Record.Health)
	fmt.Printf("Severity:    %s\n", res.Record.Severity)
	if res.Fallback {
		fmt.Printf("Guide:       %s (no catalog entry)\n", g.Name)
	} else {
		fmt.Printf("Guide:       %s\n", guideTitle(g))
	}
	printGuideBody(g)
	if !res.Persisted {
		notef("note: scan %s was not saved to the local history\n", res.Record.ID)
	}
	fmt.Println()
}

// syncOnce probes the history endpoint and reconciles when it is reachable.
func syncOnce(ctx context.Context, cfg types.SyncConfig, db store.Store) reconcile.Report {
	if !session.Authenticated() {
		notef("not signed in; scans stay local until login\n")
		return reconcile.Report{}
	}
	state := connectivity.Prober{URL: probeURL(cfg)}.Probe(ctx)
	ctrl := reconcile.New(db, newClient(cfg, db), session.UserID, log.WithField("component", "reconcile"))
	r := ctrl.HandleConnectivity(ctx, state)
	if state != connectivity.Online {
		notef("history endpoint unreachable; pending scans will be pushed later\n")
	}
	return r
}

func init() {
	scanCmd.Flags().Bool("json", false, "output results as JSON")
	scanCmd.Flags().Bool("sync", false, "push pending scans after scanning when online")
	scanCmd.Flags().String("model", "", "ONNX model path")
	scanCmd.Flags().Float64("min-confidence", 0, "mark results below this confidence as uncertain")

	viper.BindPFlag("model.path", scanCmd.Flags().Lookup("model"))
	viper.BindPFlag("model.min_confidence", scanCmd.Flags().Lookup("min-confidence"))

	rootCmd.AddCommand(scanCmd)
}
