// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/leafscan/internal/store"
	"github.com/pdiddy/leafscan/pkg/types"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect the local and remote scan history",
	Long: `History reads the local scan ledger, exports it, or reads the
signed-in user's server-side history through the local cache.`,
}

// --- list subcommand ---

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List local scans, newest first",
	RunE:  runHistoryList,
}

func runHistoryList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	limit, _ := cmd.Flags().GetInt("limit")
	pending, _ := cmd.Flags().GetBool("pending")

	db, err := openStore(ctx, appConfig().Store)
	if err != nil {
		return err
	}
	defer db.Close()

	var recs []types.ScanRecord
	if pending {
		recs, err = db.ListPendingScans(ctx, session.UserID)
	} else {
		recs, err = db.ListScans(ctx, limit)
	}
	if err != nil {
		return err
	}

	if len(recs) == 0 {
		fmt.Println("No scans recorded.")
		return nil
	}

	fmt.Fprintf(os.Stdout, "%-20s  %-12s  %-30s  %-6s  %-8s  %-6s  %s\n",
		"Created", "Crop", "Disease", "Conf", "Severity", "Synced", "User")
	fmt.Fprintln(os.Stdout, strings.Repeat("-", 110))
	for _, r := range recs {
		user := r.UserID
		if user == "" {
			user = "(anonymous)"
		}
		fmt.Fprintf(os.Stdout, "%-20s  %-12s  %-30s  %5.1f%%  %-8s  %-6t  %s\n",
			r.CreatedAt.Local().Format("2006-01-02 15:04:05"), truncate(r.CropType, 12), truncate(r.DiseaseName, 30),
			r.ConfidenceScore*100, r.Severity, r.Synced, user)
	}
	fmt.Fprintf(os.Stdout, "\n%d scans\n", len(recs))
	return nil
}

// --- export subcommand ---

var historyExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the local scan history to YAML or JSON",
	RunE:  runHistoryExport,
}

func runHistoryExport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	format, _ := cmd.Flags().GetString("format")
	output, _ := cmd.Flags().GetString("output")
	limit, _ := cmd.Flags().GetInt("limit")

	db, err := openStore(ctx, appConfig().Store)
	if err != nil {
		return err
	}
	defer db.Close()

	var w io.Writer = os.Stdout
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("creating %s: %w", output, err)
		}
		defer f.Close()
		w = f
	}

	switch format {
	case "yaml", "":
		err = store.ExportYAML(ctx, db, w, limit)
	case "json":
		err = store.ExportJSON(ctx, db, w, limit)
	default:
		return fmt.Errorf("unsupported format %q: use yaml or json", format)
	}
	if err != nil {
		return err
	}
	if output != "" {
		fmt.Fprintf(os.Stderr, "Exported to %s\n", output)
	}
	return nil
}

// --- remote subcommand ---

var historyRemoteCmd = &cobra.Command{
	Use:   "remote",
	Short: "Show the signed-in user's server-side history",
	Long: `Remote fetches the server-side history for the signed-in user. A page
fetched within sync.history_ttl is served from the local cache; when the
endpoint is unreachable an older cached page is shown and marked stale.`,
	RunE: runHistoryRemote,
}

func runHistoryRemote(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	limit, _ := cmd.Flags().GetInt("limit")
	jsonOutput, _ := cmd.Flags().GetBool("json")
	cfg := appConfig()

	if !session.Authenticated() {
		return fmt.Errorf("not signed in: run leafscan login first")
	}

	db, err := openStore(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer db.Close()

	page, err := newClient(cfg.Sync, db).History(ctx, limit)
	if err != nil {
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(page.Items)
	}

	switch {
	case page.Stale:
		notef("endpoint unreachable; showing stale cached history\n")
	case page.Cached:
		log.Debug("served history from cache")
	}
	if len(page.Items) == 0 {
		fmt.Println("No remote history.")
		return nil
	}

	fmt.Fprintf(os.Stdout, "%-6s  %-25s  %-12s  %-30s  %-8s  %s\n",
		"ID", "Created", "Crop", "Disease", "Severity", "Verified")
	fmt.Fprintln(os.Stdout, strings.Repeat("-", 100))
	for _, it := range page.Items {
		fmt.Fprintf(os.Stdout, "%-6d  %-25s  %-12s  %-30s  %-8s  %t\n",
			it.ID, it.CreatedAt, truncate(it.CropType, 12), truncate(it.DiseaseName, 30), it.Severity, it.IsVerified)
		if it.ExpertComment != "" {
			fmt.Fprintf(os.Stdout, "        expert: %s\n", it.ExpertComment)
		}
	}
	return nil
}

// truncate shortens s to n runes, ending in "..." when cut.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

func init() {
	historyListCmd.Flags().Int("limit", 20, "maximum scans to list (0 = all)")
	historyListCmd.Flags().Bool("pending", false, "list only scans waiting to be pushed")

	historyExportCmd.Flags().String("format", "yaml", "export format: yaml or json")
	historyExportCmd.Flags().String("output", "", "write to this file instead of stdout")
	historyExportCmd.Flags().Int("limit", 0, "maximum scans to export (0 = all)")

	historyRemoteCmd.Flags().Int("limit", 20, "number of entries to fetch")
	historyRemoteCmd.Flags().Bool("json", false, "output entries as JSON")

	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyExportCmd)
	historyCmd.AddCommand(historyRemoteCmd)

	rootCmd.AddCommand(historyCmd)
}
