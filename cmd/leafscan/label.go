// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/leafscan/internal/inference"
	"github.com/pdiddy/leafscan/internal/labels"
)

var labelCmd = &cobra.Command{
	Use:   "label [raw-label]...",
	Short: "Show canonical and display forms of model labels",
	Long: `Label prints the canonical key and display form of each raw label.
With no arguments it lists the configured label table with output indices.`,
	RunE: runLabel,
}

func runLabel(cmd *cobra.Command, args []string) error {
	raw := args
	indexed := false
	if len(raw) == 0 {
		cfg := appConfig()
		raw = inference.DefaultLabels()
		if cfg.Model.LabelsPath != "" {
			l, err := inference.LoadLabels(cfg.Model.LabelsPath)
			if err != nil {
				return err
			}
			raw = l
		}
		indexed = true
	}

	fmt.Fprintf(os.Stdout, "%-4s  %-45s  %-45s  %s\n", "#", "Raw", "Canonical", "Display")
	fmt.Fprintln(os.Stdout, strings.Repeat("-", 130))
	for i, r := range raw {
		idx := "-"
		if indexed {
			idx = fmt.Sprint(i)
		}
		fmt.Fprintf(os.Stdout, "%-4s  %-45s  %-45s  %s\n", idx, r, labels.Canonicalize(r), labels.Display(r))
	}
	return nil
}

func init() {
	rootCmd.AddCommand(labelCmd)
}
