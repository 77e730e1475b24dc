// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/leafscan/internal/catalog"
	"github.com/pdiddy/leafscan/pkg/types"
)

var guideCmd = &cobra.Command{
	Use:   "guide <label>",
	Short: "Show the treatment guide for a disease label",
	Long: `Guide resolves a model label, catalog id, or disease name to a guide
in the active catalog language. Labels may be canonical ("Apple___Black_rot")
or parenthesized ("Black rot (Apple)").

When nothing matches, the closest catalog entries are suggested.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runGuide,
}

func runGuide(cmd *cobra.Command, args []string) error {
	cfg := appConfig()
	jsonOutput, _ := cmd.Flags().GetBool("json")
	suggestions, _ := cmd.Flags().GetInt("suggestions")

	resolver, err := newResolver(cfg.Catalog)
	if err != nil {
		return err
	}

	label := strings.Join(args, " ")
	g, err := resolver.Resolve(label)
	if errors.Is(err, catalog.ErrNotFound) {
		matches := resolver.Suggest(label, suggestions)
		if len(matches) == 0 {
			return err
		}
		fmt.Printf("No guide for %q. Did you mean:\n", label)
		for _, m := range matches {
			fmt.Printf("  %-40s  %s\n", m.ID, guideTitle(m))
		}
		return err
	}
	if err != nil {
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(g)
	}

	fmt.Println(guideTitle(g))
	fmt.Println(strings.Repeat("-", 60))
	if g.PathogenType != "" {
		fmt.Printf("Pathogen:    %s\n", g.PathogenType)
	}
	fmt.Printf("Language:    %s\n", resolver.Language())
	printGuideBody(g)
	return nil
}

func guideTitle(g types.DiseaseGuide) string {
	if g.Crop == "" {
		return g.Name
	}
	return g.Crop + " : " + g.Name
}

func printGuideBody(g types.DiseaseGuide) {
	if g.Introduction != "" {
		fmt.Printf("\n%s\n", g.Introduction)
	}
	printSection("Symptoms", g.Symptoms)
	printSection("Immediate actions", g.ImmediateActions)
	printSection("Treatment", g.Treatment())
	printSection("Prevention", g.Prevention)
	if len(g.Supplements) > 0 {
		fmt.Println("\nSupplements:")
		for _, s := range g.Supplements {
			if s.BuyLink != "" {
				fmt.Printf("  - %s <%s>\n", s.Name, s.BuyLink)
				continue
			}
			fmt.Printf("  - %s\n", s.Name)
		}
	}
}

func printSection(title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Printf("\n%s:\n", title)
	for _, item := range items {
		fmt.Printf("  - %s\n", item)
	}
}

func init() {
	guideCmd.Flags().Bool("json", false, "output the guide as JSON")
	guideCmd.Flags().Int("suggestions", 5, "number of suggestions when nothing matches")

	rootCmd.AddCommand(guideCmd)
}
