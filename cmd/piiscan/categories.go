package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/straja-ai/piiscan/internal/registry"
)

type categoryRow struct {
	Name    string   `json:"name"`
	Label   string   `json:"label"`
	Variant string   `json:"variant"`
	Aliases []string `json:"aliases,omitempty"`
}

func newCategoriesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "categories",
		Short: "List the registered categories",
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := registry.New(registry.Options{
				CaseSensitiveDenyLists: cfg.Extraction.CaseSensitiveDenyLists,
				FoldNames:              cfg.Extraction.CaseInsensitiveNames,
			})
			if err != nil {
				return err
			}
			rows := categoryRows(reg)
			if outputJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(rows)
			}
			printCategories(cmd.OutOrStdout(), rows)
			return nil
		},
	}
}

func categoryRows(reg *registry.Registry) []categoryRow {
	aliases := make(map[string][]string)
	for alias, name := range reg.Aliases() {
		aliases[name] = append(aliases[name], alias)
	}
	rows := make([]categoryRow, 0, len(reg.Names()))
	for _, name := range reg.Names() {
		b, _ := reg.Resolve(name)
		a := aliases[name]
		sort.Strings(a)
		rows = append(rows, categoryRow{Name: b.Name, Label: b.Label, Variant: b.Variant(), Aliases: a})
	}
	return rows
}

func printCategories(w io.Writer, rows []categoryRow) {
	bold := color.New(color.Bold)
	bold.Fprintf(w, "%-24s %-26s %s\n", "CATEGORY", "LABEL", "STRATEGY")
	for _, r := range rows {
		fmt.Fprintf(w, "%-24s %-26s %s", r.Name, r.Label, r.Variant)
		if len(r.Aliases) > 0 {
			color.New(color.Faint).Fprintf(w, "  (alias %v)", r.Aliases)
		}
		fmt.Fprintln(w)
	}
}
