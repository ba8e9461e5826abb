package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/straja-ai/piiscan/internal/extract"
)

func newExtractCmd() *cobra.Command {
	var (
		text       string
		file       string
		categories []string
		all        bool
	)

	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Extract PII categories from text or a document",
		Long: `Extract runs the requested categories over inline text (--text, or
--text - to read stdin) or a pdf, docx or txt file (--file).

Examples:
  piiscan extract --text "mail a@b.com" -c EMAIL
  piiscan extract --file contract.pdf -c PERSON_NAME,DATES,TAX_ID --json
  piiscan extract --file notes.docx --all`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			a, err := newApp(ctx, cfg, os.Stderr)
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			if text == "-" {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read stdin: %w", err)
				}
				text = string(data)
			}
			if all {
				categories = a.pipeline.Registry().Names()
			}
			if len(categories) == 0 {
				return errors.New("no categories requested (use -c or --all)")
			}

			res, err := a.pipeline.ExtractSource(ctx, extract.Source{Text: text, Path: file}, categories)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if outputJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			}
			renderResult(out, res, categories)
			return nil
		},
	}

	cmd.Flags().StringVar(&text, "text", "", "inline text to scan (- reads stdin)")
	cmd.Flags().StringVarP(&file, "file", "f", "", "pdf, docx or txt document to scan")
	cmd.Flags().StringSliceVarP(&categories, "categories", "c", nil, "categories to extract (comma-separated)")
	cmd.Flags().BoolVar(&all, "all", false, "extract every registered category")
	cmd.MarkFlagsMutuallyExclusive("text", "file")
	cmd.MarkFlagsMutuallyExclusive("categories", "all")
	return cmd
}

// renderResult prints one block per category in request order.
func renderResult(w io.Writer, res extract.Result, order []string) {
	heading := color.New(color.FgCyan, color.Bold)
	label := color.New(color.FgYellow)
	failure := color.New(color.FgRed)
	dim := color.New(color.Faint)

	seen := make(map[string]bool, len(order))
	for _, name := range order {
		name = strings.TrimSpace(name)
		if seen[name] {
			continue
		}
		seen[name] = true
		r, ok := res[name]
		if !ok {
			dim.Fprintf(w, "%s: not a registered category\n", name)
			continue
		}
		if r.Failed() {
			failure.Fprintf(w, "%s: error: %s\n", name, r.Error)
			continue
		}
		heading.Fprintf(w, "%s (%d)\n", name, len(r.RecognizedValues))
		for i, v := range r.RecognizedValues {
			lbl := r.Scalar
			if lbl == "" && i < len(r.EntityTypes) {
				lbl = r.EntityTypes[i]
			}
			fmt.Fprint(w, "  ")
			label.Fprintf(w, "%-24s", lbl)
			fmt.Fprintf(w, " %s\n", v)
		}
	}
}
