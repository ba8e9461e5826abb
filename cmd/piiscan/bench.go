package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/straja-ai/piiscan/internal/extract"
)

const defaultBenchText = "Dr. Mary Jones (mary.jones@example.org, 555-123-4567) was born on March 3, 1984. " +
	"Her SSN is 123-45-6789 and her account 4111 1111 1111 1111 is held at a bank on 12 Main Street."

func newBenchCmd() *cobra.Command {
	var (
		text       string
		file       string
		categories []string
		n          int
		warmup     int
	)

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Time repeated extractions over one input",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			a, err := newApp(ctx, cfg, os.Stderr)
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			if len(categories) == 0 {
				categories = a.pipeline.Registry().Names()
			}
			src := extract.Source{Text: text, Path: file}
			if file == "" && text == "" {
				src.Text = defaultBenchText
			}

			run := func() error {
				_, err := a.pipeline.ExtractSource(ctx, src, categories)
				return err
			}

			for i := 0; i < warmup; i++ {
				if err := run(); err != nil {
					return fmt.Errorf("warmup extract failed: %w", err)
				}
			}

			if n <= 0 {
				n = 1
			}
			durations := make([]time.Duration, 0, n)
			for i := 0; i < n; i++ {
				start := time.Now()
				if err := run(); err != nil {
					return fmt.Errorf("extract failed: %w", err)
				}
				durations = append(durations, time.Since(start))
			}

			stats, err := summarize(durations)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "bench: n=%d avg_ms=%.2f p50_ms=%.2f p95_ms=%.2f categories=%d ner_backend=%s\n",
				len(durations), stats.avgMs, stats.p50Ms, stats.p95Ms, len(categories), cfg.NER.Backend)
			return nil
		},
	}

	cmd.Flags().StringVar(&text, "text", "", "inline text to scan")
	cmd.Flags().StringVarP(&file, "file", "f", "", "document to scan")
	cmd.Flags().StringSliceVarP(&categories, "categories", "c", nil, "categories to extract (default: all)")
	cmd.Flags().IntVarP(&n, "iterations", "n", 200, "number of timed iterations")
	cmd.Flags().IntVar(&warmup, "warmup", 5, "untimed warmup iterations")
	cmd.MarkFlagsMutuallyExclusive("text", "file")
	return cmd
}

type benchStats struct {
	avgMs, p50Ms, p95Ms float64
}

func summarize(durations []time.Duration) (benchStats, error) {
	if len(durations) == 0 {
		return benchStats{}, errors.New("no samples")
	}
	sorted := append([]time.Duration(nil), durations...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var total time.Duration
	for _, d := range sorted {
		total += d
	}
	ms := func(d time.Duration) float64 { return float64(d.Microseconds()) / 1000.0 }
	return benchStats{
		avgMs: ms(total) / float64(len(sorted)),
		p50Ms: ms(sorted[len(sorted)/2]),
		p95Ms: ms(sorted[int(float64(len(sorted))*0.95)]),
	}, nil
}
