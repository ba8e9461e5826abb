// Command piiscan extracts personally identifiable information from text and
// documents, either as an HTTP service or from the command line.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/straja-ai/piiscan/internal/config"
)

var version = "dev"

var (
	cfgFile    string
	outputJSON bool
	verbose    bool

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "piiscan",
	Short: "Extract PII categories from text, PDF, DOCX and TXT documents",
	Long: `piiscan finds personally identifiable information in text.

Each requested category (EMAIL, TAX_ID, PERSON_NAME, ...) is resolved
independently; a failure in one category is reported in that category
and never hides the results of the others.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// A missing .env is not an error.
		_ = godotenv.Load()

		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if verbose {
			cfg.Logging.Level = "debug"
		}
		if err := config.Validate(cfg); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "piiscan.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newExtractCmd())
	rootCmd.AddCommand(newCategoriesCmd())
	rootCmd.AddCommand(newBenchCmd())
	rootCmd.AddCommand(newVersionCmd())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the piiscan version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}
