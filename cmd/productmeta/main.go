// Command productmeta extracts product metadata from a merchant URL and
// prints the report as JSON.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/docutag/productmeta"
	"github.com/docutag/productmeta/config"
	"github.com/docutag/productmeta/models"
	"github.com/spf13/cobra"
)

// Flag variables.
var (
	flagRender  bool
	flagQuick   bool
	flagBudget  time.Duration
	flagVerbose bool
)

var rootCmd = &cobra.Command{
	Use:   "productmeta",
	Short: "Extract title, price and image from product pages",
	Long: `productmeta reads a merchant product page and reports its title, price and
representative image, along with where each value was found.

Configuration is read from config.yaml and PRODUCTMETA_* environment variables.`,
	SilenceUsage: true,
}

var fetchCmd = &cobra.Command{
	Use:   "fetch <url>",
	Short: "Extract metadata from a product page",
	Long: `Fetch runs the full extraction cascade against a URL and prints the report.

Examples:
  productmeta fetch https://www.example.fr/produit/chaise-design
  productmeta fetch https://www.example.fr/produit/chaise-design --render
  productmeta fetch https://www.example.fr/produit/chaise-design --quick --budget 2s`,
	Args: cobra.ExactArgs(1),
	RunE: runFetch,
}

var titleCmd = &cobra.Command{
	Use:   "title <url>",
	Short: "Derive a product title from the URL alone",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), productmeta.TitleFromURL(args[0]))
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "Log pipeline progress to stderr")

	fetchCmd.Flags().BoolVar(&flagRender, "render", false, "Fetch through the configured renderer first")
	fetchCmd.Flags().BoolVar(&flagQuick, "quick", false, "Stop after --budget and fall back to a URL title")
	fetchCmd.Flags().DurationVar(&flagBudget, "budget", 0, "Quick add budget (default from configuration)")

	rootCmd.AddCommand(fetchCmd, titleCmd)
}

func runFetch(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	level := slog.LevelWarn
	if flagVerbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	extractor := productmeta.New(cfg.Pipeline(logger, nil), cfg.Renderer(), cfg.PreviewProvider())

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	var report *models.Report
	if flagQuick {
		report, err = extractor.QuickAdd(ctx, args[0], flagBudget)
	} else {
		report, err = extractor.Extract(ctx, args[0], productmeta.Options{Render: flagRender})
	}
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
