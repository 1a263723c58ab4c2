package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/samsaffron/tutor/internal/config"
	"github.com/samsaffron/tutor/internal/llm"
	"github.com/samsaffron/tutor/internal/usage"
	"github.com/spf13/cobra"
)

var modelsJSON bool
var modelsOffline bool

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List configured chat models and their prices",
	Long: `List the chat model ids offered to learners, the provider model each one
maps to, and the context size and prices from the model catalog.

Examples:
  tutor models
  tutor models --offline                # use the built-in catalog only
  tutor models --json`,
	Args: cobra.NoArgs,
	RunE: runModels,
}

func init() {
	rootCmd.AddCommand(modelsCmd)
	modelsCmd.Flags().BoolVar(&modelsJSON, "json", false, "Output as JSON")
	modelsCmd.Flags().BoolVar(&modelsOffline, "offline", false, "Do not fetch the remote catalog")
}

// modelRow describes one configured chat model.
type modelRow struct {
	ID       string           `json:"id"`
	Spec     string           `json:"spec"`
	Provider string           `json:"provider"`
	Model    string           `json:"model"`
	Info     *usage.ModelInfo `json:"info,omitempty"`
}

func runModels(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	catalog := usage.DefaultCatalog()
	if !modelsOffline {
		source := usage.NewCatalogSource(cfg.Usage.CatalogURL, cfg.Usage.CacheDir, cfg.Usage.CacheTTL, nil)
		catalog = source.Get(cmd.Context())
	}

	rows := configuredModels(cfg, catalog)
	if modelsJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}
	printModels(cmd.OutOrStdout(), rows)
	return nil
}

func configuredModels(cfg *config.Config, catalog *usage.Catalog) []modelRow {
	ids := cfg.ChatModelIDs()
	rows := make([]modelRow, 0, len(ids))
	for _, id := range ids {
		spec := cfg.Models.Chat[id]
		row := modelRow{ID: id, Spec: spec}
		provider, model, err := llm.ParseProviderModel(spec, cfg)
		if err == nil {
			if model == "" {
				model = cfg.Providers[provider].Model
			}
			row.Provider = provider
			row.Model = model
			if info, ok := catalog.Lookup(model); ok {
				row.Info = &info
			}
		}
		rows = append(rows, row)
	}
	return rows
}

// perMillion formats a per-token USD price as dollars per million tokens.
func perMillion(price float64) string {
	if price <= 0 {
		return "-"
	}
	return fmt.Sprintf("$%.2f", price*1_000_000)
}

func printModels(w io.Writer, rows []modelRow) {
	if len(rows) == 0 {
		fmt.Fprintln(w, "No chat models configured.")
		return
	}

	fmt.Fprintf(w, "%-24s %-44s %-8s %-10s %s\n", "ID", "Model", "Context", "Input/1M", "Output/1M")
	fmt.Fprintln(w, strings.Repeat("-", 100))
	for _, r := range rows {
		model := r.Spec
		if r.Provider != "" {
			model = r.Provider + ":" + r.Model
		}
		window, in, out := "-", "-", "-"
		if r.Info != nil {
			if c := llm.FormatTokenCount(r.Info.ContextLength); c != "" {
				window = c
			}
			in = perMillion(r.Info.InputPrice)
			out = perMillion(r.Info.OutputPrice)
		}
		fmt.Fprintf(w, "%-24s %-44s %-8s %-10s %s\n", r.ID, model, window, in, out)
	}
}
