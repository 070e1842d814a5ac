// trade-mapper transforms bank-specific CSV trade extracts into the
// standardized trade document JSON used as the comparison reference for
// contract extractions.
package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/jmfuenzalida/contractreaderflow/internal/mapping"
)

var (
	inputPath  string
	configPath string
	outputPath string
	source     string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "trade-mapper",
	Short: "Transform bank CSV trade data to standardized JSON",
	Long: `trade-mapper reads a bank trade extract (CSV), applies the field
mappings and code translations from a YAML configuration, and writes the
trades in the standardized header/legs document format.`,
	RunE: runMapper,
}

func init() {
	rootCmd.Flags().StringVarP(&inputPath, "input", "i", "", "input CSV file path")
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "mapping configuration YAML file path")
	rootCmd.Flags().StringVarP(&outputPath, "output", "o", "", "output JSON file path")
	rootCmd.Flags().StringVarP(&source, "source", "s", "", "source type: banco or contrato")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
	rootCmd.MarkFlagRequired("input")
	rootCmd.MarkFlagRequired("config")
	rootCmd.MarkFlagRequired("output")
	rootCmd.MarkFlagRequired("source")
}

func runMapper(cmd *cobra.Command, args []string) error {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if source != "banco" && source != "contrato" {
		return fmt.Errorf("invalid source %q: must be banco or contrato", source)
	}

	cfg, err := mapping.LoadConfig(configPath)
	if err != nil {
		return err
	}

	input, err := os.Open(inputPath)
	if err != nil {
		return fmt.Errorf("failed to open input file: %w", err)
	}
	defer input.Close()

	mapper := mapping.New(cfg, source, logger)
	trades, err := mapper.MapAll(input)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(map[string]any{"trades": trades}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	if err := os.WriteFile(outputPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}

	fmt.Printf("Transformation completed: %d trades written to %s\n", len(trades), outputPath)
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
