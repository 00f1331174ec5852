package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/petal-labs/pistil/catalog"
	"github.com/petal-labs/pistil/config"
)

// NewValidateCmd creates the "validate" subcommand.
func NewValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate tool configuration without starting the server",
		Long: `Resolve configuration for every tool in the catalog and report
problems such as missing required fields or malformed enable flags.
Disabled tools are reported but never fail validation.`,
		RunE: runValidate,
	}

	cmd.Flags().String("config", "", "Path to config file (default: ./pistil.yaml, then ~/.pistil/config.yaml)")
	cmd.Flags().String("format", "text", "Output format: text | json")

	return cmd
}

// toolDiagnostic is one tool's validation outcome.
type toolDiagnostic struct {
	Tool   string `json:"tool"`
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

func runValidate(cmd *cobra.Command, _ []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	format, _ := cmd.Flags().GetString("format")

	boot, err := loadBootstrap(configPath, nil)
	if err != nil {
		return err
	}
	resolver := config.NewResolver(boot.snapshot, boot.logger)

	diags := make([]toolDiagnostic, 0, len(catalog.Definitions()))
	failed := 0
	for _, def := range catalog.Definitions() {
		cfg, err := resolver.Resolve(def.Name, def.Config)
		switch {
		case err != nil:
			failed++
			diags = append(diags, toolDiagnostic{Tool: def.Name, Status: "error", Detail: err.Error()})
		case !cfg.Enabled:
			diags = append(diags, toolDiagnostic{Tool: def.Name, Status: "disabled"})
		default:
			diags = append(diags, toolDiagnostic{Tool: def.Name, Status: "ok"})
		}
	}

	out := cmd.OutOrStdout()
	if format == "json" {
		printToolDiagnosticsJSON(out, diags)
	} else {
		printToolDiagnosticsText(out, diags, failed)
	}

	if failed > 0 {
		return exitError(exitValidation, "validation failed")
	}
	return nil
}

// printToolDiagnosticsText writes one line per tool followed by a summary.
func printToolDiagnosticsText(w io.Writer, diags []toolDiagnostic, failed int) {
	for _, d := range diags {
		if d.Detail != "" {
			fmt.Fprintf(w, "%s: %s (%s)\n", d.Tool, d.Status, d.Detail)
		} else {
			fmt.Fprintf(w, "%s: %s\n", d.Tool, d.Status)
		}
	}

	if failed == 0 {
		fmt.Fprintln(w, "Valid!")
		return
	}
	fmt.Fprintf(w, "\n%d %s failed validation\n", failed, pluralize("tool", failed))
}

func printToolDiagnosticsJSON(w io.Writer, diags []toolDiagnostic) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(diags)
}

// pluralize returns the singular or plural form of a word based on count.
func pluralize(word string, count int) string {
	if count == 1 {
		return word
	}
	return word + "s"
}
