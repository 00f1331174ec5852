package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/petal-labs/pistil/catalog"
	"github.com/petal-labs/pistil/config"
	"github.com/petal-labs/pistil/tool"
)

// NewToolsCmd creates the "tools" command group.
func NewToolsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "Inspect and invoke the tool catalog",
	}
	cmd.PersistentFlags().String("config", "", "Path to config file (default: ./pistil.yaml, then ~/.pistil/config.yaml)")

	cmd.AddCommand(newToolsListCmd())
	cmd.AddCommand(newToolsSchemaCmd())
	cmd.AddCommand(newToolsConfigCmd())
	cmd.AddCommand(newToolsCallCmd())
	cmd.AddCommand(newToolsHealthCmd())

	return cmd
}

func newToolsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List catalog tools and their configuration status",
		RunE:  runToolsList,
	}
}

func runToolsList(cmd *cobra.Command, _ []string) error {
	boot, err := toolsBootstrap(cmd)
	if err != nil {
		return err
	}
	resolver := config.NewResolver(boot.snapshot, boot.logger)

	writer := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 2, 2, ' ', 0)
	fmt.Fprintln(writer, "NAME\tSTATUS\tDESCRIPTION")
	for _, def := range catalog.Definitions() {
		status := "enabled"
		cfg, err := resolver.Resolve(def.Name, def.Config)
		switch {
		case err != nil:
			status = "invalid"
		case !cfg.Enabled:
			status = "disabled"
		}
		fmt.Fprintf(writer, "%s\t%s\t%s\n", def.Name, status, def.Description)
	}
	return writer.Flush()
}

func newToolsSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema <name>",
		Short: "Show a tool's input/output schema and config fields",
		Args:  cobra.ExactArgs(1),
		RunE:  runToolsSchema,
	}
}

// schemaView is the printed shape of one catalog entry. Config defaults are
// included; secrets have no defaults so nothing sensitive can appear here.
type schemaView struct {
	Name        string                    `json:"name"`
	Description string                    `json:"description"`
	Inputs      map[string]tool.FieldSpec `json:"inputs"`
	Outputs     map[string]tool.FieldSpec `json:"outputs,omitempty"`
	Config      []config.Field            `json:"config,omitempty"`
}

func runToolsSchema(cmd *cobra.Command, args []string) error {
	name := strings.TrimSpace(args[0])
	def, ok := findDefinition(name)
	if !ok {
		return exitError(exitValidation, "unknown tool %q", name)
	}

	data, err := json.MarshalIndent(schemaView{
		Name:        def.Name,
		Description: def.Description,
		Inputs:      def.Inputs,
		Outputs:     def.Outputs,
		Config:      def.Config,
	}, "", "  ")
	if err != nil {
		return exitError(exitRuntime, "encoding schema: %v", err)
	}
	_, _ = cmd.OutOrStdout().Write(append(data, '\n'))
	return nil
}

func newToolsConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config <name>",
		Short: "Show a tool's effective configuration with secrets masked",
		Args:  cobra.ExactArgs(1),
		RunE:  runToolsConfig,
	}
}

func runToolsConfig(cmd *cobra.Command, args []string) error {
	name := strings.TrimSpace(args[0])
	def, ok := findDefinition(name)
	if !ok {
		return exitError(exitValidation, "unknown tool %q", name)
	}
	boot, err := toolsBootstrap(cmd)
	if err != nil {
		return err
	}
	resolver := config.NewResolver(boot.snapshot, boot.logger)
	cfg, err := resolver.Resolve(def.Name, def.Config)
	if err != nil {
		return exitError(exitValidation, "%v", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Tool: %s\n", def.Name)
	fmt.Fprintf(out, "Enabled: %t\n", cfg.Enabled)
	fmt.Fprintln(out, "Config:")

	sensitive := map[string]bool{}
	for _, field := range def.Config {
		sensitive[field.Name] = field.Sensitive
	}

	redacted := cfg.Redacted()
	for _, key := range config.SortedFieldNames(def.Config) {
		display := redacted[key]
		suffix := ""
		if display == "" {
			display = "(unset)"
		}
		if sensitive[key] {
			suffix = " (sensitive)"
		}
		fmt.Fprintf(out, "  %s: %s%s\n", key, display, suffix)
	}
	return nil
}

func newToolsCallCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "call <name>",
		Short: "Invoke a tool with the resolved configuration",
		Args:  cobra.ExactArgs(1),
		RunE:  runToolsCall,
	}
	cmd.Flags().StringArray("input", nil, "Input KEY=VALUE pair (repeatable)")
	cmd.Flags().String("input-json", "", "Input object as JSON")
	cmd.Flags().Duration("timeout", time.Minute, "Invocation timeout")
	return cmd
}

func runToolsCall(cmd *cobra.Command, args []string) error {
	name := strings.TrimSpace(args[0])
	boot, err := toolsBootstrap(cmd)
	if err != nil {
		return err
	}
	registry, err := boot.buildRegistry()
	if err != nil {
		return err
	}
	dispatcher := tool.NewDispatcher(registry, boot.logger)

	inputs, err := parseCallInputs(cmd)
	if err != nil {
		return exitError(exitInputParse, "parsing inputs: %v", err)
	}

	timeout, _ := cmd.Flags().GetDuration("timeout")
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	result, err := dispatcher.Dispatch(ctx, tool.InvocationRequest{
		Tool:      name,
		Arguments: inputs,
	})
	if err != nil {
		failure := tool.FailureFrom(err)
		data, encErr := json.MarshalIndent(failure, "", "  ")
		if encErr != nil {
			return exitError(exitRuntime, "%s", failure.Message)
		}
		_, _ = cmd.OutOrStdout().Write(append(data, '\n'))
		return exitError(exitRuntime, "%s", failure.Message)
	}

	data, err := json.MarshalIndent(map[string]any{
		"success":     true,
		"tool":        name,
		"duration_ms": result.DurationMS,
		"outputs":     result.Outputs,
	}, "", "  ")
	if err != nil {
		return exitError(exitRuntime, "encoding result: %v", err)
	}
	_, _ = cmd.OutOrStdout().Write(append(data, '\n'))
	return nil
}

func newToolsHealthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Probe enabled tools once and report their health",
		RunE:  runToolsHealth,
	}
	cmd.Flags().Duration("timeout", 10*time.Second, "Per-probe timeout")
	return cmd
}

func runToolsHealth(cmd *cobra.Command, _ []string) error {
	boot, err := toolsBootstrap(cmd)
	if err != nil {
		return err
	}
	registry, err := boot.buildRegistry()
	if err != nil {
		return err
	}

	probeTimeout, _ := cmd.Flags().GetDuration("timeout")
	monitor, err := tool.NewMonitor(tool.MonitorConfig{
		Registry:     registry,
		ProbeTimeout: probeTimeout,
		Logger:       boot.logger,
	})
	if err != nil {
		return exitError(exitRuntime, "%v", err)
	}
	if err := monitor.RunOnce(cmd.Context()); err != nil {
		return exitError(exitRuntime, "running probes: %v", err)
	}

	writer := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 2, 2, ' ', 0)
	fmt.Fprintln(writer, "NAME\tSTATE\tLATENCY_MS\tFAILURES\tCAUSE")
	unhealthy := 0
	for _, report := range monitor.Reports() {
		latency := "-"
		if report.LatencyMS > 0 {
			latency = strconv.FormatInt(report.LatencyMS, 10)
		}
		cause := "-"
		if strings.TrimSpace(report.Cause) != "" {
			cause = report.Cause
		}
		if report.State == tool.HealthUnhealthy {
			unhealthy++
		}
		fmt.Fprintf(writer, "%s\t%s\t%s\t%d\t%s\n", report.Tool, report.State, latency, report.FailureCount, cause)
	}
	if err := writer.Flush(); err != nil {
		return err
	}

	if unhealthy > 0 {
		return exitError(exitRuntime, "%d %s unhealthy", unhealthy, pluralize("tool", unhealthy))
	}
	return nil
}

func toolsBootstrap(cmd *cobra.Command) (bootstrap, error) {
	configPath, _ := cmd.Flags().GetString("config")
	return loadBootstrap(configPath, nil)
}

func findDefinition(name string) (tool.Definition, bool) {
	for _, def := range catalog.Definitions() {
		if def.Name == name {
			return def, true
		}
	}
	return tool.Definition{}, false
}

// parseCallInputs merges repeated --input pairs with an optional --input-json
// object; JSON keys win on conflict.
func parseCallInputs(cmd *cobra.Command) (map[string]any, error) {
	inputs := map[string]any{}
	rawPairs, _ := cmd.Flags().GetStringArray("input")
	for _, pair := range rawPairs {
		key, value, err := parseKeyValue(pair)
		if err != nil {
			return nil, err
		}
		inputs[key] = parsePrimitiveValue(value)
	}

	inputJSON, _ := cmd.Flags().GetString("input-json")
	if strings.TrimSpace(inputJSON) == "" {
		return inputs, nil
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(inputJSON), &obj); err != nil {
		return nil, err
	}
	for key, value := range obj {
		inputs[key] = value
	}
	return inputs, nil
}

func parseKeyValue(value string) (string, string, error) {
	parts := strings.SplitN(value, "=", 2)
	key := strings.TrimSpace(parts[0])
	if key == "" {
		return "", "", errors.New("key is required")
	}
	if len(parts) == 1 {
		return "", "", errors.New("value is required")
	}
	return key, parts[1], nil
}

// parsePrimitiveValue interprets a flag value as a bool, integer, float, or
// JSON literal before falling back to a plain string.
func parsePrimitiveValue(value string) any {
	if value == "true" {
		return true
	}
	if value == "false" {
		return false
	}
	if i, err := strconv.ParseInt(value, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return f
	}

	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") || strings.HasPrefix(trimmed, "\"") {
		var parsed any
		if err := json.Unmarshal([]byte(trimmed), &parsed); err == nil {
			return parsed
		}
	}
	return value
}
