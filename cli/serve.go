package cli

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"
	otelapi "go.opentelemetry.io/otel"

	"github.com/petal-labs/pistil/config"
	"github.com/petal-labs/pistil/mcpserver"
	pistilotel "github.com/petal-labs/pistil/otel"
	"github.com/petal-labs/pistil/tool"
)

// NewServeCmd creates the "serve" subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP tool server",
		RunE:  runServe,
	}

	cmd.Flags().StringP("transport", "t", "stdio", "Transport: stdio | sse")
	cmd.Flags().IntP("port", "p", 8486, "Listen port for the sse transport")
	cmd.Flags().String("config", "", "Path to config file (default: ./pistil.yaml, then ~/.pistil/config.yaml)")
	cmd.Flags().String("otlp-endpoint", "", "OTLP/HTTP trace collector endpoint")
	cmd.Flags().String("log-level", "", "Log level: debug | info | warn | error")
	cmd.Flags().Bool("skip-invalid", false, "Register valid tools and warn instead of failing on invalid ones")
	cmd.Flags().String("health-cron", "", "Health probe schedule (cron or @every)")

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	transport, _ := cmd.Flags().GetString("transport")
	port, _ := cmd.Flags().GetInt("port")
	configPath, _ := cmd.Flags().GetString("config")
	otlpEndpoint, _ := cmd.Flags().GetString("otlp-endpoint")

	if transport != "stdio" && transport != "sse" {
		return exitError(exitValidation, "unsupported --transport %q (use stdio or sse)", transport)
	}

	boot, err := loadBootstrap(configPath, serveOverrides(cmd))
	if err != nil {
		return err
	}
	logger := boot.logger

	shutdownOtel, err := pistilotel.InitProvider(cmd.Context(), pistilotel.ProviderConfig{
		ServiceName:    boot.settings.AppName,
		ServiceVersion: cmd.Root().Version,
		OTLPEndpoint:   otlpEndpoint,
	})
	if err != nil {
		return exitError(exitRuntime, "initializing telemetry: %v", err)
	}
	defer func() {
		_ = shutdownOtel(context.Background())
	}()

	toolObserver, err := pistilotel.NewToolObserver(
		otelapi.GetMeterProvider().Meter("pistil/tool"),
		otelapi.GetTracerProvider().Tracer("pistil/tool"),
	)
	if err != nil {
		return exitError(exitRuntime, "initializing tool observability: %v", err)
	}
	tool.SetObserver(toolObserver)
	defer tool.SetObserver(nil)

	registry, err := boot.buildRegistry()
	if err != nil {
		return err
	}
	if registry.Len() == 0 {
		logger.Warn("no tools enabled; the server will advertise an empty catalog")
	}
	dispatcher := tool.NewDispatcher(registry, logger)

	monitor, err := tool.NewMonitor(tool.MonitorConfig{
		Registry: registry,
		Schedule: boot.settings.HealthCron,
		Logger:   logger,
	})
	if err != nil {
		return exitError(exitValidation, "%v", err)
	}
	if err := monitor.Start(cmd.Context()); err != nil {
		return exitError(exitRuntime, "starting health monitor: %v", err)
	}
	defer func() {
		_ = monitor.Stop(context.Background())
	}()

	server := mcpserver.New(registry, dispatcher, mcpserver.Options{
		Name:    boot.settings.AppName,
		Version: cmd.Root().Version,
		Monitor: monitor,
		Logger:  logger,
	})

	if transport == "stdio" {
		if err := server.ServeStdio(); err != nil {
			return exitError(exitRuntime, "server error: %v", err)
		}
		return nil
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := server.ServeSSE(ctx, port); err != nil {
		return exitError(exitRuntime, "server error: %v", err)
	}
	return nil
}

// serveOverrides maps changed serve flags onto snapshot override keys so they
// take precedence over the environment and the config file.
func serveOverrides(cmd *cobra.Command) map[string]string {
	overrides := map[string]string{}
	if cmd.Flags().Changed("log-level") {
		value, _ := cmd.Flags().GetString("log-level")
		overrides[config.KeyLogLevel] = value
	}
	if cmd.Flags().Changed("skip-invalid") {
		value, _ := cmd.Flags().GetBool("skip-invalid")
		overrides[config.KeyToolsSkipInvalid] = strconv.FormatBool(value)
	}
	if cmd.Flags().Changed("health-cron") {
		value, _ := cmd.Flags().GetString("health-cron")
		overrides[config.KeyHealthCron] = value
	}
	return overrides
}
