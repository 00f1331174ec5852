// Package tool defines the registry and invocation core for upstream
// integrations.
//
// The package is intentionally split by concern:
//   - fieldspec: input/output field schemas shared by validation and transport
//   - definition: the static declaration of a tool (schema, config, builder)
//   - registry: construction-time resolution and frozen lookup
//   - httpcall: the shared resilient HTTP call layer used by adapters
//   - dispatch: the transport-facing invocation entry point
//   - health: probe scheduling and per-tool health reports
//
// Registries are immutable once built: configuration is resolved exactly once,
// at construction, and lookups never observe partial state.
package tool
