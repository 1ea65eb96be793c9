package config

// TelemetryConfig holds OTLP tracing configuration.
//
// Tracing exports spans over OTLP/HTTP to a local collector.
// Disabled by default; see internal/app for the tracer provider wiring.
type TelemetryConfig struct {
	// Enabled turns span export on.
	Enabled bool `mapstructure:"enabled" json:"enabled"`
	// Endpoint is the OTLP/HTTP collector endpoint (default: localhost:4318).
	Endpoint string `mapstructure:"endpoint" json:"endpoint"`
	// Environment is the deployment environment tag (default: dev).
	Environment string `mapstructure:"environment" json:"environment"`
	// ServiceName is the reported service name (default: docent).
	ServiceName string `mapstructure:"service_name" json:"service_name"`
}
