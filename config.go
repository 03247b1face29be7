package xtdb

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// DefaultEndpoint is the address of a node started with the default HTTP server settings.
const DefaultEndpoint = "http://localhost:3000"

// Config defines the configuration for the client.
type Config struct {
	// Endpoint is the URL of the XTDB node, without the /_xtdb suffix.
	Endpoint string `json:"endpoint"`

	// HTTPClient overrides the transport. Defaults to NewHTTPClient(nil).
	HTTPClient HTTPClient `json:"-"`
	// Logger receives one debug entry per exchange. Defaults to a no-op logger.
	Logger *zap.Logger `json:"-"`
	// Registerer, if set, gets the client request metrics registered on it.
	Registerer prometheus.Registerer `json:"-"`
	// TracerProvider overrides the global OpenTelemetry tracer provider.
	TracerProvider trace.TracerProvider `json:"-"`
}

// LoadConfig loads the configuration from environment variables prefixed with XTDB_,
// e.g. XTDB_ENDPOINT.
//
// It returns nil when no endpoint is configured.
func LoadConfig() *Config {
	v := viper.New()
	v.SetEnvPrefix("xtdb")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("endpoint")

	endpoint := strings.TrimRight(strings.TrimSpace(v.GetString("endpoint")), "/")
	if endpoint == "" {
		return nil
	}
	return &Config{
		Endpoint: endpoint,
	}
}
