package app

import (
	"fmt"
	"log"
	"time"

	"github.com/caarlos0/env/v11"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"flightbus/internal/couchbase"
	"flightbus/internal/metrics"
	"flightbus/internal/mlog"
	"flightbus/internal/tracing"
)

// Parameter store and telemetry sink backends.
const (
	BackendMemory    = "memory"
	BackendZap       = "zap"
	BackendCouchbase = "couchbase"
)

// Config is the process configuration, read from the environment.
type Config struct {
	LogLevel     string        `env:"LOG_LEVEL" envDefault:"info"`
	QueueTick    time.Duration `env:"QUEUE_TICK" envDefault:"1ms"`
	OnlineTuning bool          `env:"ONLINE_PARAM_TUNING" envDefault:"false"`
	RGBLED       bool          `env:"RGB_LED" envDefault:"true"`

	ParamFile  string `env:"PARAM_FILE"`
	ParamStore string `env:"PARAM_STORE" envDefault:"memory"`

	TelemetrySink string `env:"TELEMETRY_SINK" envDefault:"zap"`

	CouchbaseConnectRetries uint64 `env:"COUCHBASE_CONNECT_RETRIES" envDefault:"5"`

	// Serve turns on the metrics and topics HTTP server.
	Serve bool `env:"METRICS_ENABLED" envDefault:"true"`

	Couchbase couchbase.Config
	Metrics   metrics.ServerConfig
	Tracing   tracing.Config
	Telemetry mlog.Config
}

// LoadConfig parses Config from the environment.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse environment variables: %w", err)
	}
	return cfg, nil
}

// NewLogger builds the production zap logger at level. An unknown level
// falls back to info.
func NewLogger(level string) (*zap.Logger, error) {
	config := zap.NewProductionConfig()

	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		log.Printf("invalid log level %q, defaulting to info: %v", level, err)
		zapLevel = zapcore.InfoLevel
	}
	config.Level = zap.NewAtomicLevelAt(zapLevel)

	logger, err := config.Build(zap.AddCaller())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}
