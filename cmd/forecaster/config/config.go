// Package config parses forecaster settings from command-line flags with
// environment variable fallbacks.
//
// Precedence, highest first:
//  1. Command-line flags
//  2. Environment variables
//  3. Default values
//
// Source-specific settings are read from ADAPTER_* variables and passed to the
// adapter factory as a lowerCamelCase map (ADAPTER_VALUE_PATH becomes valuePath).
//
//	cfg := config.ParseFlags()
//	if err := cfg.Validate(); err != nil { ... }
package config

import (
	"flag"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/HatiCode/panelcast/pkg/panel"
)

// Config holds all forecaster configuration.
type Config struct {
	Listen        string
	GRPCListen    string
	LogFormat     string
	LogLevel      string
	Storage       string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisTTL      time.Duration

	RunName       string
	Source        string
	AdapterConfig map[string]string
	Window        time.Duration
	Step          time.Duration
	XReg          string

	Mode      string
	Horizon   int
	TestSize  int
	InputSize int
	Freq      string
	Levels    string
	Models    string
	BYOMURL   string

	Jobs           int
	Cluster        string
	ClusterAddress string
	ClusterCPUPath string

	// ClusterNode is the name this forecaster registers its cores under in a
	// redis cluster registry. Empty uses the hostname.
	ClusterNode string

	Output       string
	OutputFormat string

	Serve    bool
	Interval time.Duration
}

// ParseFlags parses command-line flags and environment variables into a Config.
// It does not validate; call Validate before use.
func ParseFlags() *Config {
	cfg := &Config{}

	flag.StringVar(&cfg.Listen, "listen", getEnv("LISTEN", ":8081"), "HTTP listen address")
	flag.StringVar(&cfg.GRPCListen, "grpc-listen", getEnv("GRPC_LISTEN", ""), "gRPC health listen address (empty disables)")

	flag.StringVar(&cfg.LogFormat, "log-format", getEnv("LOG_FORMAT", "text"), "Log format: text or json")
	flag.StringVar(&cfg.LogLevel, "log-level", getEnv("LOG_LEVEL", "info"), "Log level: debug, info, warn, error")

	flag.StringVar(&cfg.Storage, "storage", getEnv("STORAGE", "memory"), "Run storage backend: memory or redis")
	flag.StringVar(&cfg.RedisAddr, "redis-addr", getEnv("REDIS_ADDR", "localhost:6379"), "Redis server address")
	flag.StringVar(&cfg.RedisPassword, "redis-password", getEnv("REDIS_PASSWORD", ""), "Redis password")
	flag.IntVar(&cfg.RedisDB, "redis-db", getEnvInt("REDIS_DB", 0), "Redis database number")
	flag.DurationVar(&cfg.RedisTTL, "redis-ttl", getEnvDuration("REDIS_TTL", 30*time.Minute), "Run TTL in storage")

	flag.StringVar(&cfg.RunName, "run-name", getEnv("RUN_NAME", "default"), "Name runs are stored under")
	flag.StringVar(&cfg.Source, "source", getEnv("SOURCE", "csv"), "Panel source: csv, prometheus, victoriametrics, or http")
	flag.DurationVar(&cfg.Window, "window", getEnvDuration("WINDOW", 24*time.Hour), "History window requested from metric sources")
	flag.DurationVar(&cfg.Step, "step", getEnvDuration("STEP", time.Minute), "Resolution requested from metric sources")
	flag.StringVar(&cfg.XReg, "xreg", getEnv("XREG", ""), "CSV file with future exogenous values")

	flag.StringVar(&cfg.Mode, "mode", getEnv("MODE", "forecast"), "Run mode: forecast or cv")
	flag.IntVar(&cfg.Horizon, "horizon", getEnvInt("HORIZON", 7), "Forecast horizon in steps")
	flag.IntVar(&cfg.TestSize, "test-size", getEnvInt("TEST_SIZE", 0), "Cross-validation test size (defaults to the horizon)")
	flag.IntVar(&cfg.InputSize, "input-size", getEnvInt("INPUT_SIZE", 0), "Cross-validation training window (0 uses all history)")
	flag.StringVar(&cfg.Freq, "freq", getEnv("FREQ", "D"), "Panel frequency, e.g. D, H, 15min, MS or an integer step")
	flag.StringVar(&cfg.Levels, "levels", getEnv("LEVELS", ""), "Prediction interval levels, e.g. 80,95 or p80,p95")
	flag.StringVar(&cfg.Models, "models", getEnv("MODELS", "naive,seasonal_naive"), "Models, e.g. naive,seasonal_naive:7,window_average:3")
	flag.StringVar(&cfg.BYOMURL, "byom-url", getEnv("BYOM_URL", ""), "BYOM service URL (required when models include byom)")

	flag.IntVar(&cfg.Jobs, "jobs", getEnvInt("JOBS", 1), "Worker count (0 or less uses every core)")
	flag.StringVar(&cfg.Cluster, "cluster", getEnv("CLUSTER", "none"), "Resource manager: none, local, redis, or http")
	flag.StringVar(&cfg.ClusterAddress, "cluster-address", getEnv("CLUSTER_ADDRESS", ""), "Resource manager address")
	flag.StringVar(&cfg.ClusterCPUPath, "cluster-cpu-path", getEnv("CLUSTER_CPU_PATH", ""), "gjson path of the CPU count in the HTTP manager status")
	flag.StringVar(&cfg.ClusterNode, "cluster-node", getEnv("CLUSTER_NODE", ""), "Node name registered in a redis cluster registry (defaults to the hostname)")

	flag.StringVar(&cfg.Output, "output", getEnv("OUTPUT", ""), "Result file (empty skips writing)")
	flag.StringVar(&cfg.OutputFormat, "output-format", getEnv("OUTPUT_FORMAT", "csv"), "Result file format: csv or arrow")

	flag.BoolVar(&cfg.Serve, "serve", getEnvBool("SERVE", false), "Keep running: repeat every interval and serve results over HTTP")
	flag.DurationVar(&cfg.Interval, "interval", getEnvDuration("INTERVAL", 5*time.Minute), "Run interval in serve mode")

	flag.Parse()

	cfg.AdapterConfig = parseAdapterConfig()

	return cfg
}

var runNameRegex = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9_-]{0,251}[a-zA-Z0-9])?$`)

// Validate checks the configuration and fills derived defaults.
func (c *Config) Validate() error {
	if !runNameRegex.MatchString(c.RunName) {
		return fmt.Errorf("invalid run name %q (must be alphanumeric with dash/underscore, 1-253 chars)", c.RunName)
	}

	switch c.Source {
	case "csv", "prometheus", "victoriametrics", "http":
	default:
		return fmt.Errorf("invalid source %q (must be csv, prometheus, victoriametrics, or http)", c.Source)
	}

	switch c.Mode {
	case "forecast", "cv":
	default:
		return fmt.Errorf("invalid mode %q (must be forecast or cv)", c.Mode)
	}

	if c.Horizon <= 0 {
		return fmt.Errorf("horizon must be > 0, got %d", c.Horizon)
	}
	if c.TestSize == 0 {
		c.TestSize = c.Horizon
	}
	if c.Mode == "cv" && c.TestSize < c.Horizon {
		return fmt.Errorf("test size (%d) cannot be smaller than horizon (%d)", c.TestSize, c.Horizon)
	}
	if c.InputSize < 0 {
		return fmt.Errorf("input size cannot be negative")
	}
	if c.Mode == "cv" && c.XReg != "" {
		return fmt.Errorf("xreg is only used in forecast mode")
	}

	if _, err := panel.ParseFreq(c.Freq); err != nil {
		return fmt.Errorf("freq: %w", err)
	}
	if _, err := ParseLevels(c.Levels); err != nil {
		return fmt.Errorf("levels: %w", err)
	}
	if strings.TrimSpace(c.Models) == "" {
		return fmt.Errorf("at least one model is required")
	}
	if strings.Contains(c.Models, "byom") && c.BYOMURL == "" {
		return fmt.Errorf("byom-url is required when models include byom")
	}

	switch c.Cluster {
	case "none", "local":
	case "redis", "http":
		if c.ClusterAddress == "" {
			return fmt.Errorf("cluster-address is required for cluster %q", c.Cluster)
		}
	default:
		return fmt.Errorf("invalid cluster %q (must be none, local, redis, or http)", c.Cluster)
	}

	switch c.OutputFormat {
	case "csv", "arrow":
	default:
		return fmt.Errorf("invalid output format %q (must be csv or arrow)", c.OutputFormat)
	}

	switch c.Storage {
	case "memory", "redis":
	default:
		return fmt.Errorf("invalid storage %q (must be memory or redis)", c.Storage)
	}

	if c.Serve && c.Interval <= 0 {
		return fmt.Errorf("interval must be > 0 in serve mode")
	}
	if c.Cluster == "redis" && c.Interval <= 0 {
		return fmt.Errorf("interval must be > 0 for cluster redis (it paces the registry heartbeat)")
	}
	if c.Source != "csv" {
		if c.Window <= 0 || c.Step <= 0 {
			return fmt.Errorf("window and step must be > 0 for source %q", c.Source)
		}
		if c.Step > c.Window {
			return fmt.Errorf("step (%v) cannot exceed window (%v)", c.Step, c.Window)
		}
	}

	return nil
}

// parseAdapterConfig collects ADAPTER_* environment variables into a map keyed
// by the lowerCamelCase remainder of the name.
func parseAdapterConfig() map[string]string {
	config := make(map[string]string)

	for _, env := range os.Environ() {
		name, value, ok := strings.Cut(env, "=")
		if !ok || !strings.HasPrefix(name, "ADAPTER_") || len(name) == len("ADAPTER_") {
			continue
		}
		config[toLowerCamelCase(name[len("ADAPTER_"):])] = value
	}

	return config
}

func toLowerCamelCase(s string) string {
	parts := strings.Split(strings.ToLower(s), "_")
	var b strings.Builder
	for i, p := range parts {
		if p == "" {
			continue
		}
		if i > 0 && b.Len() > 0 {
			b.WriteString(strings.ToUpper(p[:1]))
			b.WriteString(p[1:])
			continue
		}
		b.WriteString(p)
	}
	return b.String()
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var i int
		if _, err := fmt.Sscanf(value, "%d", &i); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1"
	}
	return defaultValue
}
