package config

import (
	"flag"
	"os"
	"reflect"
	"testing"
	"time"
)

func TestGetEnv(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue string
		envValue     string
		want         string
	}{
		{
			name:         "environment variable set",
			key:          "TEST_VAR",
			defaultValue: "default",
			envValue:     "from-env",
			want:         "from-env",
		},
		{
			name:         "environment variable not set",
			key:          "NONEXISTENT_VAR",
			defaultValue: "default",
			envValue:     "",
			want:         "default",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				os.Setenv(tt.key, tt.envValue)
				defer os.Unsetenv(tt.key)
			}

			got := getEnv(tt.key, tt.defaultValue)
			if got != tt.want {
				t.Errorf("getEnv() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestGetEnvInt(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue int
		envValue     string
		want         int
	}{
		{
			name:         "valid integer",
			key:          "TEST_INT",
			defaultValue: 10,
			envValue:     "42",
			want:         42,
		},
		{
			name:         "invalid integer",
			key:          "TEST_INT",
			defaultValue: 10,
			envValue:     "not-a-number",
			want:         10,
		},
		{
			name:         "not set",
			key:          "NONEXISTENT_INT",
			defaultValue: 99,
			envValue:     "",
			want:         99,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				os.Setenv(tt.key, tt.envValue)
				defer os.Unsetenv(tt.key)
			}

			got := getEnvInt(tt.key, tt.defaultValue)
			if got != tt.want {
				t.Errorf("getEnvInt() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestGetEnvDuration(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue time.Duration
		envValue     string
		want         time.Duration
	}{
		{
			name:         "valid duration",
			key:          "TEST_DURATION",
			defaultValue: 1 * time.Minute,
			envValue:     "5m",
			want:         5 * time.Minute,
		},
		{
			name:         "invalid duration",
			key:          "TEST_DURATION",
			defaultValue: 30 * time.Second,
			envValue:     "not-a-duration",
			want:         30 * time.Second,
		},
		{
			name:         "not set",
			key:          "NONEXISTENT_DURATION",
			defaultValue: 10 * time.Second,
			envValue:     "",
			want:         10 * time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				os.Setenv(tt.key, tt.envValue)
				defer os.Unsetenv(tt.key)
			}

			got := getEnvDuration(tt.key, tt.defaultValue)
			if got != tt.want {
				t.Errorf("getEnvDuration() = %v, want %v", got, tt.want)
			}
		})
	}
}


func TestGetEnvBool(t *testing.T) {
	t.Setenv("TEST_BOOL", "1")
	if !getEnvBool("TEST_BOOL", false) {
		t.Error("getEnvBool(1) = false, want true")
	}
	t.Setenv("TEST_BOOL", "no")
	if getEnvBool("TEST_BOOL", true) {
		t.Error("getEnvBool(no) = true, want false")
	}
	if !getEnvBool("NONEXISTENT_BOOL", true) {
		t.Error("getEnvBool(unset) should return the default")
	}
}

func TestConfig_Defaults(t *testing.T) {
	flag.CommandLine = flag.NewFlagSet(os.Args[0], flag.ContinueOnError)

	t.Setenv("ADAPTER_PATH", "/data/panel.csv")

	os.Args = []string{"cmd"}

	cfg := ParseFlags()

	if cfg.Listen != ":8081" {
		t.Errorf("Listen = %q, want %q", cfg.Listen, ":8081")
	}
	if cfg.Source != "csv" {
		t.Errorf("Source = %q, want csv", cfg.Source)
	}
	if cfg.Mode != "forecast" {
		t.Errorf("Mode = %q, want forecast", cfg.Mode)
	}
	if cfg.Horizon != 7 {
		t.Errorf("Horizon = %d, want 7", cfg.Horizon)
	}
	if cfg.Freq != "D" {
		t.Errorf("Freq = %q, want D", cfg.Freq)
	}
	if cfg.Jobs != 1 {
		t.Errorf("Jobs = %d, want 1", cfg.Jobs)
	}
	if cfg.Cluster != "none" {
		t.Errorf("Cluster = %q, want none", cfg.Cluster)
	}
	if cfg.Interval != 5*time.Minute {
		t.Errorf("Interval = %v, want 5m", cfg.Interval)
	}
	if cfg.LogFormat != "text" {
		t.Errorf("LogFormat = %q, want %q", cfg.LogFormat, "text")
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "info")
	}
	if cfg.AdapterConfig["path"] != "/data/panel.csv" {
		t.Errorf("AdapterConfig[path] = %q", cfg.AdapterConfig["path"])
	}

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if cfg.TestSize != cfg.Horizon {
		t.Errorf("TestSize = %d, want horizon %d", cfg.TestSize, cfg.Horizon)
	}
}

func TestConfig_CustomValues(t *testing.T) {
	flag.CommandLine = flag.NewFlagSet(os.Args[0], flag.ContinueOnError)

	t.Setenv("ADAPTER_QUERY", "sum by (instance) (rate(http_requests_total[5m]))")
	t.Setenv("ADAPTER_ID_LABEL", "instance")

	os.Args = []string{
		"cmd",
		"-source=prometheus",
		"-mode=cv",
		"-horizon=12",
		"-test-size=36",
		"-freq=15min",
		"-levels=p80,p95",
		"-models=naive,seasonal_naive:96",
		"-jobs=4",
		"-listen=:9090",
		"-step=15m",
		"-window=168h",
		"-log-format=json",
		"-log-level=debug",
	}

	cfg := ParseFlags()

	if cfg.Listen != ":9090" {
		t.Errorf("Listen = %q, want %q", cfg.Listen, ":9090")
	}
	if cfg.Source != "prometheus" || cfg.Mode != "cv" {
		t.Errorf("Source/Mode = %q/%q", cfg.Source, cfg.Mode)
	}
	if cfg.Horizon != 12 || cfg.TestSize != 36 {
		t.Errorf("Horizon/TestSize = %d/%d, want 12/36", cfg.Horizon, cfg.TestSize)
	}
	if cfg.Step != 15*time.Minute || cfg.Window != 168*time.Hour {
		t.Errorf("Step/Window = %v/%v", cfg.Step, cfg.Window)
	}
	if cfg.Models != "naive,seasonal_naive:96" {
		t.Errorf("Models = %q", cfg.Models)
	}
	if cfg.AdapterConfig["idLabel"] != "instance" {
		t.Errorf("AdapterConfig[idLabel] = %q, want instance", cfg.AdapterConfig["idLabel"])
	}
	if cfg.LogFormat != "json" || cfg.LogLevel != "debug" {
		t.Errorf("LogFormat/LogLevel = %q/%q", cfg.LogFormat, cfg.LogLevel)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
}

func validConfig() *Config {
	return &Config{
		RunName:      "daily",
		Source:       "csv",
		Mode:         "forecast",
		Horizon:      7,
		Freq:         "D",
		Models:       "naive",
		Cluster:      "none",
		OutputFormat: "csv",
		Storage:      "memory",
		Interval:     time.Minute,
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "invalid run name", mutate: func(c *Config) { c.RunName = "a/b" }, wantErr: true},
		{name: "unknown source", mutate: func(c *Config) { c.Source = "kafka" }, wantErr: true},
		{name: "unknown mode", mutate: func(c *Config) { c.Mode = "fit" }, wantErr: true},
		{name: "zero horizon", mutate: func(c *Config) { c.Horizon = 0 }, wantErr: true},
		{name: "cv test size below horizon", mutate: func(c *Config) { c.Mode = "cv"; c.TestSize = 3 }, wantErr: true},
		{name: "negative input size", mutate: func(c *Config) { c.InputSize = -1 }, wantErr: true},
		{name: "xreg in cv", mutate: func(c *Config) { c.Mode = "cv"; c.XReg = "x.csv" }, wantErr: true},
		{name: "bad freq", mutate: func(c *Config) { c.Freq = "W-SUN" }, wantErr: true},
		{name: "bad levels", mutate: func(c *Config) { c.Levels = "120" }, wantErr: true},
		{name: "no models", mutate: func(c *Config) { c.Models = " " }, wantErr: true},
		{name: "byom without url", mutate: func(c *Config) { c.Models = "byom" }, wantErr: true},
		{name: "byom with url", mutate: func(c *Config) { c.Models = "byom"; c.BYOMURL = "http://m:8000" }},
		{name: "redis cluster without address", mutate: func(c *Config) { c.Cluster = "redis" }, wantErr: true},
		{name: "redis cluster without interval", mutate: func(c *Config) {
			c.Cluster = "redis"
			c.ClusterAddress = "redis:6379"
			c.Interval = 0
		}, wantErr: true},
		{name: "http cluster", mutate: func(c *Config) { c.Cluster = "http"; c.ClusterAddress = "http://head:8265/status" }},
		{name: "unknown cluster", mutate: func(c *Config) { c.Cluster = "k8s" }, wantErr: true},
		{name: "unknown output format", mutate: func(c *Config) { c.OutputFormat = "parquet" }, wantErr: true},
		{name: "unknown storage", mutate: func(c *Config) { c.Storage = "s3" }, wantErr: true},
		{name: "serve without interval", mutate: func(c *Config) { c.Serve = true; c.Interval = 0 }, wantErr: true},
		{name: "metric source step above window", mutate: func(c *Config) {
			c.Source = "prometheus"
			c.Window = time.Minute
			c.Step = time.Hour
		}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseLevels(t *testing.T) {
	tests := []struct {
		in      string
		want    []int
		wantErr bool
	}{
		{in: "", want: nil},
		{in: "80,95", want: []int{80, 95}},
		{in: "p95, p80", want: []int{80, 95}},
		{in: "P90", want: []int{90}},
		{in: "0.9,0.8", want: []int{80, 90}},
		{in: "80,80", want: []int{80}},
		{in: "100", wantErr: true},
		{in: "0", wantErr: true},
		{in: "p", wantErr: true},
		{in: "82.5", wantErr: true},
		{in: "abc", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevels(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLevels(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParseLevels(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestFormatLevels(t *testing.T) {
	if got := FormatLevels([]int{80, 95}); got != "p80,p95" {
		t.Errorf("FormatLevels() = %q", got)
	}
	if got := FormatLevels(nil); got != "none" {
		t.Errorf("FormatLevels(nil) = %q", got)
	}
}

func TestToLowerCamelCase(t *testing.T) {
	tests := map[string]string{
		"QUERY":         "query",
		"VALUE_PATH":    "valuePath",
		"ID_LABEL":      "idLabel",
		"TARGET_COLUMN": "targetColumn",
	}
	for in, want := range tests {
		if got := toLowerCamelCase(in); got != want {
			t.Errorf("toLowerCamelCase(%q) = %q, want %q", in, got, want)
		}
	}
}
