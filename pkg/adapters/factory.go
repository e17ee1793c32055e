package adapters

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/HatiCode/panelcast/pkg/panel"
)

// New creates an adapter based on kind and generic configuration map.
// This is the central extension point for adding new adapter types.
//
// Supported kinds:
//   - "csv": CSV file adapter
//   - "prometheus": Prometheus adapter
//   - "victoriametrics": VictoriaMetrics adapter
//   - "http": Generic HTTP adapter
//
// Returns error if kind is unknown or required fields are missing.
func New(kind string, config map[string]string, stepSeconds int) (Adapter, error) {
	switch kind {
	case "csv":
		return newCSV(config)
	case "prometheus":
		return newPrometheus(config, stepSeconds)
	case "victoriametrics":
		return newVictoriaMetrics(config, stepSeconds)
	case "http":
		return newHTTP(config, stepSeconds)
	default:
		return nil, fmt.Errorf("unknown adapter kind: %s (must be csv, prometheus, victoriametrics, or http)", kind)
	}
}

// newPrometheus creates a Prometheus adapter from generic config.
func newPrometheus(config map[string]string, stepSeconds int) (Adapter, error) {
	query := config["query"]
	if query == "" {
		return nil, fmt.Errorf("prometheus adapter requires 'query' config")
	}

	url := config["url"]
	if url == "" {
		url = "http://localhost:9090"
	}

	aggregate, err := parseBool(config, "aggregate")
	if err != nil {
		return nil, err
	}

	return &PrometheusAdapter{
		ServerURL:   url,
		Query:       query,
		StepSeconds: stepSeconds,
		IDLabel:     config["idLabel"],
		Aggregate:   aggregate,
	}, nil
}

// newVictoriaMetrics creates a VictoriaMetrics adapter from generic config.
func newVictoriaMetrics(config map[string]string, stepSeconds int) (Adapter, error) {
	query := config["query"]
	if query == "" {
		return nil, fmt.Errorf("victoriametrics adapter requires 'query' config")
	}

	url := config["url"]
	if url == "" {
		url = "http://localhost:8428"
	}

	aggregate, err := parseBool(config, "aggregate")
	if err != nil {
		return nil, err
	}

	return &VictoriaMetricsAdapter{
		ServerURL:   url,
		Query:       query,
		StepSeconds: stepSeconds,
		IDLabel:     config["idLabel"],
		Aggregate:   aggregate,
	}, nil
}

// newHTTP creates a generic HTTP adapter from generic config.
func newHTTP(config map[string]string, stepSeconds int) (Adapter, error) {
	url := config["url"]
	if url == "" {
		return nil, fmt.Errorf("http adapter requires 'url' config")
	}

	valuePath := config["valuePath"]
	timestampPath := config["timestampPath"]
	if valuePath == "" || timestampPath == "" {
		return nil, fmt.Errorf("http adapter requires 'valuePath' and 'timestampPath' config")
	}

	method := config["method"]
	if method == "" {
		method = "GET"
	}

	timestampFormat := config["timestampFormat"]
	if timestampFormat == "" {
		timestampFormat = "rfc3339"
	}

	var headers map[string]string
	if headersJSON := config["headers"]; headersJSON != "" {
		if err := json.Unmarshal([]byte(headersJSON), &headers); err != nil {
			return nil, fmt.Errorf("invalid 'headers' JSON: %w", err)
		}
	}

	var templateVars map[string]string
	if varsJSON := config["templateVars"]; varsJSON != "" {
		if err := json.Unmarshal([]byte(varsJSON), &templateVars); err != nil {
			return nil, fmt.Errorf("invalid 'templateVars' JSON: %w", err)
		}
	}

	return &HTTPAdapter{
		URL:             url,
		Method:          method,
		Headers:         headers,
		Body:            config["body"],
		ValuePath:       valuePath,
		TimestampPath:   timestampPath,
		TimestampFormat: timestampFormat,
		IDPath:          config["idPath"],
		SeriesID:        config["seriesId"],
		StepSeconds:     stepSeconds,
		TemplateVars:    templateVars,
	}, nil
}

// newCSV creates a CSV adapter from generic config.
func newCSV(config map[string]string) (Adapter, error) {
	path := config["path"]
	if path == "" {
		return nil, fmt.Errorf("csv adapter requires 'path' config")
	}

	opts := panel.CSVOptions{
		IDColumn:     config["idColumn"],
		TimeColumn:   config["timeColumn"],
		TargetColumn: config["targetColumn"],
	}
	if d := config["delimiter"]; d != "" {
		opts.Delimiter = []rune(d)[0]
	}

	return &CSVAdapter{Path: path, Options: opts}, nil
}

func parseBool(config map[string]string, key string) (bool, error) {
	v := config[key]
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid '%s' config: %w", key, err)
	}
	return b, nil
}
