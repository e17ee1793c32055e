package models

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tidwall/gjson"
)

// BYOMConfig configures a model that delegates each group's forecast to an
// external HTTP service (Prophet, a TensorFlow server, anything that speaks JSON).
//
// The service receives a POST with:
//
//	{"horizon": 3, "y": [...], "x": [[...], ...], "args": [...], "levels": [80, 95]}
//
// and answers either {"mean": [...]} in point mode or
// {"series": [{"name": "mean", "values": [...]}, {"name": "lo-80", ...}, ...]}
// when levels were requested.
type BYOMConfig struct {
	// Endpoint is the service URL (required).
	Endpoint string

	// Intervals declares that the service can return interval series.
	Intervals bool

	// ValuePath is the gjson path of the point forecast. Defaults to "mean".
	ValuePath string

	// HTTPClient is optional; if nil a client with a 30s timeout is used.
	HTTPClient *http.Client
}

type byomRequest struct {
	Horizon int         `json:"horizon"`
	Y       []float64   `json:"y"`
	X       [][]float64 `json:"x,omitempty"`
	Args    []any       `json:"args,omitempty"`
	Levels  []int       `json:"levels,omitempty"`
}

// BYOM returns a descriptor backed by an external forecasting service.
func BYOM(cfg BYOMConfig) Descriptor {
	if cfg.ValuePath == "" {
		cfg.ValuePath = "mean"
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				IdleConnTimeout:     90 * time.Second,
				MaxIdleConnsPerHost: 2,
			},
		}
	}

	d := Descriptor{
		Name: "byom",
		Point: func(ctx context.Context, in Input) ([]float64, error) {
			body, err := cfg.call(ctx, in, nil)
			if err != nil {
				return nil, err
			}
			result := gjson.GetBytes(body, cfg.ValuePath)
			if !result.Exists() {
				return nil, fmt.Errorf("byom: value path %q not found in response", cfg.ValuePath)
			}
			values := toFloats(result.Array())
			if len(values) != in.H {
				return nil, fmt.Errorf("byom: expected %d predictions, got %d", in.H, len(values))
			}
			return values, nil
		},
	}

	if cfg.Intervals {
		d.Interval = func(ctx context.Context, in Input, levels []int) ([]Series, error) {
			body, err := cfg.call(ctx, in, levels)
			if err != nil {
				return nil, err
			}
			series := gjson.GetBytes(body, "series")
			if !series.IsArray() {
				return nil, fmt.Errorf("byom: response has no series array")
			}
			var out []Series
			for _, s := range series.Array() {
				values := toFloats(s.Get("values").Array())
				if len(values) != in.H {
					return nil, fmt.Errorf("byom: series %q has %d values, want %d", s.Get("name").String(), len(values), in.H)
				}
				out = append(out, Series{Name: s.Get("name").String(), Values: values})
			}
			return out, nil
		}
	}

	return d
}

func (cfg BYOMConfig) call(ctx context.Context, in Input, levels []int) ([]byte, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("byom: endpoint is required")
	}

	req := byomRequest{
		Horizon: in.H,
		Y:       in.Y.Target(),
		Args:    in.Args,
		Levels:  levels,
	}
	if in.X != nil {
		req.X = make([][]float64, in.X.Rows())
		for r := range req.X {
			row := in.X.Row(r)
			req.X[r] = make([]float64, len(row))
			for c, v := range row {
				req.X[r][c] = float64(v)
			}
		}
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("byom: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("byom: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := cfg.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("byom: http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("byom: http %d: %s", resp.StatusCode, string(msg))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("byom: read response: %w", err)
	}
	return body, nil
}

func toFloats(results []gjson.Result) []float64 {
	out := make([]float64, len(results))
	for i, r := range results {
		out[i] = r.Float()
	}
	return out
}
