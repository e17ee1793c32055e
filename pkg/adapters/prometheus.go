package adapters

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/prometheus/common/model"

	"github.com/HatiCode/panelcast/pkg/panel"
)

// PrometheusAdapter fetches series from the Prometheus HTTP API. It issues a
// /api/v1/query_range call and returns one group per returned series, with the
// series' label set (or the value of IDLabel) as unique_id.
//
// With Aggregate set, every series is summed into a single group named after
// the query instead.
type PrometheusAdapter struct {
	// ServerURL is the base URL to Prometheus, e.g. http://prometheus.monitoring.svc:9090
	ServerURL string
	// Query is the PromQL expression to evaluate.
	Query string
	// StepSeconds controls the resolution (defaults to 60s if <= 0).
	StepSeconds int
	// IDLabel names the label whose value identifies a series. Empty uses the full label set.
	IDLabel string
	// Aggregate sums all series into one group.
	Aggregate bool
	// HTTPClient is optional; if nil a default client with timeout is used.
	HTTPClient *http.Client
}

func (p *PrometheusAdapter) Name() string { return "prometheus" }

// Collect implements Adapter. It queries Prometheus for the last windowSeconds worth
// of data, at StepSeconds resolution, and returns a *panel.Frame.
func (p *PrometheusAdapter) Collect(ctx context.Context, windowSeconds int) (*panel.Frame, error) {
	if p.ServerURL == "" || p.Query == "" {
		return nil, errors.New("prometheus adapter: ServerURL and Query are required")
	}
	matrix, err := queryRange(ctx, p.HTTPClient, p.ServerURL, p.Query, p.StepSeconds, windowSeconds)
	if err != nil {
		return nil, err
	}
	if p.Aggregate {
		return AggregateRangeResult(p.Query, matrix), nil
	}
	return SeriesFrame(matrix, p.IDLabel), nil
}

// PrometheusRangeResponse represents the response from Prometheus (and compatible systems).
type PrometheusRangeResponse struct {
	Status string              `json:"status"`
	Error  string              `json:"error,omitempty"`
	Data   PrometheusRangeData `json:"data"`
}

// PrometheusRangeData contains the result data from a range query.
type PrometheusRangeData struct {
	ResultType string       `json:"resultType"`
	Result     model.Matrix `json:"result"`
}

// queryRange runs a range query ending now and decodes the matrix result.
func queryRange(ctx context.Context, cli *http.Client, serverURL, query string, stepSeconds, windowSeconds int) (model.Matrix, error) {
	step := stepSeconds
	if step <= 0 {
		step = 60
	}
	now := time.Now().UTC().Truncate(time.Second)
	start := now.Add(-time.Duration(windowSeconds) * time.Second)

	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("invalid ServerURL: %w", err)
	}
	u.Path = "/api/v1/query_range"

	q := u.Query()
	q.Set("query", query)
	q.Set("start", fmt.Sprintf("%d", start.Unix()))
	q.Set("end", fmt.Sprintf("%d", now.Unix()))
	q.Set("step", fmt.Sprintf("%d", step))
	u.RawQuery = q.Encode()

	if cli == nil {
		cli = &http.Client{Timeout: 10 * time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := cli.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("prometheus: status %d", resp.StatusCode)
	}

	var pr PrometheusRangeResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return nil, fmt.Errorf("decode prometheus response: %w", err)
	}
	if pr.Status != "success" {
		return nil, fmt.Errorf("prometheus status: %s %s", pr.Status, pr.Error)
	}
	return pr.Data.Result, nil
}

// SeriesFrame converts a range result into one group per series. The group id
// is the value of idLabel when set and present, otherwise the series' label set.
func SeriesFrame(matrix model.Matrix, idLabel string) *panel.Frame {
	frame := &panel.Frame{Columns: []string{"y"}}
	for _, s := range matrix {
		id := s.Metric.String()
		if idLabel != "" {
			if v, ok := s.Metric[model.LabelName(idLabel)]; ok {
				id = string(v)
			}
		}
		for _, pair := range s.Values {
			frame.Rows = append(frame.Rows, panel.Row{
				ID:     id,
				DS:     panel.TimeStamp(pair.Timestamp.Time().UTC()),
				Values: []float64{float64(pair.Value)},
			})
		}
	}
	return frame
}

// AggregateRangeResult sums all series into a single group, adding values
// that share a timestamp. Rows are sorted by timestamp.
func AggregateRangeResult(id string, matrix model.Matrix) *panel.Frame {
	acc := make(map[model.Time]float64)
	for _, s := range matrix {
		for _, pair := range s.Values {
			acc[pair.Timestamp] += float64(pair.Value)
		}
	}

	stamps := make([]model.Time, 0, len(acc))
	for ts := range acc {
		stamps = append(stamps, ts)
	}
	sort.Slice(stamps, func(i, j int) bool { return stamps[i] < stamps[j] })

	frame := &panel.Frame{Columns: []string{"y"}}
	for _, ts := range stamps {
		frame.Rows = append(frame.Rows, panel.Row{
			ID:     id,
			DS:     panel.TimeStamp(ts.Time().UTC()),
			Values: []float64{acc[ts]},
		})
	}
	return frame
}
