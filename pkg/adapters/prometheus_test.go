package adapters

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

const twoSeriesResponse = `{
    "status":"success",
    "data":{
        "resultType":"matrix",
        "result":[
            { "metric":{"__name__":"requests","instance":"b"}, "values":[ [ 1700000000, "10" ], [ 1700000060, "20" ] ] },
            { "metric":{"__name__":"requests","instance":"a"}, "values":[ [ 1700000000, "1" ], [ 1700000060, "2" ], [ 1700000120, "3" ] ] }
        ]
    }
}`

func promServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/query_range" {
			t.Errorf("expected /api/v1/query_range, got %s", r.URL.Path)
		}
		if r.URL.Query().Get("query") == "" {
			t.Error("expected query parameter")
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, body)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestPrometheusAdapter_OneGroupPerSeries(t *testing.T) {
	server := promServer(t, twoSeriesResponse)

	ad := &PrometheusAdapter{ServerURL: server.URL, Query: "requests", StepSeconds: 60, IDLabel: "instance"}
	df, err := ad.Collect(context.Background(), 600)
	if err != nil {
		t.Fatalf("Collect error: %v", err)
	}
	if len(df.Rows) != 5 {
		t.Fatalf("expected 5 rows, got %d", len(df.Rows))
	}

	counts := map[string]int{}
	for _, row := range df.Rows {
		counts[row.ID]++
	}
	if counts["a"] != 3 || counts["b"] != 2 {
		t.Errorf("rows per id = %v, want a:3 b:2", counts)
	}

	first := df.Rows[0]
	if first.ID != "b" || first.Values[0] != 10 {
		t.Errorf("first row = %+v", first)
	}
	if !first.DS.Time().Equal(time.Unix(1700000000, 0)) {
		t.Errorf("first stamp = %s", first.DS)
	}
}

func TestPrometheusAdapter_LabelSetIDs(t *testing.T) {
	server := promServer(t, twoSeriesResponse)

	ad := &PrometheusAdapter{ServerURL: server.URL, Query: "requests"}
	df, err := ad.Collect(context.Background(), 600)
	if err != nil {
		t.Fatalf("Collect error: %v", err)
	}

	ids := map[string]bool{}
	for _, row := range df.Rows {
		ids[row.ID] = true
	}
	if len(ids) != 2 {
		t.Fatalf("expected 2 distinct ids, got %v", ids)
	}
	for id := range ids {
		if !contains(id, "requests") || !contains(id, "instance=") {
			t.Errorf("id %q does not describe the label set", id)
		}
	}
}

func TestPrometheusAdapter_Aggregate(t *testing.T) {
	server := promServer(t, twoSeriesResponse)

	ad := &PrometheusAdapter{ServerURL: server.URL, Query: "requests", Aggregate: true}
	df, err := ad.Collect(context.Background(), 600)
	if err != nil {
		t.Fatalf("Collect error: %v", err)
	}
	if len(df.Rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(df.Rows))
	}
	// Values are summed per timestamp: 11, 22, 3
	for i, want := range []float64{11, 22, 3} {
		if df.Rows[i].Values[0] != want {
			t.Errorf("row %d value = %v, want %v", i, df.Rows[i].Values[0], want)
		}
		if df.Rows[i].ID != "requests" {
			t.Errorf("row %d id = %q, want requests", i, df.Rows[i].ID)
		}
	}
}

func TestPrometheusAdapter_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{name: "http error", status: http.StatusInternalServerError, body: `oops`},
		{name: "error status", status: http.StatusOK, body: `{"status":"error","error":"bad query"}`},
		{name: "invalid json", status: http.StatusOK, body: `{`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))
			defer server.Close()

			ad := &PrometheusAdapter{ServerURL: server.URL, Query: "q"}
			if _, err := ad.Collect(context.Background(), 60); err == nil {
				t.Fatal("expected error")
			}
		})
	}

	if _, err := (&PrometheusAdapter{}).Collect(context.Background(), 60); err == nil {
		t.Error("expected error for missing ServerURL and Query")
	}
}

func TestVictoriaMetricsAdapter_SharesPrometheusDecoding(t *testing.T) {
	server := promServer(t, twoSeriesResponse)

	ad := &VictoriaMetricsAdapter{ServerURL: server.URL, Query: "requests", IDLabel: "instance"}
	df, err := ad.Collect(context.Background(), 600)
	if err != nil {
		t.Fatalf("Collect error: %v", err)
	}
	if len(df.Rows) != 5 {
		t.Fatalf("expected 5 rows, got %d", len(df.Rows))
	}
	if ad.Name() != "victoria-metrics" {
		t.Errorf("Name() = %q", ad.Name())
	}
}

func TestVictoriaMetricsAdapter_ContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
		fmt.Fprint(w, twoSeriesResponse)
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	ad := &VictoriaMetricsAdapter{ServerURL: server.URL, Query: "q"}
	if _, err := ad.Collect(ctx, 60); err == nil {
		t.Fatal("expected timeout error")
	}
}
