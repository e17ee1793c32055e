package models

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"

	"github.com/HatiCode/panelcast/pkg/ragged"
)

func TestBYOM_Point(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("expected Content-Type application/json, got %s", r.Header.Get("Content-Type"))
		}

		var req byomRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		if req.Horizon != 2 {
			t.Errorf("horizon = %d, want 2", req.Horizon)
		}
		if !reflect.DeepEqual(req.Y, []float64{1, 2, 3}) {
			t.Errorf("y = %v, want [1 2 3]", req.Y)
		}
		if len(req.X) != 2 || req.X[1][0] != 7 {
			t.Errorf("x = %v, want 2 rows ending in 7", req.X)
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"result": {"yhat": [4, 5]}}`))
	}))
	defer server.Close()

	m := MustNew(BYOM(BYOMConfig{Endpoint: server.URL, ValuePath: "result.yhat"}))
	if m.Name() != "byom" {
		t.Errorf("Name() = %q, want byom", m.Name())
	}
	if m.SupportsIntervals() {
		t.Error("SupportsIntervals() = true without Intervals flag")
	}

	x := ragged.NewBlock([]float32{6, 7}, 1)
	got, err := m.Forecast(context.Background(), ragged.NewBlock([]float32{1, 2, 3}, 1), 2, &x)
	if err != nil {
		t.Fatalf("Forecast() error = %v", err)
	}
	if !reflect.DeepEqual(got, []float64{4, 5}) {
		t.Errorf("Forecast() = %v, want [4 5]", got)
	}
}

func TestBYOM_Intervals(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req byomRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if !reflect.DeepEqual(req.Levels, []int{80}) {
			t.Errorf("levels = %v, want [80]", req.Levels)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"series": []map[string]any{
				{"name": "mean", "values": []float64{10}},
				{"name": "lo-80", "values": []float64{8}},
				{"name": "hi-80", "values": []float64{12}},
			},
		})
	}))
	defer server.Close()

	m := MustNew(BYOM(BYOMConfig{Endpoint: server.URL, Intervals: true}))
	out, err := m.ForecastIntervals(context.Background(), ragged.NewBlock([]float32{1}, 1), 1, nil, []int{80})
	if err != nil {
		t.Fatalf("ForecastIntervals() error = %v", err)
	}
	if len(out) != 3 || out[1].Name != "lo-80" || out[2].Values[0] != 12 {
		t.Errorf("ForecastIntervals() = %+v", out)
	}
}

func TestBYOM_Errors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		wantErr string
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "boom", http.StatusInternalServerError)
			},
			wantErr: "http 500",
		},
		{
			name: "missing path",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"other": [1]}`))
			},
			wantErr: "not found",
		},
		{
			name: "wrong length",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"mean": [1]}`))
			},
			wantErr: "expected 2 predictions",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			m := MustNew(BYOM(BYOMConfig{Endpoint: server.URL}))
			_, err := m.Forecast(context.Background(), ragged.NewBlock([]float32{1}, 1), 2, nil)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Forecast() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}

	if _, err := MustNew(BYOM(BYOMConfig{})).Forecast(context.Background(), ragged.NewBlock([]float32{1}, 1), 1, nil); err == nil {
		t.Error("Forecast() without endpoint should fail")
	}
}
