package router

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/HatiCode/panelcast/pkg/panel"
	"github.com/HatiCode/panelcast/pkg/storage"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sampleRun(generatedAt time.Time) storage.Run {
	day := func(d int) panel.Stamp {
		return panel.TimeStamp(time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC))
	}
	return storage.Run{
		Name:        "daily",
		Mode:        "forecast",
		GeneratedAt: generatedAt,
		Horizon:     2,
		Freq:        "D",
		Models:      []string{"naive"},
		Groups:      1,
		Table: &panel.Table{
			Columns: []string{"naive"},
			IDs:     []string{"a", "a"},
			DS:      []panel.Stamp{day(11), day(12)},
			Values:  []float32{10, 10},
		},
	}
}

func setup(t *testing.T, runs ...storage.Run) *http.ServeMux {
	t.Helper()
	store := storage.NewMemoryStore()
	for _, r := range runs {
		if err := store.Put(context.Background(), r); err != nil {
			t.Fatalf("failed to put run: %v", err)
		}
	}
	return SetupRoutes(store, 2*time.Minute, nil, prometheus.NewRegistry(), testLogger())
}

func TestHealthEndpoint(t *testing.T) {
	mux := setup(t)

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if w.Code != http.StatusOK {
		t.Errorf("status code = %d, want %d", w.Code, http.StatusOK)
	}
	if body := w.Body.String(); body != "OK" {
		t.Errorf("body = %q, want %q", body, "OK")
	}
}

func TestReadyEndpoint(t *testing.T) {
	ready := errors.New("no run stored yet")
	mux := SetupRoutes(storage.NewMemoryStore(), time.Minute, func() error { return ready }, prometheus.NewRegistry(), testLogger())

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status code = %d, want 503", w.Code)
	}

	ready = nil
	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if w.Code != http.StatusOK {
		t.Errorf("status code = %d, want 200", w.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "panelcast_test_total", Help: "test"})
	reg.MustRegister(c)
	c.Inc()

	mux := SetupRoutes(storage.NewMemoryStore(), time.Minute, nil, reg, testLogger())

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if w.Code != http.StatusOK {
		t.Errorf("status code = %d, want %d", w.Code, http.StatusOK)
	}
	if !strings.Contains(w.Body.String(), "panelcast_test_total 1") {
		t.Errorf("metrics body missing counter: %s", w.Body.String())
	}
}

func TestGetRun_BadRequests(t *testing.T) {
	mux := setup(t, sampleRun(time.Now()))

	tests := []struct {
		name       string
		url        string
		wantStatus int
	}{
		{name: "missing name", url: "/runs/latest", wantStatus: http.StatusBadRequest},
		{name: "invalid name", url: "/runs/latest?name=a:b", wantStatus: http.StatusBadRequest},
		{name: "unknown format", url: "/runs/latest?name=daily&format=xml", wantStatus: http.StatusBadRequest},
		{name: "not found", url: "/runs/latest?name=weekly", wantStatus: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.url, nil))
			if w.Code != tt.wantStatus {
				t.Errorf("status code = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}

func TestGetRun_JSON(t *testing.T) {
	mux := setup(t, sampleRun(time.Now()))

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/runs/latest?name=daily", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status code = %d, want %d: %s", w.Code, http.StatusOK, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	if w.Header().Get("X-Panelcast-Stale") == "true" {
		t.Error("fresh run should not be marked as stale")
	}

	var resp struct {
		Name   string      `json:"name"`
		Mode   string      `json:"mode"`
		Models []string    `json:"models"`
		Table  panel.Table `json:"table"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Name != "daily" || resp.Mode != "forecast" {
		t.Errorf("resp = %+v", resp)
	}
	if resp.Table.Len() != 2 || resp.Table.DS[0].String() != "2024-01-11" {
		t.Errorf("table = %+v", resp.Table)
	}
}

func TestGetRun_Stale(t *testing.T) {
	mux := setup(t, sampleRun(time.Now().Add(-5*time.Minute)))

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/runs/latest?name=daily", nil))

	if w.Code != http.StatusOK {
		t.Errorf("status code = %d, want %d", w.Code, http.StatusOK)
	}
	if w.Header().Get("X-Panelcast-Stale") != "true" {
		t.Error("run should be marked as stale")
	}
}

func TestGetRun_CSV(t *testing.T) {
	mux := setup(t, sampleRun(time.Now()))

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/runs/latest?name=daily&format=csv", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status code = %d", w.Code)
	}
	want := "unique_id,ds,naive\na,2024-01-11,10\na,2024-01-12,10\n"
	if got := w.Body.String(); got != want {
		t.Errorf("body = %q, want %q", got, want)
	}
}

func TestGetRun_Arrow(t *testing.T) {
	mux := setup(t, sampleRun(time.Now()))

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/runs/latest?name=daily&format=arrow", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status code = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != ArrowContentType {
		t.Errorf("Content-Type = %q", ct)
	}

	reader, err := ipc.NewFileReader(bytes.NewReader(w.Body.Bytes()), ipc.WithAllocator(memory.NewGoAllocator()))
	if err != nil {
		t.Fatalf("open arrow file: %v", err)
	}
	defer reader.Close()

	if got := reader.Schema().NumFields(); got != 3 {
		t.Errorf("schema fields = %d, want 3", got)
	}
	rec, err := reader.Record(0)
	if err != nil {
		t.Fatalf("read record: %v", err)
	}
	if rec.NumRows() != 2 {
		t.Errorf("rows = %d, want 2", rec.NumRows())
	}
}
