package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestNewRegistersCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.OperationsTotal.WithLabelValues("add", "ok").Inc()
	m.DetectionsTotal.WithLabelValues("utf8").Add(2)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	for _, want := range []string{"dictionary_operations_total", "encoding_detections_total"} {
		if !names[want] {
			t.Errorf("metric %s not gathered", want)
		}
	}
}

func TestHandlerFor(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.WordsAddedTotal.Add(5)

	srv := httptest.NewServer(HandlerFor(reg))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "dictionary_words_added_total 5") {
		t.Errorf("scrape output missing counter:\n%s", body)
	}
}

func TestPush(t *testing.T) {
	var gotPath string
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer gateway.Close()

	reg := prometheus.NewRegistry()
	New(reg).WordsRemovedTotal.Inc()

	if err := Push(context.Background(), gateway.URL, "morphdict", reg); err != nil {
		t.Fatalf("Push: %v", err)
	}
	if gotPath != "/metrics/job/morphdict" {
		t.Errorf("pushed to %q", gotPath)
	}
}
