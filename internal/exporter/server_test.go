package exporter

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func newTestServer(t *testing.T, provider SnapshotProvider) *httptest.Server {
	t.Helper()
	reg := prometheus.NewRegistry()
	if err := reg.Register(NewCollector(provider, 101, time.Now())); err != nil {
		t.Fatalf("register: %v", err)
	}
	srv := httptest.NewServer(NewServer(reg, provider))
	t.Cleanup(srv.Close)
	return srv
}

func TestHealthzBeforeFirstPoll(t *testing.T) {
	srv := newTestServer(t, fakeProvider{})

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status = %v, want ok", body["status"])
	}
	if body["polled"] != false {
		t.Errorf("polled = %v, want false", body["polled"])
	}
	if _, ok := body["last_poll"]; ok {
		t.Error("last_poll should be absent before the first poll")
	}
}

func TestHealthzAfterPoll(t *testing.T) {
	polled := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	srv := newTestServer(t, fakeProvider{snap: Snapshot{PolledAt: polled}, ok: true})

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()

	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if body["polled"] != true {
		t.Errorf("polled = %v, want true", body["polled"])
	}
	if body["last_poll"] != polled.Format(time.RFC3339) {
		t.Errorf("last_poll = %v, want %s", body["last_poll"], polled.Format(time.RFC3339))
	}
}

func TestMetricsEndpoint(t *testing.T) {
	provider := fakeProvider{
		snap: Snapshot{ActiveCalls: 2, Currency: "USD", PolledAt: time.Now()},
		ok:   true,
	}
	srv := newTestServer(t, provider)

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("reading body: %v", err)
	}
	body := string(data)
	for _, want := range []string{
		`sippy_account_active_calls{account="101"} 2`,
		`sippy_account_cdr_cost{account="101",currency="USD"}`,
		"sippy_exporter_uptime_seconds",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
