package repo

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sentinelstack/responder/internal/config"
	"github.com/sentinelstack/responder/internal/utils"
)

func signalConfig(baseURL string) config.SignalsClientConfig {
	return config.SignalsClientConfig{
		BaseURL:           baseURL,
		MetricsPath:       "/metrics",
		LogsPath:          "/logs",
		InfraPath:         "/infra",
		CommitsPath:       "/commits",
		GoldenSignalsPath: "/golden",
		Timeout:           2 * time.Second,
	}
}

func TestGoldenSnapshotPassthrough(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/golden" {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"cpu_usage_percent":   81.5,
			"http_error_rate":     0.12,
			"latency_p95_seconds": 2.4,
			"source":              "prometheus",
		})
	}))
	defer server.Close()

	client := NewSignalClient(signalConfig(server.URL))
	snap, err := client.GoldenSnapshot(context.Background(), "checkout")
	if err != nil {
		t.Fatalf("golden snapshot: %v", err)
	}
	if snap.CPUUsagePercent != 81.5 || snap.ErrorRate != 0.12 || snap.LatencyP95 != 2.4 {
		t.Fatalf("values not passed through: %+v", snap)
	}
	if snap.Timestamp.IsZero() {
		t.Fatal("expected a timestamp fallback")
	}
}

func TestSignalClientWrapsUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewSignalClient(signalConfig(server.URL))
	if _, err := client.GoldenSnapshot(context.Background(), "checkout"); !errors.Is(err, utils.ErrExternalUnavailable) {
		t.Fatalf("expected ErrExternalUnavailable, got %v", err)
	}
	if _, err := client.FetchRecentCommits(context.Background(), "checkout", time.Now().Add(-time.Hour)); !errors.Is(err, utils.ErrExternalUnavailable) {
		t.Fatalf("expected ErrExternalUnavailable, got %v", err)
	}
}

func TestFetchRecentCommits(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		json.NewDecoder(r.Body).Decode(&req)
		if req["service"] != "checkout" {
			t.Errorf("unexpected service %v", req["service"])
		}
		json.NewEncoder(w).Encode(map[string]any{
			"commits": []map[string]any{
				{"sha": "abc123", "author": "dev", "message": "tune pool size"},
			},
		})
	}))
	defer server.Close()

	client := NewSignalClient(signalConfig(server.URL))
	commits, err := client.FetchRecentCommits(context.Background(), "checkout", time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("commits: %v", err)
	}
	if len(commits) != 1 || commits[0].SHA != "abc123" {
		t.Fatalf("unexpected commits: %+v", commits)
	}
}

func TestUnconfiguredClientFails(t *testing.T) {
	client := NewSignalClient(config.SignalsClientConfig{})
	if _, err := client.GoldenSnapshot(context.Background(), "checkout"); !errors.Is(err, utils.ErrExternalUnavailable) {
		t.Fatalf("expected ErrExternalUnavailable, got %v", err)
	}
}
