package repo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/sentinelstack/responder/internal/config"
	"github.com/sentinelstack/responder/internal/models"
	"github.com/sentinelstack/responder/internal/utils"
)

// MetricPoint is a single metric sample returned by the signal source.
type MetricPoint struct {
	Timestamp time.Time
	Value     float64
}

// LogEntry is aggregated log information for a service window.
type LogEntry struct {
	Timestamp time.Time
	Message   string
	Severity  string
	Count     int
}

// WorkloadState captures the runtime shape of a deployed workload.
type WorkloadState struct {
	Name          string
	Namespace     string
	ReadyReplicas int
	Replicas      int
	RestartCount  int
	LastEvent     string
}

// Commit is a recent change to the service under investigation.
type Commit struct {
	SHA       string
	Author    string
	Message   string
	Timestamp time.Time
}

// SignalClient wraps the observability aggregation APIs the investigators
// read from. All failures wrap utils.ErrExternalUnavailable so callers can
// classify them without inspecting HTTP details.
type SignalClient struct {
	baseURL           string
	metricsPath       string
	logsPath          string
	infraPath         string
	commitsPath       string
	goldenSignalsPath string
	httpClient        *http.Client
}

// NewSignalClient constructs a client from the signals section of the config.
func NewSignalClient(cfg config.SignalsClientConfig) *SignalClient {
	return &SignalClient{
		baseURL:           strings.TrimRight(cfg.BaseURL, "/"),
		metricsPath:       cfg.MetricsPath,
		logsPath:          cfg.LogsPath,
		infraPath:         cfg.InfraPath,
		commitsPath:       cfg.CommitsPath,
		goldenSignalsPath: cfg.GoldenSignalsPath,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// GoldenSnapshot fetches the current golden-signal reading for a service.
// The values are passed through untouched; nothing is synthesized here.
func (c *SignalClient) GoldenSnapshot(ctx context.Context, service string) (*models.GoldenSnapshot, error) {
	if c == nil || c.baseURL == "" {
		return nil, fmt.Errorf("%w: signal source not configured", utils.ErrExternalUnavailable)
	}

	var response models.GoldenSnapshot
	payload := map[string]any{"service": service}
	if err := c.postJSON(ctx, c.resolvePath(c.goldenSignalsPath), payload, &response); err != nil {
		return nil, fmt.Errorf("%w: golden signals: %v", utils.ErrExternalUnavailable, err)
	}
	if response.Timestamp.IsZero() {
		response.Timestamp = time.Now().UTC()
	}
	return &response, nil
}

// FetchMetricSeries queries the signal source for metric samples.
func (c *SignalClient) FetchMetricSeries(ctx context.Context, service, metric string, start, end time.Time) ([]MetricPoint, error) {
	if c == nil || c.baseURL == "" {
		return nil, fmt.Errorf("%w: signal source not configured", utils.ErrExternalUnavailable)
	}

	payload := map[string]any{
		"service": service,
		"metric":  metric,
		"start":   start.Format(time.RFC3339),
		"end":     end.Format(time.RFC3339),
	}

	var response struct {
		Series []struct {
			Timestamp time.Time `json:"timestamp"`
			Value     float64   `json:"value"`
		} `json:"series"`
	}

	if err := c.postJSON(ctx, c.resolvePath(c.metricsPath), payload, &response); err != nil {
		return nil, fmt.Errorf("%w: metrics: %v", utils.ErrExternalUnavailable, err)
	}

	points := make([]MetricPoint, 0, len(response.Series))
	for _, sample := range response.Series {
		points = append(points, MetricPoint{Timestamp: sample.Timestamp, Value: sample.Value})
	}
	return points, nil
}

// FetchLogEntries queries the signal source for log aggregates.
func (c *SignalClient) FetchLogEntries(ctx context.Context, service string, start, end time.Time) ([]LogEntry, error) {
	if c == nil || c.baseURL == "" {
		return nil, fmt.Errorf("%w: signal source not configured", utils.ErrExternalUnavailable)
	}

	payload := map[string]any{
		"service": service,
		"start":   start.Format(time.RFC3339),
		"end":     end.Format(time.RFC3339),
	}

	var response struct {
		Entries []struct {
			Timestamp time.Time `json:"timestamp"`
			Message   string    `json:"message"`
			Severity  string    `json:"severity"`
			Count     int       `json:"count"`
		} `json:"entries"`
	}

	if err := c.postJSON(ctx, c.resolvePath(c.logsPath), payload, &response); err != nil {
		return nil, fmt.Errorf("%w: logs: %v", utils.ErrExternalUnavailable, err)
	}

	entries := make([]LogEntry, 0, len(response.Entries))
	for _, e := range response.Entries {
		entries = append(entries, LogEntry{
			Timestamp: e.Timestamp,
			Message:   e.Message,
			Severity:  e.Severity,
			Count:     e.Count,
		})
	}
	return entries, nil
}

// FetchWorkloadState queries the signal source for the infra view of a service.
func (c *SignalClient) FetchWorkloadState(ctx context.Context, service string) (*WorkloadState, error) {
	if c == nil || c.baseURL == "" {
		return nil, fmt.Errorf("%w: signal source not configured", utils.ErrExternalUnavailable)
	}

	var response struct {
		Name          string `json:"name"`
		Namespace     string `json:"namespace"`
		ReadyReplicas int    `json:"ready_replicas"`
		Replicas      int    `json:"replicas"`
		RestartCount  int    `json:"restart_count"`
		LastEvent     string `json:"last_event"`
	}

	payload := map[string]any{"service": service}
	if err := c.postJSON(ctx, c.resolvePath(c.infraPath), payload, &response); err != nil {
		return nil, fmt.Errorf("%w: infra: %v", utils.ErrExternalUnavailable, err)
	}

	return &WorkloadState{
		Name:          firstNonEmpty(response.Name, service),
		Namespace:     response.Namespace,
		ReadyReplicas: response.ReadyReplicas,
		Replicas:      response.Replicas,
		RestartCount:  response.RestartCount,
		LastEvent:     response.LastEvent,
	}, nil
}

// FetchRecentCommits queries the signal source for recent changes to a service.
func (c *SignalClient) FetchRecentCommits(ctx context.Context, service string, since time.Time) ([]Commit, error) {
	if c == nil || c.baseURL == "" {
		return nil, fmt.Errorf("%w: signal source not configured", utils.ErrExternalUnavailable)
	}

	payload := map[string]any{
		"service": service,
		"since":   since.Format(time.RFC3339),
	}

	var response struct {
		Commits []struct {
			SHA       string    `json:"sha"`
			Author    string    `json:"author"`
			Message   string    `json:"message"`
			Timestamp time.Time `json:"timestamp"`
		} `json:"commits"`
	}

	if err := c.postJSON(ctx, c.resolvePath(c.commitsPath), payload, &response); err != nil {
		return nil, fmt.Errorf("%w: commits: %v", utils.ErrExternalUnavailable, err)
	}

	commits := make([]Commit, 0, len(response.Commits))
	for _, commit := range response.Commits {
		commits = append(commits, Commit{
			SHA:       commit.SHA,
			Author:    commit.Author,
			Message:   commit.Message,
			Timestamp: commit.Timestamp,
		})
	}
	return commits, nil
}

func (c *SignalClient) resolvePath(p string) string {
	if c.baseURL == "" {
		return ""
	}
	cleaned := "/" + strings.TrimLeft(p, "/")
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return c.baseURL + cleaned
	}
	u.Path = path.Join(u.Path, cleaned)
	return u.String()
}

func (c *SignalClient) postJSON(ctx context.Context, endpoint string, payload any, out any) error {
	if endpoint == "" {
		return fmt.Errorf("empty endpoint")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("signal source returned %s", resp.Status)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
