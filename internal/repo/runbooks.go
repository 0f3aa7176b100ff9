package repo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sentinelstack/responder/internal/config"
)

// Runbook is a curated remediation guide surfaced to the planner and the
// knowledge-base investigator.
type Runbook struct {
	ID         string
	Title      string
	URL        string
	Categories []string
	Steps      []string
	Score      float64
}

// RunbookRepo provides read access to the runbook index.
type RunbookRepo struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

// NewRunbookRepo constructs a runbook index client.
func NewRunbookRepo(cfg config.RunbooksClientConfig) *RunbookRepo {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &RunbookRepo{
		endpoint:   strings.TrimRight(cfg.Endpoint, "/"),
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Search returns runbooks matching the alert category, best match first.
// An unconfigured index degrades to a small built-in catalog so the loop
// still produces plans in local development.
func (r *RunbookRepo) Search(ctx context.Context, category, service string, limit int) ([]Runbook, error) {
	if r == nil || r.endpoint == "" {
		return builtinRunbooks(category), nil
	}
	if limit <= 0 {
		limit = 3
	}

	gql := map[string]any{
		"query": fmt.Sprintf(`{
          Get {
            Runbook(
              limit: %d
              where: {
                operator: And
                operands: [
                  {path: ["categories"], operator: ContainsAny, valueString: "%s"}
                ]
              }
            ) {
              runbookId
              title
              url
              categories
              steps
              _additional { certainty }
            }
          }
        }`, limit, category),
	}

	body, err := json.Marshal(gql)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint+"/v1/graphql", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if r.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil || resp.StatusCode != http.StatusOK {
		if resp != nil {
			resp.Body.Close()
		}
		return builtinRunbooks(category), nil
	}
	defer resp.Body.Close()

	var response struct {
		Data struct {
			Get struct {
				Runbook []struct {
					RunbookID  string   `json:"runbookId"`
					Title      string   `json:"title"`
					URL        string   `json:"url"`
					Categories []string `json:"categories"`
					Steps      []string `json:"steps"`
					Additional struct {
						Certainty float64 `json:"certainty"`
					} `json:"_additional"`
				} `json:"Runbook"`
			} `json:"Get"`
		} `json:"data"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return builtinRunbooks(category), nil
	}

	runbooks := make([]Runbook, 0, len(response.Data.Get.Runbook))
	for _, rb := range response.Data.Get.Runbook {
		runbooks = append(runbooks, Runbook{
			ID:         rb.RunbookID,
			Title:      rb.Title,
			URL:        rb.URL,
			Categories: rb.Categories,
			Steps:      rb.Steps,
			Score:      rb.Additional.Certainty,
		})
	}
	if len(runbooks) == 0 {
		return builtinRunbooks(category), nil
	}
	return runbooks, nil
}

func builtinRunbooks(category string) []Runbook {
	switch category {
	case "high_latency":
		return []Runbook{{
			ID:         "builtin-latency",
			Title:      "Latency regression triage",
			Categories: []string{"high_latency"},
			Steps: []string{
				"Compare p95 latency against the last known good window",
				"Check recent deploys and config changes for the service",
				"Revert the most recent suspect change if correlated",
			},
			Score: 0.5,
		}}
	case "crash_loop":
		return []Runbook{{
			ID:         "builtin-crashloop",
			Title:      "Crash loop recovery",
			Categories: []string{"crash_loop"},
			Steps: []string{
				"Inspect container exit codes and recent events",
				"Restart the workload once to clear transient state",
				"Roll back to the previous revision if restarts persist",
			},
			Score: 0.5,
		}}
	default:
		return []Runbook{{
			ID:         "builtin-generic",
			Title:      "Generic incident triage",
			Categories: []string{"generic"},
			Steps: []string{
				"Review golden signals for the affected service",
				"Correlate alerts with recent changes",
				"Escalate to the owning team if no safe remediation exists",
			},
			Score: 0.3,
		}}
	}
}
