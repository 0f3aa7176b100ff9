package repo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sentinelstack/responder/internal/config"
	"github.com/sentinelstack/responder/internal/utils"
)

// ToolResult is the normalized response from a remediation tool. Tools that
// return a JSON object land in Structured; anything else is kept verbatim in
// Text so the trace never loses the raw response.
type ToolResult struct {
	Structured map[string]any
	Text       string
}

// OK reports whether the tool signalled success. A structured response with
// a "status" field other than "ok"/"success" counts as a failure.
func (r ToolResult) OK() bool {
	if r.Structured == nil {
		return true
	}
	status, ok := r.Structured["status"].(string)
	if !ok {
		return true
	}
	status = strings.ToLower(status)
	return status == "ok" || status == "success"
}

// ToolGateway invokes remediation tools over the gateway API.
type ToolGateway struct {
	baseURL    string
	invokePath string
	httpClient *http.Client
}

// NewToolGateway constructs a gateway client from config.
func NewToolGateway(cfg config.ToolsClientConfig) *ToolGateway {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &ToolGateway{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		invokePath: cfg.InvokePath,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Invoke calls a named tool with arguments and normalizes the response.
func (g *ToolGateway) Invoke(ctx context.Context, tool string, args map[string]any) (ToolResult, error) {
	if g == nil || g.baseURL == "" {
		return ToolResult{}, fmt.Errorf("%w: tool gateway not configured", utils.ErrExternalUnavailable)
	}

	payload := map[string]any{
		"tool": tool,
		"args": args,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return ToolResult{}, fmt.Errorf("marshal tool payload: %w", err)
	}

	endpoint := g.baseURL + "/" + strings.TrimLeft(g.invokePath, "/")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return ToolResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return ToolResult{}, fmt.Errorf("%w: tool %s: %v", utils.ErrExternalUnavailable, tool, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return ToolResult{}, fmt.Errorf("read tool response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return ToolResult{}, fmt.Errorf("%w: tool %s returned %s: %s",
			utils.ErrExecutionFailure, tool, resp.Status, strings.TrimSpace(string(raw)))
	}

	return normalizeToolResponse(raw), nil
}

func normalizeToolResponse(raw []byte) ToolResult {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var structured map[string]any
		if err := json.Unmarshal(trimmed, &structured); err == nil {
			return ToolResult{Structured: structured}
		}
	}
	return ToolResult{Text: string(trimmed)}
}
