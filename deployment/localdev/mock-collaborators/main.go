package main

import (
	"encoding/json"
	"log"
	"net/http"
	"time"
)

type seriesPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

type logEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
	Severity  string    `json:"severity"`
	Count     int       `json:"count"`
}

type commit struct {
	SHA       string    `json:"sha"`
	Author    string    `json:"author"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

func main() {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/api/v1/signals/metrics", func(w http.ResponseWriter, r *http.Request) {
		if !enforcePost(w, r) {
			return
		}
		writeJSON(w, map[string]any{
			"series": []seriesPoint{
				{Timestamp: time.Now().Add(-8 * time.Minute), Value: 0.31},
				{Timestamp: time.Now().Add(-6 * time.Minute), Value: 0.29},
				{Timestamp: time.Now().Add(-4 * time.Minute), Value: 0.33},
				{Timestamp: time.Now().Add(-2 * time.Minute), Value: 2.41},
				{Timestamp: time.Now().Add(-1 * time.Minute), Value: 2.87},
			},
		})
	})

	mux.HandleFunc("/api/v1/signals/logs", func(w http.ResponseWriter, r *http.Request) {
		if !enforcePost(w, r) {
			return
		}
		writeJSON(w, map[string]any{
			"entries": []logEntry{
				{Timestamp: time.Now().Add(-3 * time.Minute), Message: "upstream payments timed out", Severity: "error", Count: 58},
				{Timestamp: time.Now().Add(-2 * time.Minute), Message: "retry budget exhausted", Severity: "warn", Count: 12},
				{Timestamp: time.Now().Add(-1 * time.Minute), Message: "request completed", Severity: "info", Count: 240},
			},
		})
	})

	mux.HandleFunc("/api/v1/signals/infra", func(w http.ResponseWriter, r *http.Request) {
		if !enforcePost(w, r) {
			return
		}
		writeJSON(w, map[string]any{
			"name":           "checkout",
			"namespace":      "shop",
			"ready_replicas": 2,
			"replicas":       3,
			"restart_count":  1,
			"last_event":     "Readiness probe failed",
		})
	})

	mux.HandleFunc("/api/v1/signals/commits", func(w http.ResponseWriter, r *http.Request) {
		if !enforcePost(w, r) {
			return
		}
		writeJSON(w, map[string]any{
			"commits": []commit{
				{SHA: "9f2c41abce8", Author: "dev@example.com", Message: "tune connection pool limits", Timestamp: time.Now().Add(-25 * time.Minute)},
				{SHA: "7b1d93fe002", Author: "dev@example.com", Message: "bump payments client", Timestamp: time.Now().Add(-3 * time.Hour)},
			},
		})
	})

	mux.HandleFunc("/api/v1/signals/golden", func(w http.ResponseWriter, r *http.Request) {
		if !enforcePost(w, r) {
			return
		}
		writeJSON(w, map[string]any{
			"cpu_usage_percent":   43.5,
			"http_error_rate":     0.011,
			"latency_p95_seconds": 0.38,
			"timestamp":           time.Now().UTC(),
			"source":              "mock-collaborators",
		})
	})

	mux.HandleFunc("/api/v1/tools/invoke", func(w http.ResponseWriter, r *http.Request) {
		if !enforcePost(w, r) {
			return
		}
		var req struct {
			Tool string         `json:"tool"`
			Args map[string]any `json:"args"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		resp := map[string]any{"status": "ok", "tool": req.Tool}
		if req.Tool == "create_revert_pr" {
			resp["pr_number"] = 1042
			resp["pr_url"] = "https://git.example.com/shop/checkout/pull/1042"
		}
		writeJSON(w, resp)
	})

	logger := log.New(log.Writer(), "mock-collaborators ", log.LstdFlags|log.Lmicroseconds)
	srv := &http.Server{
		Addr:    ":9090",
		Handler: logRequests(logger, mux),
	}

	logger.Println("listening on :9090")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("server error: %v", err)
	}
}

func enforcePost(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("encode error: %v", err)
	}
}

func logRequests(logger *log.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		logger.Printf("%s %s %d %s", r.Method, r.URL.Path, rw.status, time.Since(start))
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
