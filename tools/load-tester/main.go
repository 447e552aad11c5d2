package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

var (
	actions    = []string{"create", "update", "delete", "view"}
	severities = []string{"info", "info", "info", "warning", "error", "critical"}
)

type createLogRequest struct {
	Action       string         `json:"action"`
	ResourceType string         `json:"resource_type"`
	ResourceID   string         `json:"resource_id"`
	IPAddress    string         `json:"ip_address"`
	UserAgent    string         `json:"user_agent"`
	Message      string         `json:"message"`
	Severity     string         `json:"severity"`
	LogMetadata  map[string]any `json:"log_metadata"`
}

func main() {
	targetURL := flag.String("url", "http://localhost:8080/v1/logs", "Target URL for audit log creation")
	tenants := flag.Int("tenants", 1, "Spread requests over tenant ids 1..n")
	concurrency := flag.Int("c", 10, "Number of concurrent workers")
	duration := flag.Duration("d", 30*time.Second, "Duration of the load test")
	rps := flag.Int("rps", 1000, "Requests per second limit")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	logger.Info("starting load test", "url", *targetURL, "concurrency", *concurrency, "duration", *duration, "rps", *rps, "tenants", *tenants)

	var wg sync.WaitGroup
	var successCount, errorCount, seq atomic.Int64
	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	limiter := rate.NewLimiter(rate.Limit(*rps), 100) // Allow bursts up to 100

	for i := 0; i < *concurrency; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			client := &http.Client{
				Timeout: 5 * time.Second,
			}

			for {
				if err := limiter.Wait(ctx); err != nil {
					return
				}

				n := seq.Add(1)
				tenantID := n%int64(*tenants) + 1
				payload, _ := json.Marshal(createLogRequest{
					Action:       actions[n%int64(len(actions))],
					ResourceType: "document",
					ResourceID:   uuid.NewString(),
					IPAddress:    "10.0.0." + strconv.Itoa(workerID%250+1),
					UserAgent:    "audit-load-tester/1.0",
					Message:      "load test event " + strconv.FormatInt(n, 10) + " from worker " + strconv.Itoa(workerID),
					Severity:     severities[n%int64(len(severities))],
					LogMetadata:  map[string]any{"worker": workerID, "sequence": n},
				})

				req, err := http.NewRequestWithContext(ctx, http.MethodPost, *targetURL, bytes.NewReader(payload))
				if err != nil {
					continue // Should not happen
				}
				req.Header.Set("Content-Type", "application/json")
				req.Header.Set("X-Tenant-Id", strconv.FormatInt(tenantID, 10))
				req.Header.Set("X-User-Id", "load-tester-"+strconv.Itoa(workerID))
				req.Header.Set("X-User-Name", "Load Tester")
				req.Header.Set("X-User-Role", "user")

				resp, err := client.Do(req)
				if err != nil {
					if ctx.Err() == nil {
						errorCount.Add(1)
					}
					continue
				}

				if resp.StatusCode == http.StatusCreated {
					successCount.Add(1)
				} else {
					errorCount.Add(1)
				}
				resp.Body.Close()
			}
		}(i)
	}

	wg.Wait()

	totalRequests := successCount.Load() + errorCount.Load()
	actualRPS := float64(totalRequests) / duration.Seconds()

	logger.Info("load test finished",
		"total_requests", totalRequests,
		"created", successCount.Load(),
		"errors", errorCount.Load(),
		"actual_rps", actualRPS,
	)
}
