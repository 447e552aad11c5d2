package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/V4T54L/audit-trail/internal/adapter/api/middleware"
	"github.com/V4T54L/audit-trail/internal/domain"
)

const (
	sseClientBuffer   = 64
	sseHeartbeatEvery = 15 * time.Second
)

// LogStreamBroker fans committed records out to Server-Sent Event clients of
// the same tenant. It implements usecase.CommitListener.
type LogStreamBroker struct {
	logger    *slog.Logger
	mu        sync.RWMutex
	clients   map[int64]map[chan []byte]struct{}
	heartbeat time.Duration
}

// NewLogStreamBroker creates a new LogStreamBroker.
func NewLogStreamBroker(logger *slog.Logger) *LogStreamBroker {
	return &LogStreamBroker{
		logger:    logger.With("component", "log_stream"),
		clients:   make(map[int64]map[chan []byte]struct{}),
		heartbeat: sseHeartbeatEvery,
	}
}

// ServeHTTP streams records for the caller's tenant until the client leaves.
func (b *LogStreamBroker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported!", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	messageChan := make(chan []byte, sseClientBuffer)
	b.addClient(caller.TenantID, messageChan)
	defer b.removeClient(caller.TenantID, messageChan)

	ticker := time.NewTicker(b.heartbeat)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case msg := <-messageChan:
			fmt.Fprintf(w, "event: audit_log\ndata: %s\n\n", msg)
			flusher.Flush()
		}
	}
}

// Committed broadcasts log to the subscribers of its tenant. Slow clients
// miss events rather than block the write path.
func (b *LogStreamBroker) Committed(log domain.AuditLog) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	subscribers := b.clients[log.TenantID]
	if len(subscribers) == 0 {
		return
	}

	data, err := json.Marshal(log)
	if err != nil {
		b.logger.Error("failed to marshal SSE message", "error", err)
		return
	}
	for client := range subscribers {
		select {
		case client <- data:
		default:
			b.logger.Debug("SSE client buffer full, dropping event", "tenant_id", log.TenantID, "id", log.ID)
		}
	}
}

// Subscribers reports the number of connected clients for a tenant.
func (b *LogStreamBroker) Subscribers(tenantID int64) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients[tenantID])
}

func (b *LogStreamBroker) addClient(tenantID int64, client chan []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.clients[tenantID] == nil {
		b.clients[tenantID] = make(map[chan []byte]struct{})
	}
	b.clients[tenantID][client] = struct{}{}
	b.logger.Info("SSE client connected", "tenant_id", tenantID)
}

func (b *LogStreamBroker) removeClient(tenantID int64, client chan []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.clients[tenantID], client)
	if len(b.clients[tenantID]) == 0 {
		delete(b.clients, tenantID)
	}
	b.logger.Info("SSE client disconnected", "tenant_id", tenantID)
}
