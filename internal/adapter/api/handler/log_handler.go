package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/V4T54L/audit-trail/internal/adapter/api/middleware"
	"github.com/V4T54L/audit-trail/internal/domain"
	"github.com/V4T54L/audit-trail/internal/usecase"
)

// LogCreator is the write path used by LogHandler.
type LogCreator interface {
	Create(ctx context.Context, caller domain.Identity, req usecase.CreateLogRequest) (*domain.AuditLog, error)
}

// LogReader reads committed records from the durable store.
type LogReader interface {
	GetLog(ctx context.Context, tenantID, id int64) (*domain.AuditLog, error)
	ListLogs(ctx context.Context, filter domain.LogFilter, page int) ([]domain.AuditLog, error)
}

// LogSearcher queries the search index.
type LogSearcher interface {
	Search(ctx context.Context, q domain.SearchQuery) (domain.SearchResult, error)
}

// LogHandler serves /v1/logs.
type LogHandler struct {
	creator      LogCreator
	reader       LogReader
	searcher     LogSearcher
	logger       *slog.Logger
	maxBodyBytes int64
}

// NewLogHandler creates a new LogHandler.
func NewLogHandler(creator LogCreator, reader LogReader, searcher LogSearcher, logger *slog.Logger, maxBodyBytes int64) *LogHandler {
	return &LogHandler{
		creator:      creator,
		reader:       reader,
		searcher:     searcher,
		logger:       logger.With("component", "log_handler"),
		maxBodyBytes: maxBodyBytes,
	}
}

// BulkResult summarises an NDJSON submission.
type BulkResult struct {
	Created int         `json:"created"`
	IDs     []int64     `json:"ids"`
	Errors  []BulkError `json:"errors,omitempty"`
}

type BulkError struct {
	Line  int    `json:"line"`
	Error string `json:"error"`
}

// Create handles POST /v1/logs. A JSON body creates one record and answers
// 201 with it; an NDJSON body creates one record per line.
func (h *LogHandler) Create(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		respondWithError(w, h.logger, domain.ErrTenantRequired)
		return
	}

	// Enforce max body size
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/json", "":
		h.createSingle(w, r, caller)
	case "application/x-ndjson":
		h.createBulk(w, r, caller)
	default:
		http.Error(w, "Unsupported Media Type: "+mediaType, http.StatusUnsupportedMediaType)
	}
}

func (h *LogHandler) createSingle(w http.ResponseWriter, r *http.Request, caller domain.Identity) {
	var req usecase.CreateLogRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		h.respondDecodeError(w, err)
		return
	}

	record, err := h.creator.Create(r.Context(), caller, req)
	if err != nil {
		respondWithError(w, h.logger, err)
		return
	}
	respondWithJSON(w, h.logger, http.StatusCreated, record)
}

func (h *LogHandler) createBulk(w http.ResponseWriter, r *http.Request, caller domain.Identity) {
	result := BulkResult{IDs: []int64{}}
	scanner := bufio.NewScanner(r.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), int(h.maxBodyBytes))

	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}

		var req usecase.CreateLogRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			result.Errors = append(result.Errors, BulkError{Line: line, Error: "invalid JSON"})
			continue
		}

		record, err := h.creator.Create(r.Context(), caller, req)
		if err != nil {
			if !errors.Is(err, domain.ErrInvalidRequest) {
				h.logger.Error("failed to create audit log from ndjson stream", "error", err, "line", line)
			}
			result.Errors = append(result.Errors, BulkError{Line: line, Error: err.Error()})
			continue
		}
		result.Created++
		result.IDs = append(result.IDs, record.ID)
	}
	if err := scanner.Err(); err != nil {
		h.respondDecodeError(w, err)
		return
	}

	code := http.StatusCreated
	if len(result.Errors) > 0 {
		code = http.StatusMultiStatus
	}
	respondWithJSON(w, h.logger, code, result)
}

func (h *LogHandler) respondDecodeError(w http.ResponseWriter, err error) {
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		http.Error(w, "Payload too large", http.StatusRequestEntityTooLarge)
		return
	}
	respondWithError(w, h.logger, fmt.Errorf("%w: %v", domain.ErrInvalidRequest, err))
}

// Get handles GET /v1/logs/{id}.
func (h *LogHandler) Get(w http.ResponseWriter, r *http.Request) {
	caller, _ := middleware.IdentityFrom(r.Context())

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		respondWithError(w, h.logger, fmt.Errorf("%w: invalid id", domain.ErrInvalidRequest))
		return
	}

	record, err := h.reader.GetLog(r.Context(), caller.TenantID, id)
	if err != nil {
		respondWithError(w, h.logger, err)
		return
	}
	respondWithJSON(w, h.logger, http.StatusOK, record)
}

// List handles GET /v1/logs, reading from the durable store.
func (h *LogHandler) List(w http.ResponseWriter, r *http.Request) {
	caller, _ := middleware.IdentityFrom(r.Context())
	q := r.URL.Query()

	start, end, err := parseRange(q)
	if err != nil {
		respondWithError(w, h.logger, err)
		return
	}
	page, limit, err := parsePaging(q)
	if err != nil {
		respondWithError(w, h.logger, err)
		return
	}

	logs, err := h.reader.ListLogs(r.Context(), domain.LogFilter{
		TenantID:     caller.TenantID,
		UserID:       q.Get("user_id"),
		Action:       domain.Action(q.Get("action")),
		ResourceType: q.Get("resource_type"),
		ResourceID:   q.Get("resource_id"),
		Severity:     domain.Severity(q.Get("severity")),
		Start:        start,
		End:          end,
		Limit:        limit,
	}, page)
	if err != nil {
		respondWithError(w, h.logger, err)
		return
	}
	if logs == nil {
		logs = []domain.AuditLog{}
	}
	respondWithJSON(w, h.logger, http.StatusOK, map[string]any{"page": page, "items": logs})
}

// Search handles GET /v1/logs/search. A failed search answers 503, never an
// empty result.
func (h *LogHandler) Search(w http.ResponseWriter, r *http.Request) {
	caller, _ := middleware.IdentityFrom(r.Context())
	q := r.URL.Query()

	start, end, err := parseRange(q)
	if err != nil {
		respondWithError(w, h.logger, err)
		return
	}
	page, limit, err := parsePaging(q)
	if err != nil {
		respondWithError(w, h.logger, err)
		return
	}

	result, err := h.searcher.Search(r.Context(), domain.SearchQuery{
		TenantID:     caller.TenantID,
		Text:         q.Get("q"),
		UserID:       q.Get("user_id"),
		Action:       domain.Action(q.Get("action")),
		ResourceType: q.Get("resource_type"),
		Severity:     domain.Severity(q.Get("severity")),
		Start:        start,
		End:          end,
		Page:         page,
		Limit:        limit,
	})
	if err != nil {
		respondWithError(w, h.logger, err)
		return
	}
	respondWithJSON(w, h.logger, http.StatusOK, result)
}

func parseRange(q url.Values) (start, end *time.Time, err error) {
	parse := func(key string) (*time.Time, error) {
		v := q.Get(key)
		if v == "" {
			return nil, nil
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return nil, fmt.Errorf("%w: %s must be RFC3339", domain.ErrInvalidRequest, key)
		}
		return &t, nil
	}
	if start, err = parse("start"); err != nil {
		return nil, nil, err
	}
	if end, err = parse("end"); err != nil {
		return nil, nil, err
	}
	if start != nil && end != nil && end.Before(*start) {
		return nil, nil, fmt.Errorf("%w: end is before start", domain.ErrInvalidRequest)
	}
	return start, end, nil
}

func parsePaging(q url.Values) (page, limit int, err error) {
	parse := func(key string) (int, error) {
		v := q.Get(key)
		if v == "" {
			return 0, nil
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("%w: %s must be a non-negative integer", domain.ErrInvalidRequest, key)
		}
		return n, nil
	}
	if page, err = parse("page"); err != nil {
		return 0, 0, err
	}
	if limit, err = parse("limit"); err != nil {
		return 0, 0, err
	}
	if page < 1 {
		page = 1
	}
	return page, limit, nil
}
