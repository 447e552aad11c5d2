package mocks

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/V4T54L/audit-trail/internal/domain"
)

// MockAuditLogStore is an in-memory domain.AuditLogStore.
type MockAuditLogStore struct {
	mu        sync.Mutex
	nextID    int64
	Records   []domain.AuditLog
	InsertErr error
	GetErr    error
	ListErr   error
}

func (m *MockAuditLogStore) Insert(ctx context.Context, log *domain.AuditLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.InsertErr != nil {
		return m.InsertErr
	}
	if log.ID == 0 {
		m.nextID++
		log.ID = m.nextID
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	m.Records = append(m.Records, *log)
	return nil
}

func (m *MockAuditLogStore) Get(ctx context.Context, tenantID, id int64) (*domain.AuditLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	for i := range m.Records {
		if m.Records[i].TenantID == tenantID && m.Records[i].ID == id {
			rec := m.Records[i]
			return &rec, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MockAuditLogStore) List(ctx context.Context, filter domain.LogFilter) ([]domain.AuditLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	var out []domain.AuditLog
	for _, rec := range m.Records {
		if rec.TenantID != filter.TenantID {
			continue
		}
		if filter.Start != nil && rec.CreatedAt.Before(*filter.Start) {
			continue
		}
		if filter.End != nil && rec.CreatedAt.After(*filter.End) {
			continue
		}
		if filter.Action != "" && rec.Action != filter.Action {
			continue
		}
		if filter.Severity != "" && rec.Severity != filter.Severity {
			continue
		}
		if filter.UserID != "" && rec.UserID != filter.UserID {
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if filter.Offset >= len(out) {
		return nil, nil
	}
	out = out[filter.Offset:]
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// MockTaskQueue is a recording domain.TaskQueue. Batches are handed out in
// order; afterwards ReceiveBatch waits for WaitTime and returns nothing.
type MockTaskQueue struct {
	mu           sync.Mutex
	Batches      [][]domain.Message
	ReceiveErrs  []error
	ReceiveCalls int
	Enqueued     []domain.Envelope
	Deleted      []domain.Message
	Retried      []domain.Envelope
	RetryDelays  []time.Duration
	DeadLettered []domain.Envelope
	DeadLetter   bool
	EnqueueErr   error
	DeleteErr    error
	RetryErr     error
	RedriveErr   error
}

func (m *MockTaskQueue) Enqueue(ctx context.Context, env domain.Envelope, opts domain.SendOptions) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.EnqueueErr != nil {
		return "", m.EnqueueErr
	}
	m.Enqueued = append(m.Enqueued, env)
	return "msg-" + strconv.Itoa(len(m.Enqueued)), nil
}

func (m *MockTaskQueue) ReceiveBatch(ctx context.Context, opts domain.ReceiveOptions) ([]domain.Message, error) {
	m.mu.Lock()
	m.ReceiveCalls++
	if len(m.ReceiveErrs) > 0 {
		err := m.ReceiveErrs[0]
		m.ReceiveErrs = m.ReceiveErrs[1:]
		m.mu.Unlock()
		return nil, err
	}
	if len(m.Batches) > 0 {
		batch := m.Batches[0]
		m.Batches = m.Batches[1:]
		m.mu.Unlock()
		return batch, nil
	}
	m.mu.Unlock()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(opts.WaitTime):
		return nil, nil
	}
}

func (m *MockTaskQueue) Delete(ctx context.Context, msg domain.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.DeleteErr != nil {
		return m.DeleteErr
	}
	m.Deleted = append(m.Deleted, msg)
	return nil
}

func (m *MockTaskQueue) Retry(ctx context.Context, msg domain.Message, env domain.Envelope, delay time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.RetryErr != nil {
		return m.RetryErr
	}
	m.Retried = append(m.Retried, env)
	m.RetryDelays = append(m.RetryDelays, delay)
	m.Deleted = append(m.Deleted, msg)
	return nil
}

func (m *MockTaskQueue) Redrive(ctx context.Context, msg domain.Message, env domain.Envelope) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.DeadLetter {
		return domain.ErrDeadLetterNotConfigured
	}
	if m.RedriveErr != nil {
		return m.RedriveErr
	}
	m.DeadLettered = append(m.DeadLettered, env)
	m.Deleted = append(m.Deleted, msg)
	return nil
}

func (m *MockTaskQueue) DeadLetterConfigured() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.DeadLetter
}

// Snapshot returns copies of the recorded calls.
func (m *MockTaskQueue) Snapshot() (deleted []domain.Message, retried, deadLettered []domain.Envelope) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Message(nil), m.Deleted...),
		append([]domain.Envelope(nil), m.Retried...),
		append([]domain.Envelope(nil), m.DeadLettered...)
}

// MockQueueInspector returns fixed queue stats.
type MockQueueInspector struct {
	Result   []domain.QueueStats
	StatsErr error
}

func (m *MockQueueInspector) Stats(ctx context.Context) ([]domain.QueueStats, error) {
	return m.Result, m.StatsErr
}

// MockIndexSink is an in-memory domain.IndexSink with upsert semantics.
// UpsertErrs are returned one per call before falling back to UpsertErr.
type MockIndexSink struct {
	mu          sync.Mutex
	Docs        map[string]map[string]domain.IndexedDocument
	Ensured     []string
	UpsertCalls int
	UpsertErrs  []error
	UpsertErr   error
	EnsureErr   error
	QueryErr    error
	QueryCalls  int
}

func (m *MockIndexSink) EnsureIndex(ctx context.Context, index string, mapping map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.EnsureErr != nil {
		return m.EnsureErr
	}
	m.Ensured = append(m.Ensured, index)
	return nil
}

func (m *MockIndexSink) Upsert(ctx context.Context, index, docID string, doc domain.IndexedDocument) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.UpsertCalls++
	if len(m.UpsertErrs) > 0 {
		err := m.UpsertErrs[0]
		m.UpsertErrs = m.UpsertErrs[1:]
		if err != nil {
			return err
		}
	} else if m.UpsertErr != nil {
		return m.UpsertErr
	}
	if m.Docs == nil {
		m.Docs = make(map[string]map[string]domain.IndexedDocument)
	}
	if m.Docs[index] == nil {
		m.Docs[index] = make(map[string]domain.IndexedDocument)
	}
	m.Docs[index][docID] = doc
	return nil
}

func (m *MockIndexSink) Query(ctx context.Context, index string, q domain.SearchQuery) (domain.SearchResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.QueryCalls++
	if m.QueryErr != nil {
		return domain.SearchResult{}, m.QueryErr
	}
	tenant := strconv.FormatInt(q.TenantID, 10)
	result := domain.SearchResult{Page: q.Page, Limit: q.Limit, Hits: []domain.SearchHit{}}
	for _, doc := range m.Docs[index] {
		if doc.TenantID != tenant {
			continue
		}
		if q.Text != "" && !strings.Contains(doc.Message, q.Text) && !strings.Contains(doc.LogMetadata, q.Text) {
			continue
		}
		if q.Action != "" && doc.Action != string(q.Action) {
			continue
		}
		if q.Severity != "" && doc.Severity != string(q.Severity) {
			continue
		}
		result.Hits = append(result.Hits, domain.SearchHit{Score: 1, Document: doc})
	}
	sort.Slice(result.Hits, func(i, j int) bool {
		return result.Hits[i].Document.ID < result.Hits[j].Document.ID
	})
	result.Total = int64(len(result.Hits))
	return result, nil
}

// Count returns how many documents exist in index.
func (m *MockIndexSink) Count(index string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Docs[index])
}

// MockBlobStore records archive objects.
type MockBlobStore struct {
	mu      sync.Mutex
	Objects map[string][]byte
	PutErr  error
}

func (m *MockBlobStore) Put(ctx context.Context, key string, body []byte, contentType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.PutErr != nil {
		return m.PutErr
	}
	if m.Objects == nil {
		m.Objects = make(map[string][]byte)
	}
	m.Objects[key] = append([]byte(nil), body...)
	return nil
}

// MockWALRepository is an in-memory domain.WALRepository.
type MockWALRepository struct {
	mu        sync.Mutex
	Entries   []domain.Envelope
	WriteErr  error
	Truncated int
}

func (m *MockWALRepository) Write(ctx context.Context, env domain.Envelope) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.WriteErr != nil {
		return m.WriteErr
	}
	m.Entries = append(m.Entries, env)
	return nil
}

func (m *MockWALRepository) Replay(ctx context.Context, handler func(domain.Envelope) error) error {
	m.mu.Lock()
	entries := append([]domain.Envelope(nil), m.Entries...)
	m.mu.Unlock()
	for _, env := range entries {
		if err := handler(env); err != nil {
			return err
		}
	}
	return nil
}

func (m *MockWALRepository) Truncate(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Entries = nil
	m.Truncated++
	return nil
}

func (m *MockWALRepository) Close() error { return nil }

// MockTenantRepository reports every tenant in Known as existing. Created
// tenants become known.
type MockTenantRepository struct {
	mu        sync.Mutex
	Known     map[int64]bool
	Tenants   []domain.Tenant
	ExistsErr error
	ListErr   error
	CreateErr error
}

func (m *MockTenantRepository) Exists(ctx context.Context, tenantID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ExistsErr != nil {
		return false, m.ExistsErr
	}
	return m.Known[tenantID], nil
}

func (m *MockTenantRepository) List(ctx context.Context) ([]domain.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	return append([]domain.Tenant(nil), m.Tenants...), nil
}

func (m *MockTenantRepository) Create(ctx context.Context, tenant *domain.Tenant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CreateErr != nil {
		return m.CreateErr
	}
	tenant.ID = int64(len(m.Tenants) + 1)
	tenant.CreatedAt = time.Now().UTC()
	tenant.UpdatedAt = tenant.CreatedAt
	m.Tenants = append(m.Tenants, *tenant)
	if m.Known == nil {
		m.Known = make(map[int64]bool)
	}
	m.Known[tenant.ID] = true
	return nil
}
