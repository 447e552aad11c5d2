package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/V4T54L/audit-trail/internal/domain"
)

const auditLogColumns = `id, tenant_id, created_at, user_id, action, resource_type, resource_id,
	ip_address, user_agent, message, severity, before_state, after_state, log_metadata, session_data`

// AuditLogRepository implements domain.AuditLogStore on the audit_logs table,
// which is partitioned by tenant and time.
type AuditLogRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewAuditLogRepository creates a new PostgreSQL audit log repository.
func NewAuditLogRepository(db *sql.DB, logger *slog.Logger) *AuditLogRepository {
	return &AuditLogRepository{db: db, logger: logger.With("component", "audit_log_repository")}
}

// Insert writes the record in its own transaction and reads back the
// generated id and created_at.
func (r *AuditLogRepository) Insert(ctx context.Context, log *domain.AuditLog) error {
	before, err := marshalJSON(log.BeforeState)
	if err != nil {
		return err
	}
	after, err := marshalJSON(log.AfterState)
	if err != nil {
		return err
	}
	metadata, err := marshalJSON(log.LogMetadata)
	if err != nil {
		return err
	}
	session, err := marshalJSON(log.SessionData)
	if err != nil {
		return err
	}
	if session == nil {
		session = []byte("{}")
	}

	txn, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer txn.Rollback() // Rollback is a no-op if Commit() is called

	query := `
		INSERT INTO audit_logs (tenant_id, user_id, action, resource_type, resource_id, ip_address,
			user_agent, message, severity, before_state, after_state, log_metadata, session_data)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id, created_at`
	err = txn.QueryRowContext(ctx, query,
		log.TenantID, log.UserID, string(log.Action), log.ResourceType, log.ResourceID, log.IPAddress,
		log.UserAgent, log.Message, string(log.Severity), before, after, metadata, session,
	).Scan(&log.ID, &log.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert audit log: %w", err)
	}

	if err := txn.Commit(); err != nil {
		return fmt.Errorf("failed to commit audit log: %w", err)
	}
	return nil
}

// Get looks a record up by tenant and id. The tenant predicate comes first
// so the planner can prune partitions.
func (r *AuditLogRepository) Get(ctx context.Context, tenantID, id int64) (*domain.AuditLog, error) {
	query := `SELECT ` + auditLogColumns + ` FROM audit_logs WHERE tenant_id = $1 AND id = $2`
	row := r.db.QueryRowContext(ctx, query, tenantID, id)

	log, err := scanAuditLog(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get audit log: %w", err)
	}
	return log, nil
}

// List returns records newest first.
func (r *AuditLogRepository) List(ctx context.Context, filter domain.LogFilter) ([]domain.AuditLog, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT ` + auditLogColumns + ` FROM audit_logs WHERE tenant_id = $1`)
	args := []any{filter.TenantID}

	where := func(clause string, value any) {
		args = append(args, value)
		sb.WriteString(" AND " + clause + " $" + strconv.Itoa(len(args)))
	}
	if filter.Start != nil {
		where("created_at >=", *filter.Start)
	}
	if filter.End != nil {
		where("created_at <=", *filter.End)
	}
	if filter.UserID != "" {
		where("user_id =", filter.UserID)
	}
	if filter.ResourceType != "" {
		where("resource_type =", filter.ResourceType)
	}
	if filter.ResourceID != "" {
		where("resource_id =", filter.ResourceID)
	}
	if filter.Action != "" {
		where("action =", string(filter.Action))
	}
	if filter.Severity != "" {
		where("severity =", string(filter.Severity))
	}

	sb.WriteString(" ORDER BY created_at DESC, id DESC")
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		sb.WriteString(" LIMIT $" + strconv.Itoa(len(args)))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		sb.WriteString(" OFFSET $" + strconv.Itoa(len(args)))
	}

	rows, err := r.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit logs: %w", err)
	}
	defer rows.Close()

	var logs []domain.AuditLog
	for rows.Next() {
		log, err := scanAuditLog(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit log: %w", err)
		}
		logs = append(logs, *log)
	}
	return logs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAuditLog(s scanner) (*domain.AuditLog, error) {
	var (
		log                              domain.AuditLog
		action, severity                 string
		before, after, metadata, session []byte
	)
	err := s.Scan(&log.ID, &log.TenantID, &log.CreatedAt, &log.UserID, &action, &log.ResourceType, &log.ResourceID,
		&log.IPAddress, &log.UserAgent, &log.Message, &severity, &before, &after, &metadata, &session)
	if err != nil {
		return nil, err
	}
	log.Action = domain.Action(action)
	log.Severity = domain.Severity(severity)

	for _, col := range []struct {
		raw []byte
		dst *map[string]any
	}{
		{before, &log.BeforeState},
		{after, &log.AfterState},
		{metadata, &log.LogMetadata},
		{session, &log.SessionData},
	} {
		if len(col.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(col.raw, col.dst); err != nil {
			return nil, fmt.Errorf("failed to decode jsonb column: %w", err)
		}
	}
	return &log, nil
}

func marshalJSON(m map[string]any) ([]byte, error) {
	if m == nil {
		return nil, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to encode jsonb column: %w", err)
	}
	return data, nil
}
