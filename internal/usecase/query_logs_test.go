package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/V4T54L/audit-trail/internal/domain"
)

func TestQueryLogsUseCase(t *testing.T) {
	store := seededStore(t, 3, 5)
	uc := NewQueryLogsUseCase(store)
	ctx := context.Background()

	logs, err := uc.ListLogs(ctx, domain.LogFilter{TenantID: 3, Limit: 2}, 2)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(logs) != 2 || logs[0].ID != 3 {
		t.Errorf("expected second page starting at id 3, got %+v", logs)
	}

	if _, err := uc.GetLog(ctx, 4, logs[0].ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected other tenant lookup to be not found, got %v", err)
	}
	if _, err := uc.GetLog(ctx, 0, 1); !errors.Is(err, domain.ErrTenantRequired) {
		t.Errorf("expected ErrTenantRequired, got %v", err)
	}
}
