package storage

import (
	"context"
	"sort"
	"strconv"
	"sync"

	"batchrpc/internal/shared/model"
)

// MemoryAuditStore 内存审计存储（用于测试）
type MemoryAuditStore struct {
	mu      sync.Mutex
	records []*model.AuditRecord
	seq     int

	// RecordErr 非 nil 时 RecordAudit 返回该错误
	RecordErr error
}

// NewMemoryAuditStore 创建内存审计存储
func NewMemoryAuditStore() *MemoryAuditStore {
	return &MemoryAuditStore{}
}

func (m *MemoryAuditStore) RecordAudit(_ context.Context, rec *model.AuditRecord) error {
	if m.RecordErr != nil {
		return m.RecordErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	if rec.ID == "" {
		rec.ID = strconv.Itoa(m.seq)
	}
	for _, r := range m.records {
		if r.ID == rec.ID {
			return ErrDuplicate
		}
	}
	cp := *rec
	m.records = append(m.records, &cp)
	return nil
}

func (m *MemoryAuditStore) GetAudit(_ context.Context, id string) (*model.AuditRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.records {
		if r.ID == id {
			cp := *r
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryAuditStore) ListAudit(_ context.Context, filter model.AuditFilter) ([]*model.AuditRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.match(filter)
	limit := filter.Limit
	if limit <= 0 {
		limit = model.DefaultAuditLimit
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryAuditStore) CountAudit(_ context.Context, filter model.AuditFilter) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.match(filter))), nil
}

func (m *MemoryAuditStore) Close() error {
	return nil
}

func (m *MemoryAuditStore) match(f model.AuditFilter) []*model.AuditRecord {
	var out []*model.AuditRecord
	for i := len(m.records) - 1; i >= 0; i-- {
		r := m.records[i]
		if f.CorrelationID != "" && r.CorrelationID != f.CorrelationID {
			continue
		}
		if f.Cmd != "" && r.Cmd != f.Cmd {
			continue
		}
		if f.Event != "" && r.Event != f.Event {
			continue
		}
		if !f.Since.IsZero() && r.CreatedAt.Before(f.Since) {
			continue
		}
		cp := *r
		out = append(out, &cp)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

var _ AuditStore = (*MemoryAuditStore)(nil)
