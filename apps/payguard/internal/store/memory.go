package store

import (
	"context"
	"strings"
	"sync"
	"time"

	"payguard/apps/payguard/internal/model"
)

// MemoryStore keeps approval records in a mutex-guarded map. Suitable for
// tests and single-process runs without a database; for durable deployments
// use the repository-backed store or the HTTP store.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]model.ApprovalRecord
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]model.ApprovalRecord),
		now:     time.Now,
	}
}

func (s *MemoryStore) Put(ctx context.Context, record model.ApprovalRecord) (model.ApprovalRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record.Timestamp = s.now().UnixMilli()
	s.records[model.RecordKey(record.WalletAddress)] = record
	return record, nil
}

func (s *MemoryStore) Get(ctx context.Context, walletAddress string) (*model.ApprovalRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[model.RecordKey(walletAddress)]
	if !ok {
		return nil, nil
	}
	return &record, nil
}

func (s *MemoryStore) UpdateStatus(ctx context.Context, walletAddress string, status model.ApprovalStatus, txHash string) (*model.ApprovalRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := model.RecordKey(walletAddress)
	record, ok := s.records[key]
	if !ok {
		return nil, ErrNotFound
	}
	record.Status = status
	if txHash != "" {
		record.TransactionHash = txHash
	}
	s.records[key] = record
	return &record, nil
}

func (s *MemoryStore) ListAll(ctx context.Context) ([]model.ApprovalRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	records := make([]model.ApprovalRecord, 0, len(s.records))
	for key, record := range s.records {
		if !strings.HasPrefix(key, model.RecordKeyPrefix) {
			continue
		}
		records = append(records, record)
	}
	return records, nil
}
