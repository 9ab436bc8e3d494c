package ledger

import (
	"context"
	"sync"
)

// Recorder persists ledger records.
type Recorder interface {
	RecordTransaction(ctx context.Context, rec TransactionRecord) error
	RecordRefund(ctx context.Context, rec RefundRecord) error
	RecordBridge(ctx context.Context, rec BridgeRecord) error
}

// MemoryRecorder keeps records in memory. Refunds mark the matching
// transaction as refunded.
type MemoryRecorder struct {
	mu           sync.RWMutex
	transactions []TransactionRecord
	refunds      []RefundRecord
	bridges      []BridgeRecord
}

func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{}
}

func (m *MemoryRecorder) RecordTransaction(_ context.Context, rec TransactionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transactions = append(m.transactions, rec)
	return nil
}

func (m *MemoryRecorder) RecordRefund(_ context.Context, rec RefundRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.refunds = append(m.refunds, rec)
	for i := range m.transactions {
		if m.transactions[i].ID == rec.TransactionID {
			m.transactions[i].Status = StatusRefunded
		}
	}
	return nil
}

func (m *MemoryRecorder) RecordBridge(_ context.Context, rec BridgeRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bridges = append(m.bridges, rec)
	return nil
}

func (m *MemoryRecorder) Transactions() []TransactionRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]TransactionRecord(nil), m.transactions...)
}

func (m *MemoryRecorder) Refunds() []RefundRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]RefundRecord(nil), m.refunds...)
}

func (m *MemoryRecorder) Bridges() []BridgeRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]BridgeRecord(nil), m.bridges...)
}

// NopRecorder drops every record.
type NopRecorder struct{}

func (NopRecorder) RecordTransaction(context.Context, TransactionRecord) error { return nil }
func (NopRecorder) RecordRefund(context.Context, RefundRecord) error           { return nil }
func (NopRecorder) RecordBridge(context.Context, BridgeRecord) error           { return nil }
