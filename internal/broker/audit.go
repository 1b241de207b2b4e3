package broker

import (
	"sync"
	"time"

	"github.com/keymq/keymq/internal/model"
)

// AuditLog is the broker's append-only record of accepted writes and
// promotions. Entries are never removed; the log lives and dies with the
// process.
type AuditLog struct {
	mu      sync.RWMutex
	records []model.AuditRecord
}

// NewAuditLog creates an empty audit log.
func NewAuditLog() *AuditLog {
	return &AuditLog{}
}

// Append records one classified event.
func (l *AuditLog) Append(kind model.AuditKind, key, replicaOf string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, model.AuditRecord{
		Kind:      kind,
		Key:       key,
		ReplicaOf: replicaOf,
		Timestamp: time.Now().UTC(),
	})
}

// ByKind returns all records of one classification, oldest first.
func (l *AuditLog) ByKind(kind model.AuditKind) []model.AuditRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []model.AuditRecord
	for _, rec := range l.records {
		if rec.Kind == kind {
			out = append(out, rec)
		}
	}
	return out
}

// Summary counts records by classification.
func (l *AuditLog) Summary() model.AuditSummary {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var summary model.AuditSummary
	for _, rec := range l.records {
		switch rec.Kind {
		case model.AuditStoredAsPrimary:
			summary.StoredAsPrimary++
		case model.AuditStoredAsReplica:
			summary.StoredAsReplica++
		case model.AuditPromotedToPrimary:
			summary.PromotedToPrimary++
		}
	}
	return summary
}
