package store

import (
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/ovclabs/ovc/internal/models"
)

// MergeRecord is the persisted audit entry for one merge invocation.
type MergeRecord struct {
	ID            string             `json:"id"`
	Database      string             `json:"database"`
	SourceBranch  string             `json:"source_branch"`
	TargetBranch  string             `json:"target_branch"`
	Status        models.MergeStatus `json:"status"`
	CommitID      string             `json:"commit_id,omitempty"`
	Decision      string             `json:"decision,omitempty"`
	ConflictCount int                `json:"conflict_count"`
	AutoResolved  bool               `json:"auto_resolved"`
	MaxSeverity   models.Severity    `json:"max_severity"`
	DurationMS    int64              `json:"duration_ms"`
	CreatedAt     time.Time          `json:"created_at"`
}

// auditKey orders records chronologically within the bucket.
func auditKey(r *MergeRecord) []byte {
	return []byte(r.CreatedAt.UTC().Format(time.RFC3339Nano) + "|" + r.ID)
}

// SaveMergeRecord persists a merge audit record.
func (s *Store) SaveMergeRecord(record *MergeRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal merge record: %w", err)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketMergeRecords)
		if b == nil {
			return fmt.Errorf("merge_records bucket not found")
		}
		return b.Put(auditKey(record), data)
	})
}

// ListMergeRecords returns merge records in reverse chronological order.
// A limit of 0 returns all records.
func (s *Store) ListMergeRecords(limit int) ([]*MergeRecord, error) {
	var records []*MergeRecord

	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketMergeRecords)
		if b == nil {
			return nil
		}

		c := b.Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			var record MergeRecord
			if err := json.Unmarshal(v, &record); err != nil {
				return fmt.Errorf("unmarshal merge record: %w", err)
			}
			records = append(records, &record)
			if limit > 0 && len(records) >= limit {
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return records, nil
}
