package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"blockdoc/internal/domain"
)

// SnapshotStore implements domain.SnapshotStore on a SQL database.
type SnapshotStore struct {
	db *DB
}

var _ domain.SnapshotStore = (*SnapshotStore)(nil)

func NewSnapshotStore(db *DB) *SnapshotStore {
	return &SnapshotStore{db: db}
}

func (s *SnapshotStore) upsert() string {
	if s.db.dialect == DialectMySQL {
		return `INSERT INTO snapshots (doc_id, page_id, version, snapshot_json, updated_at) VALUES (?, ?, ?, ?, ?)
			ON DUPLICATE KEY UPDATE page_id = VALUES(page_id), version = VALUES(version),
			snapshot_json = VALUES(snapshot_json), updated_at = VALUES(updated_at)`
	}
	return `INSERT INTO snapshots (doc_id, page_id, version, snapshot_json, updated_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(doc_id) DO UPDATE SET page_id = excluded.page_id, version = excluded.version,
		snapshot_json = excluded.snapshot_json, updated_at = excluded.updated_at`
}

func (s *SnapshotStore) SaveSnapshot(ctx context.Context, snap *domain.Snapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot %s: %w", snap.DocID, err)
	}
	updated := snap.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}
	_, err = s.db.conn.ExecContext(ctx, s.db.rebind(s.upsert()),
		snap.DocID, snap.PageID, int64(snap.Version), string(raw), updated.UTC(),
	)
	if err != nil {
		return fmt.Errorf("save snapshot %s: %w", snap.DocID, err)
	}
	return nil
}

func (s *SnapshotStore) LoadSnapshot(ctx context.Context, docID string) (*domain.Snapshot, error) {
	var raw string
	err := s.db.conn.QueryRowContext(ctx,
		s.db.rebind(`SELECT snapshot_json FROM snapshots WHERE doc_id = ?`), docID,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("snapshot %s: %w", docID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot %s: %w", docID, err)
	}
	var snap domain.Snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot %s: %w", docID, err)
	}
	return &snap, nil
}

func (s *SnapshotStore) ListDocuments(ctx context.Context) ([]domain.DocumentInfo, error) {
	rows, err := s.db.conn.QueryContext(ctx,
		`SELECT doc_id, page_id, version, updated_at FROM snapshots ORDER BY doc_id ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var docs []domain.DocumentInfo
	for rows.Next() {
		var d domain.DocumentInfo
		var version int64
		if err := rows.Scan(&d.DocID, &d.PageID, &version, &d.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		d.Version = uint64(version)
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// DeleteDocument removes the snapshot and the change log of a document.
func (s *SnapshotStore) DeleteDocument(ctx context.Context, docID string) error {
	tx, err := s.db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, s.db.rebind(`DELETE FROM snapshots WHERE doc_id = ?`), docID)
	if err != nil {
		return fmt.Errorf("delete snapshot %s: %w", docID, err)
	}
	if _, err := tx.ExecContext(ctx, s.db.rebind(`DELETE FROM change_log WHERE doc_id = ?`), docID); err != nil {
		return fmt.Errorf("delete change log %s: %w", docID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("snapshot %s: %w", docID, domain.ErrNotFound)
	}
	return tx.Commit()
}
