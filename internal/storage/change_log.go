package storage

import (
	"context"
	"fmt"

	"blockdoc/internal/domain"
	"blockdoc/internal/wire"
)

// ChangeLog implements domain.ChangeLog. Each committed change is stored as
// one CBOR row keyed by (doc_id, version).
type ChangeLog struct {
	db *DB
}

var _ domain.ChangeLog = (*ChangeLog)(nil)

func NewChangeLog(db *DB) *ChangeLog {
	return &ChangeLog{db: db}
}

func (l *ChangeLog) AppendChange(ctx context.Context, c *domain.Change) error {
	payload, err := wire.EncodeChange(c)
	if err != nil {
		return err
	}
	_, err = l.db.conn.ExecContext(ctx, l.db.rebind(
		`INSERT INTO change_log (doc_id, version, id, name, origin, payload, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`),
		c.DocID, int64(c.Version), c.ID, c.Name, string(c.Origin), payload, c.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("append change %s v%d: %w", c.DocID, c.Version, err)
	}
	return nil
}

// ChangesSince returns the changes after version, oldest first.
func (l *ChangeLog) ChangesSince(ctx context.Context, docID string, version uint64) ([]domain.Change, error) {
	rows, err := l.db.conn.QueryContext(ctx, l.db.rebind(
		`SELECT payload FROM change_log WHERE doc_id = ? AND version > ? ORDER BY version ASC`),
		docID, int64(version),
	)
	if err != nil {
		return nil, fmt.Errorf("load changes %s: %w", docID, err)
	}
	defer rows.Close()

	var out []domain.Change
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan change: %w", err)
		}
		c, err := wire.DecodeChange(payload)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// PruneChanges drops changes up to and including version upTo, typically
// after a snapshot at that version was saved.
func (l *ChangeLog) PruneChanges(ctx context.Context, docID string, upTo uint64) (int64, error) {
	res, err := l.db.conn.ExecContext(ctx, l.db.rebind(
		`DELETE FROM change_log WHERE doc_id = ? AND version <= ?`), docID, int64(upTo),
	)
	if err != nil {
		return 0, fmt.Errorf("prune changes %s: %w", docID, err)
	}
	return res.RowsAffected()
}
