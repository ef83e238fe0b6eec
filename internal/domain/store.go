package domain

import "context"

// SnapshotStore persists whole-document snapshots.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, s *Snapshot) error
	LoadSnapshot(ctx context.Context, docID string) (*Snapshot, error)
	ListDocuments(ctx context.Context) ([]DocumentInfo, error)
	DeleteDocument(ctx context.Context, docID string) error
}

// ChangeLog persists committed transactions between snapshots.
type ChangeLog interface {
	AppendChange(ctx context.Context, c *Change) error
	ChangesSince(ctx context.Context, docID string, version uint64) ([]Change, error)
	PruneChanges(ctx context.Context, docID string, upTo uint64) (int64, error)
}
