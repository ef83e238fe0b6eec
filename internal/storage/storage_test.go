package storage_test

import (
	"context"
	"path/filepath"
	"testing"

	"blockdoc/internal/delta"
	"blockdoc/internal/docstore"
	"blockdoc/internal/domain"
	"blockdoc/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openDB(t *testing.T) *storage.DB {
	t.Helper()
	db, err := storage.OpenSQLite(filepath.Join(t.TempDir(), "data", "blockdoc.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func edit(t *testing.T, doc *docstore.Doc, text string) *domain.Change {
	t.Helper()
	first := doc.Snapshot().ChildIDs(doc.PageID())[0]
	b, _ := doc.Block(first)
	c, err := doc.Transact("insertText", domain.OriginLocal, func(tx *docstore.Tx) error {
		return tx.ApplyDelta(b.TextID, []delta.Op{delta.Insert(text, nil)})
	})
	require.NoError(t, err)
	return c
}

// ─────────────────────────────────────────────────────────────
// Snapshots
// ─────────────────────────────────────────────────────────────

func TestSnapshotStore_SaveLoadList(t *testing.T) {
	ctx := context.Background()
	store := storage.NewSnapshotStore(openDB(t))
	doc := docstore.NewDocument("notes")
	edit(t, doc, "hello")

	require.NoError(t, store.SaveSnapshot(ctx, doc.Snapshot()))
	edit(t, doc, "again ")
	require.NoError(t, store.SaveSnapshot(ctx, doc.Snapshot()))

	got, err := store.LoadSnapshot(ctx, "notes")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), got.Version)
	first := got.ChildIDs(got.PageID)[0]
	assert.Equal(t, "again hello", got.PlainText(first))

	docs, err := store.ListDocuments(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "notes", docs[0].DocID)
	assert.Equal(t, doc.PageID(), docs[0].PageID)
	assert.Equal(t, uint64(2), docs[0].Version)
}

func TestSnapshotStore_NotFound(t *testing.T) {
	ctx := context.Background()
	store := storage.NewSnapshotStore(openDB(t))

	_, err := store.LoadSnapshot(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorIs(t, store.DeleteDocument(ctx, "missing"), domain.ErrNotFound)
}

func TestSnapshotStore_DeleteDropsChangeLog(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)
	store, log := storage.NewSnapshotStore(db), storage.NewChangeLog(db)
	doc := docstore.NewDocument("gone")

	require.NoError(t, store.SaveSnapshot(ctx, doc.Snapshot()))
	require.NoError(t, log.AppendChange(ctx, edit(t, doc, "x")))
	require.NoError(t, store.DeleteDocument(ctx, "gone"))

	changes, err := log.ChangesSince(ctx, "gone", 0)
	require.NoError(t, err)
	assert.Empty(t, changes)
}

// ─────────────────────────────────────────────────────────────
// Change log
// ─────────────────────────────────────────────────────────────

func TestChangeLog_ReplayRebuildsDocument(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)
	store, log := storage.NewSnapshotStore(db), storage.NewChangeLog(db)

	doc := docstore.NewDocument("doc")
	require.NoError(t, store.SaveSnapshot(ctx, doc.Snapshot()))
	for _, s := range []string{"c", "b", "a"} {
		require.NoError(t, log.AppendChange(ctx, edit(t, doc, s)))
	}

	snap, err := store.LoadSnapshot(ctx, "doc")
	require.NoError(t, err)
	replica := docstore.Load(snap)
	changes, err := log.ChangesSince(ctx, "doc", snap.Version)
	require.NoError(t, err)
	require.Len(t, changes, 3)
	for _, c := range changes {
		_, err := replica.Commit(c.Name, domain.OriginReplay, c.Ops)
		require.NoError(t, err)
	}
	assert.Equal(t, doc.Version(), replica.Version())
	first := replica.Snapshot().ChildIDs(replica.PageID())[0]
	assert.Equal(t, "abc", replica.Snapshot().PlainText(first))
}

func TestChangeLog_PruneAndDuplicate(t *testing.T) {
	ctx := context.Background()
	log := storage.NewChangeLog(openDB(t))
	doc := docstore.NewDocument("doc")

	var last *domain.Change
	for range 4 {
		last = edit(t, doc, "x")
		require.NoError(t, log.AppendChange(ctx, last))
	}
	assert.Error(t, log.AppendChange(ctx, last), "version is unique per document")

	n, err := log.PruneChanges(ctx, "doc", 3)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	rest, err := log.ChangesSince(ctx, "doc", 0)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, uint64(4), rest[0].Version)
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := storage.Open(context.Background(), "oracle", "dsn")
	assert.Error(t, err)
}
