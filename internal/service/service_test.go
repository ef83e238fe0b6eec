package service_test

import (
	"context"
	"path/filepath"
	"testing"

	"blockdoc/internal/delta"
	"blockdoc/internal/domain"
	"blockdoc/internal/policy"
	"blockdoc/internal/service"
	"blockdoc/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ─────────────────────────────────────────────────────────────
// MockEmitter tests
// ─────────────────────────────────────────────────────────────

func TestMockEmitter_RecordsEvents(t *testing.T) {
	m := &service.MockEmitter{}
	ctx := context.Background()

	m.Emit(ctx, "test:event", map[string]string{"foo": "bar"})
	m.Emit(ctx, "test:event2", nil)

	require.Len(t, m.Events(), 2)
	assert.Equal(t, "test:event", m.Events()[0].Event)
	assert.Len(t, m.Events("test:event2"), 1)
}

// ─────────────────────────────────────────────────────────────
// DocumentService tests
// ─────────────────────────────────────────────────────────────

type env struct {
	db      *storage.DB
	emitter *service.MockEmitter
	svc     *service.DocumentService
}

func newEnv(t *testing.T, dbPath string) *env {
	t.Helper()
	db, err := storage.OpenSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	e := &env{db: db, emitter: &service.MockEmitter{}}
	e.svc = service.NewDocumentService(storage.NewSnapshotStore(db), policy.Default(), e.emitter,
		service.WithChangeLog(storage.NewChangeLog(db)),
		service.WithUndoLimit(10),
	)
	return e
}

func firstBlock(s *domain.Snapshot) string { return s.ChildIDs(s.PageID)[0] }

func TestDocumentService_OpenCreatesAndReuses(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, filepath.Join(t.TempDir(), "docs.db"))

	a, err := e.svc.Open(ctx, "notes")
	require.NoError(t, err)
	b, err := e.svc.Open(ctx, "notes")
	require.NoError(t, err)
	assert.Same(t, a, b)

	docs, err := e.svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "notes", docs[0].DocID)

	_, err = e.svc.Open(ctx, "")
	assert.ErrorIs(t, err, domain.ErrInvalidOperation)
}

func TestDocumentService_EmitsAndPersistsEveryChange(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "docs.db")
	e := newEnv(t, path)

	sess, err := e.svc.Open(ctx, "doc")
	require.NoError(t, err)
	first := firstBlock(sess.Doc.Snapshot())
	_, err = sess.Engine.InsertText(domain.Caret(first, 0), "Hello world", nil)
	require.NoError(t, err)
	_, err = sess.Engine.InsertBreak(domain.Caret(first, 5))
	require.NoError(t, err)

	changed := e.emitter.Events(service.EventDocumentChanged)
	require.Len(t, changed, 2)
	assert.Equal(t, "insertBreak", changed[1].Data.(*domain.Change).Name)

	// A second service over the same database replays the log without a checkpoint.
	other := newEnv(t, path)
	snap, err := other.svc.Snapshot(ctx, "doc")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), snap.Version)
	order := snap.DocumentOrder()
	require.Len(t, order, 2)
	assert.Equal(t, "Hello", snap.PlainText(order[0]))
	assert.Equal(t, " world", snap.PlainText(order[1]))
}

func TestDocumentService_TurnIntoSameTypeAfterReload(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "docs.db")
	e := newEnv(t, path)
	sess, err := e.svc.Open(ctx, "doc")
	require.NoError(t, err)
	first := firstBlock(sess.Doc.Snapshot())
	_, err = sess.Engine.TurnToBlock(first, domain.BlockTypeHeading, nil)
	require.NoError(t, err)

	sameHeading := func(svc *service.DocumentService) {
		t.Helper()
		other, err := svc.Open(ctx, "doc")
		require.NoError(t, err)
		version := other.Doc.Version()
		res, err := other.Engine.TurnToBlock(first, domain.BlockTypeHeading, nil)
		require.NoError(t, err)
		assert.Nil(t, res.Change)
		res, err = other.Engine.TurnToBlock(first, domain.BlockTypeHeading, map[string]any{"level": 1})
		require.NoError(t, err)
		assert.Nil(t, res.Change)
		assert.Equal(t, version, other.Doc.Version())
	}

	// Replayed from the change log.
	sameHeading(newEnv(t, path).svc)

	// Loaded from a checkpointed snapshot.
	_, err = e.svc.Checkpoint(ctx, "doc")
	require.NoError(t, err)
	sameHeading(newEnv(t, path).svc)
}

func TestDocumentService_CheckpointPrunesLog(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, filepath.Join(t.TempDir(), "docs.db"))
	sess, err := e.svc.Open(ctx, "doc")
	require.NoError(t, err)
	first := firstBlock(sess.Doc.Snapshot())
	for range 3 {
		_, err := sess.Engine.InsertText(domain.Caret(first, 0), "x", nil)
		require.NoError(t, err)
	}

	res, err := e.svc.Checkpoint(ctx, "doc")
	require.NoError(t, err)
	assert.Equal(t, uint64(3), res.Version)
	assert.Equal(t, int64(3), res.Pruned)
	assert.Len(t, e.emitter.Events(service.EventDocumentCheckpointed), 1)

	pending, err := storage.NewChangeLog(e.db).ChangesSince(ctx, "doc", 0)
	require.NoError(t, err)
	assert.Empty(t, pending)

	_, err = e.svc.Checkpoint(ctx, "never-opened")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDocumentService_UndoRedo(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, filepath.Join(t.TempDir(), "docs.db"))
	sess, err := e.svc.Open(ctx, "doc")
	require.NoError(t, err)
	first := firstBlock(sess.Doc.Snapshot())

	_, err = sess.Engine.InsertText(domain.Caret(first, 0), "typed", nil)
	require.NoError(t, err)

	c, err := e.svc.Undo(ctx, "doc")
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, domain.OriginUndo, c.Origin)
	assert.Equal(t, "", sess.Doc.Snapshot().PlainText(first))

	_, err = e.svc.Redo(ctx, "doc")
	require.NoError(t, err)
	assert.Equal(t, "typed", sess.Doc.Snapshot().PlainText(first))
}

func TestDocumentService_ApplyRemote(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, filepath.Join(t.TempDir(), "docs.db"))
	sess, err := e.svc.Open(ctx, "doc")
	require.NoError(t, err)
	page := sess.Doc.PageID()
	first := firstBlock(sess.Doc.Snapshot())

	observed := 0
	stop := sess.Doc.Observe(func(*domain.Change) { observed++ })
	defer stop()

	// Removing the block from the page without deleting it leaves an orphan.
	c, err := e.svc.ApplyRemote(ctx, "doc", "broken", []domain.Op{
		{Kind: domain.OpRemoveChild, Key: page, Index: 0, Child: first},
	})
	assert.ErrorIs(t, err, domain.ErrInvalidOperation)
	assert.Nil(t, c)
	assert.Equal(t, []string{first}, sess.Doc.Snapshot().ChildIDs(page))
	assert.Zero(t, sess.Doc.Version())
	assert.Zero(t, observed)
	assert.Empty(t, e.emitter.Events(service.EventDocumentChanged))

	pending, err := storage.NewChangeLog(e.db).ChangesSince(ctx, "doc", 0)
	require.NoError(t, err)
	assert.Empty(t, pending)

	_, err = e.svc.ApplyRemote(ctx, "doc", "stale", []domain.Op{
		{Kind: domain.OpRemoveChild, Key: page, Index: 3, Child: first},
	})
	assert.ErrorIs(t, err, domain.ErrInvalidOperation)
	assert.Empty(t, e.emitter.Events(service.EventDocumentChanged))

	// A well-formed remote edit goes through and is emitted once.
	text := sess.Doc.Snapshot().Blocks[first].TextID
	c, err = e.svc.ApplyRemote(ctx, "doc", "insertText", []domain.Op{
		{Kind: domain.OpApplyDelta, Key: text, Delta: []delta.Op{delta.Insert("remote", nil)}},
	})
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, uint64(1), sess.Doc.Version())
	assert.Equal(t, 1, observed)
	assert.Len(t, e.emitter.Events(service.EventDocumentChanged), 1)
	assert.False(t, sess.Undo.CanUndo(), "remote changes are not undoable locally")
}

func TestDocumentService_DeleteAndClose(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, filepath.Join(t.TempDir(), "docs.db"))
	_, err := e.svc.Open(ctx, "a")
	require.NoError(t, err)
	_, err = e.svc.Open(ctx, "b")
	require.NoError(t, err)

	require.NoError(t, e.svc.Delete(ctx, "a"))
	_, ok := e.svc.Session("a")
	assert.False(t, ok)
	assert.Len(t, e.emitter.Events(service.EventDocumentDeleted), 1)

	require.NoError(t, e.svc.StartScheduler(ctx, "@every 1h"))
	require.NoError(t, e.svc.Close(ctx))
	_, ok = e.svc.Session("b")
	assert.False(t, ok)

	assert.Error(t, e.svc.StartScheduler(ctx, "not a schedule"))
}
