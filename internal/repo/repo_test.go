package repo_test

import (
	"testing"

	"blockdoc/internal/delta"
	"blockdoc/internal/docstore"
	"blockdoc/internal/domain"
	"blockdoc/internal/policy"
	"blockdoc/internal/repo"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// run executes fn inside a committed transaction and validates the result.
func run(t *testing.T, doc *docstore.Doc, fn func(r *repo.Repo) error) error {
	t.Helper()
	tbl := policy.Default()
	_, err := doc.Transact("test", domain.OriginLocal, func(tx *docstore.Tx) error {
		return fn(repo.New(tx, tbl))
	})
	require.NoError(t, docstore.Validate(doc.Snapshot(), tbl.TextBearing))
	return err
}

func newBlock(t *testing.T, r *repo.Repo, bt domain.BlockType, text, parent string) string {
	t.Helper()
	b, err := r.CreateBlock(bt, nil, delta.FromText(text))
	require.NoError(t, err)
	require.NoError(t, r.Attach(b.ID, parent, 1<<30))
	return b.ID
}

// ─── Create / attach ───────────────────────────────────────

func TestCreateBlock_TextAndDefaults(t *testing.T) {
	doc := docstore.NewDocument("doc")
	var todo, divider string
	require.NoError(t, run(t, doc, func(r *repo.Repo) error {
		todo = newBlock(t, r, domain.BlockTypeTodoList, "buy milk", r.PageID())
		divider = newBlock(t, r, domain.BlockTypeDivider, "", r.PageID())
		return nil
	}))

	s := doc.Snapshot()
	assert.Equal(t, "buy milk", s.PlainText(todo))
	assert.Equal(t, map[string]any{"checked": false}, s.Blocks[todo].Data)
	assert.Empty(t, s.Blocks[divider].TextID)
	assert.Equal(t, s.Blocks[todo].ID, s.Blocks[todo].ChildrenID)
}

func TestAttach_RejectsCyclesAndDoubleParents(t *testing.T) {
	doc := docstore.NewDocument("doc")
	err := run(t, doc, func(r *repo.Repo) error {
		outer := newBlock(t, r, domain.BlockTypeBulletedList, "outer", r.PageID())
		inner := newBlock(t, r, domain.BlockTypeBulletedList, "inner", outer)

		assert.ErrorIs(t, r.Attach(inner, r.PageID(), 0), domain.ErrInvalidOperation)
		assert.ErrorIs(t, r.Move(outer, inner, 0), domain.ErrInvalidOperation)
		assert.ErrorIs(t, r.Move(outer, outer, 0), domain.ErrInvalidOperation)
		return nil
	})
	require.NoError(t, err)
}

func TestAttach_ClampsIndex(t *testing.T) {
	doc := docstore.NewDocument("doc")
	require.NoError(t, run(t, doc, func(r *repo.Repo) error {
		b, err := r.CreateBlock(domain.BlockTypeParagraph, nil, nil)
		require.NoError(t, err)
		require.NoError(t, r.Attach(b.ID, r.PageID(), -4))
		children, err := r.ChildrenOf(r.PageID())
		require.NoError(t, err)
		assert.Equal(t, b.ID, children[0])
		return nil
	}))
}

func TestGetBlock_NotFound(t *testing.T) {
	doc := docstore.NewDocument("doc")
	err := run(t, doc, func(r *repo.Repo) error {
		_, err := r.GetBlock("nope")
		return err
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

// ─── Delete / move ─────────────────────────────────────────

func TestDelete_RefusesParents(t *testing.T) {
	doc := docstore.NewDocument("doc")
	var parent, child string
	require.NoError(t, run(t, doc, func(r *repo.Repo) error {
		parent = newBlock(t, r, domain.BlockTypeQuote, "p", r.PageID())
		child = newBlock(t, r, domain.BlockTypeParagraph, "c", parent)
		return nil
	}))

	err := run(t, doc, func(r *repo.Repo) error { return r.Delete(parent) })
	assert.ErrorIs(t, err, domain.ErrInvalidOperation)

	require.NoError(t, run(t, doc, func(r *repo.Repo) error { return r.DeleteSubtree(parent) }))
	s := doc.Snapshot()
	assert.NotContains(t, s.Blocks, parent)
	assert.NotContains(t, s.Blocks, child)
	assert.NotContains(t, s.Texts, child)
}

func TestMove_PreservesIdentity(t *testing.T) {
	doc := docstore.NewDocument("doc")
	var a, b string
	require.NoError(t, run(t, doc, func(r *repo.Repo) error {
		a = newBlock(t, r, domain.BlockTypeBulletedList, "A", r.PageID())
		b = newBlock(t, r, domain.BlockTypeBulletedList, "B", r.PageID())
		return r.Move(b, a, 0)
	}))
	s := doc.Snapshot()
	assert.Equal(t, []string{b}, s.ChildIDs(a))
	assert.Equal(t, a, s.Blocks[b].ParentID)
	assert.Equal(t, "B", s.PlainText(b))
}

// ─── Type / data ───────────────────────────────────────────

func TestSetType_KeepsTextInvariant(t *testing.T) {
	doc := docstore.NewDocument("doc")
	var id string
	require.NoError(t, run(t, doc, func(r *repo.Repo) error {
		id = newBlock(t, r, domain.BlockTypeParagraph, "text", r.PageID())
		return r.SetType(id, domain.BlockTypeDivider, nil)
	}))
	assert.Empty(t, doc.Snapshot().Blocks[id].TextID)

	require.NoError(t, run(t, doc, func(r *repo.Repo) error {
		return r.SetType(id, domain.BlockTypeHeading, map[string]any{"level": 2})
	}))
	s := doc.Snapshot()
	assert.Equal(t, domain.BlockTypeHeading, s.Blocks[id].Type)
	assert.Equal(t, "", s.PlainText(id))
	assert.Equal(t, 2, s.Blocks[id].Data["level"])
}

func TestSetType_RefusesRootPage(t *testing.T) {
	doc := docstore.NewDocument("doc")
	err := run(t, doc, func(r *repo.Repo) error {
		return r.SetType(r.PageID(), domain.BlockTypeParagraph, nil)
	})
	assert.ErrorIs(t, err, domain.ErrInvalidOperation)
	assert.Equal(t, domain.BlockTypePage, doc.Snapshot().Blocks[doc.PageID()].Type)
	assert.Zero(t, doc.Version())
}

func TestSetData_ReportsChange(t *testing.T) {
	doc := docstore.NewDocument("doc")
	require.NoError(t, run(t, doc, func(r *repo.Repo) error {
		id := newBlock(t, r, domain.BlockTypeTodoList, "", r.PageID())
		changed, err := r.SetData(id, map[string]any{"checked": false})
		require.NoError(t, err)
		assert.False(t, changed)

		changed, err = r.SetData(id, map[string]any{"checked": true})
		require.NoError(t, err)
		assert.True(t, changed)
		return nil
	}))
}

// ─── Navigation ────────────────────────────────────────────

func TestNavigation(t *testing.T) {
	doc := docstore.NewDocument("doc")
	require.NoError(t, run(t, doc, func(r *repo.Repo) error {
		first, err := r.ChildrenOf(r.PageID())
		require.NoError(t, err)
		p := first[0]
		a := newBlock(t, r, domain.BlockTypeBulletedList, "A", r.PageID())
		a1 := newBlock(t, r, domain.BlockTypeBulletedList, "A1", a)
		div := newBlock(t, r, domain.BlockTypeDivider, "", r.PageID())
		c := newBlock(t, r, domain.BlockTypeParagraph, "C", r.PageID())

		order, err := r.DocumentOrder(r.PageID())
		require.NoError(t, err)
		assert.Equal(t, []string{p, a, a1, div, c}, order)

		prev, err := r.PreviousTextBlock(c)
		require.NoError(t, err)
		assert.Equal(t, a1, prev, "skips the divider")

		next, err := r.NextTextBlock(a1)
		require.NoError(t, err)
		assert.Equal(t, c, next)

		none, err := r.PreviousTextBlock(p)
		require.NoError(t, err)
		assert.Empty(t, none)

		sib, err := r.NextSibling(a)
		require.NoError(t, err)
		assert.Equal(t, div, sib)
		sib, err = r.PrevSibling(p)
		require.NoError(t, err)
		assert.Empty(t, sib)

		assert.True(t, r.IsAncestor(a, a1))
		assert.False(t, r.IsAncestor(a1, a))

		depth, err := r.Depth(a1)
		require.NoError(t, err)
		assert.Equal(t, 1, depth)

		nested, err := r.IsNested(a1)
		require.NoError(t, err)
		assert.True(t, nested)
		return nil
	}))
}
