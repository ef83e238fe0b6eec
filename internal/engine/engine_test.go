package engine_test

import (
	"sync"
	"testing"
	"time"

	"blockdoc/internal/delta"
	"blockdoc/internal/docstore"
	"blockdoc/internal/domain"
	"blockdoc/internal/engine"
	"blockdoc/internal/policy"
	"blockdoc/internal/repo"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	t   *testing.T
	doc *docstore.Doc
	tbl *policy.Table
	eng *engine.Engine
}

// newFixture returns an engine over a document with an empty page.
func newFixture(t *testing.T, opts ...engine.Option) *fixture {
	t.Helper()
	doc := docstore.NewDocument("doc")
	tbl := policy.Default()
	f := &fixture{t: t, doc: doc, tbl: tbl, eng: engine.New(doc, tbl, opts...)}
	first := doc.Snapshot().ChildIDs(doc.PageID())[0]
	f.build(func(r *repo.Repo) { require.NoError(t, r.Delete(first)) })
	return f
}

func (f *fixture) build(fn func(r *repo.Repo)) {
	f.t.Helper()
	_, err := f.doc.Transact("build", domain.OriginReplay, func(tx *docstore.Tx) error {
		fn(repo.New(tx, f.tbl))
		return nil
	})
	require.NoError(f.t, err)
}

// add appends a block under parent ("" for the page).
func (f *fixture) add(parent string, bt domain.BlockType, seed delta.Delta) string {
	f.t.Helper()
	return f.addData(parent, bt, nil, seed)
}

func (f *fixture) addData(parent string, bt domain.BlockType, data map[string]any, seed delta.Delta) string {
	f.t.Helper()
	var id string
	f.build(func(r *repo.Repo) {
		if parent == "" {
			parent = r.PageID()
		}
		b, err := r.CreateBlock(bt, data, seed)
		require.NoError(f.t, err)
		require.NoError(f.t, r.Attach(b.ID, parent, 1<<30))
		id = b.ID
	})
	return id
}

func (f *fixture) para(parent, text string) string {
	return f.add(parent, domain.BlockTypeParagraph, delta.FromText(text))
}

func (f *fixture) snap() *domain.Snapshot { return f.doc.Snapshot() }

func (f *fixture) top() []string {
	s := f.snap()
	return s.ChildIDs(s.PageID)
}

func (f *fixture) valid() {
	f.t.Helper()
	require.NoError(f.t, docstore.Validate(f.snap(), f.tbl.TextBearing))
}

// ─────────────────────────────────────────────────────────────
// insertBreak
// ─────────────────────────────────────────────────────────────

func TestInsertBreak_SplitsHeadingIntoParagraph(t *testing.T) {
	f := newFixture(t)
	h := f.add("", domain.BlockTypeHeading, delta.FromText("Welcome to AppFlowy!"))

	res, err := f.eng.InsertBreak(domain.Caret(h, 7))
	require.NoError(t, err)
	require.NotNil(t, res.Change)
	assert.Equal(t, "insertBreak", res.Change.Name)
	f.valid()

	s := f.snap()
	top := f.top()
	require.Len(t, top, 2)
	assert.Equal(t, h, top[0])
	assert.Equal(t, domain.BlockTypeHeading, s.Blocks[h].Type)
	assert.Equal(t, "Welcome", s.PlainText(h))
	assert.Equal(t, domain.BlockTypeParagraph, s.Blocks[top[1]].Type)
	assert.Equal(t, " to AppFlowy!", s.PlainText(top[1]))
	assert.Equal(t, domain.Caret(top[1], 0), res.Selection)
}

func TestInsertBreak_EmptyHeadingBecomesParagraph(t *testing.T) {
	f := newFixture(t)
	h := f.add("", domain.BlockTypeHeading, nil)

	res, err := f.eng.InsertBreak(domain.Caret(h, 0))
	require.NoError(t, err)
	require.NotNil(t, res.Change)
	assert.Equal(t, "turnToBlock", res.Change.Name)
	assert.Equal(t, []string{h}, f.top())
	assert.Equal(t, domain.BlockTypeParagraph, f.snap().Blocks[h].Type)
	f.valid()
}

func TestInsertBreak_OffsetZeroInsertsAbove(t *testing.T) {
	f := newFixture(t)
	item := f.add("", domain.BlockTypeBulletedList, delta.FromText("item"))

	res, err := f.eng.InsertBreak(domain.Caret(item, 0))
	require.NoError(t, err)
	assert.Equal(t, domain.Caret(item, 0), res.Selection)

	top := f.top()
	require.Len(t, top, 2)
	assert.Equal(t, item, top[1])
	s := f.snap()
	assert.Equal(t, domain.BlockTypeBulletedList, s.Blocks[top[0]].Type)
	assert.Equal(t, "", s.PlainText(top[0]))
	assert.Equal(t, "item", s.PlainText(item))
	f.valid()
}

func TestInsertBreak_ListChildrenFollowTheNewLine(t *testing.T) {
	f := newFixture(t)
	l := f.add("", domain.BlockTypeBulletedList, delta.FromText("parent text"))
	k := f.add(l, domain.BlockTypeBulletedList, delta.FromText("kid"))

	res, err := f.eng.InsertBreak(domain.Caret(l, 6))
	require.NoError(t, err)
	f.valid()

	n := res.Selection.Anchor.BlockID
	s := f.snap()
	assert.Equal(t, []string{l, n}, f.top())
	assert.Equal(t, domain.BlockTypeBulletedList, s.Blocks[n].Type)
	assert.Equal(t, " text", s.PlainText(n))
	assert.Equal(t, []string{k}, s.ChildIDs(n))
	assert.Empty(t, s.ChildIDs(l))
}

func TestInsertBreak_Toggle(t *testing.T) {
	f := newFixture(t)
	tg := f.add("", domain.BlockTypeToggleList, delta.FromText("Title"))

	res, err := f.eng.InsertBreak(domain.Caret(tg, 5))
	require.NoError(t, err)
	child := res.Selection.Anchor.BlockID
	assert.Equal(t, []string{child}, f.snap().ChildIDs(tg), "expanded toggle continues inside")
	assert.Equal(t, domain.BlockTypeParagraph, f.snap().Blocks[child].Type)

	_, err = f.eng.ToggleToggleList(tg, res.Selection)
	require.NoError(t, err)
	res, err = f.eng.InsertBreak(domain.Caret(tg, 5))
	require.NoError(t, err)

	sibling := res.Selection.Anchor.BlockID
	assert.Equal(t, []string{tg, sibling}, f.top(), "collapsed toggle continues beside")
	assert.Equal(t, domain.BlockTypeToggleList, f.snap().Blocks[sibling].Type)
	assert.Equal(t, []string{child}, f.snap().ChildIDs(tg))
	f.valid()
}

func TestInsertBreak_LiftsEmptyNestedLastChild(t *testing.T) {
	f := newFixture(t)
	a := f.para("", "A")
	e := f.para(a, "")

	res, err := f.eng.InsertBreak(domain.Caret(e, 0))
	require.NoError(t, err)
	require.NotNil(t, res.Change)
	assert.Equal(t, "liftBlock", res.Change.Name)
	assert.Equal(t, []string{a, e}, f.top())
	f.valid()
}

func TestInsertBreak_CodeInsertsNewline(t *testing.T) {
	f := newFixture(t)
	c := f.add("", domain.BlockTypeCode, delta.FromText("ab"))

	res, err := f.eng.InsertBreak(domain.Caret(c, 1))
	require.NoError(t, err)
	assert.Equal(t, "a\nb", f.snap().PlainText(c))
	assert.Equal(t, domain.Caret(c, 2), res.Selection)
	assert.Len(t, f.top(), 1)
}

func TestInsertBreak_RangeIsOneTransaction(t *testing.T) {
	f := newFixture(t)
	a := f.para("", "Hello")
	b := f.para("", "world")

	var changes int
	f.doc.Observe(func(*domain.Change) { changes++ })

	res, err := f.eng.InsertBreak(domain.Range{Anchor: domain.Point{BlockID: b, Offset: 2}, Focus: domain.Point{BlockID: a, Offset: 3}})
	require.NoError(t, err)
	assert.Equal(t, 1, changes)

	top := f.top()
	require.Len(t, top, 2)
	assert.Equal(t, "Hel", f.snap().PlainText(a))
	assert.Equal(t, "rld", f.snap().PlainText(top[1]))
	assert.Equal(t, domain.Caret(top[1], 0), res.Selection)
	f.valid()
}

func TestInsertSoftBreak(t *testing.T) {
	f := newFixture(t)
	p := f.para("", "ab")
	res, err := f.eng.InsertSoftBreak(domain.Caret(p, 1))
	require.NoError(t, err)
	assert.Equal(t, "a\nb", f.snap().PlainText(p))
	assert.Equal(t, domain.Caret(p, 2), res.Selection)
}

// ─────────────────────────────────────────────────────────────
// Backspace / Delete
// ─────────────────────────────────────────────────────────────

func TestDeleteBackward_MergesIntoPrevious(t *testing.T) {
	f := newFixture(t)
	a := f.para("", "Hello")
	b := f.para("", " world")

	res, err := f.eng.DeleteBackward(domain.Caret(b, 0))
	require.NoError(t, err)
	require.NotNil(t, res.Change)
	assert.Equal(t, "deleteBlockBackward", res.Change.Name)
	assert.Equal(t, []string{a}, f.top())
	assert.Equal(t, "Hello world", f.snap().PlainText(a))
	assert.Equal(t, domain.Caret(a, 5), res.Selection)
	f.valid()
}

func TestDeleteBackward_FirstBlockIsNoop(t *testing.T) {
	f := newFixture(t)
	a := f.para("", "first")
	before := f.doc.Version()

	res, err := f.eng.DeleteBackward(domain.Caret(a, 0))
	require.NoError(t, err)
	assert.Nil(t, res.Change)
	assert.Equal(t, domain.Caret(a, 0), res.Selection)
	assert.Equal(t, before, f.doc.Version())
}

func TestDeleteBackward_OneRune(t *testing.T) {
	f := newFixture(t)
	a := f.para("", "héllo")
	res, err := f.eng.DeleteBackward(domain.Caret(a, 2))
	require.NoError(t, err)
	assert.Equal(t, "hllo", f.snap().PlainText(a))
	assert.Equal(t, domain.Caret(a, 1), res.Selection)
}

func TestDeleteBackward_FormattedBlockTurnsIntoParagraph(t *testing.T) {
	f := newFixture(t)
	f.para("", "above")
	h := f.add("", domain.BlockTypeHeading, delta.FromText("title"))

	res, err := f.eng.DeleteBackward(domain.Caret(h, 0))
	require.NoError(t, err)
	assert.Equal(t, "turnToBlock", res.Change.Name)
	assert.Equal(t, domain.BlockTypeParagraph, f.snap().Blocks[h].Type)
	assert.Equal(t, "title", f.snap().PlainText(h))
	assert.Len(t, f.top(), 2)
}

func TestDeleteBackward_LiftsNestedLastChild(t *testing.T) {
	f := newFixture(t)
	a := f.para("", "A")
	a1 := f.para(a, "x")

	res, err := f.eng.DeleteBackward(domain.Caret(a1, 0))
	require.NoError(t, err)
	assert.Equal(t, "liftBlock", res.Change.Name)
	assert.Equal(t, []string{a, a1}, f.top())
	assert.Equal(t, "x", f.snap().PlainText(a1))
	f.valid()
}

func TestDeleteBackward_NestedWithNextSiblingMergesIntoParent(t *testing.T) {
	f := newFixture(t)
	a := f.para("", "A")
	a1 := f.para(a, "1")
	a2 := f.para(a, "2")
	a11 := f.para(a1, "deep")

	res, err := f.eng.DeleteBackward(domain.Caret(a1, 0))
	require.NoError(t, err)
	assert.Equal(t, domain.Caret(a, 1), res.Selection)
	s := f.snap()
	assert.Equal(t, "A1", s.PlainText(a))
	assert.Equal(t, []string{a11, a2}, s.ChildIDs(a), "children take the merged block's slot")
	f.valid()
}

func TestDeleteForward_MergesNext(t *testing.T) {
	f := newFixture(t)
	a := f.para("", "Hello")
	b := f.para("", " world")
	f.add("", domain.BlockTypeDivider, nil)

	res, err := f.eng.DeleteForward(domain.Caret(a, 5))
	require.NoError(t, err)
	assert.Equal(t, "deleteBlockForward", res.Change.Name)
	assert.Equal(t, "Hello world", f.snap().PlainText(a))
	assert.NotContains(t, f.snap().Blocks, b)
	assert.Equal(t, domain.Caret(a, 5), res.Selection)
	f.valid()

	res, err = f.eng.DeleteForward(domain.Caret(a, 11))
	require.NoError(t, err)
	assert.Nil(t, res.Change, "nothing after the last text block")
}

func TestDeleteText_AcrossNestedBlocks(t *testing.T) {
	f := newFixture(t)
	a := f.para("", "Hello")
	b := f.para("", "big")
	b1 := f.para(b, "inner")
	b2 := f.para(b, "keep")
	c := f.para("", "world")

	res, err := f.eng.DeleteText(domain.Range{
		Anchor: domain.Point{BlockID: a, Offset: 2},
		Focus:  domain.Point{BlockID: b1, Offset: 2},
	})
	require.NoError(t, err)
	assert.Equal(t, "deleteText", res.Change.Name)
	assert.Equal(t, domain.Caret(a, 2), res.Selection)
	f.valid()

	s := f.snap()
	assert.Equal(t, []string{a, c}, f.top())
	assert.Equal(t, "Hener", s.PlainText(a))
	assert.Equal(t, []string{b2}, s.ChildIDs(a))
	assert.NotContains(t, s.Blocks, b)
	assert.NotContains(t, s.Blocks, b1)
}

func TestDeleteText_SameBlock(t *testing.T) {
	f := newFixture(t)
	a := f.para("", "abcdef")
	res, err := f.eng.DeleteText(domain.Range{Anchor: domain.Point{BlockID: a, Offset: 4}, Focus: domain.Point{BlockID: a, Offset: 1}})
	require.NoError(t, err)
	assert.Equal(t, "aef", f.snap().PlainText(a))
	assert.Equal(t, domain.Caret(a, 1), res.Selection)
}

func TestMergeText(t *testing.T) {
	f := newFixture(t)
	a := f.para("", "A")
	a1 := f.para(a, "1")

	_, err := f.eng.MergeText(a1, a)
	assert.ErrorIs(t, err, domain.ErrInvalidOperation)

	res, err := f.eng.MergeText(a, a)
	require.NoError(t, err)
	assert.Nil(t, res.Change)

	res, err = f.eng.MergeText(a, a1)
	require.NoError(t, err)
	assert.Equal(t, "A1", f.snap().PlainText(a))
	assert.Equal(t, domain.Caret(a, 1), res.Selection)
	f.valid()
}

func TestSplitThenMerge_RestoresDelta(t *testing.T) {
	f := newFixture(t)
	a := f.add("", domain.BlockTypeParagraph, delta.Delta{
		{Insert: "Hello "},
		{Insert: "world", Attributes: delta.Attributes{"bold": true}},
	})

	res, err := f.eng.InsertBreak(domain.Caret(a, 3))
	require.NoError(t, err)
	_, err = f.eng.MergeText(a, res.Selection.Anchor.BlockID)
	require.NoError(t, err)

	d := f.snap().Texts[a]
	require.Len(t, d, 2)
	assert.Equal(t, "Hello ", d[0].Insert)
	assert.Empty(t, d[0].Attributes)
	assert.Equal(t, "world", d[1].Insert)
	assert.Equal(t, true, d[1].Attributes["bold"])
	assert.Equal(t, []string{a}, f.top())
}

func TestDeleteEntireDocument(t *testing.T) {
	f := newFixture(t)
	undo := docstore.NewUndoManager(f.doc, 0)
	defer undo.Close()
	a := f.para("", "A")
	f.para(a, "nested")
	f.add("", domain.BlockTypeDivider, nil)
	before := f.top()

	res, err := f.eng.DeleteEntireDocument()
	require.NoError(t, err)
	top := f.top()
	require.Len(t, top, 1)
	assert.Equal(t, domain.Caret(top[0], 0), res.Selection)
	assert.Equal(t, "", f.snap().PlainText(top[0]))
	assert.Len(t, f.snap().Blocks, 2)
	f.valid()

	again, err := f.eng.DeleteEntireDocument()
	require.NoError(t, err)
	assert.Nil(t, again.Change)

	_, err = undo.Undo()
	require.NoError(t, err)
	assert.Equal(t, before, f.top())
	f.valid()
}

func TestRootPage_RejectsBlockEdits(t *testing.T) {
	f := newFixture(t)
	f.para("", "only")
	page := f.doc.PageID()
	before := f.doc.Version()

	_, err := f.eng.DeleteBackward(domain.Caret(page, 0))
	assert.ErrorIs(t, err, domain.ErrInvalidOperation)
	_, err = f.eng.DeleteBlockBackward(domain.Point{BlockID: page})
	assert.ErrorIs(t, err, domain.ErrInvalidOperation)
	_, err = f.eng.TurnToBlock(page, domain.BlockTypeParagraph, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidOperation)
	_, err = f.eng.InsertBreak(domain.Caret(page, 0))
	assert.ErrorIs(t, err, domain.ErrInvalidOperation)

	res, err := f.eng.DeleteForward(domain.Caret(page, 0))
	require.NoError(t, err)
	assert.Nil(t, res.Change)

	root := f.snap().Blocks[page]
	assert.Equal(t, domain.BlockTypePage, root.Type)
	assert.Empty(t, root.TextID)
	assert.Equal(t, before, f.doc.Version())
	f.valid()
}

func TestDeleteBackward_ToggleHeadingDropsLevel(t *testing.T) {
	f := newFixture(t)
	f.para("", "above")
	tg := f.addData("", domain.BlockTypeToggleList, map[string]any{"collapsed": false, "level": 2}, delta.FromText("Section"))
	kid := f.para(tg, "inside")

	res, err := f.eng.DeleteBackward(domain.Caret(tg, 0))
	require.NoError(t, err)
	require.NotNil(t, res.Change)
	assert.Equal(t, "setBlockData", res.Change.Name)
	s := f.snap()
	assert.Equal(t, domain.BlockTypeToggleList, s.Blocks[tg].Type)
	assert.NotContains(t, s.Blocks[tg].Data, "level")
	assert.Equal(t, "Section", s.PlainText(tg))
	assert.Equal(t, []string{kid}, s.ChildIDs(tg))

	// Without a level it is an ordinary formatted block again.
	res, err = f.eng.DeleteBackward(domain.Caret(tg, 0))
	require.NoError(t, err)
	assert.Equal(t, "turnToBlock", res.Change.Name)
	assert.Equal(t, domain.BlockTypeParagraph, f.snap().Blocks[tg].Type)
	f.valid()
}

func TestInsertBreak_EmptyToggleHeadingDropsLevel(t *testing.T) {
	f := newFixture(t)
	tg := f.addData("", domain.BlockTypeToggleList, map[string]any{"collapsed": false, "level": 1}, nil)

	res, err := f.eng.InsertBreak(domain.Caret(tg, 0))
	require.NoError(t, err)
	require.NotNil(t, res.Change)
	assert.Equal(t, "setBlockData", res.Change.Name)
	assert.Equal(t, []string{tg}, f.top())
	assert.Equal(t, domain.BlockTypeToggleList, f.snap().Blocks[tg].Type)
	assert.NotContains(t, f.snap().Blocks[tg].Data, "level")
	f.valid()
}

func TestDeleteForward_MergesFirstChild(t *testing.T) {
	f := newFixture(t)
	a := f.para("", "A")
	a1 := f.para(a, "1")
	a2 := f.para(a, "2")
	a11 := f.para(a1, "deep")

	res, err := f.eng.DeleteForward(domain.Caret(a, 1))
	require.NoError(t, err)
	assert.Equal(t, "deleteBlockForward", res.Change.Name)
	assert.Equal(t, domain.Caret(a, 1), res.Selection)
	s := f.snap()
	assert.Equal(t, "A1", s.PlainText(a))
	assert.NotContains(t, s.Blocks, a1)
	assert.Equal(t, []string{a11, a2}, s.ChildIDs(a), "grandchildren take the merged child's slot")
	f.valid()
}

func TestDeleteText_HeadingStartLiftsSurvivors(t *testing.T) {
	f := newFixture(t)
	h := f.add("", domain.BlockTypeHeading, delta.FromText("Title"))
	m := f.para("", "mid")
	m1 := f.para(m, "one")
	m2 := f.para(m, "two")
	tail := f.para("", "tail")

	res, err := f.eng.DeleteText(domain.Range{
		Anchor: domain.Point{BlockID: h, Offset: 2},
		Focus:  domain.Point{BlockID: m1, Offset: 1},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.Caret(h, 2), res.Selection)
	f.valid()

	s := f.snap()
	assert.Equal(t, "Tine", s.PlainText(h))
	assert.Empty(t, s.ChildIDs(h))
	assert.Equal(t, []string{h, m2, tail}, f.top(), "the heading cannot own children, so they follow it")
	assert.NotContains(t, s.Blocks, m)
	assert.NotContains(t, s.Blocks, m1)
}

func TestDeleteText_DeepSurvivorsKeepDocumentOrder(t *testing.T) {
	f := newFixture(t)
	a := f.para("", "Start")
	c1 := f.para(a, "c1")
	c11 := f.para(c1, "c11")
	c111 := f.para(c11, "c111")
	c112 := f.para(c11, "c112")
	c2 := f.para(a, "c2")

	_, err := f.eng.DeleteText(domain.Range{
		Anchor: domain.Point{BlockID: a, Offset: 1},
		Focus:  domain.Point{BlockID: c111, Offset: 1},
	})
	require.NoError(t, err)
	f.valid()

	s := f.snap()
	assert.Equal(t, "S111", s.PlainText(a))
	assert.Equal(t, []string{c112, c2}, s.ChildIDs(a))
	assert.NotContains(t, s.Blocks, c1)
	assert.NotContains(t, s.Blocks, c11)
}

func TestMergeText_ChildrenGoFirst(t *testing.T) {
	f := newFixture(t)
	a := f.para("", "A")
	a1 := f.para(a, "own")
	b := f.para("", "B")
	b1 := f.para(b, "moved")

	_, err := f.eng.MergeText(a, b)
	require.NoError(t, err)
	assert.Equal(t, "AB", f.snap().PlainText(a))
	assert.Equal(t, []string{b1, a1}, f.snap().ChildIDs(a))
	f.valid()
}

// ─────────────────────────────────────────────────────────────
// Tab / Shift+Tab
// ─────────────────────────────────────────────────────────────

func TestTabEvent_IndentThenOutdent(t *testing.T) {
	f := newFixture(t)
	a := f.para("", "A")
	b := f.para("", "B")
	c := f.para("", "C")
	sel := domain.Range{Anchor: domain.Point{BlockID: b, Offset: 0}, Focus: domain.Point{BlockID: b, Offset: 1}}

	res, err := f.eng.TabEvent(sel, false)
	require.NoError(t, err)
	assert.Equal(t, "indentBlock", res.Change.Name)
	assert.Equal(t, sel, res.Selection)
	assert.Equal(t, []string{a, c}, f.top())
	assert.Equal(t, []string{b}, f.snap().ChildIDs(a))
	f.valid()

	res, err = f.eng.TabEvent(sel, true)
	require.NoError(t, err)
	assert.Equal(t, "liftBlock", res.Change.Name)
	assert.Equal(t, []string{a, b, c}, f.top())
	assert.Empty(t, f.snap().ChildIDs(a))
	f.valid()
}

func TestTabEvent_Noops(t *testing.T) {
	f := newFixture(t)
	a := f.para("", "A")
	d := f.add("", domain.BlockTypeDivider, nil)
	p := f.para("", "P")

	res, err := f.eng.Indent(domain.Caret(a, 0))
	require.NoError(t, err)
	assert.Nil(t, res.Change, "first block has no previous sibling")

	res, err = f.eng.Indent(domain.Caret(p, 0))
	require.NoError(t, err)
	assert.Nil(t, res.Change, "dividers cannot own children")

	res, err = f.eng.Outdent(domain.Caret(a, 0))
	require.NoError(t, err)
	assert.Nil(t, res.Change, "already at the top level")
	assert.Equal(t, []string{a, d, p}, f.top())
}

func TestIndent_RangeMovesBlocksInOrder(t *testing.T) {
	f := newFixture(t)
	a := f.para("", "A")
	b := f.para("", "B")
	c := f.para("", "C")

	sel := domain.Range{Anchor: domain.Point{BlockID: b, Offset: 0}, Focus: domain.Point{BlockID: c, Offset: 1}}
	_, err := f.eng.Indent(sel)
	require.NoError(t, err)
	assert.Equal(t, []string{a}, f.top())
	assert.Equal(t, []string{b, c}, f.snap().ChildIDs(a))

	_, err = f.eng.Outdent(sel)
	require.NoError(t, err)
	assert.Equal(t, []string{a, b, c}, f.top())
	f.valid()
}

// ─────────────────────────────────────────────────────────────
// Turn into / data
// ─────────────────────────────────────────────────────────────

func TestTurnToBlock_SameTypeEmitsNothing(t *testing.T) {
	f := newFixture(t)
	h := f.add("", domain.BlockTypeHeading, delta.FromText("x"))

	calls := 0
	f.doc.Observe(func(*domain.Change) { calls++ })
	res, err := f.eng.TurnToBlock(h, domain.BlockTypeHeading, map[string]any{"level": 1})
	require.NoError(t, err)
	assert.Nil(t, res.Change)
	assert.Zero(t, calls)
}

func TestTurnToBlock_KeepsIdentity(t *testing.T) {
	f := newFixture(t)
	p := f.para("", "text")
	kid := f.para(p, "kid")

	res, err := f.eng.TurnToBlock(p, domain.BlockTypeQuote, nil)
	require.NoError(t, err)
	require.NotNil(t, res.Change)
	s := f.snap()
	assert.Equal(t, domain.BlockTypeQuote, s.Blocks[p].Type)
	assert.Equal(t, "text", s.PlainText(p))
	assert.Equal(t, []string{kid}, s.ChildIDs(p))

	_, err = f.eng.TurnToBlock(p, domain.BlockTypeDivider, nil)
	require.NoError(t, err)
	f.valid()
}

func TestTurnToBlock_NumbersCompareByValue(t *testing.T) {
	f := newFixture(t)
	h := f.add("", domain.BlockTypeHeading, delta.FromText("x"))

	calls := 0
	f.doc.Observe(func(*domain.Change) { calls++ })
	for _, level := range []any{float64(1), uint64(1), int64(1)} {
		res, err := f.eng.TurnToBlock(h, domain.BlockTypeHeading, map[string]any{"level": level})
		require.NoError(t, err)
		assert.Nil(t, res.Change, "level %T", level)
	}
	assert.Zero(t, calls)

	res, err := f.eng.TurnToBlock(h, domain.BlockTypeHeading, map[string]any{"level": float64(2)})
	require.NoError(t, err)
	assert.NotNil(t, res.Change)
}

func TestTurnToBlock_ToggleHeadingAbsorbsFollowingBlocks(t *testing.T) {
	f := newFixture(t)
	p := f.para("", "Section")
	a := f.para("", "a")
	b := f.para("", "b")
	h := f.add("", domain.BlockTypeHeading, delta.FromText("Next"))

	res, err := f.eng.TurnToBlock(p, domain.BlockTypeToggleList, map[string]any{"collapsed": false, "level": 1})
	require.NoError(t, err)
	require.NotNil(t, res.Change)
	assert.Equal(t, []string{p, h}, f.top())
	assert.Equal(t, []string{a, b}, f.snap().ChildIDs(p))
	f.valid()

	// Plain toggle lists absorb nothing.
	q := f.para("", "plain")
	r := f.para("", "after")
	_, err = f.eng.TurnToBlock(q, domain.BlockTypeToggleList, nil)
	require.NoError(t, err)
	assert.Empty(t, f.snap().ChildIDs(q))
	assert.Equal(t, []string{p, h, q, r}, f.top())
}

func TestToggleTodoList(t *testing.T) {
	f := newFixture(t)
	td := f.add("", domain.BlockTypeTodoList, delta.FromText("task"))
	p := f.para("", "other")

	res, err := f.eng.ToggleTodoList(td, domain.Caret(p, 2))
	require.NoError(t, err)
	assert.Equal(t, true, f.snap().Blocks[td].Data["checked"])
	assert.Equal(t, domain.Caret(p, 2), res.Selection)

	res, err = f.eng.ToggleTodoList(p, domain.Caret(p, 2))
	require.NoError(t, err)
	assert.Nil(t, res.Change, "not a todo item")
}

func TestToggleToggleList_MovesSelectionOutOfHiddenChildren(t *testing.T) {
	f := newFixture(t)
	tg := f.add("", domain.BlockTypeToggleList, delta.FromText("T"))
	inner := f.para(tg, "hidden")

	res, err := f.eng.ToggleToggleList(tg, domain.Caret(inner, 3))
	require.NoError(t, err)
	assert.Equal(t, true, f.snap().Blocks[tg].Data["collapsed"])
	assert.Equal(t, domain.Caret(tg, 0), res.Selection)
}

func TestSetBlockData(t *testing.T) {
	f := newFixture(t)
	img := f.add("", domain.BlockTypeImage, nil)
	_, err := f.eng.SetBlockData(img, map[string]any{"url": "https://example.com/a.png"})
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/a.png", f.snap().Blocks[img].Data["url"])
}

func TestAddBlock(t *testing.T) {
	f := newFixture(t)
	a := f.para("", "A")
	h := f.add("", domain.BlockTypeHeading, delta.FromText("H"))
	f.build(func(r *repo.Repo) { _, err := r.SetData(h, map[string]any{"level": 1}); require.NoError(t, err) })

	res, err := f.eng.AddBlock(f.doc.PageID(), 0, domain.BlockTypeToggleList, map[string]any{"collapsed": false, "level": 2}, delta.FromText("Section"))
	require.NoError(t, err)
	tg := res.Selection.Anchor.BlockID
	assert.Equal(t, 7, res.Selection.Anchor.Offset)
	assert.Equal(t, []string{tg, h}, f.top())
	assert.Equal(t, []string{a}, f.snap().ChildIDs(tg))
	f.valid()

	_, err = f.eng.AddBlock(a, 0, domain.BlockTypeParagraph, nil, nil)
	require.NoError(t, err)
	_, err = f.eng.AddBlock(h, 0, domain.BlockTypeParagraph, nil, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidOperation)
}

// ─────────────────────────────────────────────────────────────
// Markdown shortcuts
// ─────────────────────────────────────────────────────────────

func TestInsertText_BlockShortcut(t *testing.T) {
	f := newFixture(t)
	p := f.para("", "")

	res, err := f.eng.InsertText(domain.Caret(p, 0), "##", nil)
	require.NoError(t, err)
	assert.Equal(t, domain.Caret(p, 2), res.Selection)

	res, err = f.eng.InsertText(res.Selection, " ", nil)
	require.NoError(t, err)
	assert.Equal(t, "turnToBlock", res.Change.Name)
	s := f.snap()
	assert.Equal(t, domain.BlockTypeHeading, s.Blocks[p].Type)
	assert.Equal(t, 2, s.Blocks[p].Data["level"])
	assert.Equal(t, "", s.PlainText(p))
	assert.Equal(t, domain.Caret(p, 0), res.Selection)
}

func TestInsertText_TodoAndDivider(t *testing.T) {
	f := newFixture(t)
	p := f.para("", "[x]")
	_, err := f.eng.InsertText(domain.Caret(p, 3), " ", nil)
	require.NoError(t, err)
	assert.Equal(t, domain.BlockTypeTodoList, f.snap().Blocks[p].Type)
	assert.Equal(t, true, f.snap().Blocks[p].Data["checked"])

	d := f.para("", "--")
	_, err = f.eng.InsertText(domain.Caret(d, 2), "-", nil)
	require.NoError(t, err)
	assert.Equal(t, domain.BlockTypeDivider, f.snap().Blocks[d].Type)
	f.valid()
}

func TestInsertText_BlockShortcutOutsideParagraphs(t *testing.T) {
	f := newFixture(t)
	q := f.add("", domain.BlockTypeCallout, delta.FromText("-"))
	kid := f.para(q, "kept")

	res, err := f.eng.InsertText(domain.Caret(q, 1), " ", nil)
	require.NoError(t, err)
	assert.Equal(t, "turnToBlock", res.Change.Name)
	s := f.snap()
	assert.Equal(t, domain.BlockTypeBulletedList, s.Blocks[q].Type)
	assert.Equal(t, "", s.PlainText(q))
	assert.Equal(t, []string{kid}, s.ChildIDs(q))

	c := f.add("", domain.BlockTypeCode, delta.FromText("#"))
	_, err = f.eng.InsertText(domain.Caret(c, 1), " ", nil)
	require.NoError(t, err)
	assert.Equal(t, domain.BlockTypeCode, f.snap().Blocks[c].Type)
	assert.Equal(t, "# ", f.snap().PlainText(c))
}

func TestInsertText_InlineBold(t *testing.T) {
	f := newFixture(t)
	p := f.para("", "say **bold*")

	res, err := f.eng.InsertText(domain.Caret(p, 11), "*", nil)
	require.NoError(t, err)
	d := f.snap().Texts[p]
	require.Len(t, d, 2)
	assert.Equal(t, "say ", d[0].Insert)
	assert.Equal(t, "bold", d[1].Insert)
	assert.Equal(t, true, d[1].Attributes["bold"])
	assert.Equal(t, domain.Caret(p, 8), res.Selection)
}

func TestInsertText_Plain(t *testing.T) {
	f := newFixture(t)
	p := f.para("", "ac")
	res, err := f.eng.InsertText(domain.Caret(p, 1), "b", delta.Attributes{"italic": true})
	require.NoError(t, err)
	assert.Equal(t, "abc", f.snap().PlainText(p))
	assert.Equal(t, domain.Caret(p, 2), res.Selection)
}

// ─────────────────────────────────────────────────────────────
// Failures, undo, invariants
// ─────────────────────────────────────────────────────────────

func TestUnknownBlock_LeavesDocumentUntouched(t *testing.T) {
	f := newFixture(t)
	f.para("", "x")
	version := f.doc.Version()
	sel := domain.Caret("missing", 0)

	res, err := f.eng.DeleteBackward(sel)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, sel, res.Selection)
	assert.Equal(t, version, f.doc.Version())

	_, err = f.eng.InsertBreak(sel)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = f.eng.TurnToBlock("missing", domain.BlockTypeQuote, nil)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestUndo_RevertsWholeOperation(t *testing.T) {
	f := newFixture(t)
	undo := docstore.NewUndoManager(f.doc, 0)
	defer undo.Close()
	a := f.para("", "Hello")
	b := f.para("", " world")
	kid := f.para(b, "kid")

	_, err := f.eng.DeleteForward(domain.Caret(a, 5))
	require.NoError(t, err)
	labels, _ := undo.Labels()
	assert.Equal(t, []string{"deleteBlockForward"}, labels)

	_, err = undo.Undo()
	require.NoError(t, err)
	s := f.snap()
	assert.Equal(t, []string{a, b}, f.top())
	assert.Equal(t, "Hello", s.PlainText(a))
	assert.Equal(t, " world", s.PlainText(b))
	assert.Equal(t, []string{kid}, s.ChildIDs(b))
	f.valid()
}

func TestInvariantsHoldAcrossEditingSession(t *testing.T) {
	f := newFixture(t)
	a := f.para("", "alpha beta")
	f.add("", domain.BlockTypeBulletedList, delta.FromText("one"))
	f.add("", domain.BlockTypeToggleList, delta.FromText("toggle"))

	steps := []func() (engine.Result, error){
		func() (engine.Result, error) { return f.eng.InsertBreak(domain.Caret(a, 5)) },
		func() (engine.Result, error) { return f.eng.Indent(domain.Caret(f.top()[1], 0)) },
		func() (engine.Result, error) { return f.eng.Indent(domain.Caret(f.top()[1], 0)) },
		func() (engine.Result, error) { return f.eng.InsertBreak(domain.Caret(f.top()[1], 6)) },
		func() (engine.Result, error) {
			return f.eng.DeleteText(domain.Range{Anchor: domain.Point{BlockID: a, Offset: 1}, Focus: domain.Point{BlockID: f.top()[1], Offset: 2}})
		},
		func() (engine.Result, error) { return f.eng.TurnToBlock(a, domain.BlockTypeCallout, nil) },
		func() (engine.Result, error) { return f.eng.InsertBreak(domain.Caret(a, 1)) },
		func() (engine.Result, error) { return f.eng.Outdent(domain.Caret(f.top()[0], 0)) },
		func() (engine.Result, error) { return f.eng.DeleteBackward(domain.Caret(f.top()[len(f.top())-1], 0)) },
		func() (engine.Result, error) { return f.eng.DeleteEntireDocument() },
	}
	for i, step := range steps {
		_, err := step()
		require.NoError(t, err, "step %d", i)
		f.valid()
	}
}

// ─────────────────────────────────────────────────────────────
// Recorder
// ─────────────────────────────────────────────────────────────

type recorder struct {
	mu  sync.Mutex
	got []string
}

func (r *recorder) ObserveOperation(name, outcome string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, name+":"+outcome)
}

func TestRecorder_SeesOutcomes(t *testing.T) {
	rec := &recorder{}
	f := newFixture(t, engine.WithRecorder(rec))
	a := f.para("", "x")

	_, _ = f.eng.InsertText(domain.Caret(a, 1), "y", nil)
	_, _ = f.eng.DeleteBackward(domain.Caret(a, 0))
	_, _ = f.eng.DeleteBackward(domain.Caret("missing", 0))

	assert.Equal(t, []string{
		"insertText:" + engine.OutcomeCommitted,
		"deleteBackward:" + engine.OutcomeNoop,
		"deleteBackward:" + engine.OutcomeFailed,
	}, rec.got)
}
