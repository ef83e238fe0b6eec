package engine

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"blockdoc/internal/delta"
	"blockdoc/internal/domain"
)

type blockShortcut struct {
	pattern *regexp.Regexp
	bt      domain.BlockType
	data    map[string]any
}

// Prefixes that turn a block into another type when followed by a space.
var spaceShortcuts = []blockShortcut{
	{regexp.MustCompile(`^[*\-+]$`), domain.BlockTypeBulletedList, nil},
	{regexp.MustCompile(`^>$`), domain.BlockTypeToggleList, map[string]any{"collapsed": false}},
	{regexp.MustCompile(`^["“”]$`), domain.BlockTypeQuote, nil},
	{regexp.MustCompile(`^-?\[ \]$`), domain.BlockTypeTodoList, map[string]any{"checked": false}},
	{regexp.MustCompile(`^-?\[x\]$`), domain.BlockTypeTodoList, map[string]any{"checked": true}},
	{regexp.MustCompile(`^-?\[\]$`), domain.BlockTypeTodoList, map[string]any{"checked": false}},
	{regexp.MustCompile(`^\d+\.$`), domain.BlockTypeNumberedList, nil},
	{regexp.MustCompile(`^#$`), domain.BlockTypeHeading, map[string]any{"level": 1}},
	{regexp.MustCompile(`^#{2}$`), domain.BlockTypeHeading, map[string]any{"level": 2}},
	{regexp.MustCompile(`^#{3}$`), domain.BlockTypeHeading, map[string]any{"level": 3}},
	{regexp.MustCompile(`^\[!TIP\]$`), domain.BlockTypeCallout, map[string]any{"icon": "💡"}},
	{regexp.MustCompile(`^\[!INFO\]$`), domain.BlockTypeCallout, map[string]any{"icon": "ℹ️"}},
	{regexp.MustCompile(`^\[!WARNING\]$`), domain.BlockTypeCallout, map[string]any{"icon": "⚠️"}},
	{regexp.MustCompile(`^\[!DANGER\]$`), domain.BlockTypeCallout, map[string]any{"icon": "🚨"}},
}

var (
	dividerShortcut  = regexp.MustCompile(`^[-*]{3,}$`)
	codeShortcut     = regexp.MustCompile("^`{3,}$")
	equationShortcut = regexp.MustCompile(`^\$\$(.*)\$\$$`)
)

// Inline mark delimiters. Doubled *, _ and ~ select the second mark.
var inlineMarks = map[string]string{
	"**": "bold",
	"__": "bold",
	"*":  "italic",
	"_":  "italic",
	"~~": "strikethrough",
	"~":  "strikethrough",
	"`":  "code",
}

// matchBlockShortcut finds the block type typed as a prefix. before is the
// block text up to the caret, end the character just typed.
func matchBlockShortcut(before string, end rune) (domain.BlockType, map[string]any, bool) {
	full := before + string(end)
	switch end {
	case '-', '*':
		if dividerShortcut.MatchString(full) {
			return domain.BlockTypeDivider, nil, true
		}
	case '`':
		if codeShortcut.MatchString(full) {
			return domain.BlockTypeCode, map[string]any{"language": "json"}, true
		}
	case '$':
		if m := equationShortcut.FindStringSubmatch(full); m != nil {
			return domain.BlockTypeEquation, map[string]any{"formula": m[1]}, true
		}
	case ' ':
		for _, s := range spaceShortcuts {
			if s.pattern.MatchString(before) {
				return s.bt, domain.CloneData(s.data), true
			}
		}
	}
	return "", nil, false
}

// InsertText replaces the selection with text. Typing a trigger character
// after a markdown prefix turns the block into the matching type, and closing
// an inline delimiter pair formats the text between them.
func (e *Engine) InsertText(sel domain.Range, text string, attrs delta.Attributes) (Result, error) {
	return e.run("insertText", sel, func(o *op) (domain.Range, error) {
		collapsed := sel.IsCollapsed()
		at, err := o.collapse(sel)
		if err != nil {
			return sel, err
		}
		b, offset, err := o.point(at)
		if err != nil {
			return sel, err
		}
		if b.TextID == "" {
			return sel, fmt.Errorf("insert text into %s (%s): %w", b.ID, b.Type, domain.ErrInvalidOperation)
		}
		if text == "" {
			return domain.Caret(b.ID, offset), nil
		}

		if collapsed && b.Type != domain.BlockTypeCode {
			if next, ok, err := o.applyBlockShortcut(b, offset, text); ok || err != nil {
				return next, err
			}
			if next, ok, err := o.applyInlineShortcut(b, offset, text); ok || err != nil {
				return next, err
			}
		}

		run := delta.Delta{{Insert: text, Attributes: attrs.Clone()}}
		if err := o.replace(b.ID, offset, 0, run); err != nil {
			return sel, err
		}
		return domain.Caret(b.ID, offset+utf8.RuneCountInString(text)), nil
	})
}

func (o *op) applyBlockShortcut(b *domain.Block, offset int, text string) (domain.Range, bool, error) {
	last, size := utf8.DecodeLastRuneInString(text)
	if !strings.ContainsRune(" -`$*", last) {
		return domain.Range{}, false, nil
	}
	t, err := o.Text(b.ID)
	if err != nil {
		return domain.Range{}, false, err
	}
	before := delta.TextOf(delta.Slice(t, 0, offset)) + text[:len(text)-size]
	bt, data, ok := matchBlockShortcut(before, last)
	if !ok {
		return domain.Range{}, false, nil
	}
	if !o.Policy(bt).TextBearing && offset < delta.Length(t) {
		return domain.Range{}, false, nil
	}

	o.rename("turnToBlock")
	if err := o.replace(b.ID, 0, offset, nil); err != nil {
		return domain.Range{}, true, err
	}
	if err := o.turnTo(b.ID, bt, data); err != nil {
		return domain.Range{}, true, err
	}
	return domain.Caret(b.ID, 0), true, nil
}

func (o *op) applyInlineShortcut(b *domain.Block, offset int, text string) (domain.Range, bool, error) {
	if utf8.RuneCountInString(text) != 1 || !strings.Contains("*_~`", text) {
		return domain.Range{}, false, nil
	}
	t, err := o.Text(b.ID)
	if err != nil {
		return domain.Range{}, false, err
	}
	rangeText := delta.TextOf(delta.Slice(t, 0, offset))
	if !strings.Contains(rangeText, text) {
		return domain.Range{}, false, nil
	}

	match := text
	if text != "`" && strings.Contains(rangeText, text+text) {
		q := regexp.QuoteMeta(text)
		if !regexp.MustCompile(q + q + `(.*)` + q + q).MatchString(rangeText + text) {
			return domain.Range{}, false, nil
		}
		match = text + text
	}

	m := len(match)
	start := utf8.RuneCountInString(rangeText[:strings.LastIndex(rangeText, match)])
	inner := delta.Slice(t, start+m, offset-(m-1))
	if delta.Length(inner) == 0 {
		return domain.Range{}, false, nil
	}
	mark := inlineMarks[match]
	for i := range inner {
		inner[i].Attributes = inner[i].Attributes.Clone()
		if inner[i].Attributes == nil {
			inner[i].Attributes = delta.Attributes{}
		}
		inner[i].Attributes[mark] = true
	}
	if err := o.replace(b.ID, start, offset-start, inner); err != nil {
		return domain.Range{}, true, err
	}
	return domain.Caret(b.ID, start+delta.Length(inner)), true, nil
}
