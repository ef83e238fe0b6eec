package policy

import "blockdoc/internal/domain"

// Fallback is applied to block types the table does not know.
var Fallback = Policy{
	SplitBehavior: SplitSibling,
	NextLineType:  domain.DefaultBlockType,
	TextBearing:   true,
}

func container(next domain.BlockType, data map[string]any) Policy {
	return Policy{
		CanHaveChildren:     true,
		SplitBehavior:       SplitSibling,
		NextLineType:        next,
		DefaultData:         data,
		TextBearing:         true,
		ChildrenFollowSplit: true,
	}
}

func list(bt domain.BlockType, data map[string]any) Policy {
	p := container(bt, data)
	p.SameTypeAbove = true
	return p
}

func embed(data map[string]any) Policy {
	return Policy{
		SplitBehavior: SplitSibling,
		NextLineType:  domain.DefaultBlockType,
		DefaultData:   data,
	}
}

// Default returns the built-in block policy table.
func Default() *Table {
	toggle := container(domain.BlockTypeParagraph, map[string]any{"collapsed": false})
	toggle.SplitBehavior = SplitChild
	toggle.ChildrenFollowSplit = false
	toggle.CollapseKey = "collapsed"

	heading := container(domain.BlockTypeParagraph, map[string]any{"level": 1})
	heading.CanHaveChildren = false

	code := embed(map[string]any{"language": "json"})
	code.TextBearing = true
	code.SoftBreakOnEnter = true

	page := embed(nil)
	page.CanHaveChildren = true

	return New(map[domain.BlockType]Policy{
		domain.BlockTypePage:         page,
		domain.BlockTypeParagraph:    container(domain.BlockTypeParagraph, nil),
		domain.BlockTypeHeading:      heading,
		domain.BlockTypeBulletedList: list(domain.BlockTypeBulletedList, nil),
		domain.BlockTypeNumberedList: list(domain.BlockTypeNumberedList, nil),
		domain.BlockTypeTodoList:     list(domain.BlockTypeTodoList, map[string]any{"checked": false}),
		domain.BlockTypeToggleList:   toggle,
		domain.BlockTypeQuote:        container(domain.BlockTypeParagraph, nil),
		domain.BlockTypeCallout:      container(domain.BlockTypeParagraph, map[string]any{"icon": "💡"}),
		domain.BlockTypeCode:         code,
		domain.BlockTypeDivider:      embed(nil),
		domain.BlockTypeImage:        embed(map[string]any{"url": ""}),
		domain.BlockTypeEquation:     embed(map[string]any{"formula": ""}),
		domain.BlockTypeFile:         embed(map[string]any{"url": "", "name": ""}),
		domain.BlockTypeSubpage:      embed(map[string]any{"viewId": ""}),
		domain.BlockTypeOutline:      embed(nil),
	}, Fallback)
}
