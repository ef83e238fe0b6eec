package policy

import (
	"fmt"
	"os"

	"blockdoc/internal/domain"

	"gopkg.in/yaml.v3"
)

// file is the on-disk override format:
//
//	fallback:
//	  canHaveChildren: true
//	types:
//	  heading:
//	    canHaveChildren: true
//	  kanban:
//	    textBearing: false
//
// Fields left out of an entry keep the built-in value for that type. Stored
// documents depend on which types carry text, so textBearing of a built-in
// type (and of the fallback) cannot be overridden.
type file struct {
	Fallback yaml.Node            `yaml:"fallback"`
	Types    map[string]yaml.Node `yaml:"types"`
}

// Load reads a YAML override file and merges it over the defaults.
func Load(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy file: %w", err)
	}
	t, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse policy file %s: %w", path, err)
	}
	return t, nil
}

// Parse merges YAML overrides over the built-in table.
func Parse(data []byte) (*Table, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, err
	}

	entries, fallback := Default().snapshot()
	if !f.Fallback.IsZero() {
		if err := f.Fallback.Decode(&fallback); err != nil {
			return nil, fmt.Errorf("decode fallback: %w", err)
		}
		if fallback.TextBearing != Fallback.TextBearing {
			return nil, fmt.Errorf("fallback: textBearing cannot be overridden")
		}
	}
	for name, node := range f.Types {
		bt := domain.BlockType(name)
		p, builtin := entries[bt]
		if !builtin {
			p = fallback.clone()
		}
		want := p.TextBearing
		if err := node.Decode(&p); err != nil {
			return nil, fmt.Errorf("decode %s: %w", name, err)
		}
		if builtin && p.TextBearing != want {
			return nil, fmt.Errorf("%s: textBearing of a built-in type cannot be overridden", bt)
		}
		if err := validate(bt, p); err != nil {
			return nil, err
		}
		entries[bt] = p
	}
	return New(entries, fallback), nil
}

func validate(bt domain.BlockType, p Policy) error {
	if bt == domain.BlockTypePage && !p.CanHaveChildren {
		return fmt.Errorf("%s: the root page must accept children", bt)
	}
	switch p.SplitBehavior {
	case SplitSibling, SplitChild, "":
	default:
		return fmt.Errorf("%s: unknown splitBehavior %q", bt, p.SplitBehavior)
	}
	if p.SplitBehavior == SplitChild && !p.CanHaveChildren {
		return fmt.Errorf("%s: splitBehavior child requires canHaveChildren", bt)
	}
	return nil
}
