package schema

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// LeafType is the value type carried by an element
type LeafType string

const (
	TypeAggregate LeafType = "aggregate" // Element with children only
	TypeText      LeafType = "text"
	TypeDecimal   LeafType = "decimal"
	TypeDate      LeafType = "date"     // ISODate, YYYY-MM-DD
	TypeDateTime  LeafType = "datetime" // ISODateTime
	TypeCode      LeafType = "code"     // Value restricted to a code set
	TypeBoolean   LeafType = "boolean"
)

// Unbounded is the MaxOccurs value for repeating elements
const Unbounded = 0

// AttributeRule constrains an attribute of an element
type AttributeRule struct {
	Name     string `yaml:"name"`
	Required bool   `yaml:"required"`
	Pattern  string `yaml:"pattern,omitempty"`
	CodeSet  string `yaml:"codeSet,omitempty"`

	pattern *regexp.Regexp
}

// Match reports whether value satisfies the attribute pattern
func (a *AttributeRule) Match(value string) bool {
	return a.pattern == nil || a.pattern.MatchString(value)
}

// ElementRule describes one element of a message grammar
type ElementRule struct {
	// Path is slash separated and relative to the Document element,
	// e.g. "BkToCstmrStmt/Stmt/Ntry/Amt"
	Path      string   `yaml:"path"`
	MinOccurs int      `yaml:"minOccurs"`
	MaxOccurs int      `yaml:"maxOccurs"` // 0 means unbounded
	Type      LeafType `yaml:"type,omitempty"`

	CodeSet        string `yaml:"codeSet,omitempty"`
	Pattern        string `yaml:"pattern,omitempty"`
	MinLength      int    `yaml:"minLength,omitempty"`
	MaxLength      int    `yaml:"maxLength,omitempty"`
	TotalDigits    int    `yaml:"totalDigits,omitempty"`
	FractionDigits int    `yaml:"fractionDigits,omitempty"`

	// Open aggregates accept children without a rule
	Open bool `yaml:"open,omitempty"`
	// Choice aggregates must hold exactly one of their declared children
	Choice bool `yaml:"choice,omitempty"`

	Attributes []AttributeRule `yaml:"attributes,omitempty"`

	pattern *regexp.Regexp
}

// Name returns the element local name
func (r *ElementRule) Name() string {
	if i := strings.LastIndex(r.Path, "/"); i >= 0 {
		return r.Path[i+1:]
	}
	return r.Path
}

// Parent returns the parent path, empty for the business root
func (r *ElementRule) Parent() string {
	if i := strings.LastIndex(r.Path, "/"); i >= 0 {
		return r.Path[:i]
	}
	return ""
}

// IsLeaf reports whether the element carries a value
func (r *ElementRule) IsLeaf() bool {
	return r.Type != TypeAggregate
}

// Repeats reports whether more than one occurrence is allowed
func (r *ElementRule) Repeats() bool {
	return r.MaxOccurs == Unbounded || r.MaxOccurs > 1
}

// Match reports whether value satisfies the element pattern
func (r *ElementRule) Match(value string) bool {
	return r.pattern == nil || r.pattern.MatchString(value)
}

// Definition is a versioned message-type definition
type Definition struct {
	ID          ID                  `yaml:"id"`
	Namespace   string              `yaml:"namespace,omitempty"`
	Root        string              `yaml:"root"`
	Description string              `yaml:"description,omitempty"`
	CodeSets    map[string][]string `yaml:"codeSets,omitempty"`
	Elements    []ElementRule       `yaml:"elements"`

	byPath   map[string]*ElementRule
	children map[string][]*ElementRule
	codes    map[string]map[string]struct{}
}

// Rule returns the rule for a path relative to the Document element
func (d *Definition) Rule(path string) (*ElementRule, bool) {
	r, ok := d.byPath[path]
	return r, ok
}

// Children returns the rules declared directly under path, in declaration order
func (d *Definition) Children(path string) []*ElementRule {
	return d.children[path]
}

// InCodeSet reports whether code is declared in the named code set
func (d *Definition) InCodeSet(set, code string) bool {
	codes, ok := d.codes[set]
	if !ok {
		return false
	}
	_, ok = codes[code]
	return ok
}

// Codes returns the sorted codes of a code set
func (d *Definition) Codes(set string) []string {
	out := make([]string, 0, len(d.codes[set]))
	for c := range d.codes[set] {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// compile checks the definition and builds its lookup tables
func (d *Definition) compile() error {
	id, err := ParseID(string(d.ID))
	if err != nil {
		return err
	}
	d.ID = id
	if d.Namespace == "" {
		d.Namespace = id.Namespace()
	}
	if d.Namespace != id.Namespace() {
		return fmt.Errorf("%w: %s: namespace %q does not match id", ErrInvalidDefinition, id, d.Namespace)
	}
	if d.Root == "" || strings.Contains(d.Root, "/") {
		return fmt.Errorf("%w: %s: invalid root %q", ErrInvalidDefinition, id, d.Root)
	}

	d.codes = make(map[string]map[string]struct{}, len(d.CodeSets))
	for name, codes := range d.CodeSets {
		set := make(map[string]struct{}, len(codes))
		for _, c := range codes {
			set[c] = struct{}{}
		}
		d.codes[name] = set
	}

	if !d.hasRootRule() {
		d.Elements = append([]ElementRule{{Path: d.Root, MinOccurs: 1, MaxOccurs: 1, Type: TypeAggregate}}, d.Elements...)
	}

	d.byPath = make(map[string]*ElementRule, len(d.Elements))
	d.children = make(map[string][]*ElementRule)
	for i := range d.Elements {
		r := &d.Elements[i]
		if err := d.compileRule(r); err != nil {
			return fmt.Errorf("%w: %s: %s: %v", ErrInvalidDefinition, id, r.Path, err)
		}
		if _, dup := d.byPath[r.Path]; dup {
			return fmt.Errorf("%w: %s: duplicate path %s", ErrInvalidDefinition, id, r.Path)
		}
		d.byPath[r.Path] = r
	}

	for i := range d.Elements {
		r := &d.Elements[i]
		parent := r.Parent()
		if parent == "" {
			continue
		}
		p, ok := d.byPath[parent]
		if !ok {
			return fmt.Errorf("%w: %s: %s: parent %s has no rule", ErrInvalidDefinition, id, r.Path, parent)
		}
		if p.IsLeaf() {
			return fmt.Errorf("%w: %s: %s: parent %s is a leaf", ErrInvalidDefinition, id, r.Path, parent)
		}
		d.children[parent] = append(d.children[parent], r)
	}
	return nil
}

func (d *Definition) hasRootRule() bool {
	for _, r := range d.Elements {
		if r.Path == d.Root {
			return true
		}
	}
	return false
}

func (d *Definition) compileRule(r *ElementRule) error {
	if r.Path == "" || strings.HasPrefix(r.Path, "/") || strings.HasSuffix(r.Path, "/") {
		return fmt.Errorf("invalid path")
	}
	if r.Path != d.Root && !strings.HasPrefix(r.Path, d.Root+"/") {
		return fmt.Errorf("path outside root %s", d.Root)
	}
	if r.Type == "" {
		r.Type = TypeAggregate
	}
	switch r.Type {
	case TypeAggregate, TypeText, TypeDecimal, TypeDate, TypeDateTime, TypeCode, TypeBoolean:
	default:
		return fmt.Errorf("unknown type %q", r.Type)
	}
	if r.MinOccurs < 0 || r.MaxOccurs < 0 {
		return fmt.Errorf("negative occurrence bounds")
	}
	if r.MaxOccurs != Unbounded && r.MaxOccurs < r.MinOccurs {
		return fmt.Errorf("maxOccurs %d below minOccurs %d", r.MaxOccurs, r.MinOccurs)
	}
	if r.Type == TypeCode && r.CodeSet == "" {
		return fmt.Errorf("code element without code set")
	}
	if r.CodeSet != "" {
		if _, ok := d.codes[r.CodeSet]; !ok {
			return fmt.Errorf("unknown code set %q", r.CodeSet)
		}
	}
	if r.Pattern != "" {
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return fmt.Errorf("pattern: %w", err)
		}
		r.pattern = re
	}
	for i := range r.Attributes {
		a := &r.Attributes[i]
		if a.Name == "" {
			return fmt.Errorf("attribute without name")
		}
		if a.CodeSet != "" {
			if _, ok := d.codes[a.CodeSet]; !ok {
				return fmt.Errorf("attribute %s: unknown code set %q", a.Name, a.CodeSet)
			}
		}
		if a.Pattern != "" {
			re, err := regexp.Compile(a.Pattern)
			if err != nil {
				return fmt.Errorf("attribute %s pattern: %w", a.Name, err)
			}
			a.pattern = re
		}
	}
	return nil
}
