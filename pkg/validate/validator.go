package validate

import (
	"strings"
	"unicode/utf8"

	"github.com/beevik/etree"

	"github.com/omerasipi/Es-Selam-Banko/pkg/message"
	"github.com/omerasipi/Es-Selam-Banko/pkg/schema"
)

// DefaultMaxIssues bounds the size of a report
const DefaultMaxIssues = 200

// Validator checks messages against their definition and cross-field rules.
// It is stateless after construction and safe for concurrent use.
type Validator struct {
	rules        []Rule
	maxIssues    int
	checkUnknown bool
}

// Option configures a Validator
type Option func(*Validator)

// WithRules adds cross-field rules
func WithRules(rules ...Rule) Option {
	return func(v *Validator) {
		v.rules = append(v.rules, rules...)
	}
}

// WithoutDefaultRules drops the built-in cross-field rules
func WithoutDefaultRules() Option {
	return func(v *Validator) {
		v.rules = nil
	}
}

// WithMaxIssues limits the number of issues in a report, 0 means no limit
func WithMaxIssues(n int) Option {
	return func(v *Validator) {
		v.maxIssues = n
	}
}

// WithoutUnknownElementCheck accepts undeclared children of closed aggregates
func WithoutUnknownElementCheck() Option {
	return func(v *Validator) {
		v.checkUnknown = false
	}
}

// New creates a validator with the built-in rules
func New(opts ...Option) *Validator {
	v := &Validator{
		rules:        DefaultRules(),
		maxIssues:    DefaultMaxIssues,
		checkUnknown: true,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate checks msg and returns its report
func (v *Validator) Validate(msg *message.Message) *Report {
	def := msg.Definition
	doc := msg.Document()
	rep := newReporter(def, doc, v.maxIssues)

	var roots []*etree.Element
	for _, c := range doc.ChildElements() {
		if c.Tag == def.Root && c.NamespaceURI() == def.Namespace {
			roots = append(roots, c)
			continue
		}
		rep.Errorf(c, CodeUnexpected, "unexpected element %s in Document", c.FullTag())
	}
	switch {
	case len(roots) == 0:
		rep.ErrorAt("/"+doc.Tag+"/"+def.Root, CodeMissing, "required element %s is missing", def.Root)
	case len(roots) > 1:
		rep.Errorf(roots[1], CodeCardinality, "element %s occurs %d times, at most 1 allowed", def.Root, len(roots))
	}

	if rule, ok := def.Rule(def.Root); ok {
		for _, root := range roots {
			v.checkElement(rep, root, rule)
		}
	}

	if len(roots) == 1 {
		for _, r := range v.rules {
			if r.applies(def.ID) {
				r.Check(msg, rep)
			}
		}
	}
	return rep.report()
}

func (v *Validator) checkElement(rep *Reporter, el *etree.Element, rule *schema.ElementRule) {
	v.checkAttributes(rep, el, rule)

	if rule.IsLeaf() {
		if len(el.ChildElements()) > 0 {
			rep.Errorf(el, CodeStructure, "element %s carries a value and must not have child elements", el.Tag)
			return
		}
		v.checkValue(rep, el, rule, message.Text(el))
		return
	}

	if hasText(el) {
		rep.Errorf(el, CodeStructure, "aggregate %s must not carry text", el.Tag)
	}

	def := rep.Definition()
	occurrences := make(map[string][]*etree.Element)
	for _, c := range el.ChildElements() {
		cr, ok := def.Rule(rule.Path + "/" + c.Tag)
		if !ok || c.NamespaceURI() != def.Namespace {
			if !rule.Open && v.checkUnknown {
				rep.Errorf(c, CodeUnexpected, "unexpected element %s in %s", c.FullTag(), el.Tag)
			}
			continue
		}
		occurrences[c.Tag] = append(occurrences[c.Tag], c)
		v.checkElement(rep, c, cr)
	}

	var present []string
	for _, child := range def.Children(rule.Path) {
		name := child.Name()
		found := occurrences[name]
		if len(found) > 0 {
			present = append(present, name)
		}
		if child.MaxOccurs != schema.Unbounded && len(found) > child.MaxOccurs {
			rep.Errorf(found[child.MaxOccurs], CodeCardinality,
				"element %s occurs %d times, at most %d allowed", name, len(found), child.MaxOccurs)
		}
		if rule.Choice {
			continue
		}
		if len(found) < child.MinOccurs {
			if len(found) == 0 {
				rep.ErrorAt(rep.Path(el)+"/"+name, CodeMissing, "required element %s is missing", name)
			} else {
				rep.Errorf(el, CodeCardinality, "element %s occurs %d times, at least %d required", name, len(found), child.MinOccurs)
			}
		}
	}

	if rule.Choice && len(present) != 1 {
		var names []string
		for _, child := range def.Children(rule.Path) {
			names = append(names, child.Name())
		}
		if len(present) == 0 {
			rep.Errorf(el, CodeChoice, "one of %s is required", strings.Join(names, ", "))
		} else {
			rep.Errorf(el, CodeChoice, "only one of %s is allowed, found %s", strings.Join(names, ", "), strings.Join(present, ", "))
		}
	}
}

func (v *Validator) checkValue(rep *Reporter, el *etree.Element, rule *schema.ElementRule, value string) {
	def := rep.Definition()

	if n := utf8.RuneCountInString(value); rule.MinLength > 0 && n < rule.MinLength {
		if n == 0 {
			rep.Errorf(el, CodeLength, "element %s must not be empty", el.Tag)
		} else {
			rep.Errorf(el, CodeLength, "value of %s is shorter than %d characters", el.Tag, rule.MinLength)
		}
		return
	} else if rule.MaxLength > 0 && n > rule.MaxLength {
		rep.Errorf(el, CodeLength, "value of %s is longer than %d characters", el.Tag, rule.MaxLength)
		return
	}

	switch rule.Type {
	case schema.TypeDecimal:
		if _, err := message.ParseDecimal(value); err != nil {
			rep.Errorf(el, CodeType, "value %q of %s is not a decimal", value, el.Tag)
			return
		}
		total, fraction := message.DecimalDigits(value)
		if rule.TotalDigits > 0 && total > rule.TotalDigits {
			rep.Errorf(el, CodeDigits, "value %q of %s has more than %d digits", value, el.Tag, rule.TotalDigits)
		}
		if rule.FractionDigits > 0 && fraction > rule.FractionDigits {
			rep.Errorf(el, CodeDigits, "value %q of %s has more than %d fraction digits", value, el.Tag, rule.FractionDigits)
		}
	case schema.TypeDate:
		if _, err := message.ParseDate(value); err != nil {
			rep.Errorf(el, CodeType, "value %q of %s is not an ISO date", value, el.Tag)
			return
		}
	case schema.TypeDateTime:
		if _, err := message.ParseDateTime(value); err != nil {
			rep.Errorf(el, CodeType, "value %q of %s is not an ISO date-time", value, el.Tag)
			return
		}
	case schema.TypeBoolean:
		if _, err := message.ParseBoolean(value); err != nil {
			rep.Errorf(el, CodeType, "value %q of %s is not a boolean", value, el.Tag)
			return
		}
	}

	if rule.CodeSet != "" && !def.InCodeSet(rule.CodeSet, value) {
		rep.Errorf(el, CodeCode, "value %q of %s is not one of %s", value, el.Tag, strings.Join(def.Codes(rule.CodeSet), ", "))
		return
	}
	if !rule.Match(value) {
		rep.Errorf(el, CodePattern, "value %q of %s does not match %s", value, el.Tag, rule.Pattern)
	}
}

func (v *Validator) checkAttributes(rep *Reporter, el *etree.Element, rule *schema.ElementRule) {
	def := rep.Definition()
	for i := range rule.Attributes {
		ar := &rule.Attributes[i]
		attr := el.SelectAttr(ar.Name)
		if attr == nil {
			if ar.Required {
				rep.ErrorAt(rep.AttrPath(el, ar.Name), CodeAttributeMissing, "required attribute %s of %s is missing", ar.Name, el.Tag)
			}
			continue
		}
		if ar.CodeSet != "" && !def.InCodeSet(ar.CodeSet, attr.Value) {
			rep.ErrorAt(rep.AttrPath(el, ar.Name), CodeAttribute, "attribute %s value %q is not one of %s", ar.Name, attr.Value, strings.Join(def.Codes(ar.CodeSet), ", "))
			continue
		}
		if !ar.Match(attr.Value) {
			rep.ErrorAt(rep.AttrPath(el, ar.Name), CodeAttribute, "attribute %s value %q does not match %s", ar.Name, attr.Value, ar.Pattern)
		}
	}
}

func hasText(el *etree.Element) bool {
	for _, tok := range el.Child {
		if cd, ok := tok.(*etree.CharData); ok && !cd.IsWhitespace() {
			return true
		}
	}
	return false
}
