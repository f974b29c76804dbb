package message

import (
	"fmt"
	"io"

	"github.com/beevik/etree"
)

// DefaultIndent is the number of spaces per level in serialized output
const DefaultIndent = 2

type serializeOptions struct {
	indent      int
	declaration bool
}

// SerializeOption configures Serialize
type SerializeOption func(*serializeOptions)

// Compact disables indentation
func Compact() SerializeOption {
	return func(o *serializeOptions) {
		o.indent = -1
	}
}

// WithIndent sets the number of spaces per level
func WithIndent(spaces int) SerializeOption {
	return func(o *serializeOptions) {
		o.indent = spaces
	}
}

// WithoutDeclaration omits the XML declaration
func WithoutDeclaration() SerializeOption {
	return func(o *serializeOptions) {
		o.declaration = false
	}
}

// Serialize writes msg in canonical wire form: an XML declaration, the
// Document element with the message namespace as default namespace, no
// comments or processing instructions, no whitespace-only text.
func Serialize(msg *Message, opts ...SerializeOption) ([]byte, error) {
	doc, err := canonicalDocument(msg, opts)
	if err != nil {
		return nil, err
	}
	out, err := doc.WriteToBytes()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize %s: %w", msg.ID(), err)
	}
	return out, nil
}

// SerializeTo writes the canonical form of msg to w
func SerializeTo(w io.Writer, msg *Message, opts ...SerializeOption) error {
	doc, err := canonicalDocument(msg, opts)
	if err != nil {
		return err
	}
	if _, err := doc.WriteTo(w); err != nil {
		return fmt.Errorf("failed to serialize %s: %w", msg.ID(), err)
	}
	return nil
}

func canonicalDocument(msg *Message, opts []SerializeOption) (*etree.Document, error) {
	if msg == nil || msg.Doc == nil || msg.Document() == nil {
		return nil, ErrNoDocument
	}

	o := serializeOptions{indent: DefaultIndent, declaration: true}
	for _, opt := range opts {
		opt(&o)
	}

	root := msg.Document().Copy()
	strip(root)

	doc := etree.NewDocument()
	doc.WriteSettings.CanonicalText = true
	doc.WriteSettings.CanonicalAttrVal = true
	if o.declaration {
		doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	}
	doc.SetRoot(root)
	if o.indent >= 0 {
		doc.Indent(o.indent)
	} else {
		doc.Unindent()
	}
	return doc, nil
}

// strip removes comments, processing instructions, directives and
// whitespace-only text below e
func strip(e *etree.Element) {
	for i := len(e.Child) - 1; i >= 0; i-- {
		switch t := e.Child[i].(type) {
		case *etree.Comment, *etree.ProcInst, *etree.Directive:
			e.RemoveChildAt(i)
		case *etree.CharData:
			if t.IsWhitespace() {
				e.RemoveChildAt(i)
			}
		case *etree.Element:
			strip(t)
		}
	}
}
