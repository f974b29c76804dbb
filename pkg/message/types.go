package message

import (
	"errors"
	"fmt"
	"strings"

	"github.com/beevik/etree"

	"github.com/omerasipi/Es-Selam-Banko/pkg/schema"
)

// DocumentTag is the local name of the ISO 20022 Document element
const DocumentTag = "Document"

var (
	// ErrEmptyInput indicates empty or whitespace-only input
	ErrEmptyInput = errors.New("message: empty input")
	// ErrDoctype indicates a DOCTYPE declaration, which is never accepted
	ErrDoctype = errors.New("message: DOCTYPE declarations are not allowed")
	// ErrNoDocument indicates input without a Document element
	ErrNoDocument = errors.New("message: no Document element found")
	// ErrUnsupportedFormat indicates a Document namespace without a registered definition
	ErrUnsupportedFormat = errors.New("message: unsupported message format")
	// ErrRootMismatch indicates a business root other than the definition's
	ErrRootMismatch = errors.New("message: business root does not match definition")
)

// SyntaxError reports input that is not well-formed XML
type SyntaxError struct {
	Err error
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("message: malformed XML: %v", e.Err)
}

func (e *SyntaxError) Unwrap() error {
	return e.Err
}

// UnsupportedFormatError reports the namespace that could not be resolved
type UnsupportedFormatError struct {
	Namespace string
}

func (e *UnsupportedFormatError) Error() string {
	if e.Namespace == "" {
		return "message: unsupported message format: Document has no namespace"
	}
	return fmt.Sprintf("message: unsupported message format %q", e.Namespace)
}

// Is makes UnsupportedFormatError match ErrUnsupportedFormat
func (e *UnsupportedFormatError) Is(target error) bool {
	return target == ErrUnsupportedFormat
}

// Message is a parsed message bound to exactly one definition.
// The tree is rooted at the Document element and carries the definition
// namespace as its default namespace.
type Message struct {
	Definition *schema.Definition
	Doc        *etree.Document
}

// ID returns the message identifier
func (m *Message) ID() schema.ID {
	return m.Definition.ID
}

// Document returns the Document element
func (m *Message) Document() *etree.Element {
	return m.Doc.Root()
}

// Body returns the business root, e.g. BkToCstmrStmt
func (m *Message) Body() *etree.Element {
	doc := m.Document()
	if doc == nil {
		return nil
	}
	return Child(doc, m.Definition.Root)
}

// Find returns the first element at a slash path relative to the business root
func (m *Message) Find(path string) *etree.Element {
	body := m.Body()
	if body == nil {
		return nil
	}
	return Child(body, path)
}

// FindAll returns every element at a slash path relative to the business root
func (m *Message) FindAll(path string) []*etree.Element {
	body := m.Body()
	if body == nil {
		return nil
	}
	return Children(body, path)
}

// Text returns the trimmed text at a path relative to the business root
func (m *Message) Text(path string) string {
	return Text(m.Find(path))
}

// Child returns the first descendant of e at a slash path of local names
func Child(e *etree.Element, path string) *etree.Element {
	all := Children(e, path)
	if len(all) == 0 {
		return nil
	}
	return all[0]
}

// Children returns every descendant of e at a slash path of local names, in document order
func Children(e *etree.Element, path string) []*etree.Element {
	if e == nil {
		return nil
	}
	current := []*etree.Element{e}
	for _, step := range strings.Split(path, "/") {
		if step == "" {
			continue
		}
		var next []*etree.Element
		for _, c := range current {
			for _, child := range c.ChildElements() {
				if child.Tag == step {
					next = append(next, child)
				}
			}
		}
		if len(next) == 0 {
			return nil
		}
		current = next
	}
	return current
}

// ChildText returns the trimmed text of the first descendant at path
func ChildText(e *etree.Element, path string) string {
	return Text(Child(e, path))
}

// Text returns the trimmed text of e, empty for nil
func Text(e *etree.Element) string {
	if e == nil {
		return ""
	}
	return strings.TrimSpace(e.Text())
}
