package message

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/beevik/etree"
	"golang.org/x/net/html/charset"

	"github.com/omerasipi/Es-Selam-Banko/pkg/schema"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Parser turns raw bytes into messages bound to a registered definition
type Parser struct {
	reg *schema.Registry
}

// NewParser creates a parser resolving namespaces against reg
func NewParser(reg *schema.Registry) *Parser {
	return &Parser{reg: reg}
}

// Registry returns the registry the parser resolves against
func (p *Parser) Registry() *schema.Registry {
	return p.reg
}

// ParseReader reads r to the end and parses it
func (p *Parser) ParseReader(r io.Reader) (*Message, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read message: %w", err)
	}
	return p.Parse(data)
}

// Parse builds a message tree from data
func (p *Parser) Parse(data []byte) (*Message, error) {
	data, err := prepare(data)
	if err != nil {
		return nil, err
	}

	doc := etree.NewDocument()
	doc.ReadSettings.CharsetReader = charset.NewReaderLabel
	if err := doc.ReadFromBytes(data); err != nil {
		if bytes.Contains(data, []byte("<!DOCTYPE")) {
			return nil, ErrDoctype
		}
		return nil, &SyntaxError{Err: err}
	}
	for _, tok := range doc.Child {
		if d, ok := tok.(*etree.Directive); ok && isDoctype(d.Data) {
			return nil, ErrDoctype
		}
	}

	docEl := findDocument(&doc.Element)
	if docEl == nil {
		return nil, ErrNoDocument
	}

	ns := docEl.NamespaceURI()
	def, err := p.reg.LookupNamespace(ns)
	if err != nil {
		return nil, &UnsupportedFormatError{Namespace: ns}
	}

	msg := &Message{
		Definition: def,
		Doc:        canonicalize(docEl, def.Namespace),
	}

	body := firstChildElement(msg.Document())
	if body == nil {
		return nil, fmt.Errorf("%w: %s: Document is empty", ErrRootMismatch, def.ID)
	}
	if body.Tag != def.Root {
		return nil, fmt.Errorf("%w: %s: expected %s, found %s", ErrRootMismatch, def.ID, def.Root, body.Tag)
	}
	return msg, nil
}

// Detect resolves the definition of data without building a tree.
// Only the tokens up to the Document start element are read.
func (p *Parser) Detect(data []byte) (*schema.Definition, error) {
	data, err := prepare(data)
	if err != nil {
		return nil, err
	}

	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.CharsetReader = charset.NewReaderLabel
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return nil, ErrNoDocument
		}
		if err != nil {
			return nil, &SyntaxError{Err: err}
		}

		switch t := tok.(type) {
		case xml.Directive:
			if isDoctype(string(t)) {
				return nil, ErrDoctype
			}
		case xml.StartElement:
			if t.Name.Local != DocumentTag {
				continue
			}
			def, err := p.reg.LookupNamespace(t.Name.Space)
			if err != nil {
				return nil, &UnsupportedFormatError{Namespace: t.Name.Space}
			}
			return def, nil
		}
	}
}

func prepare(data []byte) ([]byte, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrEmptyInput
	}
	return data, nil
}

func isDoctype(directive string) bool {
	return strings.HasPrefix(strings.TrimSpace(directive), "DOCTYPE")
}

// findDocument returns the first Document element in document order,
// which is either the root or nested inside an envelope
func findDocument(root *etree.Element) *etree.Element {
	for _, c := range root.ChildElements() {
		if c.Tag == DocumentTag {
			return c
		}
		if found := findDocument(c); found != nil {
			return found
		}
	}
	return nil
}

func firstChildElement(e *etree.Element) *etree.Element {
	if e == nil {
		return nil
	}
	children := e.ChildElements()
	if len(children) == 0 {
		return nil
	}
	return children[0]
}
