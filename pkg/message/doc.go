// Copyright (c) 2024 ASIPI IT
// SPDX-License-Identifier: BSD-2-Clause

/*
Package message parses and serializes ISO 20022 XML messages.

# Parsing

A [Parser] reads raw bytes into a [Message]: an element tree rooted at the
Document element and bound to the one [schema.Definition] registered for the
Document namespace.

	p := message.NewParser(schema.Default())
	msg, err := p.Parse(data)

The parser tolerates a UTF-8 byte order mark, finds a Document element nested
in a business message envelope and rejects DOCTYPE declarations. Failures are
reported through sentinel and typed errors:

	ErrEmptyInput          - nothing but whitespace
	*SyntaxError           - input is not well-formed XML
	ErrDoctype             - a DOCTYPE declaration is present
	ErrNoDocument          - no Document element
	*UnsupportedFormatError - unknown namespace, matches ErrUnsupportedFormat
	ErrRootMismatch        - the business root is not the definition root

[Parser.Detect] resolves the definition by streaming up to the Document start
element, without building a tree.

# Namespaces

Prefixed ISO elements are rewritten to the default namespace, so

	<ns2:Document xmlns:ns2="urn:iso:std:iso:20022:tech:xsd:camt.054.001.08">

is held, and serialized, as

	<Document xmlns="urn:iso:std:iso:20022:tech:xsd:camt.054.001.08">

# Serializing

[Serialize] emits the canonical form: XML declaration, default namespace, no
comments and no whitespace-only text, indented with two spaces unless
[Compact] is given. Serializing a parsed canonical message yields the same
bytes again.

# Values

[ParseDecimal], [ParseDate], [ParseDateTime] and [ParseDateOrDateTime] read
leaf values in their ISO 20022 lexical forms.
*/
package message
