// Copyright (c) 2024 ASIPI IT
// SPDX-License-Identifier: BSD-2-Clause

/*
Package schema provides the versioned ISO 20022 message definitions used by
the parser and the validator.

# Identifiers

Every ISO 20022 message is identified by its business area, message number,
variant and version, for example camt.053.001.08. The XML namespace of the
Document element carries the same identifier:

	urn:iso:std:iso:20022:tech:xsd:camt.053.001.08

[ParseID] accepts both forms.

# Definitions

A [Definition] describes the subset of a message grammar the engine reads and
checks: element paths relative to the Document element, their cardinality,
leaf types, code sets, patterns and attribute constraints. Aggregates marked
Open may carry children that are not described; those are passed through
untouched.

# Registry

The [Registry] binds each namespace to exactly one definition:

	reg := schema.Default()
	def, err := reg.LookupNamespace("urn:iso:std:iso:20022:tech:xsd:camt.054.001.08")

Additional versions can be described in YAML and loaded at runtime:

	n, err := schema.LoadDir(reg, "/etc/banko/schemas")

# References

  - ISO 20022 message catalogue: https://www.iso20022.org/iso-20022-message-definitions
*/
package schema
