package schema

import (
	"fmt"
	"regexp"
	"strings"
)

// NamespacePrefix is the URN prefix of every ISO 20022 Document namespace
const NamespacePrefix = "urn:iso:std:iso:20022:tech:xsd:"

var idPattern = regexp.MustCompile(`^[a-z]{4}\.[0-9]{3}\.[0-9]{3}\.[0-9]{2}$`)

// ID identifies a message definition, e.g. "camt.053.001.08"
type ID string

// ParseID parses a message identifier or a full Document namespace URN
func ParseID(s string) (ID, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, NamespacePrefix)
	s = strings.ToLower(s)
	if !idPattern.MatchString(s) {
		return "", fmt.Errorf("%w: %q", ErrInvalidID, s)
	}
	return ID(s), nil
}

// Namespace returns the Document namespace for the identifier
func (id ID) Namespace() string {
	return NamespacePrefix + string(id)
}

// Area returns the business area, e.g. "camt"
func (id ID) Area() string {
	area, _, _ := strings.Cut(string(id), ".")
	return area
}

// Family returns the area and message number, e.g. "camt.053"
func (id ID) Family() string {
	parts := strings.SplitN(string(id), ".", 3)
	if len(parts) < 2 {
		return string(id)
	}
	return parts[0] + "." + parts[1]
}

// Version returns the message number, variant and version, e.g. "053.001.08"
func (id ID) Version() string {
	_, rest, _ := strings.Cut(string(id), ".")
	return rest
}

// Short returns the upper-case family name, e.g. "CAMT.053"
func (id ID) Short() string {
	return strings.ToUpper(id.Family())
}

func (id ID) String() string {
	return string(id)
}
