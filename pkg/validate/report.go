package validate

import (
	"errors"
	"fmt"
	"strings"

	"github.com/beevik/etree"

	"github.com/omerasipi/Es-Selam-Banko/pkg/schema"
)

// ErrInvalid is matched by every *Error
var ErrInvalid = errors.New("validate: message is invalid")

// Severity of an issue
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue codes
const (
	CodeMissing          = "missing-element"
	CodeCardinality      = "cardinality"
	CodeUnexpected       = "unexpected-element"
	CodeChoice           = "choice"
	CodeStructure        = "structure"
	CodeType             = "invalid-type"
	CodeDigits           = "digits"
	CodeCode             = "invalid-code"
	CodePattern          = "pattern"
	CodeLength           = "length"
	CodeAttributeMissing = "missing-attribute"
	CodeAttribute        = "invalid-attribute"
	CodeNegativeAmount   = "negative-amount"
	CodeEntryCount       = "entry-count"
	CodeEntrySum         = "entry-sum"
	CodePeriod           = "period"
	CodeCurrency         = "currency-mismatch"
)

// Issue is one finding, located by an XPath-like path with 1-based
// positions on repeating elements, e.g. /Document/BkToCstmrStmt/Stmt[1]/Ntry[2]/Amt
type Issue struct {
	Path     string   `json:"path"`
	Code     string   `json:"code"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

func (i Issue) String() string {
	return fmt.Sprintf("%s: %s", i.Path, i.Message)
}

// Report is the outcome of validating one message
type Report struct {
	Schema    schema.ID `json:"schema"`
	Valid     bool      `json:"valid"`
	Issues    []Issue   `json:"issues"`
	Truncated bool      `json:"truncated,omitempty"`
}

// Errors returns the error-severity issues
func (r *Report) Errors() []Issue {
	return r.filter(SeverityError)
}

// Warnings returns the warning-severity issues
func (r *Report) Warnings() []Issue {
	return r.filter(SeverityWarning)
}

func (r *Report) filter(sev Severity) []Issue {
	var out []Issue
	for _, i := range r.Issues {
		if i.Severity == sev {
			out = append(out, i)
		}
	}
	return out
}

// Err returns an *Error when the report holds error-severity issues or
// is marked invalid
func (r *Report) Err() error {
	errs := r.Errors()
	if len(errs) == 0 && r.Valid {
		return nil
	}
	return &Error{Schema: r.Schema, Issues: errs}
}

// Error carries the error-severity issues of an invalid message
type Error struct {
	Schema schema.ID
	Issues []Issue
}

func (e *Error) Error() string {
	if len(e.Issues) == 0 {
		return fmt.Sprintf("validate: %s is invalid", e.Schema)
	}
	msg := fmt.Sprintf("validate: %s: %s", e.Schema, e.Issues[0])
	if n := len(e.Issues) - 1; n > 0 {
		msg += fmt.Sprintf(" (and %d more)", n)
	}
	return msg
}

// Is makes *Error match ErrInvalid
func (e *Error) Is(target error) bool {
	return target == ErrInvalid
}

// Reporter collects issues and renders element paths
type Reporter struct {
	def       *schema.Definition
	doc       *etree.Element
	max       int
	issues    []Issue
	truncated bool
	failed    bool
}

func newReporter(def *schema.Definition, doc *etree.Element, limit int) *Reporter {
	return &Reporter{def: def, doc: doc, max: limit}
}

// Definition returns the definition of the message under validation
func (r *Reporter) Definition() *schema.Definition {
	return r.def
}

// Errorf records an error on el
func (r *Reporter) Errorf(el *etree.Element, code, format string, args ...any) {
	r.add(r.Path(el), code, SeverityError, fmt.Sprintf(format, args...))
}

// Warnf records a warning on el
func (r *Reporter) Warnf(el *etree.Element, code, format string, args ...any) {
	r.add(r.Path(el), code, SeverityWarning, fmt.Sprintf(format, args...))
}

// ErrorAt records an error on an explicit path
func (r *Reporter) ErrorAt(path, code, format string, args ...any) {
	r.add(path, code, SeverityError, fmt.Sprintf(format, args...))
}

// add records an issue. A full report makes room for errors by dropping
// its latest warning, and a truncated error still fails the report.
func (r *Reporter) add(path, code string, sev Severity, msg string) {
	issue := Issue{Path: path, Code: code, Severity: sev, Message: msg}
	if sev == SeverityError {
		r.failed = true
	}
	if r.max <= 0 || len(r.issues) < r.max {
		r.issues = append(r.issues, issue)
		return
	}

	r.truncated = true
	if sev != SeverityError {
		return
	}
	for i := len(r.issues) - 1; i >= 0; i-- {
		if r.issues[i].Severity == SeverityWarning {
			r.issues = append(r.issues[:i], r.issues[i+1:]...)
			r.issues = append(r.issues, issue)
			return
		}
	}
}

// Path renders the location of el below the Document element
func (r *Reporter) Path(el *etree.Element) string {
	if el == nil {
		return ""
	}

	var chain []*etree.Element
	for e := el; e != nil && e != r.doc; e = e.Parent() {
		chain = append(chain, e)
	}

	var sb strings.Builder
	sb.WriteString("/" + r.doc.Tag)
	var defPath string
	for i := len(chain) - 1; i >= 0; i-- {
		e := chain[i]
		if defPath == "" {
			defPath = e.Tag
		} else {
			defPath += "/" + e.Tag
		}
		sb.WriteString("/" + e.FullTag())
		if r.positional(e, defPath) {
			fmt.Fprintf(&sb, "[%d]", position(e))
		}
	}
	return sb.String()
}

// AttrPath renders the location of an attribute of el
func (r *Reporter) AttrPath(el *etree.Element, name string) string {
	return r.Path(el) + "/@" + name
}

func (r *Reporter) positional(e *etree.Element, defPath string) bool {
	if rule, ok := r.def.Rule(defPath); ok {
		return rule.Repeats()
	}
	return siblings(e) > 1
}

func position(e *etree.Element) int {
	parent := e.Parent()
	if parent == nil {
		return 1
	}
	pos := 0
	for _, c := range parent.ChildElements() {
		if c.Space == e.Space && c.Tag == e.Tag {
			pos++
		}
		if c == e {
			return pos
		}
	}
	return pos
}

func siblings(e *etree.Element) int {
	parent := e.Parent()
	if parent == nil {
		return 1
	}
	n := 0
	for _, c := range parent.ChildElements() {
		if c.Space == e.Space && c.Tag == e.Tag {
			n++
		}
	}
	return n
}

func (r *Reporter) report() *Report {
	rep := &Report{
		Schema:    r.def.ID,
		Issues:    r.issues,
		Truncated: r.truncated,
	}
	if rep.Issues == nil {
		rep.Issues = []Issue{}
	}
	rep.Valid = !r.failed
	return rep
}
