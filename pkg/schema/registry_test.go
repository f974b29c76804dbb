package schema

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseID(t *testing.T) {
	tests := []struct {
		in      string
		want    ID
		wantErr bool
	}{
		{in: "camt.053.001.08", want: "camt.053.001.08"},
		{in: "urn:iso:std:iso:20022:tech:xsd:camt.054.001.08", want: "camt.054.001.08"},
		{in: "  CAMT.053.001.08 ", want: "camt.053.001.08"},
		{in: "camt.053", wantErr: true},
		{in: "urn:iso:std:iso:20022:tech:xsd:", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseID(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidID)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestID_Parts(t *testing.T) {
	id := Camt05300108
	assert.Equal(t, "camt", id.Area())
	assert.Equal(t, "camt.053", id.Family())
	assert.Equal(t, "053.001.08", id.Version())
	assert.Equal(t, "CAMT.053", id.Short())
	assert.Equal(t, "urn:iso:std:iso:20022:tech:xsd:camt.053.001.08", id.Namespace())
}

func TestDefault_Builtins(t *testing.T) {
	reg := Default()
	assert.Equal(t, 2, reg.Len())
	assert.Equal(t, []ID{Camt05300108, Camt05400108}, reg.IDs())

	def, err := reg.Lookup("camt.053.001.08")
	require.NoError(t, err)
	assert.Equal(t, "BkToCstmrStmt", def.Root)

	byNS, err := reg.LookupNamespace(Camt05400108.Namespace())
	require.NoError(t, err)
	assert.Equal(t, "BkToCstmrDbtCdtNtfctn", byNS.Root)

	rule, ok := def.Rule("BkToCstmrStmt/Stmt/Ntry/Amt")
	require.True(t, ok)
	assert.Equal(t, TypeDecimal, rule.Type)
	require.Len(t, rule.Attributes, 1)
	assert.True(t, rule.Attributes[0].Match("CHF"))
	assert.False(t, rule.Attributes[0].Match("chf"))

	assert.True(t, def.InCodeSet(CodeSetCreditDebit, "CRDT"))
	assert.False(t, def.InCodeSet(CodeSetCreditDebit, "XXXX"))
	assert.Equal(t, []string{"CRDT", "DBIT"}, def.Codes(CodeSetCreditDebit))

	var names []string
	for _, c := range def.Children("BkToCstmrStmt") {
		names = append(names, c.Name())
	}
	assert.Equal(t, []string{"GrpHdr", "Stmt", "SplmtryData"}, names)
}

func TestRegistry_Lookup_Unknown(t *testing.T) {
	reg := Default()

	_, err := reg.Lookup("camt.052.001.08")
	assert.ErrorIs(t, err, ErrUnknownSchema)

	_, err = reg.LookupNamespace("urn:example:other")
	assert.ErrorIs(t, err, ErrUnknownSchema)

	_, err = reg.Lookup("garbage")
	assert.ErrorIs(t, err, ErrInvalidID)
}

func TestRegistry_Register_Duplicate(t *testing.T) {
	reg := Default()
	err := reg.Register(Builtin()[0])
	assert.ErrorIs(t, err, ErrDuplicateDefinition)
}

func TestRegistry_Register_Invalid(t *testing.T) {
	tests := []struct {
		name string
		def  *Definition
	}{
		{name: "nil", def: nil},
		{name: "missing root", def: &Definition{ID: "camt.052.001.08"}},
		{name: "namespace mismatch", def: &Definition{ID: "camt.052.001.08", Namespace: "urn:x", Root: "BkToCstmrAcctRpt"}},
		{name: "path outside root", def: &Definition{ID: "camt.052.001.08", Root: "BkToCstmrAcctRpt",
			Elements: []ElementRule{{Path: "Other/Id"}}}},
		{name: "missing parent", def: &Definition{ID: "camt.052.001.08", Root: "BkToCstmrAcctRpt",
			Elements: []ElementRule{{Path: "BkToCstmrAcctRpt/Rpt/Id", Type: TypeText}}}},
		{name: "leaf parent", def: &Definition{ID: "camt.052.001.08", Root: "BkToCstmrAcctRpt",
			Elements: []ElementRule{
				{Path: "BkToCstmrAcctRpt/Id", Type: TypeText},
				{Path: "BkToCstmrAcctRpt/Id/X", Type: TypeText},
			}}},
		{name: "unknown code set", def: &Definition{ID: "camt.052.001.08", Root: "BkToCstmrAcctRpt",
			Elements: []ElementRule{{Path: "BkToCstmrAcctRpt/Cd", Type: TypeCode, CodeSet: "Nope"}}}},
		{name: "bad pattern", def: &Definition{ID: "camt.052.001.08", Root: "BkToCstmrAcctRpt",
			Elements: []ElementRule{{Path: "BkToCstmrAcctRpt/Id", Type: TypeText, Pattern: "("}}}},
		{name: "bounds", def: &Definition{ID: "camt.052.001.08", Root: "BkToCstmrAcctRpt",
			Elements: []ElementRule{{Path: "BkToCstmrAcctRpt/Id", Type: TypeText, MinOccurs: 2, MaxOccurs: 1}}}},
		{name: "duplicate path", def: &Definition{ID: "camt.052.001.08", Root: "BkToCstmrAcctRpt",
			Elements: []ElementRule{
				{Path: "BkToCstmrAcctRpt/Id", Type: TypeText},
				{Path: "BkToCstmrAcctRpt/Id", Type: TypeText},
			}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := NewRegistry()
			err := reg.Register(tt.def)
			require.Error(t, err)
			assert.Zero(t, reg.Len())
		})
	}
}

func TestRegistry_Versions(t *testing.T) {
	reg := Default()
	require.NoError(t, reg.Register(&Definition{
		ID:   "camt.053.001.02",
		Root: "BkToCstmrStmt",
	}))

	assert.Equal(t, []ID{"camt.053.001.02", Camt05300108}, reg.Versions("camt.053"))
	assert.Equal(t, []ID{Camt05400108}, reg.Versions("camt.054"))
	assert.Empty(t, reg.Versions("pain.001"))
}

const reportYAML = `
id: camt.052.001.08
root: BkToCstmrAcctRpt
description: BankToCustomerAccountReportV08
codeSets:
  CreditDebitCode: [CRDT, DBIT]
elements:
  - path: BkToCstmrAcctRpt/GrpHdr
    minOccurs: 1
    maxOccurs: 1
    open: true
  - path: BkToCstmrAcctRpt/Rpt
    minOccurs: 1
    open: true
  - path: BkToCstmrAcctRpt/Rpt/Ntry
    open: true
  - path: BkToCstmrAcctRpt/Rpt/Ntry/CdtDbtInd
    minOccurs: 1
    maxOccurs: 1
    type: code
    codeSet: CreditDebitCode
`

func TestDecode_Single(t *testing.T) {
	defs, err := Decode(strings.NewReader(reportYAML))
	require.NoError(t, err)
	require.Len(t, defs, 1)

	reg := NewRegistry()
	require.NoError(t, reg.Register(defs[0]))

	def, err := reg.Lookup("camt.052.001.08")
	require.NoError(t, err)
	rule, ok := def.Rule("BkToCstmrAcctRpt/Rpt")
	require.True(t, ok)
	assert.True(t, rule.Repeats())
	assert.True(t, rule.Open)

	// Root rule is added when missing
	_, ok = def.Rule("BkToCstmrAcctRpt")
	assert.True(t, ok)
}

func TestDecode_List(t *testing.T) {
	doc := `
definitions:
  - id: pain.001.001.09
    root: CstmrCdtTrfInitn
  - id: pain.002.001.10
    root: CstmrPmtStsRpt
`
	defs, err := Decode(strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, defs, 2)
	assert.Equal(t, ID("pain.002.001.10"), defs[1].ID)
}

func TestDecode_Errors(t *testing.T) {
	_, err := Decode(strings.NewReader("   "))
	assert.ErrorIs(t, err, ErrInvalidDefinition)

	_, err = Decode(strings.NewReader("root: X\n"))
	assert.ErrorIs(t, err, ErrInvalidDefinition)

	_, err = Decode(strings.NewReader("id: [unterminated"))
	assert.Error(t, err)
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "camt052.yaml"), []byte(reportYAML), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.txt"), []byte("ignored"), 0o600))

	reg := Default()
	n, err := LoadDir(reg, dir)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 3, reg.Len())

	// Loading again collides with the registered definition
	_, err = LoadDir(reg, dir)
	assert.ErrorIs(t, err, ErrDuplicateDefinition)

	_, err = LoadDir(reg, filepath.Join(dir, "missing"))
	assert.Error(t, err)
}
