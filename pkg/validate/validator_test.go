package validate

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omerasipi/Es-Selam-Banko/pkg/message"
	"github.com/omerasipi/Es-Selam-Banko/pkg/schema"
)

func fixture(t *testing.T) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", "camt053.xml"))
	require.NoError(t, err)
	return string(data)
}

// mutate replaces the first occurrence of old in the fixture
func mutate(t *testing.T, old, replacement string) string {
	t.Helper()
	src := fixture(t)
	require.Contains(t, src, old)
	return strings.Replace(src, old, replacement, 1)
}

func parse(t *testing.T, src string) *message.Message {
	t.Helper()
	msg, err := message.NewParser(schema.Default()).Parse([]byte(src))
	require.NoError(t, err)
	return msg
}

func issueWithCode(r *Report, code string) *Issue {
	for i := range r.Issues {
		if r.Issues[i].Code == code {
			return &r.Issues[i]
		}
	}
	return nil
}

func TestValidate_Valid(t *testing.T) {
	report := New().Validate(parse(t, fixture(t)))

	assert.True(t, report.Valid)
	assert.Empty(t, report.Issues)
	assert.Equal(t, schema.Camt05300108, report.Schema)
	assert.NoError(t, report.Err())
}

func TestValidate_FieldRules(t *testing.T) {
	tests := []struct {
		name     string
		old, new string
		code     string
		path     string
	}{
		{
			name: "missing required element",
			old:  "<MsgId>STMT-2024-02-0001</MsgId>", new: "",
			code: CodeMissing,
			path: "/Document/BkToCstmrStmt/GrpHdr/MsgId",
		},
		{
			name: "code outside code set",
			old:  "<Amt Ccy=\"CHF\">25.50</Amt>\n        <CdtDbtInd>CRDT</CdtDbtInd>",
			new:  "<Amt Ccy=\"CHF\">25.50</Amt>\n        <CdtDbtInd>CRDX</CdtDbtInd>",
			code: CodeCode,
			path: "/Document/BkToCstmrStmt/Stmt[1]/Ntry[2]/CdtDbtInd",
		},
		{
			name: "missing attribute",
			old:  "\n        <Amt Ccy=\"CHF\">50.00</Amt>", new: "\n        <Amt>50.00</Amt>",
			code: CodeAttributeMissing,
			path: "/Document/BkToCstmrStmt/Stmt[1]/Ntry[1]/Amt/@Ccy",
		},
		{
			name: "attribute pattern",
			old:  "\n        <Amt Ccy=\"CHF\">50.00</Amt>", new: "\n        <Amt Ccy=\"chf\">50.00</Amt>",
			code: CodeAttribute,
			path: "/Document/BkToCstmrStmt/Stmt[1]/Ntry[1]/Amt/@Ccy",
		},
		{
			name: "invalid date",
			old:  "2024-01-15</Dt>\n        </BookgDt>", new: "2024-13-45</Dt>\n        </BookgDt>",
			code: CodeType,
			path: "/Document/BkToCstmrStmt/Stmt[1]/Ntry[1]/BookgDt/Dt",
		},
		{
			name: "invalid date-time",
			old:  "<DtTm>2024-02-10T10:30:00</DtTm>", new: "<DtTm>10.02.2024 10:30</DtTm>",
			code: CodeType,
			path: "/Document/BkToCstmrStmt/Stmt[1]/Ntry[2]/BookgDt/DtTm",
		},
		{
			name: "fraction digits",
			old:  "<Amt Ccy=\"CHF\">100.00</Amt>", new: "<Amt Ccy=\"CHF\">100.123456</Amt>",
			code: CodeDigits,
			path: "/Document/BkToCstmrStmt/Stmt[1]/Ntry[3]/Amt",
		},
		{
			name: "not a decimal",
			old:  "<Amt Ccy=\"CHF\">1200.00</Amt>", new: "<Amt Ccy=\"CHF\">1.200,00</Amt>",
			code: CodeType,
			path: "/Document/BkToCstmrStmt/Stmt[1]/Bal[1]/Amt",
		},
		{
			name: "pattern",
			old:  "<IBAN>CH9300762011623852957</IBAN>", new: "<IBAN>not an iban</IBAN>",
			code: CodePattern,
			path: "/Document/BkToCstmrStmt/Stmt[1]/Acct/Id/IBAN",
		},
		{
			name: "length",
			old:  "<NtryRef>E-0001</NtryRef>", new: "<NtryRef>" + strings.Repeat("x", 36) + "</NtryRef>",
			code: CodeLength,
			path: "/Document/BkToCstmrStmt/Stmt[1]/Ntry[1]/NtryRef",
		},
		{
			name: "unexpected element in closed aggregate",
			old:  "<FrDtTm>", new: "<Extra/><FrDtTm>",
			code: CodeUnexpected,
			path: "/Document/BkToCstmrStmt/Stmt[1]/FrToDt/Extra",
		},
		{
			name: "choice with two alternatives",
			old:  "<Cd>BOOK</Cd>", new: "<Cd>BOOK</Cd><Prtry>X</Prtry>",
			code: CodeChoice,
			path: "/Document/BkToCstmrStmt/Stmt[1]/Ntry[1]/Sts",
		},
		{
			name: "cardinality",
			old:  "<Ccy>CHF</Ccy>", new: "<Ccy>CHF</Ccy><Ccy>EUR</Ccy>",
			code: CodeCardinality,
			path: "/Document/BkToCstmrStmt/Stmt[1]/Acct/Ccy",
		},
		{
			name: "text in aggregate",
			old:  "<FrToDt>", new: "<FrToDt>stray",
			code: CodeStructure,
			path: "/Document/BkToCstmrStmt/Stmt[1]/FrToDt",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := New().Validate(parse(t, mutate(t, tt.old, tt.new)))

			assert.False(t, report.Valid)
			issue := issueWithCode(report, tt.code)
			require.NotNil(t, issue, "issues: %v", report.Issues)
			assert.Equal(t, tt.path, issue.Path)
			assert.Equal(t, SeverityError, issue.Severity)
			assert.NotEmpty(t, issue.Message)
		})
	}
}

func TestValidate_OpenAggregatePassesUnknownChildren(t *testing.T) {
	src := mutate(t, "<Id>STMT-2024-02</Id>", "<Id>STMT-2024-02</Id><RptgSrc><Prtry>X</Prtry></RptgSrc>")
	report := New().Validate(parse(t, src))
	assert.True(t, report.Valid, "issues: %v", report.Issues)
}

func TestValidate_CrossFieldRules(t *testing.T) {
	tests := []struct {
		name     string
		old, new string
		code     string
		path     string
	}{
		{
			name: "entry count",
			old:  "<NbOfNtries>3</NbOfNtries>", new: "<NbOfNtries>4</NbOfNtries>",
			code: CodeEntryCount,
			path: "/Document/BkToCstmrStmt/Stmt[1]/TxsSummry/TtlNtries/NbOfNtries",
		},
		{
			name: "entry sum",
			old:  "<Sum>175.50</Sum>", new: "<Sum>999.00</Sum>",
			code: CodeEntrySum,
			path: "/Document/BkToCstmrStmt/Stmt[1]/TxsSummry/TtlNtries/Sum",
		},
		{
			name: "reversed period",
			old:  "<FrDtTm>2024-01-01T00:00:00+01:00</FrDtTm>", new: "<FrDtTm>2024-03-01T00:00:00+01:00</FrDtTm>",
			code: CodePeriod,
			path: "/Document/BkToCstmrStmt/Stmt[1]/FrToDt",
		},
		{
			name: "transaction currency",
			old:  "\n            <Amt Ccy=\"CHF\">50.00</Amt>", new: "\n            <Amt Ccy=\"EUR\">50.00</Amt>",
			code: CodeCurrency,
			path: "/Document/BkToCstmrStmt/Stmt[1]/Ntry[1]/NtryDtls[1]/TxDtls[1]/Amt",
		},
		{
			name: "negative amount",
			old:  "<Amt Ccy=\"CHF\">1200.00</Amt>", new: "<Amt Ccy=\"CHF\">-1200.00</Amt>",
			code: CodeNegativeAmount,
			path: "/Document/BkToCstmrStmt/Stmt[1]/Bal[1]/Amt",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := New().Validate(parse(t, mutate(t, tt.old, tt.new)))

			assert.False(t, report.Valid)
			issue := issueWithCode(report, tt.code)
			require.NotNil(t, issue, "issues: %v", report.Issues)
			assert.Equal(t, tt.path, issue.Path)
		})
	}
}

func TestValidate_AccountCurrencyWarning(t *testing.T) {
	report := New().Validate(parse(t, mutate(t, "<Ccy>CHF</Ccy>", "<Ccy>EUR</Ccy>")))

	assert.True(t, report.Valid)
	assert.Empty(t, report.Errors())
	require.Len(t, report.Warnings(), 3)
	assert.Equal(t, CodeCurrency, report.Warnings()[0].Code)
	assert.NoError(t, report.Err())
}

func TestValidate_SubtotalGroups(t *testing.T) {
	src := mutate(t, "</TtlNtries>", `</TtlNtries>
        <TtlCdtNtries>
          <NbOfNtries>2</NbOfNtries>
          <Sum>75.50</Sum>
        </TtlCdtNtries>
        <TtlDbtNtries>
          <NbOfNtries>2</NbOfNtries>
          <Sum>100.00</Sum>
        </TtlDbtNtries>`)
	report := New().Validate(parse(t, src))

	require.Len(t, report.Issues, 1, "issues: %v", report.Issues)
	assert.Equal(t, CodeEntryCount, report.Issues[0].Code)
	assert.Equal(t, "/Document/BkToCstmrStmt/Stmt[1]/TxsSummry/TtlDbtNtries/NbOfNtries", report.Issues[0].Path)
}

func TestValidate_Options(t *testing.T) {
	src := mutate(t, "<Sum>175.50</Sum>", "<Sum>999.00</Sum>")

	report := New(WithoutDefaultRules()).Validate(parse(t, src))
	assert.True(t, report.Valid)

	unknown := mutate(t, "<FrDtTm>", "<Extra/><FrDtTm>")
	report = New(WithoutUnknownElementCheck()).Validate(parse(t, unknown))
	assert.True(t, report.Valid)

	custom := Rule{
		Name:     "statement-id-prefix",
		Families: []string{"camt.053"},
		Check: func(msg *message.Message, rep *Reporter) {
			id := msg.Find("Stmt/Id")
			if !strings.HasPrefix(message.Text(id), "ACME-") {
				rep.Errorf(id, "id-prefix", "statement id must start with ACME-")
			}
		},
	}
	report = New(WithRules(custom)).Validate(parse(t, fixture(t)))
	require.Len(t, report.Issues, 1)
	assert.Equal(t, "/Document/BkToCstmrStmt/Stmt[1]/Id", report.Issues[0].Path)

	other := Rule{Name: "other", Families: []string{"pain.001"}, Check: func(*message.Message, *Reporter) {
		t.Fatal("rule must not run for camt.053")
	}}
	report = New(WithRules(other)).Validate(parse(t, fixture(t)))
	assert.True(t, report.Valid)
}

func TestValidate_MaxIssues(t *testing.T) {
	src := fixture(t)
	src = strings.ReplaceAll(src, "<CdtDbtInd>CRDT</CdtDbtInd>", "<CdtDbtInd>XXXX</CdtDbtInd>")

	report := New(WithMaxIssues(2)).Validate(parse(t, src))
	assert.Len(t, report.Issues, 2)
	assert.True(t, report.Truncated)
	assert.False(t, report.Valid)
}

func TestValidate_MaxIssuesKeepsErrors(t *testing.T) {
	// account in EUR turns every CHF entry into a warning, the first
	// transaction in EUR adds an error after the first warning
	src := mutate(t, "<Ccy>CHF</Ccy>", "<Ccy>EUR</Ccy>")
	src = strings.Replace(src, "\n            <Amt Ccy=\"CHF\">50.00</Amt>", "\n            <Amt Ccy=\"EUR\">50.00</Amt>", 1)

	report := New(WithMaxIssues(1)).Validate(parse(t, src))
	assert.True(t, report.Truncated)
	assert.False(t, report.Valid)
	require.Len(t, report.Issues, 1)
	assert.Equal(t, SeverityError, report.Issues[0].Severity)
	assert.Equal(t, "/Document/BkToCstmrStmt/Stmt[1]/Ntry[1]/NtryDtls[1]/TxDtls[1]/Amt", report.Issues[0].Path)
	assert.ErrorIs(t, report.Err(), ErrInvalid)

	// errors past a cap filled with errors still fail the report
	src = strings.ReplaceAll(fixture(t), "<CdtDbtInd>CRDT</CdtDbtInd>", "<CdtDbtInd>XXXX</CdtDbtInd>")
	report = New(WithMaxIssues(1)).Validate(parse(t, src))
	assert.True(t, report.Truncated)
	assert.False(t, report.Valid)
	assert.Len(t, report.Errors(), 1)
	assert.Error(t, report.Err())
}

func TestReport_ErrOnTruncatedReport(t *testing.T) {
	report := &Report{Schema: schema.Camt05300108, Issues: []Issue{}, Truncated: true}
	err := report.Err()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalid)
	assert.Equal(t, "validate: camt.053.001.08 is invalid", err.Error())
}

func TestValidate_TwoBusinessRoots(t *testing.T) {
	src := mutate(t, "</BkToCstmrStmt>", "</BkToCstmrStmt><BkToCstmrStmt/>")
	report := New().Validate(parse(t, src))

	issue := issueWithCode(report, CodeCardinality)
	require.NotNil(t, issue)
	assert.Equal(t, "/Document/BkToCstmrStmt", issue.Path)
}

func TestReport_Err(t *testing.T) {
	report := New().Validate(parse(t, mutate(t, "<NbOfNtries>3</NbOfNtries>", "<NbOfNtries>7</NbOfNtries>")))

	err := report.Err()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalid))

	var verr *Error
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, schema.Camt05300108, verr.Schema)
	assert.Contains(t, err.Error(), "declared 7 entries, found 3")
}
