package camt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omerasipi/Es-Selam-Banko/pkg/message"
	"github.com/omerasipi/Es-Selam-Banko/pkg/schema"
	"github.com/omerasipi/Es-Selam-Banko/pkg/validate"
)

func TestService_ProcessFile(t *testing.T) {
	svc := NewService(schema.Default())

	txs, err := svc.ProcessFile(readFixture(t, "camt053.xml"))
	require.NoError(t, err)
	assert.Len(t, txs, 3)

	txs, err = svc.ProcessFile(readFixture(t, "camt054_prefixed.xml"))
	require.NoError(t, err)
	assert.Len(t, txs, 1)
}

func TestService_Process_Result(t *testing.T) {
	svc := NewService(schema.Default())

	res, err := svc.Process(readFixture(t, "camt053.xml"))
	require.NoError(t, err)
	assert.Equal(t, "053.001.08", res.Format)
	assert.True(t, res.Report.Valid)
	assert.Equal(t, schema.Camt05300108, res.Message.ID())
}

func TestService_NoProcessor(t *testing.T) {
	svc := NewService(schema.Default(), WithProcessors(NewNotificationProcessor()))

	_, err := svc.ProcessFile(readFixture(t, "camt053.xml"))
	require.ErrorIs(t, err, ErrUnsupportedFormat)
	assert.Equal(t, "no processor found for this CAMT format", err.Error())
	assert.False(t, svc.CanProcessFile(readFixture(t, "camt053.xml")))
	assert.Equal(t, []string{"054.001.08"}, svc.SupportedFormats())
}

func TestService_ParseErrors(t *testing.T) {
	svc := NewService(schema.Default())

	_, err := svc.ProcessFile([]byte("   "))
	assert.ErrorIs(t, err, message.ErrEmptyInput)

	_, err = svc.ProcessFile([]byte(`<Document xmlns="urn:iso:std:iso:20022:tech:xsd:pain.001.001.09"><CstmrCdtTrfInitn/></Document>`))
	assert.ErrorIs(t, err, message.ErrUnsupportedFormat)
}

func TestService_StrictMode(t *testing.T) {
	invalid := []byte(strings.Replace(string(readFixture(t, "camt053.xml")),
		"<NbOfNtries>3</NbOfNtries>", "<NbOfNtries>9</NbOfNtries>", 1))

	_, err := NewService(schema.Default()).ProcessFile(invalid)
	assert.ErrorIs(t, err, validate.ErrInvalid)

	res, err := NewService(schema.Default(), WithStrict(false)).Process(invalid)
	require.NoError(t, err)
	assert.False(t, res.Report.Valid)
	assert.Len(t, res.Transactions, 3)
}

func TestService_CanProcessFile(t *testing.T) {
	svc := NewService(schema.Default())

	assert.True(t, svc.CanProcessFile(readFixture(t, "camt053.xml")))
	assert.True(t, svc.CanProcessFile(readFixture(t, "camt054_prefixed.xml")))
	assert.False(t, svc.CanProcessFile([]byte("<not-xml")))
	assert.False(t, svc.CanProcessFile(nil))
}

func TestService_SupportedFormats(t *testing.T) {
	assert.Equal(t, []string{"053.001.08", "054.001.08"}, NewService(schema.Default()).SupportedFormats())
}

func TestService_FileType(t *testing.T) {
	svc := NewService(schema.Default())

	assert.Equal(t, "CAMT.053", svc.FileType(readFixture(t, "camt053.xml")))
	assert.Equal(t, "CAMT.054", svc.FileType(readFixture(t, "camt054_prefixed.xml")))
	assert.Equal(t, UnknownFileType, svc.FileType([]byte("hello")))
	assert.Equal(t, UnknownFileType, svc.FileType([]byte(`<Document xmlns="urn:iso:std:iso:20022:tech:xsd:pain.001.001.09"/>`)))

	reg := schema.Default()
	require.NoError(t, reg.Register(&schema.Definition{ID: "camt.052.001.08", Root: "BkToCstmrAcctRpt"}))
	assert.Equal(t, UnknownFileType, NewService(reg).FileType([]byte(`<Document xmlns="urn:iso:std:iso:20022:tech:xsd:camt.052.001.08"/>`)))
}

func TestService_Check(t *testing.T) {
	svc := NewService(schema.Default())

	msg, report, err := svc.Check(readFixture(t, "camt053.xml"))
	require.NoError(t, err)
	assert.NotNil(t, msg)
	assert.True(t, report.Valid)

	_, _, err = svc.Check([]byte("<broken"))
	var syntaxErr *message.SyntaxError
	assert.ErrorAs(t, err, &syntaxErr)
}
