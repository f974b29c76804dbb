package message

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omerasipi/Es-Selam-Banko/pkg/schema"
)

func TestSerialize_Canonical(t *testing.T) {
	p := NewParser(schema.Default())
	msg, err := p.Parse(readFixture(t, "camt054_prefixed.xml"))
	require.NoError(t, err)

	out, err := Serialize(msg)
	require.NoError(t, err)
	s := string(out)

	assert.True(t, strings.HasPrefix(s, `<?xml version="1.0" encoding="UTF-8"?>`))
	assert.Contains(t, s, `<Document xmlns="urn:iso:std:iso:20022:tech:xsd:camt.054.001.08">`)
	assert.Contains(t, s, "\n  <BkToCstmrDbtCdtNtfctn>")
	assert.NotContains(t, s, "ns2")
}

func TestSerialize_DropsComments(t *testing.T) {
	p := NewParser(schema.Default())
	msg, err := p.Parse(readFixture(t, "camt053.xml"))
	require.NoError(t, err)

	out, err := Serialize(msg)
	require.NoError(t, err)
	assert.NotContains(t, string(out), "<!--")
	assert.Contains(t, string(out), "<Nm>Ahmed Hasani</Nm>")
}

func TestSerialize_Compact(t *testing.T) {
	p := NewParser(schema.Default())
	msg, err := p.Parse(readFixture(t, "camt053.xml"))
	require.NoError(t, err)

	out, err := Serialize(msg, Compact(), WithoutDeclaration())
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("<Document ")))
	assert.NotContains(t, string(out), "\n")
}

func TestSerialize_RoundTrip(t *testing.T) {
	p := NewParser(schema.Default())

	for _, name := range []string{"camt053.xml", "camt054_prefixed.xml", "envelope.xml"} {
		t.Run(name, func(t *testing.T) {
			for _, opts := range [][]SerializeOption{nil, {Compact()}, {WithIndent(4)}} {
				msg, err := p.Parse(readFixture(t, name))
				require.NoError(t, err)
				first, err := Serialize(msg, opts...)
				require.NoError(t, err)

				again, err := p.Parse(first)
				require.NoError(t, err)
				second, err := Serialize(again, opts...)
				require.NoError(t, err)

				assert.Equal(t, string(first), string(second))
			}
		})
	}
}

func TestSerialize_DoesNotModifyMessage(t *testing.T) {
	p := NewParser(schema.Default())
	msg, err := p.Parse(readFixture(t, "camt053.xml"))
	require.NoError(t, err)

	before, err := msg.Doc.WriteToString()
	require.NoError(t, err)
	_, err = Serialize(msg, Compact())
	require.NoError(t, err)
	after, err := msg.Doc.WriteToString()
	require.NoError(t, err)

	assert.Equal(t, before, after)
}

func TestSerializeTo(t *testing.T) {
	p := NewParser(schema.Default())
	msg, err := p.Parse(readFixture(t, "camt053.xml"))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, SerializeTo(&buf, msg))

	out, err := Serialize(msg)
	require.NoError(t, err)
	assert.Equal(t, out, buf.Bytes())
}

func TestSerialize_NilMessage(t *testing.T) {
	_, err := Serialize(nil)
	assert.ErrorIs(t, err, ErrNoDocument)
}
