package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParserFor(t *testing.T) {
	p, err := ParserFor("")
	require.NoError(t, err)
	assert.IsType(t, &JSONParser{}, p)

	p, err = ParserFor("json")
	require.NoError(t, err)
	assert.IsType(t, &JSONParser{}, p)

	p, err = ParserFor("text")
	require.NoError(t, err)
	assert.IsType(t, &TextParser{}, p)

	_, err = ParserFor("xml")
	assert.Error(t, err)
}

func TestJSONParser_ValidEnvelope(t *testing.T) {
	p := NewJSONParser()

	raw := []byte(`{
		"payloads": [{"text": "working on it"}, {"text": "done"}],
		"meta": {"session_id": "s-42", "duration_ms": 1200}
	}`)

	result, err := p.Parse(raw)
	require.NoError(t, err)
	require.Len(t, result.Payloads, 2)
	assert.Equal(t, "done", result.Payloads[1].Text)
	assert.Equal(t, "s-42", result.Meta.SessionID)
	assert.Equal(t, int64(1200), result.Meta.DurationMs)
}

func TestJSONParser_MissingPayloadsRejected(t *testing.T) {
	p := NewJSONParser()

	_, err := p.Parse([]byte(`{"meta": {"session_id": "s-42"}}`))
	require.Error(t, err)

	var invErr *InvocationError
	require.ErrorAs(t, err, &invErr)
	assert.Equal(t, "parse", invErr.Stage)
}

func TestJSONParser_MalformedJSONRejected(t *testing.T) {
	p := NewJSONParser()

	_, err := p.Parse([]byte(`{"payloads": [`))
	require.Error(t, err)

	var invErr *InvocationError
	require.ErrorAs(t, err, &invErr)
	assert.Equal(t, "parse", invErr.Stage)
}

func TestJSONParser_WrongTypeRejected(t *testing.T) {
	p := NewJSONParser()

	_, err := p.Parse([]byte(`{"payloads": "not an array"}`))
	assert.Error(t, err)
}

func TestTextParser_WrapsOutput(t *testing.T) {
	p := &TextParser{}

	result, err := p.Parse([]byte("  plain answer\n"))
	require.NoError(t, err)
	require.Len(t, result.Payloads, 1)
	assert.Equal(t, "plain answer", result.Payloads[0].Text)
}

func TestTextParser_EmptyOutputYieldsNoPayloads(t *testing.T) {
	p := &TextParser{}

	result, err := p.Parse([]byte("   \n"))
	require.NoError(t, err)
	assert.Empty(t, result.Payloads)
}
