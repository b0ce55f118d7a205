package openai

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSSEScannerSplitsEvents(t *testing.T) {
	s := NewSSEScanner(strings.NewReader("data: one\n\ndata: two\n\n"))

	require.True(t, s.Next())
	assert.Equal(t, "one", s.Event().Data)
	require.True(t, s.Next())
	assert.Equal(t, "two", s.Event().Data)
	assert.False(t, s.Next())
	assert.NoError(t, s.Err())
}

func TestSSEScannerJoinsDataLines(t *testing.T) {
	s := NewSSEScanner(strings.NewReader("data: {\ndata: \"a\": 1\ndata: }\n\n"))

	require.True(t, s.Next())
	assert.Equal(t, "{\n\"a\": 1\n}", s.Event().Data)
}

func TestSSEScannerSkipsComments(t *testing.T) {
	s := NewSSEScanner(strings.NewReader(": keep-alive\ndata: payload\n\n"))

	require.True(t, s.Next())
	assert.Equal(t, "payload", s.Event().Data)
	assert.False(t, s.Next())
}

func TestSSEScannerEmitsTrailingEventAtEOF(t *testing.T) {
	s := NewSSEScanner(strings.NewReader("data: tail"))

	require.True(t, s.Next())
	assert.Equal(t, "tail", s.Event().Data)
	assert.False(t, s.Next())
}

func TestSSEScannerReadsEventField(t *testing.T) {
	s := NewSSEScanner(strings.NewReader("event: ping\ndata: {}\n\n"))

	require.True(t, s.Next())
	assert.Equal(t, "ping", s.Event().Event)
	assert.Equal(t, "{}", s.Event().Data)
}

func TestSSEScannerTrimsExactlyOneLeadingSpace(t *testing.T) {
	s := NewSSEScanner(strings.NewReader("data:  padded\n\n"))

	require.True(t, s.Next())
	assert.Equal(t, " padded", s.Event().Data)
}

func TestSSEScannerHandlesCarriageReturns(t *testing.T) {
	s := NewSSEScanner(strings.NewReader("event: ping\r\ndata: hello\r\n\r\n"))

	require.True(t, s.Next())
	assert.Equal(t, "ping", s.Event().Event)
	assert.Equal(t, "hello", s.Event().Data)
	assert.False(t, s.Next())
}
