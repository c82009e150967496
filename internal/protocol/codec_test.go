package protocol

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodecRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	c := NewCodec(&buf)

	in := &Frame{
		Type:    RequestType("static"),
		ID:      "req-1",
		Payload: json.RawMessage(`{"target":{"app":"billing","revision":"abc123"},"tools":["lint"],"timeout":30}`),
	}
	require.NoError(t, c.Write(in))

	// Frames are newline-delimited so a stream reader can split them.
	assert.True(t, strings.HasSuffix(buf.String(), "\n"))

	out, err := c.Read()
	require.NoError(t, err)
	assert.Equal(t, in.Type, out.Type)
	assert.Equal(t, in.ID, out.ID)
	assert.JSONEq(t, string(in.Payload), string(out.Payload))
}

func TestCodecReadsConsecutiveFrames(t *testing.T) {
	var buf bytes.Buffer
	c := NewCodec(&buf)
	require.NoError(t, c.Write(&Frame{Type: TypeProgress, ID: "a", Percent: 25}))
	require.NoError(t, c.Write(&Frame{Type: ResultType("static"), ID: "a", Status: "success"}))

	first, err := c.Read()
	require.NoError(t, err)
	assert.Equal(t, TypeProgress, first.Type)
	assert.Equal(t, 25, first.Percent)

	second, err := c.Read()
	require.NoError(t, err)
	assert.Equal(t, "static_result", second.Type)
}

func TestIsTerminalFor(t *testing.T) {
	assert.True(t, (&Frame{Type: "static_result"}).IsTerminalFor("static"))
	assert.True(t, (&Frame{Type: TypeError}).IsTerminalFor("static"))
	assert.False(t, (&Frame{Type: TypeProgress}).IsTerminalFor("static"))
	assert.False(t, (&Frame{Type: "security_result"}).IsTerminalFor("static"))
}
