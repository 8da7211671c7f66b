package prompter

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLine(t *testing.T) {
	out := &bytes.Buffer{}
	p := New(strings.NewReader("  hello  \nlast"), out)

	got, err := p.Line("> ")
	require.NoError(t, err)
	assert.Equal(t, "hello", got)

	got, err = p.Line("> ")
	require.NoError(t, err)
	assert.Equal(t, "last", got, "a final line without newline is returned")

	_, err = p.Line("> ")
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, "> > > ", out.String())
}

func TestRequired(t *testing.T) {
	p := New(strings.NewReader("\n"), io.Discard)
	_, err := p.Required("name: ")
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestSecretWithoutTerminal(t *testing.T) {
	p := New(strings.NewReader("tok-123\n"), io.Discard)
	got, err := p.Secret("token: ")
	require.NoError(t, err)
	assert.Equal(t, "tok-123", got)
}

func TestConfirm(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"y\n", true},
		{"YES\n", true},
		{"n\n", false},
		{"maybe\n", false},
	}
	for _, tt := range tests {
		p := New(strings.NewReader(tt.in), io.Discard)
		got, err := p.Confirm("sure?")
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, tt.in)
	}
}
