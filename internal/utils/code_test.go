package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodeRoundTrip(t *testing.T) {
	g := NewCodeGenerator("s3cret")

	code, err := g.Generate(42)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(code, "MFP-42-"))

	again, err := g.Generate(42)
	require.NoError(t, err)
	assert.Equal(t, code, again, "code must be bound 1:1 to the payment id")

	other, err := g.Generate(43)
	require.NoError(t, err)
	assert.NotEqual(t, code, other)

	id, err := g.Parse(code)
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
}

func TestCodeRejectsTampering(t *testing.T) {
	g := NewCodeGenerator("s3cret")
	code, err := g.Generate(7)
	require.NoError(t, err)

	tests := []string{
		"",
		"MFP-7",
		strings.Replace(code, "MFP-7-", "MFP-8-", 1),
		"XYZ" + code[3:],
		code + "0",
	}
	for _, tc := range tests {
		_, err := g.Parse(tc)
		assert.Error(t, err, "code %q", tc)
	}

	_, err = NewCodeGenerator("other").Parse(code)
	assert.Error(t, err)
}

func TestGenerateErrors(t *testing.T) {
	_, err := NewCodeGenerator("s").Generate(0)
	assert.Error(t, err)
	_, err = NewCodeGenerator("").Generate(1)
	assert.Error(t, err)
}
