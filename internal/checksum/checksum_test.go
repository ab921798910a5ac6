package checksum

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSHA256Bytes(t *testing.T) {
	tests := []struct {
		name     string
		input    []byte
		expected string
	}{
		{
			name:     "empty",
			input:    []byte{},
			expected: "sha256:e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		},
		{
			name:     "hello world",
			input:    []byte("hello world"),
			expected: "sha256:b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9",
		},
		{
			name:     "json object",
			input:    []byte(`{"key":"value"}`),
			expected: "sha256:e43abcf3375244839c012f9633f95862d232a95b00d5bc7348b3098b9fed7f32",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, SHA256Bytes(tt.input))
		})
	}
}

func TestSHA256StringMatchesBytes(t *testing.T) {
	assert.Equal(t, SHA256Bytes([]byte("abc")), SHA256String("abc"))
}

func TestSHA256HexHasNoPrefix(t *testing.T) {
	hex := SHA256Hex([]byte("hello world"))
	assert.Len(t, hex, 64)
	assert.Equal(t, "sha256:"+hex, SHA256String("hello world"))
}

func TestDeterministicAcrossCalls(t *testing.T) {
	assert.Equal(t, SHA256String("same input"), SHA256String("same input"))
}
