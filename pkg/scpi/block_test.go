package scpi

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlockRoundTrip(t *testing.T) {
	payload := bytes.Repeat([]byte{0xA5}, 10240)
	block := EncodeBlock(payload)

	assert.Equal(t, byte('#'), block[0])
	assert.Equal(t, byte('5'), block[1])
	assert.Equal(t, "10240", string(block[2:7]))

	got, err := ParseBlock(block)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestEncodeBlockEmpty(t *testing.T) {
	block := EncodeBlock(nil)
	assert.Equal(t, "#10", string(block))

	got, err := ParseBlock(block)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestParseBlockMalformed(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"no hash", []byte("510240xxxxx")},
		{"bad digit", []byte("#x10")},
		{"zero digit", []byte("#05abc")},
		{"truncated header", []byte("#512")},
		{"truncated payload", []byte("#15abc")},
		{"garbage length", []byte("#2ab..")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseBlock(tt.data)
			assert.Error(t, err)
		})
	}
}

func TestBlockHeaderSize(t *testing.T) {
	header, payload, err := BlockHeaderSize([]byte("#41024"))
	require.NoError(t, err)
	assert.Equal(t, 6, header)
	assert.Equal(t, 1024, payload)
}
