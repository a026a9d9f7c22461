package scpi

import (
	"fmt"
	"strconv"
)

// Definite-length block: '#', one ASCII digit giving the width of the length
// field, the length field itself, then exactly that many payload bytes. A
// response line terminator may trail the payload.

// BlockHeaderSize returns the total header length encoded at the start of
// data, or an error if data does not begin a definite-length block. The
// second return is the payload length the header announces.
func BlockHeaderSize(data []byte) (header, payload int, err error) {
	if len(data) < 2 {
		return 0, 0, fmt.Errorf("block too short: %d bytes", len(data))
	}
	if data[0] != '#' {
		return 0, 0, fmt.Errorf("block does not start with '#': 0x%02X", data[0])
	}
	digits := int(data[1] - '0')
	if digits < 1 || digits > 9 {
		return 0, 0, fmt.Errorf("invalid block digit count: %q", data[1])
	}
	header = 2 + digits
	if len(data) < header {
		return 0, 0, fmt.Errorf("truncated block header: have %d bytes, need %d", len(data), header)
	}
	payload, err = strconv.Atoi(string(data[2:header]))
	if err != nil {
		return 0, 0, fmt.Errorf("malformed block length %q: %w", data[2:header], err)
	}
	return header, payload, nil
}

// ParseBlock extracts the payload of a complete definite-length block.
func ParseBlock(data []byte) ([]byte, error) {
	header, payload, err := BlockHeaderSize(data)
	if err != nil {
		return nil, err
	}
	if len(data) < header+payload {
		return nil, fmt.Errorf("truncated block payload: have %d bytes, need %d", len(data)-header, payload)
	}
	return data[header : header+payload], nil
}

// EncodeBlock wraps payload in a definite-length block header.
func EncodeBlock(payload []byte) []byte {
	length := strconv.Itoa(len(payload))
	out := make([]byte, 0, 2+len(length)+len(payload))
	out = append(out, '#', byte('0'+len(length)))
	out = append(out, length...)
	return append(out, payload...)
}
