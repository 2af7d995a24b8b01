package serial

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	payload := []byte(`{"id":1,"op":"read"}`)

	require.NoError(t, WriteFrame(&buf, payload))
	assert.Equal(t, uint32(len(payload)), binary.BigEndian.Uint32(buf.Bytes()[:4]))
	assert.Equal(t, 4+len(payload)+2, buf.Len())

	got, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestChecksumIsModbusVariant(t *testing.T) {
	// CRC-16/MODBUS check value.
	assert.Equal(t, uint16(0x4B37), checksum([]byte("123456789")))
}

func TestReadFrame_Corrupted(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, []byte("hello")))
	raw := buf.Bytes()
	raw[5] ^= 0xFF

	_, err := ReadFrame(bytes.NewReader(raw))
	assert.ErrorIs(t, err, ErrChecksum)
}

func TestReadFrame_Invalid(t *testing.T) {
	_, err := ReadFrame(bytes.NewReader([]byte{0, 0, 0, 0}))
	assert.Error(t, err)

	_, err = ReadFrame(bytes.NewReader([]byte{0xFF, 0xFF, 0xFF, 0xFF}))
	assert.Error(t, err)

	_, err = ReadFrame(bytes.NewReader([]byte{0, 0, 0, 5, 'h'}))
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)

	assert.Error(t, WriteFrame(io.Discard, nil))
	assert.Error(t, WriteFrame(io.Discard, make([]byte, MaxPayload+1)))
}
