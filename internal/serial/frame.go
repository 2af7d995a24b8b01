package serial

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/sigurn/crc16"
)

// Frames are a big-endian uint32 payload length, the payload and a
// big-endian CRC-16/MODBUS of the payload.

// MaxPayload bounds the accepted frame length.
const MaxPayload = 4096

var ErrChecksum = errors.New("serial: checksum mismatch")

var crcTable = crc16.MakeTable(crc16.CRC16_MODBUS)

func checksum(data []byte) uint16 {
	return crc16.Checksum(data, crcTable)
}

// WriteFrame writes payload as one frame.
func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) == 0 || len(payload) > MaxPayload {
		return fmt.Errorf("serial: invalid payload length %d", len(payload))
	}

	frame := make([]byte, 4+len(payload)+2)
	binary.BigEndian.PutUint32(frame[0:4], uint32(len(payload)))
	copy(frame[4:], payload)
	binary.BigEndian.PutUint16(frame[4+len(payload):], checksum(payload))

	_, err := w.Write(frame)
	return err
}

// ReadFrame reads one frame and returns its verified payload.
func ReadFrame(r io.Reader) ([]byte, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}

	length := binary.BigEndian.Uint32(header[:])
	if length == 0 || length > MaxPayload {
		return nil, fmt.Errorf("serial: invalid frame length %d", length)
	}

	body := make([]byte, length+2)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}

	payload := body[:length]
	if binary.BigEndian.Uint16(body[length:]) != checksum(payload) {
		return nil, ErrChecksum
	}
	return payload, nil
}
