package modbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode_ReadHoldingRegisters(t *testing.T) {
	f := ReadHoldingRegistersRequest(1, 0x006B, 3)
	f.TransactionID = 0x0001

	assert.Equal(t, []byte{
		0x00, 0x01, // transaction
		0x00, 0x00, // protocol
		0x00, 0x06, // length
		0x01,       // unit
		0x03,       // function
		0x00, 0x6B, // start
		0x00, 0x03, // quantity
	}, f.Encode())
}

func TestEncode_WriteSingleCoil(t *testing.T) {
	on := WriteSingleCoilRequest(1, 0x00AC, true).Encode()
	off := WriteSingleCoilRequest(1, 0x00AC, false).Encode()

	assert.Equal(t, []byte{0x00, 0xAC, 0xFF, 0x00}, on[8:])
	assert.Equal(t, []byte{0x00, 0xAC, 0x00, 0x00}, off[8:])
	assert.Equal(t, uint8(FuncCodeWriteSingleCoil), on[7])
}

func TestDecodeFrame(t *testing.T) {
	data := []byte{0x00, 0x07, 0x00, 0x00, 0x00, 0x07, 0x01, 0x03, 0x04, 0x02, 0x2B, 0x00, 0x64}

	f, err := DecodeFrame(data)
	require.NoError(t, err)
	assert.Equal(t, uint16(7), f.TransactionID)
	assert.Equal(t, uint8(FuncCodeReadHoldingRegisters), f.FunctionCode)

	regs, err := f.ParseRegisterResponse()
	require.NoError(t, err)
	assert.Equal(t, []uint16{0x022B, 0x0064}, regs)
}

func TestDecodeFrame_Errors(t *testing.T) {
	_, err := DecodeFrame([]byte{0x00, 0x01})
	assert.Error(t, err)

	_, err = DecodeFrame([]byte{0x00, 0x01, 0x00, 0x01, 0x00, 0x02, 0x01, 0x03})
	assert.ErrorContains(t, err, "protocol ID")

	_, err = DecodeFrame([]byte{0x00, 0x01, 0x00, 0x00, 0x00, 0x09, 0x01, 0x03})
	assert.ErrorContains(t, err, "length mismatch")
}

func TestDecodeFrame_Exception(t *testing.T) {
	_, err := DecodeFrame([]byte{0x00, 0x01, 0x00, 0x00, 0x00, 0x03, 0x01, 0x83, 0x02})

	var exc *ExceptionError
	require.ErrorAs(t, err, &exc)
	assert.Equal(t, uint8(0x03), exc.FunctionCode)
	assert.Equal(t, uint8(0x02), exc.Code)
}

func TestParseBitResponse(t *testing.T) {
	f := &ModbusFrame{Data: []byte{0x02, 0xCD, 0x01}}

	bits, err := f.ParseBitResponse(10)
	require.NoError(t, err)
	assert.Equal(t, []bool{true, false, true, true, false, false, true, true, true, false}, bits)

	_, err = f.ParseBitResponse(17)
	assert.Error(t, err)

	_, err = (&ModbusFrame{Data: []byte{0x04, 0x01}}).ParseBitResponse(1)
	assert.Error(t, err)
}
