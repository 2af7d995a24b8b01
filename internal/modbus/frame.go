package modbus

import (
	"encoding/binary"
	"fmt"
)

// MBAP header (7 bytes) + function code + data
type ModbusFrame struct {
	TransactionID uint16 // request/response correlation
	ProtocolID    uint16 // always 0x0000 for Modbus
	Length        uint16 // number of following bytes
	UnitID        uint8  // slave address
	FunctionCode  uint8
	Data          []byte
}

// Modbus function codes
const (
	FuncCodeReadCoils              = 0x01
	FuncCodeReadDiscreteInputs     = 0x02
	FuncCodeReadHoldingRegisters   = 0x03
	FuncCodeReadInputRegisters     = 0x04
	FuncCodeWriteSingleCoil        = 0x05
	FuncCodeWriteSingleRegister    = 0x06
	FuncCodeWriteMultipleCoils     = 0x0F
	FuncCodeWriteMultipleRegisters = 0x10

	exceptionFlag = 0x80
	mbapLength    = 7
	// MaxFrameLength is the largest Modbus TCP ADU.
	MaxFrameLength = 260
)

const (
	coilOn  uint16 = 0xFF00
	coilOff uint16 = 0x0000
)

// ExceptionError is a Modbus exception response.
type ExceptionError struct {
	FunctionCode uint8
	Code         uint8
}

func (e *ExceptionError) Error() string {
	return fmt.Sprintf("modbus exception 0x%02X on function 0x%02X", e.Code, e.FunctionCode)
}

// Encode builds the complete TCP frame.
func (f *ModbusFrame) Encode() []byte {
	f.Length = uint16(len(f.Data) + 2) // unit id + function code + data

	frame := make([]byte, mbapLength+1+len(f.Data))

	binary.BigEndian.PutUint16(frame[0:2], f.TransactionID)
	binary.BigEndian.PutUint16(frame[2:4], f.ProtocolID)
	binary.BigEndian.PutUint16(frame[4:6], f.Length)
	frame[6] = f.UnitID

	frame[7] = f.FunctionCode
	copy(frame[8:], f.Data)

	return frame
}

// DecodeFrame parses a received frame. Exception responses are returned as *ExceptionError.
func DecodeFrame(data []byte) (*ModbusFrame, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("frame too short: %d bytes", len(data))
	}

	frame := &ModbusFrame{
		TransactionID: binary.BigEndian.Uint16(data[0:2]),
		ProtocolID:    binary.BigEndian.Uint16(data[2:4]),
		Length:        binary.BigEndian.Uint16(data[4:6]),
		UnitID:        data[6],
		FunctionCode:  data[7],
	}

	if frame.ProtocolID != 0x0000 {
		return nil, fmt.Errorf("invalid protocol ID: 0x%04X", frame.ProtocolID)
	}
	if int(frame.Length) != len(data)-6 {
		return nil, fmt.Errorf("length mismatch: header %d, frame %d", frame.Length, len(data)-6)
	}

	if len(data) > 8 {
		frame.Data = data[8:]
	}

	if frame.FunctionCode&exceptionFlag != 0 {
		code := uint8(0)
		if len(frame.Data) > 0 {
			code = frame.Data[0]
		}
		return frame, &ExceptionError{FunctionCode: frame.FunctionCode &^ exceptionFlag, Code: code}
	}

	return frame, nil
}

func addressRequest(unitID uint8, functionCode uint8, addr uint16, value uint16) *ModbusFrame {
	data := make([]byte, 4)
	binary.BigEndian.PutUint16(data[0:2], addr)
	binary.BigEndian.PutUint16(data[2:4], value)

	return &ModbusFrame{
		ProtocolID:   0x0000,
		UnitID:       unitID,
		FunctionCode: functionCode,
		Data:         data,
	}
}

// ReadCoilsRequest builds a function code 0x01 request.
func ReadCoilsRequest(unitID uint8, startAddr uint16, quantity uint16) *ModbusFrame {
	return addressRequest(unitID, FuncCodeReadCoils, startAddr, quantity)
}

// ReadDiscreteInputsRequest builds a function code 0x02 request.
func ReadDiscreteInputsRequest(unitID uint8, startAddr uint16, quantity uint16) *ModbusFrame {
	return addressRequest(unitID, FuncCodeReadDiscreteInputs, startAddr, quantity)
}

// ReadHoldingRegistersRequest builds a function code 0x03 request.
func ReadHoldingRegistersRequest(unitID uint8, startAddr uint16, quantity uint16) *ModbusFrame {
	return addressRequest(unitID, FuncCodeReadHoldingRegisters, startAddr, quantity)
}

// ReadInputRegistersRequest builds a function code 0x04 request.
func ReadInputRegistersRequest(unitID uint8, startAddr uint16, quantity uint16) *ModbusFrame {
	return addressRequest(unitID, FuncCodeReadInputRegisters, startAddr, quantity)
}

// WriteSingleCoilRequest builds a function code 0x05 request.
func WriteSingleCoilRequest(unitID uint8, addr uint16, on bool) *ModbusFrame {
	value := coilOff
	if on {
		value = coilOn
	}
	return addressRequest(unitID, FuncCodeWriteSingleCoil, addr, value)
}

// WriteSingleRegisterRequest builds a function code 0x06 request.
func WriteSingleRegisterRequest(unitID uint8, addr uint16, value uint16) *ModbusFrame {
	return addressRequest(unitID, FuncCodeWriteSingleRegister, addr, value)
}

func (f *ModbusFrame) payload() ([]byte, error) {
	if len(f.Data) < 1 {
		return nil, fmt.Errorf("response too short")
	}

	byteCount := int(f.Data[0])
	if len(f.Data) < byteCount+1 {
		return nil, fmt.Errorf("incomplete response data")
	}
	return f.Data[1 : 1+byteCount], nil
}

// ParseRegisterResponse parses a holding/input register response.
func (f *ModbusFrame) ParseRegisterResponse() ([]uint16, error) {
	payload, err := f.payload()
	if err != nil {
		return nil, err
	}

	registers := make([]uint16, len(payload)/2)
	for i := range registers {
		registers[i] = binary.BigEndian.Uint16(payload[i*2 : i*2+2])
	}

	return registers, nil
}

// ParseBitResponse parses a coil/discrete input response into quantity bits.
func (f *ModbusFrame) ParseBitResponse(quantity uint16) ([]bool, error) {
	payload, err := f.payload()
	if err != nil {
		return nil, err
	}
	if len(payload)*8 < int(quantity) {
		return nil, fmt.Errorf("expected %d bits, got %d bytes", quantity, len(payload))
	}

	bits := make([]bool, quantity)
	for i := range bits {
		bits[i] = payload[i/8]&(1<<(uint(i)%8)) != 0
	}

	return bits, nil
}
