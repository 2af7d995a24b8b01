package modbus

import (
	"context"
	"encoding/binary"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/KevinKickass/OpenAlpacaCore/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeSlave is a minimal Modbus TCP server over loopback.
type fakeSlave struct {
	listener net.Listener

	mu        sync.Mutex
	coils     map[uint16]bool
	inputs    map[uint16]bool
	holding   map[uint16]uint16
	inputRegs map[uint16]uint16
}

func newFakeSlave(t *testing.T) *fakeSlave {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := &fakeSlave{
		listener:  l,
		coils:     map[uint16]bool{},
		inputs:    map[uint16]bool{},
		holding:   map[uint16]uint16{},
		inputRegs: map[uint16]uint16{},
	}
	go s.serve()
	t.Cleanup(func() { l.Close() })
	return s
}

func (s *fakeSlave) serve() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		go s.handle(conn)
	}
}

func (s *fakeSlave) handle(conn net.Conn) {
	defer conn.Close()

	for {
		header := make([]byte, 7)
		if _, err := io.ReadFull(conn, header); err != nil {
			return
		}
		body := make([]byte, binary.BigEndian.Uint16(header[4:6])-1)
		if _, err := io.ReadFull(conn, body); err != nil {
			return
		}

		fc := body[0]
		addr := binary.BigEndian.Uint16(body[1:3])
		arg := binary.BigEndian.Uint16(body[3:5])

		s.mu.Lock()
		var pdu []byte
		switch fc {
		case FuncCodeReadCoils, FuncCodeReadDiscreteInputs:
			src := s.coils
			if fc == FuncCodeReadDiscreteInputs {
				src = s.inputs
			}
			var b byte
			if src[addr] {
				b = 1
			}
			pdu = []byte{fc, 1, b}
		case FuncCodeReadHoldingRegisters, FuncCodeReadInputRegisters:
			src := s.holding
			if fc == FuncCodeReadInputRegisters {
				src = s.inputRegs
			}
			pdu = []byte{fc, 2, 0, 0}
			binary.BigEndian.PutUint16(pdu[2:], src[addr])
		case FuncCodeWriteSingleCoil:
			s.coils[addr] = arg == 0xFF00
			pdu = body[:5]
		case FuncCodeWriteSingleRegister:
			s.holding[addr] = arg
			pdu = body[:5]
		default:
			pdu = []byte{fc | 0x80, 0x01}
		}
		s.mu.Unlock()

		resp := make([]byte, 7+len(pdu))
		copy(resp, header)
		binary.BigEndian.PutUint16(resp[4:6], uint16(len(pdu)+1))
		copy(resp[7:], pdu)
		if _, err := conn.Write(resp); err != nil {
			return
		}
	}
}

func TestBinding_ReadWrite(t *testing.T) {
	slave := newFakeSlave(t)
	slave.inputs[4] = true
	slave.inputRegs[9] = 512

	b := NewBinding(slave.listener.Addr().String(), 1, time.Second, zap.NewNop())
	defer b.Close()
	ctx := context.Background()

	coil := types.ChannelIO{Register: types.RegisterTypeCoil, Address: 2}
	require.NoError(t, b.Write(ctx, 0, coil, 1))
	v, err := b.Read(ctx, 0, coil)
	require.NoError(t, err)
	assert.Equal(t, 1.0, v)

	holding := types.ChannelIO{Register: types.RegisterTypeHoldingRegister, Address: 7}
	require.NoError(t, b.Write(ctx, 1, holding, 1234))
	v, err = b.Read(ctx, 1, holding)
	require.NoError(t, err)
	assert.Equal(t, 1234.0, v)

	v, err = b.Read(ctx, 2, types.ChannelIO{Register: types.RegisterTypeDiscreteInput, Address: 4})
	require.NoError(t, err)
	assert.Equal(t, 1.0, v)

	v, err = b.Read(ctx, 3, types.ChannelIO{Register: types.RegisterTypeInputRegister, Address: 9})
	require.NoError(t, err)
	assert.Equal(t, 512.0, v)

	slave.mu.Lock()
	assert.True(t, slave.coils[2])
	assert.Equal(t, uint16(1234), slave.holding[7])
	slave.mu.Unlock()
}

func TestBinding_WriteRejections(t *testing.T) {
	b := NewBinding("127.0.0.1:1", 1, 50*time.Millisecond, zap.NewNop())
	ctx := context.Background()

	err := b.Write(ctx, 0, types.ChannelIO{Register: types.RegisterTypeInputRegister}, 1)
	assert.ErrorContains(t, err, "read-only")

	err = b.Write(ctx, 0, types.ChannelIO{Register: types.RegisterTypeDiscreteInput}, 1)
	assert.ErrorContains(t, err, "read-only")
}

func TestBinding_RegisterRange(t *testing.T) {
	slave := newFakeSlave(t)
	b := NewBinding(slave.listener.Addr().String(), 1, time.Second, zap.NewNop())
	defer b.Close()

	holding := types.ChannelIO{Register: types.RegisterTypeHoldingRegister}
	assert.Error(t, b.Write(context.Background(), 0, holding, 70000))
	assert.Error(t, b.Write(context.Background(), 0, holding, -1))
}

func TestBinding_ConnectFailure(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	l.Close()

	b := NewBinding(addr, 1, 100*time.Millisecond, zap.NewNop())
	_, err = b.Read(context.Background(), 0, types.ChannelIO{Register: types.RegisterTypeCoil})
	assert.Error(t, err)
}
