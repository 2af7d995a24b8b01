package modbus

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/KevinKickass/OpenAlpacaCore/internal/types"
	"go.uber.org/zap"
)

// Binding drives switch channels through one Modbus TCP slave.
// The channel's register type selects the function code; the value is the raw
// bit (0/1) or the unsigned 16-bit register content.
type Binding struct {
	client *Client
	unitID uint8
	logger *zap.Logger
}

func NewBinding(address string, unitID uint8, timeout time.Duration, logger *zap.Logger) *Binding {
	return &Binding{
		client: NewClient(address, timeout),
		unitID: unitID,
		logger: logger,
	}
}

func (b *Binding) ensureConnected() error {
	if b.client.IsConnected() {
		return nil
	}
	if err := b.client.Connect(); err != nil {
		return err
	}
	b.logger.Info("Modbus connection established", zap.String("address", b.client.address))
	return nil
}

func (b *Binding) Read(ctx context.Context, channel int, io types.ChannelIO) (float64, error) {
	if err := b.ensureConnected(); err != nil {
		return 0, err
	}

	switch io.Register {
	case types.RegisterTypeCoil, types.RegisterTypeDiscreteInput:
		read := b.client.ReadCoils
		if io.Register == types.RegisterTypeDiscreteInput {
			read = b.client.ReadDiscreteInputs
		}
		bits, err := read(ctx, b.unitID, io.Address, 1)
		if err != nil {
			return 0, fmt.Errorf("channel %d: %w", channel, err)
		}
		if bits[0] {
			return 1, nil
		}
		return 0, nil

	case types.RegisterTypeHoldingRegister, types.RegisterTypeInputRegister:
		read := b.client.ReadHoldingRegisters
		if io.Register == types.RegisterTypeInputRegister {
			read = b.client.ReadInputRegisters
		}
		regs, err := read(ctx, b.unitID, io.Address, 1)
		if err != nil {
			return 0, fmt.Errorf("channel %d: %w", channel, err)
		}
		if len(regs) != 1 {
			return 0, fmt.Errorf("channel %d: expected 1 register, got %d", channel, len(regs))
		}
		return float64(regs[0]), nil
	}

	return 0, fmt.Errorf("channel %d: unsupported register type %q", channel, io.Register)
}

func (b *Binding) Write(ctx context.Context, channel int, io types.ChannelIO, value float64) error {
	if io.Register.ReadOnly() {
		return fmt.Errorf("channel %d: %s is read-only", channel, io.Register)
	}
	if err := b.ensureConnected(); err != nil {
		return err
	}

	switch io.Register {
	case types.RegisterTypeCoil:
		if err := b.client.WriteSingleCoil(ctx, b.unitID, io.Address, value != 0); err != nil {
			return fmt.Errorf("channel %d: %w", channel, err)
		}
		return nil

	case types.RegisterTypeHoldingRegister:
		if value < 0 || value > math.MaxUint16 {
			return fmt.Errorf("channel %d: value %v does not fit a register", channel, value)
		}
		if err := b.client.WriteSingleRegister(ctx, b.unitID, io.Address, uint16(math.Round(value))); err != nil {
			return fmt.Errorf("channel %d: %w", channel, err)
		}
		return nil
	}

	return fmt.Errorf("channel %d: unsupported register type %q", channel, io.Register)
}

func (b *Binding) Close() error {
	return b.client.Close()
}
