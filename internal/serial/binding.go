package serial

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/KevinKickass/OpenAlpacaCore/internal/types"
	"github.com/tarm/serial"
	"go.uber.org/zap"
)

const (
	OpRead  = "read"
	OpWrite = "write"
)

// Command is sent to the controller for every channel access.
type Command struct {
	ID       uint32             `json:"id"`
	Op       string             `json:"op"`
	Channel  int                `json:"channel"`
	Register types.RegisterType `json:"register"`
	Address  uint16             `json:"address"`
	Value    float64            `json:"value,omitempty"`
}

// Response is the controller's answer to a Command.
type Response struct {
	ID    uint32  `json:"id"`
	Value float64 `json:"value"`
	Error string  `json:"error,omitempty"`
}

// Config configures a serial binding.
type Config struct {
	Port        string
	Baud        int
	ReadTimeout time.Duration
}

// Binding drives switch channels through a microcontroller on a serial line.
// One command is in flight at a time.
type Binding struct {
	port   io.ReadWriteCloser
	logger *zap.Logger

	mu     sync.Mutex
	nextID uint32
}

// Open opens the serial port.
func Open(cfg Config, logger *zap.Logger) (*Binding, error) {
	port, err := serial.OpenPort(&serial.Config{
		Name:        cfg.Port,
		Baud:        cfg.Baud,
		Parity:      serial.ParityNone,
		ReadTimeout: cfg.ReadTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", cfg.Port, err)
	}

	logger.Info("Serial port opened", zap.String("port", cfg.Port), zap.Int("baud", cfg.Baud))
	return NewBinding(port, logger), nil
}

// NewBinding wraps an already open port.
func NewBinding(port io.ReadWriteCloser, logger *zap.Logger) *Binding {
	return &Binding{port: port, logger: logger}
}

func (b *Binding) Read(ctx context.Context, channel int, io types.ChannelIO) (float64, error) {
	resp, err := b.roundTrip(ctx, Command{Op: OpRead, Channel: channel, Register: io.Register, Address: io.Address})
	if err != nil {
		return 0, fmt.Errorf("channel %d: %w", channel, err)
	}
	return resp.Value, nil
}

func (b *Binding) Write(ctx context.Context, channel int, io types.ChannelIO, value float64) error {
	if io.Register.ReadOnly() {
		return fmt.Errorf("channel %d: %s is read-only", channel, io.Register)
	}
	_, err := b.roundTrip(ctx, Command{Op: OpWrite, Channel: channel, Register: io.Register, Address: io.Address, Value: value})
	if err != nil {
		return fmt.Errorf("channel %d: %w", channel, err)
	}
	return nil
}

func (b *Binding) roundTrip(ctx context.Context, cmd Command) (Response, error) {
	if err := ctx.Err(); err != nil {
		return Response{}, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	cmd.ID = b.nextID

	payload, err := json.Marshal(cmd)
	if err != nil {
		return Response{}, err
	}
	if err := WriteFrame(b.port, payload); err != nil {
		return Response{}, fmt.Errorf("write failed: %w", err)
	}

	// Stale answers from timed-out commands are skipped.
	for {
		data, err := ReadFrame(b.port)
		if err != nil {
			return Response{}, fmt.Errorf("read failed: %w", err)
		}

		var resp Response
		if err := json.Unmarshal(data, &resp); err != nil {
			return Response{}, fmt.Errorf("invalid response: %w", err)
		}
		if resp.ID < cmd.ID {
			b.logger.Debug("Discarding stale serial response", zap.Uint32("id", resp.ID))
			continue
		}
		if resp.ID != cmd.ID {
			return Response{}, fmt.Errorf("response id mismatch: expected %d, got %d", cmd.ID, resp.ID)
		}
		if resp.Error != "" {
			return Response{}, fmt.Errorf("controller: %s", resp.Error)
		}
		return resp, nil
	}
}

func (b *Binding) Close() error {
	return b.port.Close()
}
