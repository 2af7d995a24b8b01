package devices

import (
	"context"

	"github.com/KevinKickass/OpenAlpacaCore/internal/types"
)

// Binding supplies physical reads and writes for channels whose descriptor carries an io mapping.
// Implementations live next to their transport (modbus, serial); the switch never depends on them.
type Binding interface {
	Read(ctx context.Context, channel int, io types.ChannelIO) (float64, error)
	Write(ctx context.Context, channel int, io types.ChannelIO, value float64) error
	Close() error
}
