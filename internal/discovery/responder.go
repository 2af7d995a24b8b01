package discovery

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/KevinKickass/OpenAlpacaCore/internal/types"
	"go.uber.org/zap"
)

// ProbePrefix starts every well-formed discovery datagram.
const ProbePrefix = "alpacadiscovery"

const (
	DefaultPort         = 32227
	DefaultPollInterval = 10 * time.Millisecond
	maxDatagram         = 1024
)

// Config configures a Responder.
type Config struct {
	Port int
	// Strict answers only datagrams starting with ProbePrefix.
	Strict       bool
	PollInterval time.Duration
	// AlpacaPort is read for every reply so that setup changes are advertised immediately.
	AlpacaPort func() int
}

// Responder answers Alpaca discovery datagrams with the HTTP port of the server.
type Responder struct {
	cfg    Config
	logger *zap.Logger

	mu      sync.Mutex
	conn    *net.UDPConn
	running bool
	done    chan struct{}
}

func NewResponder(cfg Config, logger *zap.Logger) *Responder {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	return &Responder{cfg: cfg, logger: logger}
}

// Start binds the socket and serves until ctx is cancelled or Stop is called.
func (r *Responder) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return fmt.Errorf("discovery responder already running")
	}

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: r.cfg.Port})
	if err != nil {
		return fmt.Errorf("failed to bind discovery port %d: %w", r.cfg.Port, err)
	}

	r.conn = conn
	r.running = true
	r.done = make(chan struct{})

	go r.serve(ctx, conn, r.done)

	r.logger.Info("Discovery responder started",
		zap.String("addr", conn.LocalAddr().String()),
		zap.Bool("strict", r.cfg.Strict))

	return nil
}

// Addr returns the bound address, or nil before Start.
func (r *Responder) Addr() net.Addr {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn == nil {
		return nil
	}
	return r.conn.LocalAddr()
}

// Stop closes the socket and waits for the serve loop to exit.
func (r *Responder) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	conn, done := r.conn, r.done
	r.mu.Unlock()

	conn.Close()
	<-done

	r.logger.Info("Discovery responder stopped")
}

func (r *Responder) serve(ctx context.Context, conn *net.UDPConn, done chan struct{}) {
	defer close(done)

	buf := make([]byte, maxDatagram)
	for {
		if ctx.Err() != nil {
			return
		}

		// The deadline bounds how long a cancelled context goes unnoticed.
		if err := conn.SetReadDeadline(time.Now().Add(r.cfg.PollInterval)); err != nil {
			return
		}

		n, addr, err := conn.ReadFromUDP(buf)
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				continue
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			r.logger.Warn("Discovery read failed", zap.Error(err))
			continue
		}

		if r.cfg.Strict && !bytes.HasPrefix(buf[:n], []byte(ProbePrefix)) {
			r.logger.Debug("Ignoring discovery datagram", zap.String("from", addr.String()))
			continue
		}

		if err := r.reply(conn, addr); err != nil {
			r.logger.Warn("Discovery reply failed",
				zap.String("to", addr.String()),
				zap.Error(err))
		}
	}
}

func (r *Responder) reply(conn *net.UDPConn, addr *net.UDPAddr) error {
	payload, err := json.Marshal(types.DiscoveryResponse{AlpacaPort: r.cfg.AlpacaPort()})
	if err != nil {
		return err
	}
	_, err = conn.WriteToUDP(payload, addr)
	return err
}
