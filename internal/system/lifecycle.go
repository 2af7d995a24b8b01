package system

import (
	"context"
	"fmt"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/KevinKickass/OpenAlpacaCore/internal/alpaca"
	"github.com/KevinKickass/OpenAlpacaCore/internal/api/rest"
	"github.com/KevinKickass/OpenAlpacaCore/internal/api/websocket"
	"github.com/KevinKickass/OpenAlpacaCore/internal/config"
	"github.com/KevinKickass/OpenAlpacaCore/internal/devices"
	"github.com/KevinKickass/OpenAlpacaCore/internal/discovery"
	"github.com/KevinKickass/OpenAlpacaCore/internal/interfaces"
	"github.com/KevinKickass/OpenAlpacaCore/internal/modbus"
	"github.com/KevinKickass/OpenAlpacaCore/internal/mqtt"
	"github.com/KevinKickass/OpenAlpacaCore/internal/protocol"
	"github.com/KevinKickass/OpenAlpacaCore/internal/serial"
	"github.com/KevinKickass/OpenAlpacaCore/internal/storage"
	"github.com/KevinKickass/OpenAlpacaCore/internal/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const (
	defaultSerialBaud   = 115200
	defaultPollInterval = 100 * time.Millisecond
)

// uniqueIDNamespace seeds the stable UniqueIDs of devices configured without one.
var uniqueIDNamespace = uuid.MustParse("6c1f5d0e-8a3b-4c52-9e6f-2f4b7a1d9c30")

type LifecycleManager struct {
	config *config.Config
	logger *zap.Logger

	db         *storage.PostgresClient
	registry   *devices.Registry
	alpaca     *alpaca.ServerContext
	wsHub      *websocket.Hub
	hubCancel  context.CancelFunc
	publisher  *mqtt.Publisher
	pollers    []*devices.Poller
	discovery  *discovery.Responder
	restServer *rest.Server
	grpcServer *grpc.Server
	grpcAddr   net.Addr
	health     *health.Server

	stateMu      sync.RWMutex
	currentState SystemState

	shutdownChan chan struct{}
	shutdownOnce sync.Once
}

func NewLifecycleManager(cfg *config.Config, logger *zap.Logger) *LifecycleManager {
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)

	return &LifecycleManager{
		config:       cfg,
		logger:       logger,
		wsHub:        websocket.NewHub(logger.Named("events")),
		health:       hs,
		currentState: StateInitializing,
		shutdownChan: make(chan struct{}),
	}
}

// Start installs the configured devices and brings up every listener.
func (lm *LifecycleManager) Start(ctx context.Context) error {
	lm.logger.Info("Starting OpenAlpacaCore")

	hubCtx, cancel := context.WithCancel(context.Background())
	lm.hubCancel = cancel
	go lm.wsHub.Run(hubCtx)

	store, err := lm.openDescriptorStore(ctx)
	if err != nil {
		return lm.fail(fmt.Errorf("failed to open descriptor store: %w", err))
	}

	replier := protocol.NewReplier()
	lm.registry = devices.NewRegistry(replier, lm.logger.Named("registry"))
	lm.alpaca = alpaca.NewServerContext(types.ServerDescription{
		ServerName:          lm.config.Server.Name,
		Manufacturer:        lm.config.Server.Manufacturer,
		ManufacturerVersion: lm.config.Server.ManufacturerVersion,
		Location:            lm.config.Server.Location,
	}, replier, lm.registry)
	lm.alpaca.SetAlpacaPort(lm.config.Server.HTTPPort)
	lm.alpaca.SetDiscoveryPort(lm.config.Discovery.Port)

	if lm.config.MQTT.Enabled {
		publisher, err := mqtt.Connect(lm.config.MQTT, lm.logger.Named("mqtt"))
		if err != nil {
			// Events still reach websocket clients.
			lm.logger.Warn("MQTT publisher unavailable", zap.Error(err))
		} else {
			lm.publisher = publisher
		}
	}

	if err := lm.installDevices(ctx, store); err != nil {
		return lm.fail(err)
	}

	lm.startPollers()

	if err := lm.startRESTServer(); err != nil {
		return lm.fail(fmt.Errorf("failed to start REST API: %w", err))
	}

	if lm.config.Discovery.Enabled {
		if err := lm.startDiscovery(); err != nil {
			return lm.fail(fmt.Errorf("failed to start discovery: %w", err))
		}
	}

	if lm.config.Server.GRPCEnabled {
		if err := lm.startGRPCServer(); err != nil {
			return lm.fail(fmt.Errorf("failed to start gRPC: %w", err))
		}
	}

	lm.setState(StateRunning)

	total, _ := lm.registry.Count()
	lm.logger.Info("System started successfully",
		zap.Int("http_port", lm.alpaca.AlpacaPort()),
		zap.Int("discovery_port", lm.alpaca.DiscoveryPort()),
		zap.Int("devices", total))

	return nil
}

func (lm *LifecycleManager) openDescriptorStore(ctx context.Context) (devices.DescriptorStore, error) {
	validator, err := devices.NewValidator()
	if err != nil {
		return nil, err
	}

	switch lm.config.Storage.Driver {
	case "postgres":
		db, err := storage.NewPostgresClient(ctx, lm.config.Database)
		if err != nil {
			return nil, err
		}
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, err
		}
		lm.db = db
		lm.logger.Info("Descriptor store: postgres", zap.String("host", lm.config.Database.Host))
		return storage.NewDescriptorStore(db, validator), nil
	default:
		lm.logger.Info("Descriptor store: files", zap.String("dir", lm.config.Storage.DescriptorDir))
		return devices.NewFileStore(lm.config.Storage.DescriptorDir, validator), nil
	}
}

// installDevices installs the configured devices in ascending number order per type.
func (lm *LifecycleManager) installDevices(ctx context.Context, store devices.DescriptorStore) error {
	configured := make([]config.DeviceConfig, len(lm.config.Devices))
	copy(configured, lm.config.Devices)
	sort.SliceStable(configured, func(i, j int) bool {
		if configured[i].Type != configured[j].Type {
			return configured[i].Type < configured[j].Type
		}
		return configured[i].Number < configured[j].Number
	})

	observer := lm.observer()

	for _, dc := range configured {
		deviceType, err := types.ParseDeviceType(dc.Type)
		if err != nil {
			return err
		}

		opts := devices.Options{
			Name:        dc.Name,
			Description: dc.Description,
			UniqueID:    dc.UniqueID,
		}
		if opts.UniqueID == "" {
			opts.UniqueID = uuid.NewSHA1(uniqueIDNamespace, []byte(fmt.Sprintf("%s/%d", deviceType, dc.Number))).String()
		}

		var device devices.Device
		if deviceType == types.DeviceTypeSwitch {
			sw, err := lm.newSwitch(ctx, dc, opts, store)
			if err != nil {
				return fmt.Errorf("device %s %d: %w", deviceType, dc.Number, err)
			}
			sw.SetObserver(observer)
			device = sw
		} else {
			base := devices.NewBase(deviceType, opts)
			base.SetObserver(observer)
			device = base
		}

		if err := lm.registry.Install(deviceType, dc.Number, device); err != nil {
			return fmt.Errorf("failed to install %s %d: %w", deviceType, dc.Number, err)
		}

		lm.logger.Info("Device installed",
			zap.String("type", string(deviceType)),
			zap.Int("number", dc.Number),
			zap.String("name", dc.Name))
	}

	return nil
}

func (lm *LifecycleManager) newSwitch(ctx context.Context, dc config.DeviceConfig, opts devices.Options, store devices.DescriptorStore) (*devices.Switch, error) {
	binding, err := lm.newBinding(dc.Binding)
	if err != nil {
		return nil, err
	}

	sw, err := devices.NewSwitch(ctx, devices.SwitchConfig{
		Options:  opts,
		StoreKey: dc.Descriptors,
		Store:    store,
		Binding:  binding,
		Logger:   lm.logger.Named("switch").With(zap.String("device", dc.Name)),
	})
	if err != nil {
		if binding != nil {
			binding.Close()
		}
		return nil, err
	}
	return sw, nil
}

// newBinding returns nil for memory-only switches.
func (lm *LifecycleManager) newBinding(bc config.BindingConfig) (devices.Binding, error) {
	timeout := bc.Timeout
	if timeout <= 0 {
		timeout = lm.config.Modbus.DefaultTimeout
	}

	switch bc.Kind {
	case "modbus":
		return modbus.NewBinding(bc.Address, bc.UnitID, timeout, lm.logger.Named("modbus")), nil
	case "serial":
		baud := bc.Baud
		if baud <= 0 {
			baud = defaultSerialBaud
		}
		b, err := serial.Open(serial.Config{Port: bc.Port, Baud: baud, ReadTimeout: timeout}, lm.logger.Named("serial"))
		if err != nil {
			return nil, err
		}
		return b, nil
	default:
		return nil, nil
	}
}

func (lm *LifecycleManager) observer() devices.Observer {
	if lm.publisher == nil {
		return lm.wsHub.Observer()
	}
	return devices.FanOut(lm.wsHub.Observer(), lm.publisher.Observer())
}

func (lm *LifecycleManager) startPollers() {
	intervals := make(map[int]time.Duration)
	for _, dc := range lm.config.Devices {
		if dc.Type == string(types.DeviceTypeSwitch) && dc.PollInterval > 0 {
			intervals[dc.Number] = dc.PollInterval
		}
	}

	for _, sw := range lm.registry.Switches() {
		if !sw.HasMappedChannels() {
			continue
		}
		interval, ok := intervals[sw.Info().Number]
		if !ok {
			interval = lm.config.Modbus.DefaultPollInterval
		}
		if interval <= 0 {
			interval = defaultPollInterval
		}
		p := devices.NewPoller(sw, interval, lm.logger.Named("poller"))
		if err := p.Start(); err != nil {
			lm.logger.Error("Failed to start poller",
				zap.String("device", sw.Info().Name),
				zap.Error(err))
			continue
		}
		lm.pollers = append(lm.pollers, p)
	}
}

func (lm *LifecycleManager) startRESTServer() error {
	lm.restServer = rest.NewServer(lm.config, lm.alpaca, lm, lm.logger.Named("rest"), lm.wsHub)
	if err := lm.restServer.Start(); err != nil {
		return err
	}
	if addr, ok := lm.restServer.Addr().(*net.TCPAddr); ok {
		lm.alpaca.SetAlpacaPort(addr.Port)
	}
	return nil
}

func (lm *LifecycleManager) startDiscovery() error {
	lm.discovery = discovery.NewResponder(discovery.Config{
		Port:         lm.config.Discovery.Port,
		Strict:       lm.config.Discovery.Strict,
		PollInterval: lm.config.Discovery.PollInterval,
		AlpacaPort:   lm.alpaca.AlpacaPort,
	}, lm.logger.Named("discovery"))

	if err := lm.discovery.Start(context.Background()); err != nil {
		return err
	}
	if addr, ok := lm.discovery.Addr().(*net.UDPAddr); ok {
		lm.alpaca.SetDiscoveryPort(addr.Port)
	}
	return nil
}

func (lm *LifecycleManager) startGRPCServer() error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", lm.config.Server.GRPCPort))
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	lm.grpcAddr = lis.Addr()
	lm.grpcServer = grpc.NewServer()
	healthpb.RegisterHealthServer(lm.grpcServer, lm.health)

	go func() {
		lm.logger.Info("gRPC health server listening", zap.String("address", lis.Addr().String()))
		if err := lm.grpcServer.Serve(lis); err != nil {
			lm.logger.Error("gRPC server failed", zap.Error(err))
		}
	}()

	return nil
}

// Shutdown gracefully shuts down the system
func (lm *LifecycleManager) Shutdown(ctx context.Context) error {
	var shutdownErr error

	lm.shutdownOnce.Do(func() {
		lm.logger.Info("Shutting down system")

		lm.setState(StateStopping)

		shutdownErr = lm.gracefulShutdown(ctx)

		lm.setState(StateStopped)
		lm.health.Shutdown()

		if lm.hubCancel != nil {
			lm.hubCancel()
		}
		close(lm.shutdownChan)
	})

	return shutdownErr
}

// Done is closed once Shutdown has completed.
func (lm *LifecycleManager) Done() <-chan struct{} {
	return lm.shutdownChan
}

func (lm *LifecycleManager) gracefulShutdown(ctx context.Context) error {
	var wg sync.WaitGroup
	errChan := make(chan error, 3)

	// 1. Stop accepting discovery probes
	if lm.discovery != nil {
		lm.discovery.Stop()
	}

	// 2. REST API Server graceful shutdown
	if lm.restServer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()

			if err := lm.restServer.Shutdown(shutdownCtx); err != nil {
				errChan <- fmt.Errorf("rest api shutdown failed: %w", err)
			}
		}()
	}

	// 3. gRPC Server graceful stop
	if lm.grpcServer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lm.logger.Info("Stopping gRPC server")
			lm.grpcServer.GracefulStop()
		}()
	}

	// 4. Pollers, then device I/O
	wg.Add(1)
	go func() {
		defer wg.Done()
		for _, p := range lm.pollers {
			p.Stop()
		}
		if lm.registry != nil {
			if err := lm.registry.CloseAll(ctx); err != nil {
				errChan <- fmt.Errorf("device close failed: %w", err)
			}
		}
	}()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
		lm.logger.Info("Graceful shutdown completed")
		select {
		case err = <-errChan:
		default:
		}
	case <-ctx.Done():
		lm.logger.Warn("Shutdown timeout, forcing stop")
		err = fmt.Errorf("shutdown timeout exceeded")
	}

	if lm.publisher != nil {
		lm.publisher.Close(lm.config.MQTT.ClientID)
	}
	if lm.db != nil {
		lm.db.Close()
	}

	return err
}

// fail moves to ERROR, releases what was started and returns err.
func (lm *LifecycleManager) fail(err error) error {
	lm.logger.Error("System start failed", zap.Error(err))
	lm.setState(StateError)

	timeout := lm.config.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	lm.Shutdown(ctx)

	return err
}

func (lm *LifecycleManager) setState(state SystemState) {
	lm.stateMu.Lock()
	previous := lm.currentState
	if previous == state {
		lm.stateMu.Unlock()
		return
	}
	if err := ValidateTransition(previous, state); err != nil {
		lm.logger.Warn("Unexpected state transition", zap.Error(err))
	}
	lm.currentState = state
	lm.stateMu.Unlock()

	servingStatus := healthpb.HealthCheckResponse_NOT_SERVING
	if state.Serving() {
		servingStatus = healthpb.HealthCheckResponse_SERVING
	}
	lm.health.SetServingStatus("", servingStatus)

	lm.wsHub.Broadcast(websocket.NewSystemStatusMessage(state.String(), previous.String()))

	lm.logger.Info("System state changed",
		zap.String("from", previous.String()),
		zap.String("to", state.String()))
}

// State returns the current lifecycle state.
func (lm *LifecycleManager) State() SystemState {
	lm.stateMu.RLock()
	defer lm.stateMu.RUnlock()
	return lm.currentState
}

// GetCurrentStatus returns current system status (Interface implementation)
func (lm *LifecycleManager) GetCurrentStatus() interfaces.SystemStatus {
	status := interfaces.SystemStatus{
		State:            lm.State().String(),
		EventClients:     lm.wsHub.GetClientCount(),
		DiscoveryEnabled: lm.discovery != nil,
		MQTTEnabled:      lm.publisher != nil,
	}
	if lm.registry != nil {
		status.DeviceCount, status.ConnectedDevices = lm.registry.Count()
	}
	return status
}

// ServerContext exposes the shared Alpaca state once started.
func (lm *LifecycleManager) ServerContext() *alpaca.ServerContext {
	return lm.alpaca
}

// HTTPAddr returns the bound REST address once started.
func (lm *LifecycleManager) HTTPAddr() net.Addr {
	if lm.restServer == nil {
		return nil
	}
	return lm.restServer.Addr()
}

// DiscoveryAddr returns the bound discovery address, or nil when disabled.
func (lm *LifecycleManager) DiscoveryAddr() net.Addr {
	if lm.discovery == nil {
		return nil
	}
	return lm.discovery.Addr()
}

// GRPCAddr returns the bound health service address, or nil when disabled.
func (lm *LifecycleManager) GRPCAddr() net.Addr {
	return lm.grpcAddr
}

// Config returns the configuration
func (lm *LifecycleManager) Config() *config.Config {
	return lm.config
}
