package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Discovery DiscoveryConfig `mapstructure:"discovery"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Database  DatabaseConfig  `mapstructure:"database"`
	MQTT      MQTTConfig      `mapstructure:"mqtt"`
	Modbus    ModbusConfig    `mapstructure:"modbus"`
	Devices   []DeviceConfig  `mapstructure:"devices" validate:"dive"`

	// SetupFile holds the port overrides written by POST /setup.
	SetupFile string `mapstructure:"setup_file"`
}

type ServerConfig struct {
	HTTPPort            int           `mapstructure:"http_port" validate:"min=1,max=65535"`
	GRPCPort            int           `mapstructure:"grpc_port" validate:"min=1,max=65535"`
	GRPCEnabled         bool          `mapstructure:"grpc_enabled"`
	ShutdownTimeout     time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
	Name                string        `mapstructure:"name" validate:"required"`
	Manufacturer        string        `mapstructure:"manufacturer"`
	ManufacturerVersion string        `mapstructure:"manufacturer_version"`
	Location            string        `mapstructure:"location"`
}

type DiscoveryConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port" validate:"min=1,max=65535"`
	// Strict answers only datagrams starting with "alpacadiscovery".
	Strict       bool          `mapstructure:"strict"`
	PollInterval time.Duration `mapstructure:"poll_interval" validate:"gt=0"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=json console"`
}

type StorageConfig struct {
	Driver        string `mapstructure:"driver" validate:"oneof=file postgres"`
	DescriptorDir string `mapstructure:"descriptor_dir" validate:"required_if=Driver file"`
}

type DatabaseConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
}

type MQTTConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Broker      string `mapstructure:"broker" validate:"required_if=Enabled true"`
	ClientID    string `mapstructure:"client_id"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
	TopicPrefix string `mapstructure:"topic_prefix"`
	QoS         byte   `mapstructure:"qos" validate:"max=2"`
}

type ModbusConfig struct {
	DefaultTimeout      time.Duration `mapstructure:"default_timeout"`
	DefaultPollInterval time.Duration `mapstructure:"default_poll_interval"`
}

// DeviceConfig declares one device to install at startup.
type DeviceConfig struct {
	Type        string `mapstructure:"type" validate:"required,oneof=camera covercalibrator dome filterwheel focuser observingconditions rotator safetymonitor switch telescope"`
	Number      int    `mapstructure:"number" validate:"min=0"`
	Name        string `mapstructure:"name" validate:"required"`
	Description string `mapstructure:"description"`
	UniqueID    string `mapstructure:"unique_id" validate:"omitempty,uuid"`
	// Descriptors is the descriptor document key of a switch.
	Descriptors  string        `mapstructure:"descriptors" validate:"required_if=Type switch"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	Binding      BindingConfig `mapstructure:"binding"`
}

// BindingConfig selects the physical I/O of a switch.
type BindingConfig struct {
	Kind    string        `mapstructure:"kind" validate:"omitempty,oneof=memory modbus serial"`
	Address string        `mapstructure:"address" validate:"required_if=Kind modbus"`
	UnitID  uint8         `mapstructure:"unit_id"`
	Timeout time.Duration `mapstructure:"timeout"`
	Port    string        `mapstructure:"port" validate:"required_if=Kind serial"`
	Baud    int           `mapstructure:"baud"`
}

// SetupOverlay is the document written by SaveSetup.
type SetupOverlay struct {
	HTTPPort      int `yaml:"http_port"`
	DiscoveryPort int `yaml:"discovery_port"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.http_port", 11111)
	v.SetDefault("server.grpc_port", 50051)
	v.SetDefault("server.grpc_enabled", true)
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.name", "OpenAlpacaCore")
	v.SetDefault("server.manufacturer", "OpenAlpacaCore")
	v.SetDefault("server.manufacturer_version", "0.90")
	v.SetDefault("server.location", "")

	v.SetDefault("discovery.enabled", true)
	v.SetDefault("discovery.port", 32227)
	v.SetDefault("discovery.strict", false)
	v.SetDefault("discovery.poll_interval", "10ms")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("storage.driver", "file")
	v.SetDefault("storage.descriptor_dir", "configs/descriptors")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.max_connections", 10)

	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.client_id", "openalpacacore")
	v.SetDefault("mqtt.topic_prefix", "alpaca")
	v.SetDefault("mqtt.qos", 1)

	v.SetDefault("modbus.default_timeout", "1s")
	v.SetDefault("modbus.default_poll_interval", "100ms")

	v.SetDefault("setup_file", "setup.yaml")
}

// Load reads the YAML file at path, applies OAC_ environment overrides and the
// setup overlay, and validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	setDefaults(v)

	v.SetEnvPrefix("OAC") // OAC_SERVER_HTTP_PORT etc.
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Relative setup files live next to the config file.
	if config.SetupFile != "" && !filepath.IsAbs(config.SetupFile) {
		config.SetupFile = filepath.Join(filepath.Dir(path), config.SetupFile)
	}

	overlay, err := LoadSetup(config.SetupFile)
	if err != nil {
		return nil, err
	}
	if overlay.HTTPPort != 0 {
		config.Server.HTTPPort = overlay.HTTPPort
	}
	if overlay.DiscoveryPort != 0 {
		config.Discovery.Port = overlay.DiscoveryPort
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate checks the struct tags of the whole configuration.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	seen := make(map[string]bool)
	for _, d := range c.Devices {
		key := fmt.Sprintf("%s/%d", d.Type, d.Number)
		if seen[key] {
			return fmt.Errorf("invalid config: device %s declared twice", key)
		}
		seen[key] = true
	}
	return nil
}

// LoadSetup reads the setup overlay. A missing file yields an empty overlay.
func LoadSetup(path string) (SetupOverlay, error) {
	var overlay SetupOverlay
	if path == "" {
		return overlay, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return overlay, nil
	}
	if err != nil {
		return overlay, fmt.Errorf("failed to read setup file: %w", err)
	}

	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return overlay, fmt.Errorf("failed to parse setup file: %w", err)
	}
	return overlay, nil
}

// SaveSetup persists the server and discovery ports. They take effect on the next start.
func SaveSetup(path string, httpPort, discoveryPort int) error {
	if path == "" {
		return fmt.Errorf("no setup file configured")
	}

	data, err := yaml.Marshal(SetupOverlay{HTTPPort: httpPort, DiscoveryPort: discoveryPort})
	if err != nil {
		return fmt.Errorf("failed to marshal setup: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create setup dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write setup file: %w", err)
	}
	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.User, c.Password, c.Host, c.Port, c.Database)
}
