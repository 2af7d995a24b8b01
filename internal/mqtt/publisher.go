package mqtt

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/KevinKickass/OpenAlpacaCore/internal/config"
	"github.com/KevinKickass/OpenAlpacaCore/internal/devices"
	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

const (
	defaultConnectTimeout = 10 * time.Second

	defaultPublishTimeout = 5 * time.Second

	defaultDisconnectQuiesce = 1000 // milliseconds

	defaultKeepAlive = 60 * time.Second
)

var ErrConnectionFailed = errors.New("mqtt: connection failed")

// client is the subset of pahomqtt.Client used by Publisher.
type client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token
	Disconnect(quiesce uint)
	IsConnected() bool
}

// Publisher mirrors device state changes as retained MQTT messages.
//
// Topics:
//
//	<prefix>/status                          online/offline
//	<prefix>/<type>/<number>/<channel>       switch channel value
//	<prefix>/<type>/<number>/<channel>/name  switch channel name
//	<prefix>/<type>/<number>/connected       connected state
type Publisher struct {
	client client
	prefix string
	qos    byte
	logger *zap.Logger
}

type statusPayload struct {
	Status    string `json:"status"`
	ClientID  string `json:"client_id"`
	Timestamp string `json:"timestamp"`
}

func buildClientOptions(cfg config.MQTTConfig) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectTimeout(defaultConnectTimeout)
	opts.SetKeepAlive(defaultKeepAlive)

	will, _ := json.Marshal(statusPayload{Status: "offline", ClientID: cfg.ClientID})
	opts.SetWill(cfg.TopicPrefix+"/status", string(will), cfg.QoS, true)

	return opts
}

// Connect dials the broker and announces the server as online.
func Connect(cfg config.MQTTConfig, logger *zap.Logger) (*Publisher, error) {
	opts := buildClientOptions(cfg)
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		logger.Warn("MQTT connection lost", zap.Error(err))
	})

	c := pahomqtt.NewClient(opts)
	token := c.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	p := newPublisher(c, cfg, logger)
	p.publishStatus("online", cfg.ClientID)

	logger.Info("MQTT publisher connected",
		zap.String("broker", cfg.Broker),
		zap.String("prefix", cfg.TopicPrefix))

	return p, nil
}

func newPublisher(c client, cfg config.MQTTConfig, logger *zap.Logger) *Publisher {
	return &Publisher{
		client: c,
		prefix: cfg.TopicPrefix,
		qos:    cfg.QoS,
		logger: logger,
	}
}

// Topic returns the topic an event is published on.
func (p *Publisher) Topic(ev devices.ChangeEvent) string {
	base := fmt.Sprintf("%s/%s/%d", p.prefix, ev.DeviceType, ev.DeviceNumber)
	switch ev.Kind {
	case devices.EventConnected:
		return base + "/connected"
	case devices.EventSwitchName:
		return fmt.Sprintf("%s/%d/name", base, ev.Channel)
	default:
		return fmt.Sprintf("%s/%d", base, ev.Channel)
	}
}

// Observer publishes every change event without waiting for the broker.
func (p *Publisher) Observer() devices.Observer {
	return func(ev devices.ChangeEvent) {
		payload, err := json.Marshal(ev)
		if err != nil {
			p.logger.Error("Failed to marshal change event", zap.Error(err))
			return
		}
		if !p.client.IsConnected() {
			p.logger.Debug("MQTT not connected, event dropped", zap.String("topic", p.Topic(ev)))
			return
		}
		p.client.Publish(p.Topic(ev), p.qos, true, payload)
	}
}

func (p *Publisher) publishStatus(status, clientID string) pahomqtt.Token {
	payload, _ := json.Marshal(statusPayload{
		Status:    status,
		ClientID:  clientID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	return p.client.Publish(p.prefix+"/status", p.qos, true, payload)
}

// Close announces the server as offline and disconnects.
func (p *Publisher) Close(clientID string) {
	if p.client.IsConnected() {
		p.publishStatus("offline", clientID).WaitTimeout(defaultPublishTimeout)
	}
	p.client.Disconnect(defaultDisconnectQuiesce)
}
