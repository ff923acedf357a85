// internal/publisher/mqtt.go
package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/denisbrodbeck/machineid"
	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"unilog-service/internal/config"
	"unilog-service/internal/model"
)

const (
	defaultTopicPrefix = "unilog"
	defaultBuffer      = 1024
	clientIDPrefix     = "unilog-"
)

// MQTTPublisher forwards device events to an MQTT broker. Topics have the
// form <prefix>/<device>/<event>, e.g. unilog/<uuid>/sample.
type MQTTPublisher struct {
	client  paho.Client
	prefix  string
	qos     byte
	timeout time.Duration
	logger  *zap.Logger

	events chan *model.DeviceEvent
	wg     sync.WaitGroup

	mu      sync.Mutex
	dropped int
}

// ClientID returns the configured client ID or one derived from the
// machine ID
func ClientID(cfg *config.MQTTConfig) string {
	if cfg.ClientID != "" {
		return cfg.ClientID
	}
	id, err := machineid.ProtectedID("unilog-service")
	if err != nil || len(id) < 12 {
		return fmt.Sprintf("%s%d", clientIDPrefix, time.Now().UnixNano())
	}
	return clientIDPrefix + id[:12]
}

// ClientOptions builds the paho options of cfg
func ClientOptions(cfg *config.MQTTConfig, logger *zap.Logger) *paho.ClientOptions {
	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(ClientID(cfg)).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectTimeout(cfg.Timeout).
		SetOrderMatters(false)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		logger.Warn("MQTT connection lost", zap.Error(err))
	})
	opts.SetOnConnectHandler(func(paho.Client) {
		logger.Info("MQTT connected", zap.String("broker", cfg.Broker))
	})
	return opts
}

// NewMQTTPublisher connects to the broker of cfg
func NewMQTTPublisher(cfg *config.MQTTConfig, logger *zap.Logger) (*MQTTPublisher, error) {
	client := paho.NewClient(ClientOptions(cfg, logger))
	token := client.Connect()
	if !token.WaitTimeout(cfg.Timeout) {
		return nil, fmt.Errorf("mqtt connect to %s: timeout after %s", cfg.Broker, cfg.Timeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect to %s: %w", cfg.Broker, err)
	}
	return NewWithClient(client, cfg, logger), nil
}

// NewWithClient wraps a connected client
func NewWithClient(client paho.Client, cfg *config.MQTTConfig, logger *zap.Logger) *MQTTPublisher {
	prefix := strings.Trim(cfg.TopicPrefix, "/")
	if prefix == "" {
		prefix = defaultTopicPrefix
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &MQTTPublisher{
		client:  client,
		prefix:  prefix,
		qos:     cfg.QoS,
		timeout: timeout,
		logger:  logger.Named("mqtt"),
		events:  make(chan *model.DeviceEvent, defaultBuffer),
	}
}

// Topic returns the topic of event
func (p *MQTTPublisher) Topic(event *model.DeviceEvent) string {
	return fmt.Sprintf("%s/%s/%s", p.prefix, event.DeviceID, strings.ToLower(string(event.EventType)))
}

// Publish implements service.EventSink. Events are dropped while the
// buffer is full.
func (p *MQTTPublisher) Publish(event *model.DeviceEvent) {
	select {
	case p.events <- event:
	default:
		p.mu.Lock()
		p.dropped++
		dropped := p.dropped
		p.mu.Unlock()
		if dropped%100 == 1 {
			p.logger.Warn("MQTT buffer full, dropping events", zap.Int("dropped", dropped))
		}
	}
}

// Dropped returns the number of events lost to a full buffer
func (p *MQTTPublisher) Dropped() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dropped
}

// Start sends buffered events until ctx is done
func (p *MQTTPublisher) Start(ctx context.Context) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for {
			select {
			case event := <-p.events:
				p.send(event)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// send publishes one event. Samples are fire and forget, other events wait
// for the broker.
func (p *MQTTPublisher) send(event *model.DeviceEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("Failed to encode event", zap.Error(err))
		return
	}
	if !p.client.IsConnectionOpen() {
		return
	}
	token := p.client.Publish(p.Topic(event), p.qos, false, payload)
	if event.EventType == model.EventSample {
		return
	}
	if !token.WaitTimeout(p.timeout) {
		p.logger.Warn("MQTT publish timed out", zap.String("event", string(event.EventType)))
		return
	}
	if err := token.Error(); err != nil {
		p.logger.Warn("MQTT publish failed", zap.Error(err), zap.String("event", string(event.EventType)))
	}
}

// Close waits for the sender and disconnects
func (p *MQTTPublisher) Close() {
	p.wg.Wait()
	p.client.Disconnect(uint(p.timeout.Milliseconds()))
}
