package publisher

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"unilog-service/internal/config"
	"unilog-service/internal/model"
)

type doneToken struct{ err error }

func (t doneToken) Wait() bool                     { return true }
func (t doneToken) WaitTimeout(time.Duration) bool { return true }
func (t doneToken) Error() error                   { return t.err }

func (t doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type message struct {
	topic   string
	qos     byte
	payload []byte
}

// fakeClient records publishes; every other paho.Client method is unused
type fakeClient struct {
	paho.Client
	mu           sync.Mutex
	open         bool
	messages     []message
	disconnected bool
}

func (c *fakeClient) IsConnectionOpen() bool { return c.open }

func (c *fakeClient) Publish(topic string, qos byte, _ bool, payload interface{}) paho.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, message{topic: topic, qos: qos, payload: payload.([]byte)})
	return doneToken{}
}

func (c *fakeClient) Disconnect(uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnected = true
}

func (c *fakeClient) sent() []message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]message(nil), c.messages...)
}

func TestTopic(t *testing.T) {
	p := NewWithClient(&fakeClient{}, &config.MQTTConfig{TopicPrefix: "/bench/"}, zap.NewNop())
	id := uuid.New()
	event := model.NewDeviceEvent(model.EventSessionFinalized, id, "test", "INFO")
	require.Equal(t, "bench/"+id.String()+"/session_finalized", p.Topic(event))

	p = NewWithClient(&fakeClient{}, &config.MQTTConfig{}, zap.NewNop())
	require.Equal(t, "unilog/"+id.String()+"/session_finalized", p.Topic(event))
}

func TestPublishSendsEvents(t *testing.T) {
	client := &fakeClient{open: true}
	p := NewWithClient(client, &config.MQTTConfig{QoS: 1}, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)

	id := uuid.New()
	sample := model.NewDeviceEvent(model.EventSample, id, "test", "INFO")
	sample.Sample = &model.SamplePoint{Index: 3, ElapsedMs: 1500, Values: []int32{12000, 4000}}
	p.Publish(sample)
	p.Publish(model.NewDeviceEvent(model.EventSessionFinalized, id, "test", "INFO"))

	require.Eventually(t, func() bool { return len(client.sent()) == 2 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	p.Close()
	require.True(t, client.disconnected)

	sent := client.sent()
	require.Equal(t, "unilog/"+id.String()+"/sample", sent[0].topic)
	require.Equal(t, byte(1), sent[0].qos)

	var decoded model.DeviceEvent
	require.NoError(t, json.Unmarshal(sent[0].payload, &decoded))
	require.Equal(t, model.EventSample, decoded.EventType)
	require.Equal(t, []int32{12000, 4000}, decoded.Sample.Values)
}

func TestPublishSkipsClosedConnection(t *testing.T) {
	client := &fakeClient{open: false}
	p := NewWithClient(client, &config.MQTTConfig{}, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)

	p.Publish(model.NewDeviceEvent(model.EventSample, uuid.New(), "test", "INFO"))
	time.Sleep(20 * time.Millisecond)
	cancel()
	p.Close()
	require.Empty(t, client.sent())
}

func TestPublishDropsWhenFull(t *testing.T) {
	p := NewWithClient(&fakeClient{}, &config.MQTTConfig{}, zap.NewNop())
	id := uuid.New()
	for i := 0; i < defaultBuffer+5; i++ {
		p.Publish(model.NewDeviceEvent(model.EventSample, id, "test", "INFO"))
	}
	require.Equal(t, 5, p.Dropped())
}

func TestClientID(t *testing.T) {
	require.Equal(t, "bench-1", ClientID(&config.MQTTConfig{ClientID: "bench-1"}))
	require.Contains(t, ClientID(&config.MQTTConfig{}), clientIDPrefix)
}
