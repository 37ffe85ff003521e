package landmark

import (
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// mockToken implements mqtt.Token for testing
type mockToken struct {
	err error
}

func newMockToken(err error) *mockToken { return &mockToken{err: err} }

func (t *mockToken) Wait() bool                       { return true }
func (t *mockToken) WaitTimeout(d time.Duration) bool { return true }
func (t *mockToken) Error() error                     { return t.err }
func (t *mockToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

// mockBrokerClient implements mqtt.Client for testing the adapter and
// publisher without a broker. Subscriptions are recorded so tests can
// inject messages with simulateMessage.
type mockBrokerClient struct {
	mu           sync.RWMutex
	connected    bool
	publishErr   error
	subscribeErr error
	handlers     map[string]mqtt.MessageHandler
	published    []publishedMessage
}

type publishedMessage struct {
	Topic   string
	Payload []byte
	QoS     byte
	Retain  bool
}

func newMockBrokerClient() *mockBrokerClient {
	return &mockBrokerClient{
		handlers:  make(map[string]mqtt.MessageHandler),
		connected: true,
	}
}

func (c *mockBrokerClient) setConnected(connected bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = connected
}

func (c *mockBrokerClient) publishedMessages() []publishedMessage {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]publishedMessage, len(c.published))
	copy(out, c.published)
	return out
}

// simulateMessage delivers a payload to the handler subscribed to topic
func (c *mockBrokerClient) simulateMessage(topic string, payload []byte) {
	c.mu.RLock()
	handler, ok := c.handlers[topic]
	c.mu.RUnlock()

	if ok && handler != nil {
		handler(c, &mockMessage{topic: topic, payload: payload})
	}
}

func (c *mockBrokerClient) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

func (c *mockBrokerClient) IsConnectionOpen() bool { return c.IsConnected() }

func (c *mockBrokerClient) Connect() mqtt.Token {
	c.setConnected(true)
	return newMockToken(nil)
}

func (c *mockBrokerClient) Disconnect(quiesce uint) {
	c.setConnected(false)
}

func (c *mockBrokerClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return newMockToken(mqtt.ErrNotConnected)
	}
	if c.publishErr != nil {
		return newMockToken(c.publishErr)
	}

	var payloadBytes []byte
	switch v := payload.(type) {
	case []byte:
		payloadBytes = v
	case string:
		payloadBytes = []byte(v)
	}

	c.published = append(c.published, publishedMessage{
		Topic:   topic,
		Payload: payloadBytes,
		QoS:     qos,
		Retain:  retained,
	})
	return newMockToken(nil)
}

func (c *mockBrokerClient) Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return newMockToken(mqtt.ErrNotConnected)
	}
	if c.subscribeErr != nil {
		return newMockToken(c.subscribeErr)
	}

	c.handlers[topic] = callback
	return newMockToken(nil)
}

func (c *mockBrokerClient) SubscribeMultiple(filters map[string]byte, callback mqtt.MessageHandler) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()

	for topic := range filters {
		c.handlers[topic] = callback
	}
	return newMockToken(nil)
}

func (c *mockBrokerClient) Unsubscribe(topics ...string) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, topic := range topics {
		delete(c.handlers, topic)
	}
	return newMockToken(nil)
}

func (c *mockBrokerClient) AddRoute(topic string, callback mqtt.MessageHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[topic] = callback
}

func (c *mockBrokerClient) OptionsReader() mqtt.ClientOptionsReader {
	return mqtt.ClientOptionsReader{}
}

// mockMessage implements mqtt.Message for testing
type mockMessage struct {
	topic   string
	payload []byte
}

func (m *mockMessage) Duplicate() bool     { return false }
func (m *mockMessage) Qos() byte           { return 0 }
func (m *mockMessage) Retained() bool      { return false }
func (m *mockMessage) Topic() string       { return m.topic }
func (m *mockMessage) MessageID() uint16   { return 0 }
func (m *mockMessage) Payload() []byte     { return m.payload }
func (m *mockMessage) Ack()                {}
func (m *mockMessage) AutoAckOff()         {}
func (m *mockMessage) AutoAckOn()          {}
func (m *mockMessage) SetAutoAck(bool)     {}
func (m *mockMessage) SetRetained(bool)    {}
func (m *mockMessage) SetQoS(byte)         {}
func (m *mockMessage) SetDuplicate(bool)   {}
func (m *mockMessage) SetMessageID(uint16) {}
