package landmark

import (
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MQTTClient adapts broker traffic onto the session trackers' two
// notification kinds. Landmark and probe topics are input-data changes
// and feed the update policies; the event topic is a generic change and
// never triggers a recompute.
type MQTTClient struct {
	client      mqtt.Client
	config      *Config
	tracker     *SessionTracker
	isConnected bool
	mu          sync.RWMutex
}

var (
	globalClient *MQTTClient
	clientMu     sync.Mutex
)

// InitMQTT initializes the global MQTT client with the provided
// configuration. If neither the MQTT_BROKER env var nor the config
// provides a broker, MQTT is disabled and this returns nil.
func InitMQTT(config *Config, tracker *SessionTracker) (*MQTTClient, error) {
	clientMu.Lock()
	defer clientMu.Unlock()

	broker := os.Getenv("MQTT_BROKER")
	if broker == "" && config != nil && config.MQTT.Broker != "" {
		broker = config.MQTT.Broker
	}

	if broker == "" {
		log.Println("MQTT disabled: MQTT_BROKER not set")
		return nil, nil
	}

	if config == nil || len(config.Sessions) == 0 {
		return nil, fmt.Errorf("MQTT enabled but no session configuration provided")
	}

	client := &MQTTClient{
		config:  config,
		tracker: tracker,
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)

	clientID := os.Getenv("MQTT_CLIENT_ID")
	if clientID == "" && config.MQTT.ClientID != "" {
		clientID = config.MQTT.ClientID
	}
	if clientID == "" {
		clientID = "fidcal"
	}
	opts.SetClientID(clientID)

	username := os.Getenv("MQTT_USERNAME")
	if username == "" && config.MQTT.Username != "" {
		username = config.MQTT.Username
	}
	if username != "" {
		opts.SetUsername(username)
		password := os.Getenv("MQTT_PASSWORD")
		if password == "" && config.MQTT.Password != "" {
			password = config.MQTT.Password
		}
		opts.SetPassword(password)
	}

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetCleanSession(false)

	opts.SetOnConnectHandler(client.onConnect)
	opts.SetConnectionLostHandler(client.onConnectionLost)
	opts.SetReconnectingHandler(client.onReconnecting)

	client.client = mqtt.NewClient(opts)

	go client.connectWithRetry()

	globalClient = client
	return client, nil
}

// GetMQTTClient returns the global MQTT client instance
func GetMQTTClient() *MQTTClient {
	clientMu.Lock()
	defer clientMu.Unlock()
	return globalClient
}

// connectWithRetry attempts to connect to the MQTT broker with exponential backoff
func (c *MQTTClient) connectWithRetry() {
	retryDelay := 1 * time.Second
	maxRetryDelay := 60 * time.Second

	for {
		log.Println("Connecting to MQTT broker...")

		token := c.client.Connect()
		if token.WaitTimeout(10 * time.Second) {
			if token.Error() == nil {
				log.Println("Successfully connected to MQTT broker")
				c.setConnected(true)
				return
			}
			log.Printf("MQTT connection failed: %v", token.Error())
		} else {
			log.Println("MQTT connection timeout")
		}

		log.Printf("Retrying MQTT connection in %v...", retryDelay)
		time.Sleep(retryDelay)
		retryDelay *= 2
		if retryDelay > maxRetryDelay {
			retryDelay = maxRetryDelay
		}
	}
}

// onConnect subscribes to every configured session's topics
func (c *MQTTClient) onConnect(client mqtt.Client) {
	log.Println("MQTT connected, subscribing to session topics...")
	c.setConnected(true)

	for _, se := range c.config.Sessions {
		if se.Topic == "" {
			log.Printf("Warning: session %s has no topic configured", se.ID)
			continue
		}
		c.subscribeSession(client, se.ID, se.Topic)
	}
}

// subscribeSession wires one session's topic tree:
//
//	<base>/points/from, <base>/points/to  -> replace a landmark list
//	<base>/probe/from,  <base>/probe/to   -> capture one probe point
//	<base>/event                          -> generic change, no recompute
func (c *MQTTClient) subscribeSession(client mqtt.Client, sessionID, base string) {
	subs := []struct {
		topic   string
		handler mqtt.MessageHandler
	}{
		{base + "/points/from", c.createPointsHandler(sessionID, FromList)},
		{base + "/points/to", c.createPointsHandler(sessionID, ToList)},
		{base + "/probe/from", c.createProbeHandler(sessionID, FromList)},
		{base + "/probe/to", c.createProbeHandler(sessionID, ToList)},
		{base + "/event", c.createEventHandler(sessionID)},
	}

	for _, sub := range subs {
		token := client.Subscribe(sub.topic, 0, sub.handler)
		if token.WaitTimeout(5*time.Second) && token.Error() != nil {
			log.Printf("Error subscribing to %s: %v", sub.topic, token.Error())
		} else {
			log.Printf("Subscribed to %s for session %s", sub.topic, sessionID)
		}
	}
}

// createPointsHandler handles full landmark list replacements
func (c *MQTTClient) createPointsHandler(sessionID string, list PointList) mqtt.MessageHandler {
	return func(client mqtt.Client, msg mqtt.Message) {
		points, err := DecodePoints(msg.Payload())
		if err != nil {
			log.Printf("[MQTT] %s: bad '%v' points payload on %s: %v", sessionID, list, msg.Topic(), err)
			return
		}

		if _, err := c.tracker.SetPoints(sessionID, list, points); err != nil {
			log.Printf("[MQTT] %s: rejecting points update: %v", sessionID, err)
		}
	}
}

// createProbeHandler handles single probe pose captures
func (c *MQTTClient) createProbeHandler(sessionID string, list PointList) mqtt.MessageHandler {
	return func(client mqtt.Client, msg mqtt.Message) {
		pose, err := DecodePose(msg.Payload())
		if err != nil {
			log.Printf("[MQTT] %s: bad probe pose payload on %s: %v", sessionID, msg.Topic(), err)
			return
		}

		if _, err := c.tracker.AddProbePoint(sessionID, list, pose); err != nil {
			log.Printf("[MQTT] %s: rejecting probe point: %v", sessionID, err)
		}
	}
}

// createEventHandler handles generic (non-input) change notifications
func (c *MQTTClient) createEventHandler(sessionID string) mqtt.MessageHandler {
	return func(client mqtt.Client, msg mqtt.Message) {
		log.Printf("[MQTT] %s: generic change event (%d bytes)", sessionID, len(msg.Payload()))
		if err := c.tracker.NotifyGenericChanged(sessionID); err != nil {
			log.Printf("[MQTT] %s: %v", sessionID, err)
		}
	}
}

// onConnectionLost is called when the MQTT connection is lost.
// Auto-reconnect is enabled, so this is typically a transient event.
func (c *MQTTClient) onConnectionLost(client mqtt.Client, err error) {
	log.Printf("MQTT connection interrupted (%v), auto-reconnect will retry", err)
	c.setConnected(false)
}

// onReconnecting is called when the client attempts to reconnect
func (c *MQTTClient) onReconnecting(client mqtt.Client, opts *mqtt.ClientOptions) {
	log.Println("MQTT reconnecting...")
}

// IsConnected returns true if the MQTT client is connected
func (c *MQTTClient) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isConnected
}

func (c *MQTTClient) setConnected(connected bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.isConnected = connected
}

// Disconnect gracefully closes the MQTT connection
func (c *MQTTClient) Disconnect() {
	if c.client != nil && c.client.IsConnected() {
		log.Println("Disconnecting from MQTT broker...")
		c.client.Disconnect(250)
		c.setConnected(false)
	}
}

// GetClient returns the underlying MQTT client for publishing
func (c *MQTTClient) GetClient() mqtt.Client {
	return c.client
}

// newMQTTClientWithMock creates an MQTTClient with a provided mqtt.Client.
// This is used for testing with mock clients.
func newMQTTClientWithMock(client mqtt.Client, config *Config, tracker *SessionTracker) *MQTTClient {
	return &MQTTClient{
		client:  client,
		config:  config,
		tracker: tracker,
	}
}
