package mesh

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/kwv/odfpeaks/peaks"
)

// ParamsHandler is called when new extraction parameters arrive on the control topic
type ParamsHandler func(params peaks.Params)

// MQTTClient manages the MQTT connection and subscriptions for ODF sources
type MQTTClient struct {
	client         mqtt.Client
	config         *Config
	messageHandler MessageHandler
	paramsHandler  ParamsHandler
	paramsSource   func() peaks.Params
	isConnected    bool
	mu             sync.RWMutex
}

// MessageHandler is called when an ODF sample message is received
// Parameters: sourceID, rawPayload, sample, error
type MessageHandler func(sourceID string, rawPayload []byte, sample *OdfSample, err error)

// InitMQTT creates an MQTT client for the configured sources and starts connecting
// If neither MQTT_BROKER nor the config names a broker, MQTT is disabled and this returns nil
func InitMQTT(config *Config, handler MessageHandler) (*MQTTClient, error) {
	broker := os.Getenv("MQTT_BROKER")
	if broker == "" && config != nil && config.MQTT.Broker != "" {
		broker = config.MQTT.Broker
	}

	if broker == "" {
		log.Println("MQTT disabled: MQTT_BROKER not set")
		return nil, nil
	}

	if config == nil || len(config.Sources) == 0 {
		return nil, fmt.Errorf("MQTT enabled but no source configuration provided")
	}

	client := &MQTTClient{
		config:         config,
		messageHandler: handler,
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)

	clientID := os.Getenv("MQTT_CLIENT_ID")
	if clientID == "" && config.MQTT.ClientID != "" {
		clientID = config.MQTT.ClientID
	}
	if clientID == "" {
		clientID = "odfpeaks"
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
	opts.SetCleanSession(false) // Preserve subscriptions on reconnect
	opts.SetOrderMatters(false)

	opts.SetOnConnectHandler(client.onConnect)
	opts.SetConnectionLostHandler(client.onConnectionLost)
	opts.SetReconnectingHandler(client.onReconnecting)

	client.client = mqtt.NewClient(opts)

	go client.connectWithRetry()

	return client, nil
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

// onConnect is called when the MQTT connection is established
func (c *MQTTClient) onConnect(client mqtt.Client) {
	log.Println("MQTT connected, subscribing to source topics...")
	c.setConnected(true)

	for _, src := range c.config.Sources {
		if src.Topic == "" {
			log.Printf("Warning: source %s has no topic configured", src.ID)
			continue
		}

		log.Printf("Subscribing to %s for source %s", src.Topic, src.ID)
		token := client.Subscribe(src.Topic, 0, c.createMessageHandler(src.ID))

		if token.WaitTimeout(5*time.Second) && token.Error() != nil {
			log.Printf("Error subscribing to %s: %v", src.Topic, token.Error())
		} else {
			log.Printf("Successfully subscribed to %s", src.Topic)
		}
	}

	controlTopic := ParamsControlTopic(c.config.MQTT.PublishPrefix)
	token := client.Subscribe(controlTopic, 0, c.createParamsMessageHandler())
	if token.WaitTimeout(5*time.Second) && token.Error() != nil {
		log.Printf("Error subscribing to %s: %v", controlTopic, token.Error())
	}
}

// onConnectionLost is called when the MQTT connection is lost
// Auto-reconnect is enabled, so this is typically a transient event
func (c *MQTTClient) onConnectionLost(client mqtt.Client, err error) {
	log.Printf("MQTT connection interrupted (%v), auto-reconnect will retry", err)
	c.setConnected(false)
}

// onReconnecting is called when the client attempts to reconnect
func (c *MQTTClient) onReconnecting(client mqtt.Client, opts *mqtt.ClientOptions) {
	log.Println("MQTT reconnecting...")
}

// createMessageHandler creates a handler function for a specific source's topic
func (c *MQTTClient) createMessageHandler(sourceID string) mqtt.MessageHandler {
	return func(client mqtt.Client, msg mqtt.Message) {
		payload := msg.Payload()
		log.Printf("Received ODF sample for %s (topic: %s, size: %d bytes)",
			sourceID, msg.Topic(), len(payload))

		sample, err := DecodeSample(payload)
		if err != nil {
			log.Printf("Error decoding sample for %s: %v", sourceID, err)
			if c.messageHandler != nil {
				c.messageHandler(sourceID, payload, nil, err)
			}
			return
		}
		if sample.Source == "" {
			sample.Source = sourceID
		}

		if c.messageHandler != nil {
			c.messageHandler(sourceID, payload, sample, nil)
		}
	}
}

// SetParamsHandler registers a callback for parameter updates
func (c *MQTTClient) SetParamsHandler(handler ParamsHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paramsHandler = handler
}

// SetParamsSource sets the function returning the parameters that partial
// updates are applied to. Without one, the config's parameters are used.
func (c *MQTTClient) SetParamsSource(current func() peaks.Params) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paramsSource = current
}

func (c *MQTTClient) currentParams() peaks.Params {
	c.mu.RLock()
	current := c.paramsSource
	c.mu.RUnlock()
	if current != nil {
		return current()
	}
	return c.config.Params()
}

// getParamsHandler returns the current params handler in a thread-safe manner
func (c *MQTTClient) getParamsHandler() ParamsHandler {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.paramsHandler
}

// ParamsControlTopic returns the topic that accepts parameter updates.
// Example: "odfpeaks" -> "odfpeaks/params/set"
func ParamsControlTopic(prefix string) string {
	if prefix == "" {
		prefix = DefaultPublishPrefix
	}
	return prefix + "/params/set"
}

// ParseParamsPayload decodes a parameter update. Fields missing from the
// payload keep their value from current.
func ParseParamsPayload(payload []byte, current peaks.Params) (peaks.Params, error) {
	var update struct {
		RelativePeakThreshold *float64 `json:"relativePeakThreshold"`
		MinSeparationAngle    *float64 `json:"minSeparationAngle"`
		MaxPeaks              *int     `json:"maxPeaks"`
	}
	if err := json.Unmarshal(payload, &update); err != nil {
		return current, fmt.Errorf("parsing params payload: %w", err)
	}

	p := current
	if update.RelativePeakThreshold != nil {
		p.RelativePeakThreshold = *update.RelativePeakThreshold
	}
	if update.MinSeparationAngle != nil {
		p.MinSeparationAngle = *update.MinSeparationAngle
	}
	if update.MaxPeaks != nil {
		p.MaxPeaks = *update.MaxPeaks
	}
	if err := p.Validate(); err != nil {
		return current, err
	}
	return p, nil
}

// createParamsMessageHandler creates a handler for the parameter control topic
func (c *MQTTClient) createParamsMessageHandler() mqtt.MessageHandler {
	return func(client mqtt.Client, msg mqtt.Message) {
		handler := c.getParamsHandler()
		if handler == nil {
			return
		}

		params, err := ParseParamsPayload(msg.Payload(), c.currentParams())
		if err != nil {
			log.Printf("Ignoring params update on %s: %v", msg.Topic(), err)
			return
		}
		log.Printf("Params update: threshold=%.2f minAngle=%.1f maxPeaks=%d",
			params.RelativePeakThreshold, params.MinSeparationAngle, params.MaxPeaks)
		handler(params)
	}
}

// IsConnected returns true if the MQTT client is connected
func (c *MQTTClient) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isConnected
}

// setConnected updates the connection status
func (c *MQTTClient) setConnected(connected bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.isConnected = connected
}

// Disconnect gracefully closes the MQTT connection
func (c *MQTTClient) Disconnect() {
	if c.client != nil && c.client.IsConnected() {
		log.Println("Disconnecting from MQTT broker...")
		c.client.Disconnect(250) // 250ms quiesce time
		c.setConnected(false)
	}
}

// GetSourceByTopic returns the source ID for a given topic
func (c *MQTTClient) GetSourceByTopic(topic string) (string, bool) {
	for _, src := range c.config.Sources {
		if src.Topic == topic {
			return src.ID, true
		}
	}
	return "", false
}

// GetClient returns the underlying MQTT client for publishing
func (c *MQTTClient) GetClient() mqtt.Client {
	return c.client
}

// newMQTTClientWithMock creates an MQTTClient with a provided mqtt.Client
// This is used for testing with mock clients
func newMQTTClientWithMock(client mqtt.Client, config *Config, handler MessageHandler) *MQTTClient {
	return &MQTTClient{
		client:         client,
		config:         config,
		messageHandler: handler,
	}
}
