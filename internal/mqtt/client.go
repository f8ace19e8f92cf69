package mqtt

import (
	"log"
	"os"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// Client wraps the Paho MQTT client for the story player.
type Client struct {
	client paho.Client
	broker string
	mu     sync.Mutex

	// handlers are re-subscribed after every reconnect
	handlers map[string]paho.MessageHandler
}

// BrokerURL returns the configured broker, then MQTT_URL, then the default.
func BrokerURL(configured string) string {
	if configured != "" {
		return configured
	}
	if url := os.Getenv("MQTT_URL"); url != "" {
		return url
	}
	return "tcp://localhost:1883"
}

// NewClient creates a new MQTT client but does not connect.
func NewClient(broker, clientID string) *Client {
	c := &Client{
		broker:   BrokerURL(broker),
		handlers: make(map[string]paho.MessageHandler),
	}
	opts := paho.NewClientOptions().
		AddBroker(c.broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetKeepAlive(30 * time.Second).
		SetOnConnectHandler(func(paho.Client) { go c.resubscribe() })

	c.client = paho.NewClient(opts)
	return c
}

// Broker returns the broker URL the client connects to.
func (c *Client) Broker() string {
	return c.broker
}

// Connect attempts to connect to the broker.
// Returns an error if connection fails, but does not block indefinitely.
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	token := c.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return &ConnectTimeoutError{}
	}
	return token.Error()
}

// Subscribe subscribes to a topic with the given handler. The subscription
// is restored after reconnects.
func (c *Client) Subscribe(topic string, handler paho.MessageHandler) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.handlers[topic] = handler
	token := c.client.Subscribe(topic, 1, handler)
	if !token.WaitTimeout(10 * time.Second) {
		return &SubscribeTimeoutError{Topic: topic}
	}
	return token.Error()
}

// Publish sends payload on topic at QoS 1.
func (c *Client) Publish(topic string, retained bool, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	token := c.client.Publish(topic, 1, retained, payload)
	if !token.WaitTimeout(10 * time.Second) {
		return &PublishTimeoutError{Topic: topic}
	}
	return token.Error()
}

func (c *Client) resubscribe() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for topic, handler := range c.handlers {
		token := c.client.Subscribe(topic, 1, handler)
		if !token.WaitTimeout(10 * time.Second) {
			log.Printf("mqtt: resubscribe to %s timed out", topic)
			continue
		}
		if err := token.Error(); err != nil {
			log.Printf("mqtt: resubscribe to %s: %v", topic, err)
		}
	}
}

// Disconnect cleanly disconnects from the broker.
func (c *Client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.client.Disconnect(1000)
}

// IsConnected returns true if the client is connected.
func (c *Client) IsConnected() bool {
	return c.client.IsConnected()
}

// ConnectTimeoutError indicates connection timed out.
type ConnectTimeoutError struct{}

func (e *ConnectTimeoutError) Error() string {
	return "mqtt connect timeout"
}

// SubscribeTimeoutError indicates subscription timed out.
type SubscribeTimeoutError struct {
	Topic string
}

func (e *SubscribeTimeoutError) Error() string {
	return "mqtt subscribe timeout: " + e.Topic
}

// PublishTimeoutError indicates a publish was not acknowledged in time.
type PublishTimeoutError struct {
	Topic string
}

func (e *PublishTimeoutError) Error() string {
	return "mqtt publish timeout: " + e.Topic
}
