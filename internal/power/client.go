// Package power publishes MQTT notifications when the scheduler's
// runnable-job iteration yields a synthetic power_off/power_on job, so
// an external smart-plug or relay listening on the configured topic can
// cut or restore power to peripherals during the quiet-time power-off
// window. Grounded on spec.md's C8 and the teacher's
// internal/mqtt/client.go paho wrapper.
package power

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Publisher is the narrow surface power.Signaller needs from an MQTT
// client, letting tests substitute a fake without touching a broker.
type Publisher interface {
	Connect(ctx context.Context) error
	Publish(ctx context.Context, topic, payload string, retained bool) error
	IsConnected() bool
	Disconnect()
}

// Client wraps paho's MQTT client with the connect/reconnect shape of
// the teacher's internal/mqtt.client: resolve the broker hostname
// first, auto-reconnect with exponential backoff on connection loss.
type Client struct {
	broker   string
	clientID string
	username string
	password string

	mu              sync.Mutex
	internalClient  mqtt.Client
	lastConnAttempt time.Time
	reconnectTimer  *time.Timer
	reconnectStop   chan struct{}
}

// NewClient returns an unconnected Client for the given broker URL.
func NewClient(broker, clientID, username, password string) *Client {
	return &Client{
		broker:        broker,
		clientID:      clientID,
		username:      username,
		password:      password,
		reconnectStop: make(chan struct{}),
	}
}

// Connect resolves the broker hostname and establishes a connection,
// refusing to retry more than once a minute.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if time.Since(c.lastConnAttempt) < time.Minute {
		return fmt.Errorf("connection attempt too recent")
	}
	c.lastConnAttempt = time.Now()

	if err := c.resolveBrokerHostname(); err != nil {
		return fmt.Errorf("resolving mqtt broker hostname: %w", err)
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(c.broker)
	opts.SetClientID(c.clientID)
	opts.SetUsername(c.username)
	opts.SetPassword(c.password)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectionLostHandler(c.onConnectionLost)
	opts.SetConnectRetry(true)

	c.internalClient = mqtt.NewClient(opts)

	token := c.internalClient.Connect()
	if !token.WaitTimeout(30 * time.Second) {
		return fmt.Errorf("mqtt connection timeout")
	}
	return token.Error()
}

func (c *Client) resolveBrokerHostname() error {
	u, err := url.Parse(c.broker)
	if err != nil {
		return fmt.Errorf("invalid broker url: %w", err)
	}
	if _, err := net.LookupHost(u.Hostname()); err != nil {
		return fmt.Errorf("resolving hostname %s: %w", u.Hostname(), err)
	}
	return nil
}

// Publish sends payload to topic, optionally with the MQTT retained
// flag so a late-subscribing relay picks up the last known state.
func (c *Client) Publish(ctx context.Context, topic, payload string, retained bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.internalClient == nil || !c.internalClient.IsConnected() {
		return fmt.Errorf("not connected to mqtt broker")
	}
	token := c.internalClient.Publish(topic, 0, retained, payload)
	if !token.WaitTimeout(10 * time.Second) {
		return fmt.Errorf("mqtt publish timeout")
	}
	return token.Error()
}

// IsConnected reports whether the underlying paho client is connected.
func (c *Client) IsConnected() bool {
	return c.internalClient != nil && c.internalClient.IsConnected()
}

// Disconnect closes the connection and stops any pending reconnect.
func (c *Client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.internalClient != nil && c.internalClient.IsConnected() {
		c.internalClient.Disconnect(250)
	}
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
	}
	select {
	case <-c.reconnectStop:
	default:
		close(c.reconnectStop)
	}
}

func (c *Client) onConnectionLost(_ mqtt.Client, _ error) {
	c.startReconnectTimer()
}

func (c *Client) startReconnectTimer() {
	c.reconnectTimer = time.AfterFunc(time.Minute, c.reconnectWithBackoff)
}

func (c *Client) reconnectWithBackoff() {
	backoff := time.Second
	const maxBackoff = 5 * time.Minute

	for {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := c.Connect(ctx)
		cancel()
		if err == nil {
			return
		}

		select {
		case <-time.After(backoff):
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		case <-c.reconnectStop:
			return
		}
	}
}
