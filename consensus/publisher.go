package consensus

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

// DefaultPublishPrefix is the topic root used when neither the config nor
// MQTT_PUBLISH_PREFIX names one.
const DefaultPublishPrefix = "markconsensus"

// Publisher posts consensus records to an MQTT broker, one retained message
// per frame on <prefix>/<subject>/<frame>.
type Publisher struct {
	client        mqtt.Client
	publishPrefix string
	qos           byte
	retain        bool
}

// NewPublisher creates a record publisher. MQTT_PUBLISH_PREFIX overrides
// prefix. If client is nil, publishing is disabled (for testing).
func NewPublisher(client mqtt.Client, prefix string) *Publisher {
	if env := os.Getenv("MQTT_PUBLISH_PREFIX"); env != "" {
		prefix = env
	}
	if prefix == "" {
		prefix = DefaultPublishPrefix
	}

	return &Publisher{
		client:        client,
		publishPrefix: prefix,
		qos:           1,
		retain:        true,
	}
}

// SetQoS sets the Quality of Service level for publishing (0, 1, or 2)
func (p *Publisher) SetQoS(qos byte) {
	if qos <= 2 {
		p.qos = qos
	}
}

// SetRetain sets whether published messages should be retained by the broker
func (p *Publisher) SetRetain(retain bool) {
	p.retain = retain
}

// Topic returns the topic a frame of subject is published on.
func (p *Publisher) Topic(subject, frame string) string {
	return fmt.Sprintf("%s/%s/%s", p.publishPrefix, subject, frame)
}

// PublishRecord publishes every frame of rec in frame order and returns
// the number of messages sent.
func (p *Publisher) PublishRecord(subject string, rec *ConsensusRecord) (int, error) {
	if p.client == nil || !p.client.IsConnected() {
		return 0, fmt.Errorf("MQTT client not connected")
	}
	if subject == "" {
		return 0, fmt.Errorf("subject is required")
	}

	flat := rec.Flatten()
	sent := 0
	for _, frame := range sortedKeys(flat) {
		payload, err := json.Marshal(flat[frame])
		if err != nil {
			return sent, fmt.Errorf("marshaling frame %s: %w", frame, err)
		}

		topic := p.Topic(subject, frame)
		token := p.client.Publish(topic, p.qos, p.retain, payload)
		if !token.WaitTimeout(2 * time.Second) {
			return sent, fmt.Errorf("publishing to %s: timed out", topic)
		}
		if err := token.Error(); err != nil {
			return sent, fmt.Errorf("publishing to %s: %w", topic, err)
		}
		sent++
	}
	log.Printf("Published %d frame(s) for subject %s", sent, subject)
	return sent, nil
}

// NewMQTTClient connects to the broker described by cfg. MQTT_BROKER,
// MQTT_CLIENT_ID, MQTT_USERNAME and MQTT_PASSWORD override the file
// settings. The client id gets a random suffix so parallel workers never
// take over each other's session.
func NewMQTTClient(cfg MQTTConfig) (mqtt.Client, error) {
	broker := os.Getenv("MQTT_BROKER")
	if broker == "" {
		broker = cfg.Broker
	}
	if broker == "" {
		return nil, fmt.Errorf("mqtt.broker is required")
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(clientID(cfg))

	username := os.Getenv("MQTT_USERNAME")
	if username == "" {
		username = cfg.Username
	}
	if username != "" {
		opts.SetUsername(username)
		password := os.Getenv("MQTT_PASSWORD")
		if password == "" {
			password = cfg.Password
		}
		opts.SetPassword(password)
	}

	opts.SetAutoReconnect(false)
	opts.SetConnectTimeout(10 * time.Second)
	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetCleanSession(true)

	client := mqtt.NewClient(opts)
	if err := connect(client); err != nil {
		return nil, err
	}
	return client, nil
}

func clientID(cfg MQTTConfig) string {
	base := os.Getenv("MQTT_CLIENT_ID")
	if base == "" {
		base = cfg.ClientID
	}
	if base == "" {
		base = DefaultPublishPrefix
	}
	return base + "-" + uuid.NewString()[:8]
}

func connect(client mqtt.Client) error {
	log.Println("Connecting to MQTT broker...")
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return fmt.Errorf("MQTT connection timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("MQTT connection failed: %w", err)
	}
	log.Println("Successfully connected to MQTT broker")
	return nil
}
