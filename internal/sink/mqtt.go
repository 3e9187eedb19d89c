package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/pkordes/ride-duration/internal/domain"
)

// publishTimeout bounds how long Write waits for the broker to acknowledge.
const publishTimeout = 30 * time.Second

// Publisher is the part of mqtt.Client the MQTT sink uses.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// Message is the payload of one published batch.
type Message struct {
	Year        int                   `json:"year"`
	Month       int                   `json:"month"`
	Predictions []domain.ScoredRecord `json:"predictions"`
}

// MQTT publishes each batch as a single QoS 1 message, so subscribers
// receive all of a batch or none of it.
type MQTT struct {
	client Publisher
	topic  string
	close  func()
}

// NewMQTT wraps a connected client. topic may contain {year} and {month}.
// Close does not disconnect the client.
func NewMQTT(client Publisher, topic string) *MQTT {
	return &MQTT{client: client, topic: topic, close: func() {}}
}

// OpenMQTT connects a new client to broker (e.g. tcp://localhost:1883).
func OpenMQTT(ctx context.Context, broker, topic, clientID string) (*MQTT, error) {
	if clientID == "" {
		clientID = "ride-duration-" + time.Now().Format("20060102150405")
	}
	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if err := waitToken(ctx, token); err != nil {
		return nil, fmt.Errorf("sink.OpenMQTT: connect %s: %w", broker, err)
	}
	return &MQTT{client: client, topic: topic, close: func() { client.Disconnect(250) }}, nil
}

// Location returns the topic pattern.
func (m *MQTT) Location() string { return "mqtt:" + m.topic }

// Close disconnects the client when the sink owns it.
func (m *MQTT) Close() error {
	m.close()
	return nil
}

// Write publishes results as one Message.
func (m *MQTT) Write(ctx context.Context, period domain.Period, results []domain.ScoredRecord) error {
	if results == nil {
		results = []domain.ScoredRecord{}
	}
	payload, err := json.Marshal(Message{Year: period.Year, Month: period.Month, Predictions: results})
	if err != nil {
		return fmt.Errorf("sink.MQTT.Write: %w: %w", domain.ErrSinkWrite, err)
	}

	topic := period.Expand(m.topic)
	if err := waitToken(ctx, m.client.Publish(topic, 1, false, payload)); err != nil {
		return fmt.Errorf("sink.MQTT.Write: %w: %s: %w", domain.ErrSinkWrite, topic, err)
	}
	return nil
}

// waitToken waits for token to complete, ctx to end, or publishTimeout.
func waitToken(ctx context.Context, token mqtt.Token) error {
	timer := time.NewTimer(publishTimeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("timed out after %s", publishTimeout)
	}
}
