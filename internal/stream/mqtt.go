package stream

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Connect opens an MQTT client that subscribes to topic on every (re)connect
// and feeds each received message to c. The caller disconnects the client.
func Connect(ctx context.Context, broker, topic, clientID string, c *Consumer, log *slog.Logger) (mqtt.Client, error) {
	if clientID == "" {
		clientID = "ride-duration-stream-" + time.Now().Format("20060102150405")
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	// Handlers may block on a full queue and must not stall the network loop.
	opts.SetOrderMatters(false)
	opts.OnConnect = func(client mqtt.Client) {
		token := client.Subscribe(topic, 1, func(_ mqtt.Client, m mqtt.Message) {
			if err := c.Enqueue(ctx, m.Topic(), m.Payload()); err != nil {
				log.WarnContext(ctx, "stream message dropped", "topic", m.Topic(), "error", err)
			}
		})
		token.Wait()
		if err := token.Error(); err != nil {
			log.ErrorContext(ctx, "mqtt subscribe failed", "topic", topic, "error", err)
			return
		}
		log.InfoContext(ctx, "subscribed", "topic", topic)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		log.WarnContext(ctx, "mqtt connection lost", "error", err)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("stream.Connect: %s: %w", broker, err)
	}
	return client, nil
}
