// Package bridge republishes accepted telemetry readings to an MQTT broker.
package bridge

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/shaunagostinho/roverdash/internal/telemetry"
)

// Config holds MQTT bridge settings.
type Config struct {
	Broker   string
	ClientID string
	Topic    string
	QoS      byte
}

// Message is the JSON payload published per reading.
type Message struct {
	telemetry.Reading
	Stamp int64 `json:"stamp"` // Unix ms
}

// publisher is the subset of mqtt.Client used by Publisher.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// Publisher sends readings to Topic without blocking the caller.
type Publisher struct {
	client publisher
	topic  string
	qos    byte
}

// Connect dials the broker and returns a ready publisher.
func Connect(cfg Config) (*Publisher, error) {
	if cfg.ClientID == "" {
		cfg.ClientID = "roverdash"
	}
	if cfg.Topic == "" {
		cfg.Topic = "rover/telemetry"
	}
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(5 * time.Second)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("bridge: connect %s: %w", cfg.Broker, token.Error())
	}
	log.Printf("[mqtt] connected to %s, publishing on %s", cfg.Broker, cfg.Topic)
	return newPublisher(client, cfg.Topic, cfg.QoS), nil
}

func newPublisher(c publisher, topic string, qos byte) *Publisher {
	return &Publisher{client: c, topic: topic, qos: qos}
}

// Record publishes r. Delivery errors are logged from a separate goroutine.
func (p *Publisher) Record(r telemetry.Reading) {
	payload, err := json.Marshal(Message{Reading: r, Stamp: time.Now().UnixMilli()})
	if err != nil {
		log.Printf("[mqtt] marshal: %v", err)
		return
	}
	token := p.client.Publish(p.topic, p.qos, false, payload)
	go func() {
		if token.WaitTimeout(5*time.Second) && token.Error() != nil {
			log.Printf("[mqtt] publish: %v", token.Error())
		}
	}()
}

// Close disconnects, allowing 250ms for in-flight messages.
func (p *Publisher) Close() {
	p.client.Disconnect(250)
}
