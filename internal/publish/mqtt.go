// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package publish forwards batches to the MQTT broker.
package publish

import (
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

// Sink accepts (topic, payload, qos) triples.
type Sink interface {
	Publish(topic string, payload []byte, qos byte) error
}

// ValidQoS maps anything outside 0..2 to 0.
func ValidQoS(qos int) (byte, bool) {
	if qos < 0 || qos > 2 {
		return 0, false
	}
	return byte(qos), true
}

// MQTTOptions configures the broker connection.
type MQTTOptions struct {
	Broker   string
	ClientID string
	Username string
	Password string
	Timeout  time.Duration
}

// MQTTSink publishes through a paho client.
type MQTTSink struct {
	client  mqtt.Client
	timeout time.Duration
	log     zerolog.Logger
}

// DialMQTT connects to the broker. The paho client reconnects on its own
// after the initial connect succeeded.
func DialMQTT(o MQTTOptions, log zerolog.Logger) (*MQTTSink, error) {
	if o.Timeout == 0 {
		o.Timeout = 10 * time.Second
	}
	log = log.With().Str("component", "mqtt").Str("broker", o.Broker).Logger()

	opts := mqtt.NewClientOptions().
		AddBroker(o.Broker).
		SetClientID(o.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(o.Timeout).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.Warn().Err(err).Msg("connection to broker lost")
		}).
		SetOnConnectHandler(func(mqtt.Client) {
			log.Info().Msg("connected to broker")
		})
	if o.Username != "" {
		opts.SetUsername(o.Username)
		opts.SetPassword(o.Password)
	}

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect: %w", token.Error())
	}
	return &MQTTSink{client: client, timeout: o.Timeout, log: log}, nil
}

// Publish sends one message and waits for the broker to acknowledge it up to
// the configured timeout.
func (s *MQTTSink) Publish(topic string, payload []byte, qos byte) error {
	token := s.client.Publish(topic, qos, false, payload)
	if !token.WaitTimeout(s.timeout) {
		return fmt.Errorf("publish %s: timed out after %s", topic, s.timeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// Subscribe registers handle for messages matching filter.
func (s *MQTTSink) Subscribe(filter string, qos byte, handle func(topic string, payload []byte)) error {
	token := s.client.Subscribe(filter, qos, func(_ mqtt.Client, msg mqtt.Message) {
		handle(msg.Topic(), msg.Payload())
	})
	if !token.WaitTimeout(s.timeout) {
		return fmt.Errorf("subscribe %s: timed out after %s", filter, s.timeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe %s: %w", filter, err)
	}
	s.log.Info().Str("topic", filter).Msg("subscribed")
	return nil
}

// Close disconnects, giving in-flight messages 250ms.
func (s *MQTTSink) Close() {
	s.client.Disconnect(250)
}
