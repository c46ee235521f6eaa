// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/relabs-tech/lemi_streamer/internal/aggregate"
	"github.com/relabs-tech/lemi_streamer/internal/config"
	"github.com/relabs-tech/lemi_streamer/internal/publish"
)

// ConsolePrinter renders messages from a sensor's topics.
type ConsolePrinter struct {
	out io.Writer
	log zerolog.Logger
}

// Handle prints one message. Data lines are parsed and shown one sample per
// row; dict and meta messages are printed as they are.
func (p *ConsolePrinter) Handle(topic string, payload []byte) {
	switch {
	case strings.HasSuffix(topic, "/"+aggregate.TopicData):
		samples, err := aggregate.ParseData(string(payload))
		if err != nil {
			p.log.Warn().Err(err).Str("topic", topic).Msg("console: bad data line")
			return
		}
		for _, s := range samples {
			fmt.Fprintf(p.out, "[DATA] %s  X=%10.3f  Y=%10.3f  Z=%10.3f nT  Ts=%6.2f  Te=%6.2f degC  VDD=%4.1f V\n",
				s.Time.Format("2006-01-02T15:04:05.000Z"), s.X, s.Y, s.Z, s.TempSensor, s.TempElec, s.VDD)
		}
	case strings.HasSuffix(topic, "/"+aggregate.TopicDict):
		fmt.Fprintf(p.out, "[DICT] %s\n", payload)
	case strings.HasSuffix(topic, "/"+aggregate.TopicMeta):
		fmt.Fprintf(p.out, "[META] %s\n", strings.TrimSpace(string(payload)))
	default:
		fmt.Fprintf(p.out, "[%s] %s\n", topic, payload)
	}
}

// RunConsole subscribes to the configured sensor's topics and prints what
// arrives until Ctrl+C.
func RunConsole(cfg *config.Config, log zerolog.Logger) error {
	qos, _ := publish.ValidQoS(cfg.MQTTQoS)
	client, err := publish.DialMQTT(publish.MQTTOptions{
		Broker:   cfg.MQTTBroker,
		ClientID: cfg.MQTTClientID + "-console",
		Username: cfg.MQTTUsername,
		Password: cfg.MQTTPassword,
	}, log)
	if err != nil {
		return err
	}
	defer client.Close()

	printer := &ConsolePrinter{out: os.Stdout, log: log}
	if err := client.Subscribe(cfg.Topic()+"/#", qos, printer.Handle); err != nil {
		return err
	}

	// Wait for Ctrl+C
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info().Msg("console: shutting down")
	return nil
}
