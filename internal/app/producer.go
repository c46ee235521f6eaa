// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/relabs-tech/lemi_streamer/internal/aggregate"
	"github.com/relabs-tech/lemi_streamer/internal/clock"
	"github.com/relabs-tech/lemi_streamer/internal/config"
	"github.com/relabs-tech/lemi_streamer/internal/durable"
	"github.com/relabs-tech/lemi_streamer/internal/gps"
	"github.com/relabs-tech/lemi_streamer/internal/publish"
	"github.com/relabs-tech/lemi_streamer/internal/transport"
	"github.com/relabs-tech/lemi_streamer/internal/worker"
)

// archiveQueueFrames is how many frames may wait for the disk.
const archiveQueueFrames = 600

// RunProducer reads the LEMI logger on the configured serial port, writes
// buffer files and publishes batches to MQTT until SIGINT or SIGTERM.
func RunProducer(cfg *config.Config, log zerolog.Logger) error {
	if err := cfg.ValidateProducer(); err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- 1) Connect to MQTT broker ----
	qos, ok := publish.ValidQoS(cfg.MQTTQoS)
	if !ok {
		log.Warn().Int("qos", cfg.MQTTQoS).Msg("invalid MQTT_QOS, using 0")
	}
	sink, err := publish.DialMQTT(publish.MQTTOptions{
		Broker:   cfg.MQTTBroker,
		ClientID: cfg.MQTTClientID,
		Username: cfg.MQTTUsername,
		Password: cfg.MQTTPassword,
	}, log)
	if err != nil {
		return err
	}
	defer sink.Close()
	publisher := publish.NewPublisher(sink, cfg.Topic(), qos, cfg.PublishQueue, log)
	defer publisher.Close()

	// ---- 2) Buffer files ----
	buffer, err := durable.Open(cfg.BufferDirectory, cfg.SensorID)
	if err != nil {
		return err
	}
	archive := worker.Start("archive", archiveQueueFrames, func(rec durable.Record) error {
		return buffer.Append(rec.Frame, rec.Received)
	}, log)
	defer func() {
		archive.Close()
		if err := buffer.Close(); err != nil {
			log.Error().Err(err).Msg("closing buffer file")
		}
	}()

	// ---- 3) Local reference clock ----
	var local clock.Source = clock.System{}
	if cfg.GPSReferencePort != "" {
		ref := gps.NewReferenceClock(log)
		refPort := transport.SerialOptions{Port: cfg.GPSReferencePort, BaudRate: uint(cfg.GPSReferenceBaud)}
		go func() {
			err := transport.Serve(ctx, refPort.Open, func(ctx context.Context, conn io.ReadWriteCloser) error {
				return ref.Run(ctx, conn)
			}, log.With().Str("port", cfg.GPSReferencePort).Logger())
			if err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("reference clock stopped")
			}
		}()
		local = ref
		log.Info().Str("port", cfg.GPSReferencePort).Msg("using NMEA receiver as local clock")
	}

	// ---- 4) Logger connection ----
	session, err := NewSession(SessionConfig{
		SensorID:     cfg.SensorID,
		StackSize:    cfg.StackSize,
		MetaInterval: cfg.MetaInterval,
		Identity: aggregate.Identity{
			SensorID:     cfg.SensorID,
			StationID:    cfg.StationID,
			PierID:       cfg.PierID,
			Protocol:     cfg.Protocol,
			Group:        cfg.SensorGroup,
			Description:  cfg.SensorDesc,
			TimeProtocol: cfg.TimeProtocol,
		},
	}, local, publisher, archive, log)
	if err != nil {
		return err
	}

	port := transport.SerialOptions{Port: cfg.SerialPort, BaudRate: uint(cfg.SerialBaudRate)}
	log.Info().
		Str("port", port.Port).
		Uint("baud", port.BaudRate).
		Str("topic", cfg.Topic()).
		Int("stack", cfg.StackSize).
		Msg("LEMI producer started")

	err = transport.Run(ctx, port.Open, session, log.With().Str("port", port.Port).Logger())
	st := session.Stats()
	log.Info().
		Uint64("frames", st.Frames).
		Uint64("batches", st.Batches).
		Uint64("decode_errors", st.DecodeErrors).
		Uint64("publish_dropped", publisher.Dropped()).
		Uint64("archive_dropped", archive.Dropped()).
		Msg("LEMI producer shutting down")
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("serial transport: %w", err)
	}
	return nil
}
