// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/relabs-tech/lemi_streamer/internal/aggregate"
	"github.com/relabs-tech/lemi_streamer/internal/clock"
	"github.com/relabs-tech/lemi_streamer/internal/durable"
	"github.com/relabs-tech/lemi_streamer/internal/lemi"
)

// BatchSubmitter accepts finished batches, typically a publish.Publisher.
type BatchSubmitter interface {
	Submit(b *aggregate.Batch) bool
}

// RecordSubmitter accepts frames for the buffer files, typically a
// worker.Queue[durable.Record].
type RecordSubmitter interface {
	Submit(rec durable.Record) bool
}

// SessionConfig describes one logger connection.
type SessionConfig struct {
	SensorID     string
	StackSize    int
	MetaInterval int
	Identity     aggregate.Identity
	Clock        clock.Options
}

// SessionStats counts what a session has seen since it was created.
type SessionStats struct {
	Connects     uint64
	Chunks       uint64
	Frames       uint64
	DecodeErrors uint64
	Batches      uint64
	Anomalies    uint64
}

// Session turns the byte stream of one logger into published batches and
// buffer file records. It implements transport.Handler. All state is reset
// when the connection is re-established.
type Session struct {
	sensorID string

	reassembler *lemi.Reassembler
	decoder     *lemi.Decoder
	reconciler  *clock.Reconciler
	aggregator  *aggregate.Aggregator

	local     clock.Source
	publisher BatchSubmitter
	archive   RecordSubmitter // nil disables buffer files

	stats SessionStats
	log   zerolog.Logger
}

// NewSession validates cfg and prepares the per-connection pipeline. archive
// may be nil.
func NewSession(cfg SessionConfig, local clock.Source, publisher BatchSubmitter, archive RecordSubmitter, log zerolog.Logger) (*Session, error) {
	tag, err := lemi.TagFor(cfg.SensorID)
	if err != nil {
		return nil, err
	}
	if local == nil {
		local = clock.System{}
	}
	log = log.With().Str("sensor", cfg.SensorID).Logger()
	reconciler := clock.NewReconciler(cfg.Clock, log)
	aggregator, err := aggregate.New(aggregate.Config{
		StackSize:    cfg.StackSize,
		MetaInterval: cfg.MetaInterval,
		Identity:     cfg.Identity,
	}, reconciler)
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}
	return &Session{
		sensorID:    cfg.SensorID,
		reassembler: lemi.NewReassembler(tag, log),
		decoder:     lemi.NewDecoder(cfg.SensorID, log),
		reconciler:  reconciler,
		aggregator:  aggregator,
		local:       local,
		publisher:   publisher,
		archive:     archive,
		log:         log,
	}, nil
}

// Stats returns a snapshot of the counters.
func (s *Session) Stats() SessionStats { return s.stats }

// OnConnect starts from a clean state for the new connection.
func (s *Session) OnConnect() {
	s.stats.Connects++
	s.reset()
	s.log.Info().Uint64("connects", s.stats.Connects).Msg("logger connected")
}

// OnBytes processes one chunk read from the logger.
func (s *Session) OnBytes(chunk []byte) {
	s.stats.Chunks++
	received := s.local.Now()

	frames, err := s.reassembler.Feed(chunk)
	if err != nil {
		s.log.Error().Err(err).Msg("reassembly failed, buffer cleared")
	}
	for _, frame := range frames {
		s.handleFrame(frame, received)
	}
}

// OnDisconnect drops partial frames and the pending batch.
func (s *Session) OnDisconnect(err error) {
	st := s.reassembler.Stats()
	s.log.Warn().
		Err(err).
		Uint64("frames", st.Frames).
		Uint64("discarded_bytes", st.DiscardedBytes).
		Int("pending_frames", s.aggregator.Pending()).
		Msg("logger disconnected")
	s.reset()
}

func (s *Session) reset() {
	s.reassembler.Reset()
	s.reconciler.Reset()
	s.aggregator.Reset()
}

func (s *Session) handleFrame(frame lemi.Frame, received time.Time) {
	defer func() {
		if r := recover(); r != nil {
			s.stats.DecodeErrors++
			s.log.Error().Interface("panic", r).Hex("record", frame).Msg("frame handling failed")
		}
	}()
	s.stats.Frames++

	decoded, err := s.decoder.Decode(frame)
	if err != nil {
		s.stats.DecodeErrors++
		var de *lemi.DecodeError
		if errors.As(err, &de) {
			s.log.Warn().Err(err).Str("stage", de.Stage).Msg("skipping record")
		} else {
			s.log.Error().Err(err).Msg("skipping record")
		}
		return
	}

	ann := s.reconciler.Observe(decoded.GPSState, decoded.GPSTime, received)
	if ann.Anomaly {
		s.stats.Anomalies++
	}
	// samples carry the voted state, not the single record's character
	for i := range decoded.Samples {
		decoded.Samples[i].GPS = ann.State
	}

	if s.archive != nil {
		s.archive.Submit(durable.Record{Frame: frame, Received: received})
	}

	if b := s.aggregator.Submit(decoded.Samples, decoded.Header); b != nil {
		s.stats.Batches++
		s.publisher.Submit(b)
	}
}
