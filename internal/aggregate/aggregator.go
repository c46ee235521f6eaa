// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package aggregate stacks decoded frames into publish batches and decides when
// the dict and meta companion messages go out.
package aggregate

import (
	"fmt"

	"github.com/relabs-tech/lemi_streamer/internal/lemi"
)

// DefaultMetaInterval is how many batches pass between metadata messages when
// every frame is published on its own.
const DefaultMetaInterval = 10

// Sub-topics below <station>/<sensor>.
const (
	TopicData = "data"
	TopicDict = "dict"
	TopicMeta = "meta"
)

// DelaySource reports the current GPS/local clock delay estimate in seconds.
type DelaySource interface {
	MedianDelay() float64
}

// Message is one payload bound for a sub-topic.
type Message struct {
	Topic   string
	Payload string
}

// Batch is what one publish cycle sends.
type Batch struct {
	Samples []lemi.Sample
	Data    string

	// Set on batches that carry the companion messages.
	WithMeta bool
	Dict     string
	Meta     lemi.MetadataHeader
}

// Messages returns the batch's payloads in publish order, topics prefixed
// with root.
func (b *Batch) Messages(root string) []Message {
	msgs := []Message{{Topic: root + "/" + TopicData, Payload: b.Data}}
	if b.WithMeta {
		msgs = append(msgs,
			Message{Topic: root + "/" + TopicDict, Payload: b.Dict},
			Message{Topic: root + "/" + TopicMeta, Payload: string(b.Meta)},
		)
	}
	return msgs
}

// Config for an Aggregator.
type Config struct {
	StackSize    int // frames per batch, >= 1
	MetaInterval int // batches per metadata message; forced to 1 when StackSize > 1
	Identity     Identity
}

// Aggregator owns the pending batch of one connection.
type Aggregator struct {
	stack        int
	metaInterval int
	identity     Identity
	delay        DelaySource

	pending []lemi.Sample
	frames  int
	count   int // batches since the last metadata message
	batches uint64
}

// New validates cfg and returns an Aggregator. delay may be nil.
func New(cfg Config, delay DelaySource) (*Aggregator, error) {
	if cfg.StackSize < 1 {
		return nil, fmt.Errorf("stack size must be >= 1, got %d", cfg.StackSize)
	}
	interval := cfg.MetaInterval
	if interval < 1 {
		interval = DefaultMetaInterval
	}
	if cfg.StackSize > 1 {
		interval = 1
	}
	return &Aggregator{
		stack:        cfg.StackSize,
		metaInterval: interval,
		identity:     cfg.Identity,
		delay:        delay,
		pending:      make([]lemi.Sample, 0, cfg.StackSize*lemi.SamplesPerFrame),
	}, nil
}

// Submit adds one frame's samples. It returns a batch once StackSize frames
// have been collected, nil otherwise.
func (a *Aggregator) Submit(samples []lemi.Sample, header lemi.MetadataHeader) *Batch {
	a.pending = append(a.pending, samples...)
	a.frames++
	if a.frames < a.stack {
		return nil
	}

	b := &Batch{
		Samples: make([]lemi.Sample, len(a.pending)),
	}
	copy(b.Samples, a.pending)
	b.Data = FormatData(b.Samples)
	a.pending = a.pending[:0]
	a.frames = 0

	if a.count == 0 {
		b.WithMeta = true
		b.Meta = header
		b.Dict = FormatDict(a.identity, a.currentDelay())
	}
	a.count++
	if a.count >= a.metaInterval {
		a.count = 0
	}
	a.batches++
	return b
}

// Pending returns how many frames wait for the next batch.
func (a *Aggregator) Pending() int { return a.frames }

// Batches returns how many batches were emitted.
func (a *Aggregator) Batches() uint64 { return a.batches }

// Reset drops the pending batch and restarts the metadata cadence.
func (a *Aggregator) Reset() {
	a.pending = a.pending[:0]
	a.frames = 0
	a.count = 0
}

func (a *Aggregator) currentDelay() float64 {
	if a.delay == nil {
		return 0
	}
	return a.delay.MedianDelay()
}
