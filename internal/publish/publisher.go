// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package publish

import (
	"github.com/rs/zerolog"

	"github.com/relabs-tech/lemi_streamer/internal/aggregate"
	"github.com/relabs-tech/lemi_streamer/internal/worker"
)

// Publisher sends batches to a Sink from a background goroutine, one batch at
// a time and in submission order.
type Publisher struct {
	root  string
	qos   byte
	sink  Sink
	queue *worker.Queue[*aggregate.Batch]
}

// NewPublisher starts a publisher for topics below root (<station>/<sensor>).
func NewPublisher(sink Sink, root string, qos byte, queueSize int, log zerolog.Logger) *Publisher {
	p := &Publisher{root: root, qos: qos, sink: sink}
	p.queue = worker.Start("publish", queueSize, p.send, log)
	return p
}

// Submit queues b. It returns false if the batch was dropped.
func (p *Publisher) Submit(b *aggregate.Batch) bool {
	return p.queue.Submit(b)
}

func (p *Publisher) send(b *aggregate.Batch) error {
	for _, m := range b.Messages(p.root) {
		if err := p.sink.Publish(m.Topic, []byte(m.Payload), p.qos); err != nil {
			return err
		}
	}
	return nil
}

// Dropped returns how many batches never reached the sink because the queue
// was full.
func (p *Publisher) Dropped() uint64 { return p.queue.Dropped() }

// Close waits for queued batches to be sent.
func (p *Publisher) Close() { p.queue.Close() }
