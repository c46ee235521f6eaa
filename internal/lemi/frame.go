// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package lemi recovers and decodes the binary records emitted by LEMI-025 and
// LEMI-036 magnetometer data loggers.
//
// The logger writes fixed 153-byte records back to back with a start marker but
// no end marker. Reassembler turns arbitrary serial chunks into aligned frames,
// Decode unpacks one frame into ten 10 Hz samples.
package lemi

import (
	"fmt"
)

const (
	// FrameSize is the length of one binary record.
	FrameSize = 153

	// SamplesPerFrame is the number of oversampled readings per record.
	SamplesPerFrame = 10

	// resyncOffset is where tag searches start so the tag at offset 0 is skipped.
	resyncOffset = 6
)

// Tag is the start-of-record marker written by the logger, e.g. "L036".
type Tag []byte

// TagFor derives the start-of-record marker from a sensor identifier such as
// "LEMI036_1_0002": the first character followed by the model digits.
func TagFor(sensorID string) (Tag, error) {
	if len(sensorID) < 7 {
		return nil, fmt.Errorf("sensor id %q too short to derive record tag", sensorID)
	}
	tag := make(Tag, 0, 4)
	tag = append(tag, sensorID[0])
	tag = append(tag, sensorID[4:7]...)
	return tag, nil
}

func (t Tag) String() string { return string(t) }

// Frame is one aligned 153-byte record. It is only produced by Reassembler.
type Frame []byte
