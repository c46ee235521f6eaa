// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package lemi

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// GPSLatency is subtracted from the logger's GPS time as the datasheet requires.
const GPSLatency = 300 * time.Millisecond

// SampleInterval is the spacing of the oversampled readings within a frame.
const SampleInterval = 100 * time.Millisecond

// RawRecord mirrors the packed little-endian layout PackCode.
type RawRecord struct {
	Tag    [4]byte
	Flag   uint8
	Time   [6]uint8 // BCD: yy mm dd HH MM SS
	Words  [8]int16 // [0] sensor temp ×100, [1] electronics temp ×100, [5..7] bias ×400
	Signed int8
	Field  [30]float32 // x,y,z interleaved, 10 readings
	Aux    [3]uint8    // [2] supply voltage ×10
	GPS    uint8
	Tail   uint8
}

// Decoded is the result of unpacking one frame.
type Decoded struct {
	Samples  []Sample
	Header   MetadataHeader
	GPSTime  time.Time // base time of the first sample
	GPSState GPSState
	BiasX    float64
	BiasY    float64
	BiasZ    float64
}

// Decoder unpacks frames for one sensor.
type Decoder struct {
	sensorID string
	log      zerolog.Logger
}

func NewDecoder(sensorID string, log zerolog.Logger) *Decoder {
	return &Decoder{
		sensorID: sensorID,
		log:      log.With().Str("component", "decoder").Logger(),
	}
}

// Unpack reads the fixed binary layout of frame.
func Unpack(frame Frame) (RawRecord, error) {
	var raw RawRecord
	if len(frame) != FrameSize {
		return raw, &DecodeError{Stage: "unpack", What: fmt.Sprintf("%d bytes", len(frame)), Err: ErrFrameLength}
	}
	if err := binary.Read(bytes.NewReader(frame), binary.LittleEndian, &raw); err != nil {
		return raw, &DecodeError{Stage: "unpack", What: "bit error while reading", Err: err}
	}
	return raw, nil
}

// Pack is the inverse of Unpack.
func Pack(raw RawRecord) Frame {
	var buf bytes.Buffer
	buf.Grow(FrameSize)
	// writes to a bytes.Buffer do not fail
	_ = binary.Write(&buf, binary.LittleEndian, &raw)
	return Frame(buf.Bytes())
}

// bcd converts one binary-coded-decimal byte.
func bcd(b uint8) (int, bool) {
	hi, lo := int(b/16), int(b%16)
	return hi*10 + lo, hi <= 9 && lo <= 9
}

// GPSTime returns the record's GPS time with the transport latency removed.
func (raw RawRecord) GPSTime() (time.Time, error) {
	var v [6]int
	for i, b := range raw.Time {
		n, ok := bcd(b)
		if !ok {
			return time.Time{}, &DecodeError{Stage: "calendar", What: fmt.Sprintf("byte %d (0x%02x) is not BCD", i, b)}
		}
		v[i] = n
	}
	year, month, day, hour, minute, second := 2000+v[0], v[1], v[2], v[3], v[4], v[5]
	switch {
	case month < 1 || month > 12:
		return time.Time{}, &DecodeError{Stage: "calendar", What: fmt.Sprintf("month %d", month)}
	case day < 1 || day > 31:
		return time.Time{}, &DecodeError{Stage: "calendar", What: fmt.Sprintf("day %d", day)}
	case hour > 23:
		return time.Time{}, &DecodeError{Stage: "calendar", What: fmt.Sprintf("hour %d", hour)}
	case minute > 59:
		return time.Time{}, &DecodeError{Stage: "calendar", What: fmt.Sprintf("minute %d", minute)}
	case second > 59:
		return time.Time{}, &DecodeError{Stage: "calendar", What: fmt.Sprintf("second %d", second)}
	}
	t := time.Date(year, time.Month(month), day, hour, minute, second, 0, time.UTC)
	if t.Day() != day {
		return time.Time{}, &DecodeError{Stage: "calendar", What: fmt.Sprintf("day %d of %s %d", day, time.Month(month), year)}
	}
	return t.Add(-GPSLatency), nil
}

// Decode unpacks frame into its ten samples.
func (d *Decoder) Decode(frame Frame) (*Decoded, error) {
	raw, err := Unpack(frame)
	if err != nil {
		return nil, err
	}
	base, err := raw.GPSTime()
	if err != nil {
		return nil, err
	}

	state := GPSState(raw.GPS)
	if !state.Valid() {
		d.log.Warn().
			Str("sensor", d.sensorID).
			Uint8("gps", raw.GPS).
			Hex("record", frame).
			Msg("unexpected GPS state in binary data")
		state = GPSUnknown
	}

	tempSensor := float64(raw.Words[0]) / 100
	tempElec := float64(raw.Words[1]) / 100
	vdd := float64(raw.Aux[2]) / 10

	out := &Decoded{
		Samples:  make([]Sample, SamplesPerFrame),
		Header:   HeaderFor(d.sensorID),
		GPSTime:  base,
		GPSState: state,
		BiasX:    float64(raw.Words[5]) / 400,
		BiasY:    float64(raw.Words[6]) / 400,
		BiasZ:    float64(raw.Words[7]) / 400,
	}
	for i := 0; i < SamplesPerFrame; i++ {
		// ×1000 then ÷1000 is kept so values match the legacy MagPy stream bit for bit.
		x := float64(raw.Field[3*i]) * 1000
		y := float64(raw.Field[3*i+1]) * 1000
		z := float64(raw.Field[3*i+2]) * 1000
		out.Samples[i] = Sample{
			Time:       base.Add(time.Duration(i) * SampleInterval),
			X:          x / 1000,
			Y:          y / 1000,
			Z:          z / 1000,
			TempSensor: tempSensor,
			TempElec:   tempElec,
			VDD:        vdd,
			GPS:        state,
		}
	}
	return out, nil
}
