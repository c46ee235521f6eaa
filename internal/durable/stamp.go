// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package durable

import (
	"encoding/binary"
	"fmt"
	"time"
)

const (
	// StampSize is the length of the receive-time stamp appended to every frame.
	StampSize = 13
	// StampCode is the packed layout of the stamp: year-2000, month, day, hour,
	// minute, second, microsecond, UTC offset in minutes.
	StampCode = "h5BLh"
)

// EncodeStamp packs t (converted to UTC) into the 13-byte stamp.
func EncodeStamp(t time.Time) [StampSize]byte {
	var b [StampSize]byte
	t = t.UTC()
	binary.LittleEndian.PutUint16(b[0:2], uint16(int16(t.Year()-2000)))
	b[2] = uint8(t.Month())
	b[3] = uint8(t.Day())
	b[4] = uint8(t.Hour())
	b[5] = uint8(t.Minute())
	b[6] = uint8(t.Second())
	binary.LittleEndian.PutUint32(b[7:11], uint32(t.Nanosecond()/1000))
	binary.LittleEndian.PutUint16(b[11:13], 0)
	return b
}

// DecodeStamp is the inverse of EncodeStamp.
func DecodeStamp(b []byte) (time.Time, error) {
	if len(b) != StampSize {
		return time.Time{}, fmt.Errorf("stamp is %d bytes, want %d", len(b), StampSize)
	}
	year := 2000 + int(int16(binary.LittleEndian.Uint16(b[0:2])))
	usec := int(binary.LittleEndian.Uint32(b[7:11]))
	offset := int(int16(binary.LittleEndian.Uint16(b[11:13])))
	t := time.Date(year, time.Month(b[2]), int(b[3]), int(b[4]), int(b[5]), int(b[6]), usec*1000, time.UTC)
	return t.Add(-time.Duration(offset) * time.Minute), nil
}
