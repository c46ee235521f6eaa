// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package lemi

import (
	"bytes"
	"encoding/binary"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

const testSensor = "LEMI036_1_0002"

func toBCD(n int) uint8 { return uint8(n/10*16 + n%10) }

// testRecord builds a record with distinct, exactly representable field values.
func testRecord(ts time.Time, seq int) RawRecord {
	raw := RawRecord{
		Flag: 1,
		Time: [6]uint8{
			toBCD(ts.Year() - 2000), toBCD(int(ts.Month())), toBCD(ts.Day()),
			toBCD(ts.Hour()), toBCD(ts.Minute()), toBCD(ts.Second()),
		},
		Words: [8]int16{2345, 3012, 0, 0, 0, 400, -800, 1200},
		Aux:   [3]uint8{0, 0, 121},
		GPS:   'A',
	}
	copy(raw.Tag[:], "L036")
	for i := 0; i < SamplesPerFrame; i++ {
		raw.Field[3*i] = float32(20000 + seq*10 + i)
		raw.Field[3*i+1] = float32(-1500.5 - float64(i))
		raw.Field[3*i+2] = float32(44000.25 + float64(i))
	}
	return raw
}

func testFrames(t *testing.T, n int) []Frame {
	t.Helper()
	start := time.Date(2026, 3, 14, 10, 20, 30, 0, time.UTC)
	frames := make([]Frame, n)
	for i := range frames {
		frames[i] = Pack(testRecord(start.Add(time.Duration(i)*time.Second), i))
		if len(frames[i]) != FrameSize {
			t.Fatalf("packed frame is %d bytes, want %d", len(frames[i]), FrameSize)
		}
	}
	return frames
}

func join(frames []Frame) []byte {
	var b []byte
	for _, f := range frames {
		b = append(b, f...)
	}
	return b
}

func newTestReassembler(t *testing.T) *Reassembler {
	t.Helper()
	tag, err := TagFor(testSensor)
	if err != nil {
		t.Fatalf("TagFor: %v", err)
	}
	return NewReassembler(tag, zerolog.Nop())
}

func feedAll(t *testing.T, r *Reassembler, chunks [][]byte) []Frame {
	t.Helper()
	var out []Frame
	for _, c := range chunks {
		frames, err := r.Feed(c)
		if err != nil {
			t.Fatalf("Feed: %v", err)
		}
		out = append(out, frames...)
	}
	return out
}

func split(b []byte, sizes ...int) [][]byte {
	var chunks [][]byte
	i := 0
	for len(b) > 0 {
		n := sizes[i%len(sizes)]
		if n > len(b) {
			n = len(b)
		}
		chunks = append(chunks, b[:n])
		b = b[n:]
		i++
	}
	return chunks
}

func TestTagFor(t *testing.T) {
	tag, err := TagFor("LEMI025_22_0003")
	if err != nil {
		t.Fatalf("TagFor: %v", err)
	}
	if tag.String() != "L025" {
		t.Fatalf("tag = %q, want L025", tag)
	}
	if _, err := TagFor("LEMI"); err == nil {
		t.Fatal("expected error for short sensor id")
	}
}

func TestReassemblerAnySplit(t *testing.T) {
	frames := testFrames(t, 6)
	stream := join(frames)

	tests := []struct {
		name  string
		sizes []int
	}{
		{"whole frames", []int{FrameSize}},
		{"one byte", []int{1}},
		{"mid tag", []int{2, FrameSize}},
		{"uneven", []int{100, 7, 250, 3}},
		{"two frames per chunk", []int{2 * FrameSize}},
		{"everything at once", []int{len(stream)}},
		{"frame plus a bit", []int{FrameSize + 2}},
		{"large odd", []int{FrameSize*2 + 50, 1, 60}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestReassembler(t)
			got := feedAll(t, r, split(stream, tt.sizes...))
			if len(got) != len(frames) {
				t.Fatalf("got %d frames, want %d", len(got), len(frames))
			}
			for i := range frames {
				if !bytes.Equal(got[i], frames[i]) {
					t.Fatalf("frame %d differs from input", i)
				}
			}
			if r.Pending() != 0 {
				t.Fatalf("pending = %d, want 0", r.Pending())
			}
			if st := r.Stats(); st.DiscardedBytes != 0 {
				t.Fatalf("discarded %d bytes of a clean stream", st.DiscardedBytes)
			}
		})
	}
}

func TestReassemblerFrameThenGarbage(t *testing.T) {
	frames := testFrames(t, 1)
	garbage := bytes.Repeat([]byte{0xAA, 0x55}, 40)

	r := newTestReassembler(t)
	got := feedAll(t, r, [][]byte{append(append([]byte{}, frames[0]...), garbage...)})
	if len(got) != 1 {
		t.Fatalf("got %d frames, want 1", len(got))
	}
	if r.Pending() != 0 {
		t.Fatalf("pending = %d, want 0", r.Pending())
	}
	if st := r.Stats(); st.DiscardedBytes != uint64(len(garbage)) {
		t.Fatalf("discarded = %d, want %d", st.DiscardedBytes, len(garbage))
	}
}

func TestReassemblerConcatenated(t *testing.T) {
	frames := testFrames(t, 4)
	r := newTestReassembler(t)
	got := feedAll(t, r, [][]byte{join(frames)})
	if len(got) != 4 {
		t.Fatalf("got %d frames, want 4", len(got))
	}
}

func TestReassemblerResync(t *testing.T) {
	frames := testFrames(t, 3)

	t.Run("leading garbage", func(t *testing.T) {
		r := newTestReassembler(t)
		in := append([]byte("xx\x00junk"), join(frames)...)
		got := feedAll(t, r, split(in, 64))
		if len(got) != 3 {
			t.Fatalf("got %d frames, want 3", len(got))
		}
		if st := r.Stats(); st.DiscardedBytes != 7 {
			t.Fatalf("discarded = %d, want 7", st.DiscardedBytes)
		}
	})

	t.Run("lost bytes", func(t *testing.T) {
		r := newTestReassembler(t)
		short := frames[1][:FrameSize-5]
		in := join([]Frame{frames[0], short, frames[2]})
		got := feedAll(t, r, [][]byte{in})
		if len(got) != 2 {
			t.Fatalf("got %d frames, want 2", len(got))
		}
		if !bytes.Equal(got[0], frames[0]) || !bytes.Equal(got[1], frames[2]) {
			t.Fatal("wrong frames kept after resync")
		}
	})

	t.Run("no header", func(t *testing.T) {
		r := newTestReassembler(t)
		got := feedAll(t, r, [][]byte{bytes.Repeat([]byte{0x01}, 400)})
		if len(got) != 0 {
			t.Fatalf("got %d frames, want 0", len(got))
		}
		if r.Pending() != 0 {
			t.Fatalf("pending = %d, want 0", r.Pending())
		}
	})

	t.Run("garbage then split tag", func(t *testing.T) {
		r := newTestReassembler(t)
		in := append([]byte("garbage"), frames[0]...)
		got := feedAll(t, r, [][]byte{in[:9], in[9:]})
		if len(got) != 1 || !bytes.Equal(got[0], frames[0]) {
			t.Fatalf("got %d frames, want the first frame", len(got))
		}
	})
}

func TestReassemblerBrokenAlignedRun(t *testing.T) {
	frames := testFrames(t, 4)
	r := newTestReassembler(t)

	// 153 + 5 + 148 bytes: a multiple of the frame size whose second slice
	// starts with junk instead of the tag.
	first := join([]Frame{frames[0]})
	first = append(first, []byte{0xde, 0xad, 0xbe, 0xef, 0x00}...)
	first = append(first, frames[1][:FrameSize-5]...)
	if len(first)%FrameSize != 0 {
		t.Fatalf("chunk is %d bytes, want a multiple of %d", len(first), FrameSize)
	}

	got := feedAll(t, r, [][]byte{first, frames[2], frames[3]})
	if len(got) != 3 {
		t.Fatalf("got %d frames, want 3", len(got))
	}
	for i, want := range []Frame{frames[0], frames[2], frames[3]} {
		if !bytes.Equal(got[i], want) {
			t.Fatalf("frame %d differs from input", i)
		}
	}
	st := r.Stats()
	if st.DiscardedBytes != FrameSize || st.Resyncs != 1 {
		t.Fatalf("stats = %+v, want %d discarded and 1 resync", st, FrameSize)
	}
	if r.Pending() != 0 {
		t.Fatalf("pending = %d, want 0", r.Pending())
	}
}

func TestReassemblerClearsBufferOnFailure(t *testing.T) {
	frames := testFrames(t, 2)
	r := newTestReassembler(t)
	feedAll(t, r, [][]byte{frames[0][:100]})

	feedHook = func([]byte) { panic("corrupted state") }
	got, err := r.Feed(frames[0][100:])
	feedHook = nil

	if err == nil {
		t.Fatal("expected error from failing Feed")
	}
	if len(got) != 0 {
		t.Fatalf("got %d frames from failing Feed", len(got))
	}
	if r.Pending() != 0 {
		t.Fatalf("pending = %d after failure, want 0", r.Pending())
	}
	if st := r.Stats(); st.Failures != 1 {
		t.Fatalf("failures = %d, want 1", st.Failures)
	}

	got = feedAll(t, r, [][]byte{frames[1]})
	if len(got) != 1 || !bytes.Equal(got[0], frames[1]) {
		t.Fatalf("got %d frames after failure, want the next frame", len(got))
	}
}

func TestReassemblerReset(t *testing.T) {
	frames := testFrames(t, 2)
	r := newTestReassembler(t)
	feedAll(t, r, [][]byte{frames[0][:80]})
	r.Reset()
	got := feedAll(t, r, [][]byte{frames[1]})
	if len(got) != 1 || !bytes.Equal(got[0], frames[1]) {
		t.Fatal("partial frame survived Reset")
	}
}

func TestDecode(t *testing.T) {
	ts := time.Date(2026, 3, 14, 10, 20, 30, 0, time.UTC)
	raw := testRecord(ts, 0)
	d := NewDecoder(testSensor, zerolog.Nop())

	got, err := d.Decode(Pack(raw))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(got.Samples) != SamplesPerFrame {
		t.Fatalf("got %d samples, want %d", len(got.Samples), SamplesPerFrame)
	}
	base := ts.Add(-GPSLatency)
	if !got.GPSTime.Equal(base) {
		t.Fatalf("GPSTime = %v, want %v", got.GPSTime, base)
	}
	for i, s := range got.Samples {
		if want := base.Add(time.Duration(i) * 100 * time.Millisecond); !s.Time.Equal(want) {
			t.Errorf("sample %d time = %v, want %v", i, s.Time, want)
		}
		if s.X != float64(raw.Field[3*i]) || s.Y != float64(raw.Field[3*i+1]) || s.Z != float64(raw.Field[3*i+2]) {
			t.Errorf("sample %d field = (%v,%v,%v)", i, s.X, s.Y, s.Z)
		}
		if s.TempSensor != 23.45 || s.TempElec != 30.12 {
			t.Errorf("sample %d temps = %v, %v", i, s.TempSensor, s.TempElec)
		}
		if s.VDD != 12.1 {
			t.Errorf("sample %d vdd = %v", i, s.VDD)
		}
		if s.GPS != GPSActive {
			t.Errorf("sample %d gps = %v", i, s.GPS)
		}
	}
	if got.BiasX != 1 || got.BiasY != -2 || got.BiasZ != 3 {
		t.Errorf("bias = %v %v %v", got.BiasX, got.BiasY, got.BiasZ)
	}
	if got.Header != HeaderFor(testSensor) {
		t.Errorf("header = %q", got.Header)
	}
}

func TestHeaderForDescribesRecord(t *testing.T) {
	if n := binary.Size(RawRecord{}); n != FrameSize {
		t.Fatalf("RawRecord is %d bytes, want %d", n, FrameSize)
	}
	h := string(HeaderFor(testSensor))
	if !strings.HasPrefix(h, "# MagPyBin "+testSensor+" ") {
		t.Fatalf("header = %q", h)
	}
	if want := " " + PackCode + " 153\n"; !strings.HasSuffix(h, want) {
		t.Fatalf("header = %q, want suffix %q", h, want)
	}
}

func TestDecodeCalendar(t *testing.T) {
	d := NewDecoder(testSensor, zerolog.Nop())
	ts := time.Date(2026, 3, 14, 10, 20, 30, 0, time.UTC)

	tests := []struct {
		name  string
		index int
		value uint8
	}{
		{"month 13", 1, 0x13},
		{"month 0", 1, 0x00},
		{"day 32", 2, 0x32},
		{"hour 24", 3, 0x24},
		{"minute 60", 4, 0x60},
		{"not bcd", 5, 0x1f},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := testRecord(ts, 0)
			raw.Time[tt.index] = tt.value
			_, err := d.Decode(Pack(raw))
			var de *DecodeError
			if !errors.As(err, &de) || de.Stage != "calendar" {
				t.Fatalf("err = %v, want calendar DecodeError", err)
			}
		})
	}

	t.Run("february 30", func(t *testing.T) {
		raw := testRecord(ts, 0)
		raw.Time[1], raw.Time[2] = 0x02, 0x30
		if _, err := d.Decode(Pack(raw)); err == nil {
			t.Fatal("expected error")
		}
	})

	t.Run("short frame", func(t *testing.T) {
		_, err := d.Decode(Frame(make([]byte, 100)))
		if !errors.Is(err, ErrFrameLength) {
			t.Fatalf("err = %v, want ErrFrameLength", err)
		}
	})
}

func TestDecodeUnknownGPSState(t *testing.T) {
	raw := testRecord(time.Date(2026, 3, 14, 10, 20, 30, 0, time.UTC), 0)
	raw.GPS = 'X'
	got, err := NewDecoder(testSensor, zerolog.Nop()).Decode(Pack(raw))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.GPSState != GPSUnknown || got.Samples[0].GPS != GPSUnknown {
		t.Fatalf("gps = %v, want unknown", got.GPSState)
	}
}
