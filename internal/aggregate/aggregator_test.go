// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package aggregate

import (
	"strings"
	"testing"
	"time"

	"github.com/relabs-tech/lemi_streamer/internal/lemi"
)

type fixedDelay float64

func (d fixedDelay) MedianDelay() float64 { return float64(d) }

var testHeader = lemi.HeaderFor("LEMI036_1_0002")

func frameSamples(frame int) []lemi.Sample {
	base := time.Date(2026, 3, 14, 10, 0, frame, 0, time.UTC).Add(-300 * time.Millisecond)
	out := make([]lemi.Sample, lemi.SamplesPerFrame)
	for i := range out {
		out[i] = lemi.Sample{
			Time:       base.Add(time.Duration(i) * 100 * time.Millisecond),
			X:          float64(frame*100 + i),
			Y:          -1500.5,
			Z:          44000.25,
			TempSensor: 23.45,
			TempElec:   30.12,
			VDD:        12.1,
			GPS:        lemi.GPSActive,
		}
	}
	return out
}

func TestStackOfThree(t *testing.T) {
	a, err := New(Config{StackSize: 3}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for f := 0; f < 2; f++ {
		if b := a.Submit(frameSamples(f), testHeader); b != nil {
			t.Fatalf("batch emitted after %d frames", f+1)
		}
	}
	b := a.Submit(frameSamples(2), testHeader)
	if b == nil {
		t.Fatal("no batch after third frame")
	}
	if len(b.Samples) != 30 {
		t.Fatalf("batch has %d samples, want 30", len(b.Samples))
	}
	for i, s := range b.Samples {
		if want := float64(i/10*100 + i%10); s.X != want {
			t.Fatalf("sample %d X = %v, want %v (order not preserved)", i, s.X, want)
		}
	}
	if a.Pending() != 0 {
		t.Fatalf("pending = %d after emit", a.Pending())
	}
	if !b.WithMeta {
		t.Fatal("stacked batches must carry metadata")
	}
}

func TestStackOfOne(t *testing.T) {
	a, err := New(Config{StackSize: 1}, fixedDelay(2.3))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	var withMeta []int
	for f := 0; f < 25; f++ {
		b := a.Submit(frameSamples(f), testHeader)
		if b == nil {
			t.Fatalf("frame %d not published", f)
		}
		if len(b.Samples) != lemi.SamplesPerFrame {
			t.Fatalf("batch has %d samples", len(b.Samples))
		}
		if b.WithMeta {
			withMeta = append(withMeta, f)
		}
	}
	want := []int{0, 10, 20}
	if len(withMeta) != len(want) {
		t.Fatalf("metadata on batches %v, want %v", withMeta, want)
	}
	for i := range want {
		if withMeta[i] != want[i] {
			t.Fatalf("metadata on batches %v, want %v", withMeta, want)
		}
	}
}

func TestStackSizeValidation(t *testing.T) {
	if _, err := New(Config{StackSize: 0}, nil); err == nil {
		t.Fatal("expected error for stack size 0")
	}
}

func TestMessages(t *testing.T) {
	id := Identity{SensorID: "LEMI036_1_0002", StationID: "WIC", PierID: "A2", Protocol: "Lemi", TimeProtocol: "GPS"}
	a, _ := New(Config{StackSize: 1, Identity: id}, fixedDelay(2.5))
	b := a.Submit(frameSamples(0), testHeader)
	msgs := b.Messages("WIC/LEMI036_1_0002")
	if len(msgs) != 3 {
		t.Fatalf("got %d messages, want 3", len(msgs))
	}
	for i, topic := range []string{"WIC/LEMI036_1_0002/data", "WIC/LEMI036_1_0002/dict", "WIC/LEMI036_1_0002/meta"} {
		if msgs[i].Topic != topic {
			t.Errorf("message %d topic = %q, want %q", i, msgs[i].Topic, topic)
		}
	}
	if !strings.Contains(msgs[1].Payload, "StationID:WIC") || !strings.HasSuffix(msgs[1].Payload, "DataNTPTimeDelay:2.5") {
		t.Errorf("dict = %q", msgs[1].Payload)
	}
	if msgs[2].Payload != string(testHeader) {
		t.Errorf("meta = %q", msgs[2].Payload)
	}

	b = a.Submit(frameSamples(1), testHeader)
	if got := len(b.Messages("x")); got != 1 {
		t.Fatalf("second batch has %d messages, want 1", got)
	}
}

func TestDataFormat(t *testing.T) {
	samples := frameSamples(0)[:2]
	got := FormatData(samples)
	want := "2026,3,14,9,59,59,700000,0,-1500.5,44000.25,2345,3012,121;" +
		"2026,3,14,9,59,59,800000,1,-1500.5,44000.25,2345,3012,121"
	if got != want {
		t.Fatalf("FormatData =\n%s\nwant\n%s", got, want)
	}

	back, err := ParseData(got)
	if err != nil {
		t.Fatalf("ParseData: %v", err)
	}
	for i := range samples {
		if !back[i].Time.Equal(samples[i].Time) || back[i].X != samples[i].X || back[i].TempSensor != samples[i].TempSensor || back[i].VDD != samples[i].VDD {
			t.Fatalf("sample %d = %+v, want %+v", i, back[i], samples[i])
		}
	}

	if _, err := ParseData("1,2,3"); err == nil {
		t.Fatal("expected error for short line")
	}
}
