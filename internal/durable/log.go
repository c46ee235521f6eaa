// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package durable appends raw LEMI frames to per-sensor, per-day buffer files.
//
// Files live at <dir>/<sensor>/<sensor>_<YYYY-MM-DD>.bin. A header line is
// written when a file is created, then every record is the 153 raw frame bytes
// followed by a 13-byte receive-time stamp, without delimiters. Nothing in the
// collector reads these files back; ReadFile exists for replay tools and tests.
package durable

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/relabs-tech/lemi_streamer/internal/lemi"
)

const (
	// FormatTag opens the header line of every buffer file.
	FormatTag = "LemiBin"
	// RecordSize is the length of one frame plus its stamp.
	RecordSize = lemi.FrameSize + StampSize

	fileKeys   = "[x,y,z,t1,t2]"
	fileNames  = "[X,Y,Z,T_sensor,T_elec]"
	fileUnits  = "[nT,nT,nT,deg_C,deg_C]"
	fileFactor = "[0.001,0.001,0.001,100,100]"
)

// Header returns the header line written at the top of each file.
func Header(sensorID string) string {
	return fmt.Sprintf("%s %s %s %s %s %s %s %d\n",
		FormatTag, sensorID, fileKeys, fileNames, fileUnits, fileFactor, lemi.PackCode+StampCode, RecordSize)
}

// Log writes buffer files for one sensor. It keeps the current day's file open
// and rolls over at UTC midnight. Not safe for concurrent use.
type Log struct {
	dir      string
	sensorID string
	header   string

	day  string
	file *os.File
}

// Open prepares the sensor directory below dir.
func Open(dir, sensorID string) (*Log, error) {
	if dir == "" {
		return nil, errors.New("buffer directory not configured")
	}
	path := filepath.Join(dir, sensorID)
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("create buffer directory: %w", err)
	}
	return &Log{dir: path, sensorID: sensorID, header: Header(sensorID)}, nil
}

// Path returns the buffer file that holds records received on day t.
func (l *Log) Path(t time.Time) string {
	return filepath.Join(l.dir, fmt.Sprintf("%s_%s.bin", l.sensorID, t.UTC().Format("2006-01-02")))
}

// Append writes frame and the receive-time stamp of local.
func (l *Log) Append(frame lemi.Frame, local time.Time) error {
	if len(frame) != lemi.FrameSize {
		return fmt.Errorf("append: %w (%d bytes)", lemi.ErrFrameLength, len(frame))
	}
	if err := l.rotate(local); err != nil {
		return err
	}
	stamp := EncodeStamp(local)
	rec := make([]byte, 0, RecordSize)
	rec = append(rec, frame...)
	rec = append(rec, stamp[:]...)
	if _, err := l.file.Write(rec); err != nil {
		return fmt.Errorf("could not write data to file: %w", err)
	}
	return nil
}

func (l *Log) rotate(local time.Time) error {
	day := local.UTC().Format("2006-01-02")
	if l.file != nil && day == l.day {
		return nil
	}
	if err := l.Close(); err != nil {
		return err
	}
	path := l.Path(local)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("open buffer file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("stat buffer file: %w", err)
	}
	if info.Size() == 0 {
		if _, err := io.WriteString(f, l.header); err != nil {
			f.Close()
			return fmt.Errorf("write buffer header: %w", err)
		}
	}
	l.file, l.day = f, day
	return nil
}

// Close flushes and closes the current file.
func (l *Log) Close() error {
	if l.file == nil {
		return nil
	}
	f := l.file
	l.file, l.day = nil, ""
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync buffer file: %w", err)
	}
	return f.Close()
}

// Record is one frame read back from a buffer file.
type Record struct {
	Frame    lemi.Frame
	Received time.Time
}

// ReadFile returns the header line and all complete records of a buffer file.
func ReadFile(path string) (string, []Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", nil, err
	}
	defer f.Close()

	r := bufio.NewReader(f)
	header, err := r.ReadString('\n')
	if err != nil {
		return "", nil, fmt.Errorf("read header: %w", err)
	}
	body, err := io.ReadAll(r)
	if err != nil {
		return header, nil, fmt.Errorf("read records: %w", err)
	}

	var recs []Record
	for len(body) >= RecordSize {
		rec := body[:RecordSize]
		received, err := DecodeStamp(rec[lemi.FrameSize:])
		if err != nil {
			return header, recs, err
		}
		recs = append(recs, Record{Frame: lemi.Frame(bytes.Clone(rec[:lemi.FrameSize])), Received: received})
		body = body[RecordSize:]
	}
	if len(body) > 0 {
		return header, recs, fmt.Errorf("%d trailing bytes", len(body))
	}
	return header, recs, nil
}
