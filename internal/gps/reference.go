// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package gps turns a separate NMEA GPS receiver into a reference clock for
// the drift check. Without one, the host clock is used.
package gps

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	nmea "github.com/adrianmo/go-nmea"
	"github.com/rs/zerolog"
)

// MaxFixAge is how long a fix keeps steering the clock without a new one.
const MaxFixAge = 5 * time.Second

// ReferenceClock reports time as last seen by an NMEA receiver, advanced by
// the host's monotonic clock since that sentence arrived.
type ReferenceClock struct {
	mu   sync.RWMutex
	fix  Fix
	mono time.Time // time.Now() at arrival, monotonic reading kept
	have bool

	now func() time.Time
	log zerolog.Logger
}

func NewReferenceClock(log zerolog.Logger) *ReferenceClock {
	return &ReferenceClock{
		now: time.Now,
		log: log.With().Str("component", "gps-reference").Logger(),
	}
}

// Now returns the reference time, or host UTC time when there is no recent
// valid fix.
func (c *ReferenceClock) Now() time.Time {
	now := c.now()
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.have || now.Sub(c.mono) > MaxFixAge {
		return now.UTC()
	}
	return c.fix.Time.Add(now.Sub(c.mono))
}

// Last returns the latest valid fix.
func (c *ReferenceClock) Last() (Fix, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.fix, c.have
}

// HandleSentence parses one NMEA line. Only valid RMC sentences update the
// clock; other sentence types are ignored.
func (c *ReferenceClock) HandleSentence(line string) error {
	received := c.now()
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "$") {
		return nil
	}
	sentence, err := nmea.Parse(line)
	if err != nil {
		return fmt.Errorf("nmea parse: %w", err)
	}
	if sentence.DataType() != nmea.TypeRMC {
		return nil
	}
	m := sentence.(nmea.RMC)
	if m.Validity != nmea.ValidRMC || !m.Date.Valid || !m.Time.Valid {
		return nil
	}
	fix := Fix{
		Time: time.Date(2000+m.Date.YY, time.Month(m.Date.MM), m.Date.DD,
			m.Time.Hour, m.Time.Minute, m.Time.Second, m.Time.Millisecond*int(time.Millisecond), time.UTC),
		Received:  received.UTC(),
		Latitude:  m.Latitude,
		Longitude: m.Longitude,
		Validity:  m.Validity,
	}

	c.mu.Lock()
	first := !c.have
	c.fix, c.mono, c.have = fix, received, true
	c.mu.Unlock()

	if first {
		c.log.Info().Time("fix", fix.Time).Float64("lat", fix.Latitude).Float64("lon", fix.Longitude).Msg("reference clock locked")
	}
	return nil
}

// Run reads NMEA lines from r until it fails or ctx is done.
func (c *ReferenceClock) Run(ctx context.Context, r io.Reader) error {
	reader := bufio.NewReader(r)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		line, err := reader.ReadString('\n')
		if line != "" {
			if perr := c.HandleSentence(line); perr != nil {
				// noisy receivers emit partial sentences
				c.log.Debug().Err(perr).Str("line", strings.TrimSpace(line)).Msg("skipping sentence")
			}
		}
		if err != nil {
			return err
		}
	}
}
