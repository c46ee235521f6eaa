// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package transport

import (
	"context"
	"fmt"
	"io"
	"time"

	serial "github.com/jacobsa/go-serial/serial"
	"github.com/rs/zerolog"
)

// SerialOptions describes the logger's serial line.
type SerialOptions struct {
	Port     string
	BaudRate uint
}

// Open opens the port in raw 8N1 mode. Reads return as soon as one byte is
// available.
func (o SerialOptions) Open() (io.ReadWriteCloser, error) {
	port, err := serial.Open(serial.OpenOptions{
		PortName:              o.Port,
		BaudRate:              o.BaudRate,
		DataBits:              8,
		StopBits:              1,
		MinimumReadSize:       1,
		ParityMode:            serial.PARITY_NONE,
		InterCharacterTimeout: 0,
	})
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", o.Port, err)
	}
	return port, nil
}

// Opener opens one connection to the logger.
type Opener func() (io.ReadWriteCloser, error)

// Run keeps a connection open until ctx is done, reopening it with backoff
// whenever it fails. Each connection is streamed to h.
func Run(ctx context.Context, open Opener, h Handler, log zerolog.Logger) error {
	return Serve(ctx, open, func(ctx context.Context, conn io.ReadWriteCloser) error {
		return Stream(ctx, conn, h)
	}, log)
}

// Serve is Run with a custom per-connection loop. serve must return once
// conn is closed.
func Serve(ctx context.Context, open Opener, serve func(context.Context, io.ReadWriteCloser) error, log zerolog.Logger) error {
	bo := newBackoff(DefaultBackoffInitial, DefaultBackoffMax)
	for {
		conn, err := open()
		if err != nil {
			log.Warn().Err(err).Dur("retry_in", bo.current).Msg("could not open connection")
			if !bo.Wait(ctx) {
				return ctx.Err()
			}
			continue
		}

		started := time.Now()
		stop := context.AfterFunc(ctx, func() { conn.Close() })
		err = serve(ctx, conn)
		stop()
		conn.Close()

		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warn().Err(err).Dur("uptime", time.Since(started)).Msg("connection lost")
		if time.Since(started) > DefaultBackoffMax {
			bo.Reset()
		}
		if !bo.Wait(ctx) {
			return ctx.Err()
		}
	}
}
