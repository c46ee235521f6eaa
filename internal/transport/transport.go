// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package transport delivers raw byte chunks from the logger, one connection
// at a time, to a Handler.
package transport

import (
	"context"
	"errors"
	"io"
)

// Handler receives the events of one connection. Calls are serialized: no two
// methods run at the same time, and OnBytes is never called outside an
// OnConnect/OnDisconnect pair.
type Handler interface {
	OnConnect()
	OnBytes(chunk []byte)
	OnDisconnect(reason error)
}

// ReadSize is the buffer size of a single read.
const ReadSize = 4096

// Stream reads r until it fails or ctx is done, passing every chunk to h.
// The chunk slice is only valid during the call. Stream calls OnConnect first
// and OnDisconnect last.
func Stream(ctx context.Context, r io.Reader, h Handler) error {
	h.OnConnect()
	buf := make([]byte, ReadSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			h.OnBytes(buf[:n])
		}
		if cerr := ctx.Err(); cerr != nil {
			err = cerr
		}
		if err != nil {
			h.OnDisconnect(err)
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}
