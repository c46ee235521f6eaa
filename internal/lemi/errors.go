// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package lemi

import (
	"errors"
	"fmt"
)

// ErrFrameLength is returned when a record is not exactly FrameSize bytes.
var ErrFrameLength = errors.New("unexpected record length")

// DecodeError is returned when a frame does not unpack to a plausible record.
// The caller skips the frame and carries on with the next one.
type DecodeError struct {
	Stage string // "unpack" or "calendar"
	What  string
	Err   error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode %s: %s: %v", e.Stage, e.What, e.Err)
	}
	return fmt.Sprintf("decode %s: %s", e.Stage, e.What)
}

func (e *DecodeError) Unwrap() error { return e.Err }
