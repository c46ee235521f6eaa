// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package lemi

import (
	"bytes"
	"fmt"

	"github.com/rs/zerolog"
)

// ReassemblerStats counts what a Reassembler has emitted and thrown away.
type ReassemblerStats struct {
	Frames         uint64
	DiscardedBytes uint64
	Resyncs        uint64
	Failures       uint64
}

// feedHook, when set, sees the pending buffer after each append. Tests use it
// to fail inside Feed.
var feedHook func(pending []byte)

// Reassembler recovers aligned frames from an unframed byte stream.
//
// A Reassembler belongs to exactly one connection. Feed must not be called
// concurrently.
type Reassembler struct {
	tag     Tag
	pending []byte
	stats   ReassemblerStats
	log     zerolog.Logger
}

// NewReassembler returns a Reassembler that aligns on tag.
func NewReassembler(tag Tag, log zerolog.Logger) *Reassembler {
	return &Reassembler{
		tag:     tag,
		pending: make([]byte, 0, 2*FrameSize),
		log:     log.With().Str("component", "reassembler").Logger(),
	}
}

// Pending returns the number of buffered bytes not yet emitted.
func (r *Reassembler) Pending() int { return len(r.pending) }

// Stats returns a copy of the running counters.
func (r *Reassembler) Stats() ReassemblerStats { return r.stats }

// Reset drops any partial frame. Called on disconnect.
func (r *Reassembler) Reset() {
	if len(r.pending) > 0 {
		r.log.Debug().Int("bytes", len(r.pending)).Msg("discarding partial frame")
	}
	r.pending = r.pending[:0]
}

// Feed appends chunk to the pending buffer and returns every complete frame
// that can be cut from it, in arrival order. Misaligned bytes are dropped and
// logged. A non-nil error means processing failed unexpectedly; the pending
// buffer has then been cleared and frames holds whatever was cut before the
// failure.
func (r *Reassembler) Feed(chunk []byte) (frames []Frame, err error) {
	defer func() {
		if p := recover(); p != nil {
			r.stats.Failures++
			r.pending = r.pending[:0]
			err = fmt.Errorf("reassembler: %v", p)
			r.log.Error().Err(err).Msg("error while parsing data, buffer cleared")
		}
	}()

	r.pending = append(r.pending, chunk...)
	if feedHook != nil {
		feedHook(r.pending)
	}
	buf := r.pending

	for len(buf) > 0 {
		if !bytes.HasPrefix(buf, r.tag) {
			idx := r.index(buf, 1)
			if idx < 0 {
				keep := r.partialTagSuffix(buf)
				if dropped := len(buf) - keep; dropped > 0 {
					r.discard(dropped, "no header found, deleting buffer")
				}
				buf = buf[len(buf)-keep:]
				break
			}
			r.discard(idx, "incorrect header, bad data deleted")
			buf = buf[idx:]
			continue
		}

		if len(buf) < FrameSize {
			break
		}
		if len(buf) == FrameSize {
			frames = append(frames, r.cut(buf))
			buf = buf[FrameSize:]
			break
		}

		// Several aligned frames arrived at once.
		if len(buf)%FrameSize == 0 {
			n := r.alignedRun(buf)
			for i := 0; i < n; i++ {
				frames = append(frames, r.cut(buf))
				buf = buf[FrameSize:]
			}
			if len(buf) == 0 {
				break
			}
			r.stats.Resyncs++
			r.log.Debug().Int("parts", n).Int("remaining", len(buf)).Msg("aligned run interrupted, resyncing")
			continue
		}

		next := buf[FrameSize:]
		if bytes.HasPrefix(next, r.tag) || (len(next) < len(r.tag) && bytes.HasPrefix(r.tag, next)) {
			frames = append(frames, r.cut(buf))
			buf = next
			continue
		}

		idx := r.index(buf, resyncOffset)
		switch {
		case idx < 0:
			frames = append(frames, r.cut(buf))
			rest := buf[FrameSize:]
			keep := r.partialTagSuffix(rest)
			r.discard(len(rest)-keep, "no header found after frame, deleting trailing data")
			buf = rest[len(rest)-keep:]
		case idx >= FrameSize:
			frames = append(frames, r.cut(buf))
			buf = buf[FrameSize:]
		default:
			r.discard(idx, "string contains bad data, deleting")
			buf = buf[idx:]
		}
	}

	r.compact(buf)
	return frames, nil
}

// alignedRun returns how many consecutive 153-byte slices at the front of buf
// start with the tag.
func (r *Reassembler) alignedRun(buf []byte) int {
	n := 0
	for off := 0; off+FrameSize <= len(buf); off += FrameSize {
		if !bytes.HasPrefix(buf[off:], r.tag) {
			break
		}
		n++
	}
	return n
}

// index finds the tag at or after offset from, or -1.
func (r *Reassembler) index(buf []byte, from int) int {
	if from >= len(buf) {
		return -1
	}
	idx := bytes.Index(buf[from:], r.tag)
	if idx < 0 {
		return -1
	}
	return idx + from
}

// partialTagSuffix returns the length of the longest proper tag prefix that
// ends buf, so a tag split across two chunks survives a discard.
func (r *Reassembler) partialTagSuffix(buf []byte) int {
	for n := len(r.tag) - 1; n > 0; n-- {
		if n <= len(buf) && bytes.Equal(buf[len(buf)-n:], r.tag[:n]) {
			return n
		}
	}
	return 0
}

func (r *Reassembler) cut(buf []byte) Frame {
	f := make(Frame, FrameSize)
	copy(f, buf[:FrameSize])
	r.stats.Frames++
	return f
}

func (r *Reassembler) discard(n int, msg string) {
	if n <= 0 {
		return
	}
	r.stats.DiscardedBytes += uint64(n)
	r.log.Warn().Int("bytes", n).Msg(msg)
}

// compact moves the unconsumed tail to the front of the pending buffer.
func (r *Reassembler) compact(rest []byte) {
	n := copy(r.pending, rest)
	r.pending = r.pending[:n]
}
