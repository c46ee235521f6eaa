// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package clock cross-checks the logger's GPS clock against the local receive
// clock.
//
// GPS time is always what gets published. The local clock is only used to
// estimate the transport delay and to warn when the two drift apart.
package clock

import (
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/relabs-tech/lemi_streamer/internal/lemi"
)

const (
	// StateWindow is how many GPS-state observations the majority vote covers.
	StateWindow = 10
	// DelayWindow is how many delay measurements the median covers.
	DelayWindow = 1000
	// MinDelaySamples is how many delays must be collected before a median is reported.
	MinDelaySamples = 100

	// DefaultTransportOffset is the typical delay between GPS time and serial
	// arrival for LEMI loggers.
	DefaultTransportOffset = 2304 * time.Millisecond
	// DefaultThreshold is the corrected divergence that counts as an anomaly.
	DefaultThreshold = 3 * time.Second
)

// Annotation is the reconciler's view after one observation.
type Annotation struct {
	State        lemi.GPSState // majority of the recent observations
	StateChanged bool
	Delay        float64 // |gps - local| in seconds
	MedianDelay  float64 // 0 until enough delays were collected
	Anomaly      bool
	AnomalyRun   int // consecutive observations above threshold
}

// Options tunes a Reconciler. Zero values select the defaults.
type Options struct {
	TransportOffset time.Duration
	Threshold       time.Duration
}

// Reconciler holds the clock state of one connection. It is not safe for
// concurrent use.
type Reconciler struct {
	offset    float64
	threshold float64

	states  *ring[lemi.GPSState]
	delays  *ring[float64]
	scratch []float64

	current    lemi.GPSState
	median     float64
	anomalyRun int
	anomalies  uint64
	log        zerolog.Logger
}

func NewReconciler(opts Options, log zerolog.Logger) *Reconciler {
	if opts.TransportOffset == 0 {
		opts.TransportOffset = DefaultTransportOffset
	}
	if opts.Threshold == 0 {
		opts.Threshold = DefaultThreshold
	}
	return &Reconciler{
		offset:    opts.TransportOffset.Seconds(),
		threshold: opts.Threshold.Seconds(),
		states:    newRing[lemi.GPSState](StateWindow),
		delays:    newRing[float64](DelayWindow),
		scratch:   make([]float64, 0, DelayWindow),
		current:   lemi.GPSUnknown,
		log:       log.With().Str("component", "clock").Logger(),
	}
}

// State returns the current majority GPS state.
func (r *Reconciler) State() lemi.GPSState { return r.current }

// MedianDelay returns the latest median delay estimate in seconds.
func (r *Reconciler) MedianDelay() float64 { return r.median }

// Anomalies returns how many observations exceeded the threshold in total.
func (r *Reconciler) Anomalies() uint64 { return r.anomalies }

// Observe records one frame's GPS state and time against the local receive time.
func (r *Reconciler) Observe(state lemi.GPSState, gpsTime, localTime time.Time) Annotation {
	r.states.Push(state)
	majority := r.majority()
	ann := Annotation{State: majority}
	if majority != r.current {
		ann.StateChanged = true
		r.log.Info().Stringer("from", r.current).Stringer("to", majority).Msg("GPS state changed")
		r.current = majority
	}

	delta := math.Abs(gpsTime.Sub(localTime).Seconds())
	ann.Delay = delta
	if delta != 0 && !math.IsNaN(delta) {
		r.delays.Push(delta)
	}
	if r.delays.Len() > MinDelaySamples {
		r.median = r.computeMedian()
	}
	ann.MedianDelay = r.median

	if delta-r.offset > r.threshold {
		r.anomalyRun++
		r.anomalies++
		ann.Anomaly = true
		if r.anomalyRun == 1 {
			r.log.Warn().
				Float64("delay_s", delta).
				Float64("offset_s", r.offset).
				Time("gps", gpsTime).
				Time("local", localTime).
				Msg("large time difference between GPS and local clock")
		}
	} else {
		r.anomalyRun = 0
	}
	ann.AnomalyRun = r.anomalyRun
	return ann
}

// Reset forgets all observations.
func (r *Reconciler) Reset() {
	r.states.Reset()
	r.delays.Reset()
	r.current = lemi.GPSUnknown
	r.median = 0
	r.anomalyRun = 0
}

// majority returns the most frequent state in the window. Ties go to the
// value seen first.
func (r *Reconciler) majority() lemi.GPSState {
	best, bestCount := lemi.GPSUnknown, 0
	for i := 0; i < r.states.Len(); i++ {
		v := r.states.At(i)
		c := 0
		for j := 0; j < r.states.Len(); j++ {
			if r.states.At(j) == v {
				c++
			}
		}
		if c > bestCount {
			best, bestCount = v, c
		}
	}
	return best
}

func (r *Reconciler) computeMedian() float64 {
	r.scratch = r.delays.AppendTo(r.scratch[:0])
	return Median(r.scratch)
}

// Median sorts values in place and returns their median, averaging the two
// middle elements of an even-length slice.
func Median(values []float64) float64 {
	n := len(values)
	if n == 0 {
		return 0
	}
	sort.Float64s(values)
	if n%2 == 1 {
		return values[n/2]
	}
	return (values[n/2-1] + values[n/2]) / 2
}
