// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package gps

import "time"

// Fix is the latest RMC fix from the reference receiver.
type Fix struct {
	Time      time.Time `json:"time"`     // UTC time of the fix
	Received  time.Time `json:"received"` // host time the sentence arrived
	Latitude  float64   `json:"lat"`      // decimal degrees
	Longitude float64   `json:"lon"`      // decimal degrees
	Validity  string    `json:"validity"` // "A" (valid) / "V" (void)
}
