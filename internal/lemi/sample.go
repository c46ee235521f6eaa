// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package lemi

import (
	"fmt"
	"time"
)

// GPSState is the logger's GPS fix indicator.
type GPSState byte

const (
	GPSActive  GPSState = 'A'
	GPSPassive GPSState = 'P'
	GPSUnknown GPSState = '?'
)

func (s GPSState) String() string { return string(rune(s)) }

// Valid reports whether s is one of the two states the logger sends.
func (s GPSState) Valid() bool { return s == GPSActive || s == GPSPassive }

// Sample is one 10 Hz reading.
type Sample struct {
	Time time.Time // GPS time, UTC

	X float64 // nT
	Y float64 // nT
	Z float64 // nT

	TempSensor float64 // °C
	TempElec   float64 // °C
	VDD        float64 // V

	GPS GPSState
}

// MetadataHeader describes the published data format for one sensor.
type MetadataHeader string

const (
	// PackCode is the binary layout of one record.
	PackCode = "<4cB6B8hb30f3BcB"

	sendKeys   = "[x,y,z,t1,t2,var1]"
	sendNames  = "[X,Y,Z,T_sensor,T_elec,VDD]"
	sendUnits  = "[nT,nT,nT,deg_C,deg_C,V]"
	sendFactor = "[0.001,0.001,0.001,100,100,10]"
)

// HeaderFor returns the metadata header published alongside data for sensorID.
func HeaderFor(sensorID string) MetadataHeader {
	return MetadataHeader(fmt.Sprintf("# MagPyBin %s %s %s %s %s %s %d\n",
		sensorID, sendKeys, sendNames, sendUnits, sendFactor, PackCode, FrameSize))
}
