// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package aggregate

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/relabs-tech/lemi_streamer/internal/lemi"
)

const (
	fieldSep  = ","
	sampleSep = ";"
	// date/time columns followed by x,y,z,t1,t2,var1
	columns = 7 + 6
)

// Identity is the station and sensor description sent on the dict topic.
type Identity struct {
	SensorID     string
	StationID    string
	PierID       string
	Protocol     string
	Group        string
	Description  string
	TimeProtocol string
}

// FormatData renders samples in the MagPy line format:
// year,month,day,hour,minute,second,microsecond,x,y,z,t1,t2,var1 per sample,
// samples separated by ';'. Temperatures and voltage are sent in the scaled
// integer units announced by the metadata header (×100 and ×10).
func FormatData(samples []lemi.Sample) string {
	var b strings.Builder
	for i, s := range samples {
		if i > 0 {
			b.WriteString(sampleSep)
		}
		t := s.Time.UTC()
		fmt.Fprintf(&b, "%d,%d,%d,%d,%d,%d,%d", t.Year(), int(t.Month()), t.Day(),
			t.Hour(), t.Minute(), t.Second(), t.Nanosecond()/1000)
		for _, v := range []float64{s.X, s.Y, s.Z, math.Round(s.TempSensor * 100), math.Round(s.TempElec * 100), math.Round(s.VDD * 10)} {
			b.WriteString(fieldSep)
			b.WriteString(strconv.FormatFloat(v, 'f', -1, 64))
		}
	}
	return b.String()
}

// ParseData is the inverse of FormatData. GPS state is not part of the data
// line and comes back as unknown.
func ParseData(payload string) ([]lemi.Sample, error) {
	if payload == "" {
		return nil, nil
	}
	lines := strings.Split(payload, sampleSep)
	out := make([]lemi.Sample, 0, len(lines))
	for n, line := range lines {
		parts := strings.Split(line, fieldSep)
		if len(parts) != columns {
			return nil, fmt.Errorf("sample %d: %d columns, want %d", n, len(parts), columns)
		}
		var ints [7]int
		for i := range ints {
			v, err := strconv.Atoi(parts[i])
			if err != nil {
				return nil, fmt.Errorf("sample %d column %d: %w", n, i, err)
			}
			ints[i] = v
		}
		var vals [6]float64
		for i := range vals {
			v, err := strconv.ParseFloat(parts[7+i], 64)
			if err != nil {
				return nil, fmt.Errorf("sample %d column %d: %w", n, 7+i, err)
			}
			vals[i] = v
		}
		out = append(out, lemi.Sample{
			Time: time.Date(ints[0], time.Month(ints[1]), ints[2], ints[3], ints[4], ints[5],
				ints[6]*1000, time.UTC),
			X:          vals[0],
			Y:          vals[1],
			Z:          vals[2],
			TempSensor: vals[3] / 100,
			TempElec:   vals[4] / 100,
			VDD:        vals[5] / 10,
			GPS:        lemi.GPSUnknown,
		})
	}
	return out, nil
}

// FormatDict renders the identity message, including the current median
// delay between GPS and local time in seconds.
func FormatDict(id Identity, delay float64) string {
	return fmt.Sprintf("SensoriD:%s,StationID:%s,DataPier:%s,SensorModule:%s,SensorGroup:%s,SensorDecription:%s,DataTimeProtocol:%s,DataNTPTimeDelay:%s",
		id.SensorID, id.StationID, id.PierID, id.Protocol, id.Group, id.Description, id.TimeProtocol,
		strconv.FormatFloat(delay, 'f', -1, 64))
}
