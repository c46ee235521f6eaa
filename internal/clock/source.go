// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package clock

import "time"

// Source provides the local receive time.
type Source interface {
	Now() time.Time
}

// System is the host clock in UTC.
type System struct{}

func (System) Now() time.Time { return time.Now().UTC() }
