// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"github.com/relabs-tech/lemi_streamer/internal/app"
	"github.com/relabs-tech/lemi_streamer/internal/cli"
)

func main() {
	cli.Execute(cli.NewCommand(
		"lemi_producer",
		"Stream a LEMI-025/036 magnetometer logger to MQTT (serial -> MQTT)",
		"Reads 153-byte binary records from the logger's serial line, writes daily\nbuffer files and publishes MagPy data, dict and meta messages.",
		app.RunProducer,
	))
}
