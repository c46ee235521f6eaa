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
		"lemi_pusher",
		"Relay MQTT messages to browsers over WebSocket",
		"",
		app.RunPusher,
	))
}
