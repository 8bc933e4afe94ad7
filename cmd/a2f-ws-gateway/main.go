// a2f-ws-gateway serves the WebSocket inference gateway: it accepts audio
// over WebSocket and streams back binary blendshape-weight frames produced
// by a pool of pre-warmed executor slots.
//
// Usage:
//
//	a2f-ws-gateway serve --model model.json --port 8765
package main

import (
	"os"

	"github.com/a2fsdk/inference-gateway/cmd/a2f-ws-gateway/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
