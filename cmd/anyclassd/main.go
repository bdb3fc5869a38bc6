// anyclassd is the AnyClass daemon: it serves the operation API over HTTP
// and WebSocket and ships an interactive console for issuing operations by
// hand.
package main

import "os"

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
