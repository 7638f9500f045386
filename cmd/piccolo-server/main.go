// Command piccolo-server runs the Piccolo instrument controller: it
// loads configuration, wires the shutter/spectrometer/controller/
// scheduler/writer components together, exposes them over HTTP (the
// in-process stand-in for the CoAP transport spec.md scopes out), and
// blocks until an interrupt or terminate signal asks it to shut down.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := RootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
