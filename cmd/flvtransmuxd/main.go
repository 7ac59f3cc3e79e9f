// Package main is the entry point for flvtransmuxd, the FLV-to-fMP4
// transmuxing service.
package main

import (
	"os"

	"github.com/jmylchreest/flvtransmux/cmd/flvtransmuxd/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
