// Command cadence scores English speaking practice from recordings and
// transcripts.
//
//	cadence serve --config config.yaml
//	cadence analyze clip.wav
//	cadence score transcript.json --output text
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "cadence: %v\n", err)
		os.Exit(1)
	}
}
