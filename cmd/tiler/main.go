// Command tiler ingests colored vector layers and serves them as XYZ PNG
// tiles.
package main

import "os"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
