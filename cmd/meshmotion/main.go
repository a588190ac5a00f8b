// Command meshmotion runs mesh-deformation and coupled driver configurations
// on in-process ranks
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
