// Command ipmutex demonstrates a named mutex shared between processes.
//
// Start it in several terminals with the same key; the first instance owns
// the shared memory object and stays alive after its first hold, waiting
// for `r` (hold again) or `q` (quit) so the others can still use the lock.
package main

import (
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
