// Command viewflex keeps AI chat conversations wide: it runs the daemon that
// drives Chrome, widens saved pages offline and edits the per-site widths.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
