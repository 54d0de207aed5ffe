// Command clause validates, inspects and renders document templates and
// manages a local template library.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
