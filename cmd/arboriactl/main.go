// Command arboriactl runs inventory maintenance tasks against the configured
// store: export, import, statistics and archives.
package main

import (
	"fmt"
	"os"
)

var exitFunc = os.Exit

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "arboriactl:", err)
		exitFunc(1)
	}
}
