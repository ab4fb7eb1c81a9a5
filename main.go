// Command tfpsim at the module root only points at the real CLI in
// ./cmd/tfpsim.
package main

import (
	"fmt"
	"os"
)

func main() {
	fmt.Fprintln(os.Stderr, "tfpsim: the emulator lives in ./cmd/tfpsim, try 'go run ./cmd/tfpsim run --help'")
	if len(os.Args) > 1 {
		os.Exit(2)
	}
}
