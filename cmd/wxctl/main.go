// Wxctl runs one-off alert checks and inspects the stored alert state.
package main

import (
	"fmt"
	"os"

	"github.com/linnemanlabs/wxalerts/internal/ctl"
)

func main() {
	if err := ctl.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
