// The main package for the attraction-crawler executable.
package main

import (
	"github.com/JakeFAU/attraction-crawler/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
