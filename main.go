// The main package for the vintedwatch executable.
package main

import "github.com/mhorvath/vintedwatch/cmd"

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
