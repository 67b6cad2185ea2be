// The main package for the sourcer executable.
package main

import (
	"github.com/wadl-labs/candidate-sourcer/cmd"
)

func main() {
	cmd.Execute()
}
