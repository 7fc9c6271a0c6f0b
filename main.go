// The main package for the esrb-tool executable.
package main

import (
	"github.com/benlen10/esrb-tool-v2/cmd"
)

func main() {
	cmd.Execute()
}
