// The main package for the chapterd executable.
package main

import (
	"github.com/mangafold/chapterd/cmd"
)

func main() {
	cmd.Execute()
}
