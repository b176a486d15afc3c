// The main package for the rankscope executable.
package main

import "github.com/rankscope/rankscope/cmd"

func main() {
	cmd.Execute()
}
