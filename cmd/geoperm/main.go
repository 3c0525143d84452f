package main

import "github.com/plumekit/geoperm/internal/cli/cmd"

func main() {
	cmd.Execute()
}
