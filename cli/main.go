package main

import "github.com/BioHazard786/pairlink/cli/cmd"

func main() {
	cmd.Execute()
}
