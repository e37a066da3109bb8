package main

import (
	"os"

	"cilia/cmd/cilia/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
