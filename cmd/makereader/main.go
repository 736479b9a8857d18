package main

import (
	"os"

	"github.com/ppiankov/makereader/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
