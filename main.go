package main

import (
	"os"

	"github.com/raihan/sela/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
