package main

import (
	"os"

	"github.com/harunnryd/tintuc/cmd/tintuc/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
