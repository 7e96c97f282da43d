package main

import (
	"os"

	"github.com/strixlabs/strix-anomaly/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
