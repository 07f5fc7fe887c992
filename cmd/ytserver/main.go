package main

import (
	"os"

	"github.com/suzxlabs/ytserver/cmd/ytserver/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
