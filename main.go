package main

import (
	"os"

	"github.com/osmstore-go/osmstore/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
