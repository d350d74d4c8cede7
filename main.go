package main

import (
	"os"

	"github.com/bytelox/bytelox/cmd"
)

func main() {
	if err := cmd.App().Execute(); err != nil {
		os.Exit(1)
	}
}
