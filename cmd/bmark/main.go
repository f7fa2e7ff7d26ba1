package main

import (
	"os"

	"github.com/XiaoConstantine/bmark/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
