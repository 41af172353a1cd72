package main

import (
	"os"

	"github.com/bryan-buckman/turfcollector/internal/cli"
)

func main() {
	os.Exit(cli.Execute(os.Args[1:]))
}
