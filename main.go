package main

import (
	"os"

	"etlpipe/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
