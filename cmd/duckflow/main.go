package main

import (
	"os"

	"duckflow/pkg/cli"
)

func main() {
	os.Exit(cli.Execute())
}
