// Package main is the entry point for the sheetbase CLI binary.
package main

import (
	"os"

	cli "sheetbase/pkg/cli"
)

func main() {
	os.Exit(cli.Execute())
}
