package main

import (
	"os"

	"github.com/scan-io-git/autofix/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
