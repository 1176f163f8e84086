package main

import (
	"os"

	"github.com/dl-alexandre/gdfetch/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
