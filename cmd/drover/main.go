package main

import (
	"os"

	"github.com/drover-sh/drover/internal/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
