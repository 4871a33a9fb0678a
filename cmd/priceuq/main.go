package main

import (
	"os"

	"github.com/estately/priceuq/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
