// Command ovc is the ontology version control CLI.
package main

import (
	"os"

	"github.com/ovclabs/ovc/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
