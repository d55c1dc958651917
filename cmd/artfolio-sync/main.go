// Package main is the entrypoint for artfolio-sync.
package main

import (
	"context"
	"os"

	"github.com/artfolio/artfolio-sync/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
