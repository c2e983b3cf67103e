package main

import (
	"os"

	"github.com/user/news-ingest/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
