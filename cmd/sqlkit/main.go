package main

import (
	"os"

	"github.com/tylerbarker/sql-kit/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
