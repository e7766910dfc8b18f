package main

import (
	"os"

	"insight/cmd/cli"
	"insight/internal/logger"
)

func main() {
	logger.Init()
	os.Exit(cli.Execute())
}
