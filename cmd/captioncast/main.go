package main

import (
	"os"

	"github.com/captioncast/captioncast/internal/cli"
)

func main() {
	os.Exit(cli.ExecuteWithErrorCode(os.Args[1:]))
}
