// Command chatpipe is an interactive streaming chat client.
package main

import (
	"os"

	"github.com/hupe1980/chatpipe/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
