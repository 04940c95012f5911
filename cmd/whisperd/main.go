package main

import (
	"context"
	"fmt"
	"os"

	"github.com/781574155/use-whisper/cmd/whisperd/commands"
)

func main() {
	if err := commands.Root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
