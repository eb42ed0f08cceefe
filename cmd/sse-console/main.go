package main

import (
	"context"
	"fmt"
	"os"

	"github.com/azaruiz94/sse-web/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "sse-console:", err)
		os.Exit(1)
	}
}
