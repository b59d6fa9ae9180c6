package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/reviewguard/engine/internal/cli"
	"github.com/reviewguard/engine/internal/redaction"
)

// version is stamped at build time via -ldflags.
var version = "dev"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	root := cli.NewRootCommand(version)
	if err := root.ExecuteContext(ctx); err != nil {
		log.Println(redaction.RedactURLSecrets(err.Error()))
		os.Exit(1)
	}
}
