// Package main provides the entry point for labeltool.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"labeltool/internal/cli"
	"labeltool/internal/config"
	"labeltool/internal/logging"
	"labeltool/internal/version"
)

func main() {
	cfg, err := config.Load(os.Getenv("LABELTOOL_CONFIG_DIR"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading config: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := cli.RootCommand(&cli.Context{Config: cfg})
	root.Version = version.String()

	err = root.ExecuteContext(ctx)
	_ = logging.Close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
