package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	// Provider home zones must resolve on hosts without a zoneinfo database.
	_ "time/tzdata"

	"github.com/cleared-dev/banksync/internal/commands"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := commands.NewRootCommand().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
