// Package main is the entry point for the shopgate gateway.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/agentshop/shopgate/cmd/shopgate/app"
	"github.com/agentshop/shopgate/pkg/logger"
)

func main() {
	logger.Initialize()

	// Create a context that will be canceled on signal
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	defer cancel()

	if err := app.NewRootCmd().ExecuteContext(ctx); err != nil {
		logger.Errorf("error executing command: %v", err)
		os.Exit(1)
	}
}
