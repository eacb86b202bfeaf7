// Poolbridge connects a Pentair ScreenLogic pool controller to Gray Logic.
//
// Run as a daemon it keeps a latest-state catalogue of the pool devices in
// SQLite, publishes device states and health over MQTT and accepts switch
// commands from the broker. The one-shot subcommands talk to the controller
// directly and print the result.
//
// Usage:
//
//	poolbridge run                 # daemon
//	poolbridge get 505             # circuit state
//	poolbridge set 505 1           # switch a circuit on
//	poolbridge data --format yaml  # full controller snapshot
//	poolbridge json                # flat device export
//	poolbridge simulate            # local fake controller
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/nerrad567/gray-logic-pool/migrations" // Register embedded migrations
)

// Build-time variables (set via -ldflags).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// defaultConfigPath is the default location of the configuration file.
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Create context that cancels on SIGINT or SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		cancel()
		os.Exit(1) //nolint:gocritic // cancel called explicitly above
	}
}

// getConfigPath returns the configuration file path.
// Uses GRAYLOGIC_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("GRAYLOGIC_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
