package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/searchktools/surge-server/app"
	"github.com/searchktools/surge-server/config"
)

func main() {
	cfg := config.New()

	root := &cobra.Command{
		Use:   "surge-server <port> <root-directory>",
		Short: "Epoll-based HTTP/1.x file server with a fixed worker pool",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			port, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid port %q: %w", args[0], err)
			}
			cfg.Port = port
			cfg.Root = args[1]

			a, err := app.New(cfg)
			if err != nil {
				return err
			}
			return a.Run()
		},
		SilenceUsage: true,
	}

	flags := root.Flags()
	flags.IntVar(&cfg.Workers, "workers", cfg.Workers, "worker goroutines")
	flags.IntVar(&cfg.QueueSize, "queue-size", cfg.QueueSize, "worker task queue capacity")
	flags.IntVar(&cfg.IdleTimeoutMs, "idle-timeout-ms", cfg.IdleTimeoutMs, "idle connection timeout in milliseconds")
	flags.IntVar(&cfg.MaxEvents, "max-events", cfg.MaxEvents, "events returned by a single poller wait")
	flags.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "address for the /metrics endpoint, empty to disable")
	flags.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	flags.BoolVar(&cfg.LogJSON, "log-json", cfg.LogJSON, "log in JSON format")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
