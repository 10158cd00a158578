package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Go-routine-4595/sensorhub/config"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:           "sensorhub",
		Short:         "IoT sensor ingestion, live feed and analytics",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to the YAML configuration")

	root.AddCommand(
		newServeCmd(),
		newSimulateCmd(),
		newWatchCmd(),
		newHashPasswordCmd(),
		newValidateCmd(),
	)

	if err := root.Execute(); err != nil {
		processError(err)
	}
}

func loadConfig() *config.Config {
	conf, err := config.Load(configPath)
	if err != nil {
		processError(err)
	}
	return conf
}

// signalContext is canceled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sig:
		case <-ctx.Done():
		}
		signal.Stop(sig)
		cancel()
	}()
	return ctx, cancel
}

func processError(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(2)
}
