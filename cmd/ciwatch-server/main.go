// Command ciwatch-server runs ciwatch as a service: cron triggered runs plus
// an HTTP API for status, history and manual runs.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/nomis52/ciwatch/server"
	serverconfig "github.com/nomis52/ciwatch/server/config"
)

type Args struct {
	ConfigPath string
	EnvFile    string
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	args := parseArgs()

	if args.ConfigPath == "" {
		return fmt.Errorf("config flag (-c or --config) is required")
	}
	if args.EnvFile != "" {
		if err := godotenv.Load(args.EnvFile); err != nil {
			return fmt.Errorf("failed to load env file: %w", err)
		}
	}

	srvCfg, err := serverconfig.LoadConfig(args.ConfigPath)
	if err != nil {
		return fmt.Errorf("failed to load server config: %w", err)
	}

	srv, err := server.New(srvCfg)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		srv.Logger().Info("received signal, shutting down")
	}()

	return srv.Run(ctx)
}

func parseArgs() Args {
	configPath := flag.String("config", "", "Path to server config file")
	configPathShort := flag.String("c", "", "Path to server config file (shorthand)")
	envFile := flag.String("env-file", "", "Environment file loaded before the config")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nciwatch server - CI regression alerting service\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s --config /etc/ciwatch/server.yaml\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -c server.yaml --env-file .env\n", os.Args[0])
	}

	flag.Parse()

	path := *configPath
	if path == "" && *configPathShort != "" {
		path = *configPathShort
	}

	return Args{
		ConfigPath: path,
		EnvFile:    *envFile,
	}
}
