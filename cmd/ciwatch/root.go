package main

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/nomis52/ciwatch/config"
)

const (
	defaultConfigPath = "ciwatch.yaml"
	defaultEnvFile    = ".env"
)

type rootOptions struct {
	configPath string
	envFile    string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "ciwatch",
		Short:         "CI signal classification and regression alerting",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadEnvFile(opts.envFile)
		},
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", defaultConfigPath, "Path to config file")
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", defaultEnvFile, "Environment file loaded before the config, if present")

	root.AddCommand(
		ingestCmd(opts),
		evaluateCmd(opts),
		runCmd(opts),
		seedCmd(opts),
		validateCmd(opts),
		versionCmd(),
	)
	return root
}

// loadEnvFile exports the variables of path without overriding ones already
// set. A missing file is not an error.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

func (o *rootOptions) loadConfig() (config.Config, error) {
	cfg, err := config.LoadConfig(o.configPath)
	if err != nil {
		return cfg, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}
