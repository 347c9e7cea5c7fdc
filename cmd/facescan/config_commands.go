package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"facescan/internal/config"
	"facescan/internal/ipc"
)

func newConfigCommand(ctx *commandContext) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration utilities",
	}
	configCmd.AddCommand(newConfigValidateCommand(ctx))
	configCmd.AddCommand(newConfigInitCommand())
	return configCmd
}

func newConfigInitCommand() *cobra.Command {
	var targetPath string
	var overwrite bool

	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Create a sample configuration file",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			target, err := initTarget(targetPath)
			if err != nil {
				return err
			}
			if _, err := os.Stat(target); err == nil && !overwrite {
				return fmt.Errorf("config file already exists at %s (use --overwrite to replace it)", target)
			} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("check config path: %w", err)
			}
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return fmt.Errorf("create config directory: %w", err)
			}
			if err := config.CreateSample(target); err != nil {
				return fmt.Errorf("create sample config: %w", err)
			}

			cfg, _, _, err := config.Load(target)
			if err != nil {
				return fmt.Errorf("sample config does not load: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Wrote sample configuration to %s\n", target)
			fmt.Fprintf(out, "Catalog:   %s\n", cfg.CatalogPath())
			printEndpoints(out, cfg)
			fmt.Fprintln(out, "Set detect.cascade_path to a pigo facefinder cascade to enable face detection.")
			return nil
		},
	}

	cmd.Flags().StringVarP(&targetPath, "path", "p", "", "Destination for the configuration file")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Overwrite existing configuration if present")
	return cmd
}

// initTarget resolves --path, falling back to the per-user config location.
func initTarget(flag string) (string, error) {
	if flag = strings.TrimSpace(flag); flag == "" {
		path, err := config.DefaultConfigPath()
		if err != nil {
			return "", fmt.Errorf("determine default config path: %w", err)
		}
		return path, nil
	}
	path, err := config.ExpandPath(flag)
	if err != nil {
		return "", fmt.Errorf("resolve config path: %w", err)
	}
	return path, nil
}

func newConfigValidateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:         "validate",
		Short:       "Validate the configuration file",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var path string
			if ctx.configFlag != nil {
				path = strings.TrimSpace(*ctx.configFlag)
			}
			cfg, resolved, exists, err := config.Load(path)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := cfg.EnsureDirectories(); err != nil {
				return fmt.Errorf("ensure directories: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Config path: %s\n", resolved)
			if !exists {
				fmt.Fprintln(out, "Config file did not exist; defaults were used")
			}
			printEndpoints(out, cfg)
			fmt.Fprintln(out, "Configuration valid")
			return nil
		},
	}
}

// printEndpoints lists the socket layout, one port per line.
func printEndpoints(out io.Writer, cfg *config.Config) {
	endpoints := cfg.Endpoints()
	for _, port := range []ipc.Port{ipc.PortRequests, ipc.PortServer, ipc.PortWorker, ipc.PortNotify} {
		socket, ok := endpoints.Lookup(port)
		if !ok {
			socket = "(disabled)"
		}
		fmt.Fprintf(out, "%-10s %s\n", port.String()+":", socket)
	}
}
