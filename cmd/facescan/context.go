package main

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"facescan/internal/config"
	"facescan/internal/ipc"
)

type commandContext struct {
	socketFlag *string
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(socketFlag, configFlag *string) *commandContext {
	return &commandContext{
		socketFlag: socketFlag,
		configFlag: configFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// requestsPath is the --socket flag when set, otherwise the configured
// requests endpoint.
func (c *commandContext) requestsPath() (string, error) {
	if c.socketFlag != nil {
		if flag := strings.TrimSpace(*c.socketFlag); flag != "" {
			return flag, nil
		}
	}
	cfg, err := c.ensureConfig()
	if err != nil {
		return "", err
	}
	path, _ := cfg.Endpoints().Lookup(ipc.PortRequests)
	return path, nil
}

// notifyPath is the configured requester notice endpoint.
func (c *commandContext) notifyPath() (string, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return "", err
	}
	path, ok := cfg.Endpoints().Lookup(ipc.PortNotify)
	if !ok {
		return "", errors.New("sockets.notify is disabled; completion notices are not delivered")
	}
	return path, nil
}

func wrapDialError(err error, socket string) error {
	if errors.Is(err, ipc.ErrTransport) {
		return fmt.Errorf("connect to daemon: socket %s unavailable; start the daemon with `facescan daemon`: %w", socket, err)
	}
	return fmt.Errorf("connect to daemon: %w", err)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
