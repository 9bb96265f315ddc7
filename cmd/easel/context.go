package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"

	"easel/internal/config"
	"easel/internal/ipc"
)

const skipConfigAnnotation = "skipConfigLoad"

// commandContext carries the persistent flags and the lazily loaded
// configuration shared by every subcommand.
type commandContext struct {
	socketFlag string
	configFlag string

	loadConfig func() (*config.Config, error)
}

func newCommandContext() *commandContext {
	c := &commandContext{}
	c.loadConfig = sync.OnceValues(func() (*config.Config, error) {
		cfg, _, _, err := config.Load(c.configPath())
		if err != nil {
			return nil, err
		}
		if err := cfg.EnsureDirectories(); err != nil {
			return nil, err
		}
		return cfg, nil
	})
	return c
}

func (c *commandContext) configPath() string     { return strings.TrimSpace(c.configFlag) }
func (c *commandContext) socketOverride() string { return strings.TrimSpace(c.socketFlag) }

func (c *commandContext) ensureConfig() (*config.Config, error) {
	return c.loadConfig()
}

// configValue is ensureConfig for callers that can live without a config.
func (c *commandContext) configValue() *config.Config {
	cfg, err := c.loadConfig()
	if err != nil {
		return nil
	}
	return cfg
}

// socketPath prefers --socket, then the configured state directory, then the
// default state directory.
func (c *commandContext) socketPath() string {
	if socket := c.socketOverride(); socket != "" {
		return socket
	}
	if cfg := c.configValue(); cfg != nil {
		return cfg.SocketPath()
	}
	if dir, err := config.ExpandPath("~/.local/share/easel"); err == nil {
		return filepath.Join(dir, "easel.sock")
	}
	return filepath.Join(os.TempDir(), "easel.sock")
}

func (c *commandContext) withClient(fn func(*ipc.Client) error) error {
	socket := c.socketPath()
	client, err := ipc.Dial(socket)
	if err != nil {
		return wrapDialError(err, socket)
	}
	defer client.Close()
	return fn(client)
}

func wrapDialError(err error, socket string) error {
	switch {
	case errors.Is(err, unix.ENOENT):
		return fmt.Errorf("no session at %s; start one with `easel start`", socket)
	case errors.Is(err, unix.ECONNREFUSED):
		return fmt.Errorf("session at %s refused the connection; it may have crashed, see `easel logs --file`", socket)
	default:
		return fmt.Errorf("connect to session: %w", err)
	}
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for ; cmd != nil; cmd = cmd.Parent() {
		if cmd.Annotations[skipConfigAnnotation] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
