// Package config loads the agent configuration: defaults, then an optional
// JSON file, then command-line flags, each layer overriding the previous.
package config

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dlukins/caresync/internal/flagx"
	"github.com/dlukins/caresync/internal/timex"
)

type Config struct {
	// ServerAddr is the base URL of the sync service, e.g.
	// "http://localhost:8080". Empty keeps the agent in local-only mode.
	ServerAddr string `json:"server_addr"`

	// Account is the owner identity this device belongs to.
	Account string `json:"account"`

	// DataDir holds the partitions, the device token, and the photo cache.
	DataDir string `json:"data_dir"`

	// PingInterval paces the retry coordinator's reachability checks.
	PingInterval timex.Duration `json:"ping_interval"`

	// SyncInterval paces periodic incremental sync passes.
	SyncInterval timex.Duration `json:"sync_interval"`
}

func defaultConfig() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		ServerAddr:   "",
		Account:      "",
		DataDir:      filepath.Join(home, ".caresync"),
		PingInterval: timex.Duration{Duration: 30 * time.Second},
		SyncInterval: timex.Duration{Duration: 5 * time.Minute},
	}
}

// PhotosDir is where cached photo assets live, under the data dir.
func (c *Config) PhotosDir() string {
	return filepath.Join(c.DataDir, "photos")
}

func (c *Config) loadJSON(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := json.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) parseFlags(args []string) error {
	allowed := []string{
		"-a", "-addr", "--addr",
		"-u", "-account", "--account",
		"-d", "-data", "--data",
	}
	fs := flag.NewFlagSet("agent", flag.ContinueOnError)
	addr := fs.String("addr", c.ServerAddr, "sync service base URL")
	fs.StringVar(addr, "a", c.ServerAddr, "sync service base URL (shorthand)")
	account := fs.String("account", c.Account, "owner account name")
	fs.StringVar(account, "u", c.Account, "owner account name (shorthand)")
	data := fs.String("data", c.DataDir, "data directory")
	fs.StringVar(data, "d", c.DataDir, "data directory (shorthand)")

	if err := fs.Parse(flagx.FilterArgs(args, allowed)); err != nil {
		return err
	}
	c.ServerAddr = *addr
	c.Account = *account
	c.DataDir = *data
	return nil
}

// Load builds the effective configuration from args (usually os.Args[1:]).
func Load(args []string) (*Config, error) {
	c := defaultConfig()
	if path := flagx.JsonConfigFlags(); path != "" {
		if err := c.loadJSON(path); err != nil {
			return nil, err
		}
	}
	if err := c.parseFlags(args); err != nil {
		return nil, err
	}
	return c, nil
}
