// Package config loads the service configuration: defaults, then an
// optional JSON file, then flags.
package config

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/dlukins/caresync/internal/flagx"
	"github.com/dlukins/caresync/internal/timex"
)

type Config struct {
	Addr        string `json:"addr"`
	DatabaseDSN string `json:"database_dsn"`

	JWTSecret string         `json:"jwt_secret"`
	TokenTTL  timex.Duration `json:"token_ttl"`

	S3BaseEndpoint string `json:"s3_base_endpoint"`
	S3Region       string `json:"s3_region"`
	S3Bucket       string `json:"s3_bucket"`
	S3AccessKey    string `json:"s3_access_key"`
	S3SecretKey    string `json:"s3_secret_key"`
}

func defaultConfig() *Config {
	return &Config{
		Addr:     ":8080",
		TokenTTL: timex.Duration{Duration: 24 * time.Hour},
		S3Region: "us-east-1",
		S3Bucket: "caresync-assets",
	}
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
	allowed := []string{"-a", "-addr", "--addr", "-d", "-dsn", "--dsn"}
	fs := flag.NewFlagSet("caresyncd", flag.ContinueOnError)
	addr := fs.String("addr", c.Addr, "listen address")
	fs.StringVar(addr, "a", c.Addr, "listen address (shorthand)")
	dsn := fs.String("dsn", c.DatabaseDSN, "Postgres DSN")
	fs.StringVar(dsn, "d", c.DatabaseDSN, "Postgres DSN (shorthand)")

	if err := fs.Parse(flagx.FilterArgs(args, allowed)); err != nil {
		return err
	}
	c.Addr = *addr
	c.DatabaseDSN = *dsn
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
	if c.DatabaseDSN == "" {
		return nil, fmt.Errorf("database DSN is required")
	}
	if c.JWTSecret == "" {
		return nil, fmt.Errorf("jwt secret is required")
	}
	return c, nil
}
