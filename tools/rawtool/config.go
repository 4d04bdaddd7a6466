// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package rawtool

import (
	"os"

	"github.com/danjacques/gorawevent/protocol/tracker"
	"github.com/danjacques/gorawevent/replay/source"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"
)

// Config is the tool configuration. It is loaded from an optional YAML file;
// command-line flags override its values.
type Config struct {
	// Verbose enables debug logging.
	Verbose bool `yaml:"verbose"`

	// Sequence enables sequence reading past the named files.
	Sequence bool `yaml:"sequence"`
	// ProbeAttempts is the number of sequence numbers probed for a continuation
	// file.
	ProbeAttempts int `yaml:"probe_attempts"`

	// HitPolicy is the tracker hit policy, "level" or "edge".
	HitPolicy string `yaml:"hit_policy"`
	// Debug decodes fields of invalid hardware payloads.
	Debug bool `yaml:"debug"`

	// Catalog is the path of the event catalog database.
	Catalog string `yaml:"catalog"`

	// S3 configures "s3:" names. If neither Region nor Endpoint is set, "s3:"
	// names are not supported.
	S3 S3Config `yaml:"s3"`
}

// S3Config is the S3 section of Config.
type S3Config struct {
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	PathStyle bool   `yaml:"path_style"`
}

func (c *S3Config) enabled() bool { return c.Region != "" || c.Endpoint != "" }

func (c *S3Config) sourceConfig() source.S3Config {
	return source.S3Config{
		Region:       c.Region,
		Endpoint:     c.Endpoint,
		UsePathStyle: c.PathStyle,
	}
}

// LoadConfig loads a Config from the YAML file at path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading config %q", path)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrapf(err, "invalid YAML in %q", path)
	}
	return &cfg, nil
}

// applyFlags overrides cfg with flags that were set explicitly.
func (cfg *Config) applyFlags(c *cli.Context) {
	if c.IsSet("verbose") {
		cfg.Verbose = c.Bool("verbose")
	}
	if c.IsSet("sequence") {
		cfg.Sequence = c.Bool("sequence")
	}
	if c.IsSet("probe-attempts") {
		cfg.ProbeAttempts = c.Int("probe-attempts")
	}
	if c.IsSet("hit-policy") {
		cfg.HitPolicy = c.String("hit-policy")
	}
	if c.IsSet("debug") {
		cfg.Debug = c.Bool("debug")
	}
	if c.IsSet("catalog") {
		cfg.Catalog = c.String("catalog")
	}
	if c.IsSet("s3-region") {
		cfg.S3.Region = c.String("s3-region")
	}
	if c.IsSet("s3-endpoint") {
		cfg.S3.Endpoint = c.String("s3-endpoint")
	}
	if c.IsSet("s3-path-style") {
		cfg.S3.PathStyle = c.Bool("s3-path-style")
	}
}

// hitPolicy parses HitPolicy.
func (cfg *Config) hitPolicy() (tracker.HitPolicy, error) {
	switch cfg.HitPolicy {
	case "", tracker.LevelMode.String():
		return tracker.LevelMode, nil
	case tracker.EdgeMode.String():
		return tracker.EdgeMode, nil
	default:
		return 0, errors.Errorf("unknown hit policy %q", cfg.HitPolicy)
	}
}
