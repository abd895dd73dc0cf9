// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"

	"github.com/c2h5oh/datasize"
	"gopkg.in/yaml.v3"

	"code.hybscloud.com/mps"
)

// Config describes one round-trip run. RecordSize and MessageSize
// accept human-readable sizes ("512B", "4KB") via datasize.ByteSize.
type Config struct {
	Mode        string          `yaml:"mode"`
	RecordSize  datasize.ByteSize `yaml:"record_size"`
	MessageSize datasize.ByteSize `yaml:"message_size"`
	Fragments   int             `yaml:"fragments"`
}

// DefaultConfig returns the baseline configuration used when no file is
// given.
func DefaultConfig() *Config {
	return &Config{
		Mode:        "tls",
		RecordSize:  4 * datasize.KB,
		MessageSize: 16 * datasize.KB,
		Fragments:   4,
	}
}

// LoadConfig reads and merges a YAML config file over DefaultConfig.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(buf, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

func (c *Config) mpsMode() (mps.Mode, error) {
	switch c.Mode {
	case "tls", "":
		return mps.TLS, nil
	case "dtls":
		return mps.DTLS, nil
	default:
		return 0, fmt.Errorf("unknown mode %q (want tls or dtls)", c.Mode)
	}
}
