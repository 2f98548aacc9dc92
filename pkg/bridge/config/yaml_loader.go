// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/stacklok/toolhive-core/env"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable read by the loader.
const EnvPrefix = "REGBRIDGE_"

// maxEnvBackends bounds the REGBRIDGE_BACKENDS_<N>_* scan.
const maxEnvBackends = 64

// YAMLLoader loads configuration from a YAML file and overlays environment
// variables on top of it.
type YAMLLoader struct {
	filePath  string
	envReader env.Reader
}

// NewYAMLLoader creates a new YAML configuration loader. An empty filePath
// loads from the environment only.
func NewYAMLLoader(filePath string, envReader env.Reader) *YAMLLoader {
	return &YAMLLoader{filePath: filePath, envReader: envReader}
}

// Load reads, overlays and defaults the configuration. It does not validate;
// callers run NewValidator().Validate on the result.
func (l *YAMLLoader) Load() (*Config, error) {
	var data []byte
	if l.filePath != "" {
		var err error
		data, err = os.ReadFile(l.filePath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}
	return l.parse(data)
}

func (l *YAMLLoader) parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if len(bytes.TrimSpace(data)) > 0 {
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := l.applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.EnsureDefaults(); err != nil {
		return nil, fmt.Errorf("failed to apply defaults: %w", err)
	}
	return cfg, nil
}

func (l *YAMLLoader) getenv(key string) string {
	return l.envReader.Getenv(EnvPrefix + key)
}

func (l *YAMLLoader) applyEnv(cfg *Config) error {
	if v := l.getenv("NAME"); v != "" {
		cfg.Name = v
	}
	if v := l.getenv("BASEURL"); v != "" {
		cfg.BaseURL = v
	}
	if v := l.getenv("ADDRESS"); v != "" {
		cfg.Address = v
	}
	if v := l.getenv("INCOMINGAUTH_TYPE"); v != "" {
		if cfg.IncomingAuth == nil {
			cfg.IncomingAuth = &IncomingAuthConfig{}
		}
		cfg.IncomingAuth.Type = v
	}
	if v := l.getenv("INCOMINGAUTH_JWT_SECRET"); v != "" {
		if cfg.IncomingAuth == nil {
			cfg.IncomingAuth = &IncomingAuthConfig{}
		}
		if cfg.IncomingAuth.JWT == nil {
			cfg.IncomingAuth.JWT = &JWTConfig{}
		}
		cfg.IncomingAuth.JWT.Secret = v
	}
	if v := l.getenv("CACHE_REDIS_PASSWORD"); v != "" {
		if cfg.Cache == nil {
			cfg.Cache = &CacheConfig{}
		}
		if cfg.Cache.Redis == nil {
			cfg.Cache.Redis = &RedisConfig{}
		}
		cfg.Cache.Redis.Password = v
	}

	// REGBRIDGE_BACKENDS_<N>_* overrides entry N, or appends it when N is
	// one past the end. The scan stops at the first index with no variables.
	for i := 0; i < maxEnvBackends; i++ {
		prefix := fmt.Sprintf("BACKENDS_%d_", i)
		groupType := l.getenv(prefix + "GROUPTYPE")
		url := l.getenv(prefix + "URL")
		apiKey := l.getenv(prefix + "APIKEY")
		enabled := l.getenv(prefix + "ENABLED")
		if groupType == "" && url == "" && apiKey == "" && enabled == "" {
			if i >= len(cfg.Backends) {
				break
			}
			continue
		}
		if i == len(cfg.Backends) {
			cfg.Backends = append(cfg.Backends, BackendConfig{})
		}
		b := &cfg.Backends[i]
		if groupType != "" {
			b.GroupType = groupType
		}
		if url != "" {
			b.URL = url
		}
		if apiKey != "" {
			b.APIKey = apiKey
		}
		if enabled != "" {
			on, err := strconv.ParseBool(enabled)
			if err != nil {
				return fmt.Errorf("%s%sENABLED: %w", EnvPrefix, prefix, err)
			}
			b.Enabled = &on
		}
	}

	for i := range cfg.Backends {
		b := &cfg.Backends[i]
		if b.APIKey == "" && b.APIKeyEnv != "" {
			b.APIKey = l.envReader.Getenv(b.APIKeyEnv)
			if b.APIKey == "" {
				return fmt.Errorf("backends[%d]: environment variable %s is empty", i, b.APIKeyEnv)
			}
		}
	}
	return nil
}
