/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package config

import (
	"bytes"
	"io"
	"strings"

	"github.com/hyperledger/fabric-sdk-go/pkg/common/logging"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// LogModules lists the logger modules configured by the logging section
var LogModules = [...]string{"onboard", "onboard/authority", "onboard/fabricca", "onboard/ledger",
	"onboard/fabricgw", "onboard/store", "onboard/cli"}

// defaultEnvPrefix prefixes environment overrides, e.g. ONBOARD_LEDGER_TIMEOUT
const defaultEnvPrefix = "ONBOARD"

// Provider loads the configuration
type Provider func() (*Config, error)

type loadOptions struct {
	envPrefix string
}

// Option customizes how a Provider loads the configuration
type Option func(opts *loadOptions) error

// WithEnvPrefix replaces the ONBOARD prefix of environment overrides
func WithEnvPrefix(prefix string) Option {
	return func(opts *loadOptions) error {
		if prefix == "" {
			return errors.New("env prefix is empty")
		}
		opts.envPrefix = prefix
		return nil
	}
}

// FromFile loads the named YAML or JSON file. The format follows the file
// extension.
func FromFile(name string, opts ...Option) Provider {
	return provide(opts, func(v *viper.Viper) error {
		if name == "" {
			return errors.New("filename is required")
		}
		v.SetConfigFile(name)
		if err := v.MergeInConfig(); err != nil {
			return errors.Wrapf(err, "loading config file failed: %s", name)
		}
		return nil
	})
}

// FromReader loads configuration of the given type ("yaml" or "json") from in
func FromReader(in io.Reader, configType string, opts ...Option) Provider {
	return provide(opts, mergeReader(in, configType))
}

// FromRaw loads configuration of the given type from raw bytes
func FromRaw(raw []byte, configType string, opts ...Option) Provider {
	return provide(opts, mergeReader(bytes.NewReader(raw), configType))
}

// FromEnv loads the defaults plus environment overrides
func FromEnv(opts ...Option) Provider {
	return provide(opts, nil)
}

func mergeReader(in io.Reader, configType string) func(*viper.Viper) error {
	return func(v *viper.Viper) error {
		if configType == "" {
			return errors.New("empty config type")
		}
		v.SetConfigType(configType)
		return errors.Wrapf(v.MergeConfig(in), "failed to read %s configuration", configType)
	}
}

func provide(opts []Option, merge func(*viper.Viper) error) Provider {
	return func() (*Config, error) {
		o := loadOptions{envPrefix: defaultEnvPrefix}
		for _, opt := range opts {
			if err := opt(&o); err != nil {
				return nil, errors.WithMessage(err, "invalid config option")
			}
		}

		b := &Backend{configViper: viper.New()}
		b.configViper.SetEnvPrefix(o.envPrefix)
		b.configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		b.configViper.AutomaticEnv()
		setDefaults(b.configViper)

		if merge != nil {
			if err := merge(b.configViper); err != nil {
				return nil, err
			}
		}
		return b.load()
	}
}

// ApplyLogging sets the level of every onboarding logger module, then applies
// the per-module overrides.
func ApplyLogging(c LoggingConfig) error {
	global, err := logging.LogLevel(c.Level)
	if err != nil {
		return errors.Wrapf(err, "invalid logging level [%s]", c.Level)
	}
	for _, module := range LogModules {
		logging.SetLevel(module, global)
	}

	for module, name := range c.Modules {
		level, err := logging.LogLevel(name)
		if err != nil {
			return errors.Wrapf(err, "invalid logging level [%s] for module [%s]", name, module)
		}
		logging.SetLevel(module, level)
	}
	return nil
}
