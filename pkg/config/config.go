// Package config provides a reusable loader for groupcore configuration
// files and environment variables. It is versioned so that applications can
// depend on a stable API contract.
//
// Version: v0.1.0
package config

import (
	"fmt"

	"github.com/spf13/viper"

	"groupcore/pkg/utils"
)

// Version is the semantic version of this configuration package.
const Version = "v0.1.0"

// GroupConfig is the unified configuration for a groupcore node: the
// per-deployment policy inputs that are not part of a View itself
// (initialization order, whether signing is enabled, where durable state
// lives, and logging).
type GroupConfig struct {
	Group struct {
		// InitializationOrder lists replicated-type names in the fixed order
		// GroupAdmin.Compute must apply them in, matching §4.1/§4.3.
		InitializationOrder []string `mapstructure:"initialization_order" json:"initialization_order"`
	} `mapstructure:"group" json:"group"`

	Persistence struct {
		SignaturesEnabled bool `mapstructure:"signatures_enabled" json:"signatures_enabled"`
		SignatureSize     int  `mapstructure:"signature_size" json:"signature_size"`
	} `mapstructure:"persistence" json:"persistence"`

	Storage struct {
		Dir string `mapstructure:"dir" json:"dir"`
	} `mapstructure:"storage" json:"storage"`

	Logging struct {
		Level string `mapstructure:"level" json:"level"`
		File  string `mapstructure:"file" json:"file"`
	} `mapstructure:"logging" json:"logging"`
}

// AppConfig holds the configuration loaded via Load or LoadFromEnv.
var AppConfig GroupConfig

// Load reads configuration files and merges any environment specific
// overrides. The resulting configuration is stored in AppConfig and returned.
//
// The function uses the provided environment name to merge additional config
// files. If env is empty, only the default configuration is loaded.
func Load(env string) (*GroupConfig, error) {
	viper.SetConfigName("default")
	viper.AddConfigPath("cmd/config")
	viper.AddConfigPath("config")
	viper.SetConfigType("yaml")
	if err := viper.ReadInConfig(); err != nil {
		return nil, utils.Wrap(err, "load config")
	}

	if env != "" {
		viper.SetConfigName(env)
		if err := viper.MergeInConfig(); err != nil {
			return nil, utils.Wrap(err, fmt.Sprintf("merge %s config", env))
		}
	}

	viper.AutomaticEnv() // environment variables named like a key take precedence

	if err := viper.Unmarshal(&AppConfig); err != nil {
		return nil, utils.Wrap(err, "unmarshal config")
	}
	return &AppConfig, nil
}

// LoadFromEnv loads configuration using the GROUPCORE_ENV environment
// variable.
func LoadFromEnv() (*GroupConfig, error) {
	return Load(utils.EnvOrDefault("GROUPCORE_ENV", ""))
}
