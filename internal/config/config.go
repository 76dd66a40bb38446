// Package config loads the portal configuration, including the static
// workflow definitions, from a file and the environment.
package config

import (
	"fmt"
	"sort"

	"github.com/spf13/viper"

	"flowportal/internal/forms"
	"flowportal/pkg/models"
)

// StepConfig describes one configured workflow step: its backing entity type,
// the input schema for that type, and the roles allowed to act on it.
type StepConfig struct {
	Key    string            `mapstructure:"key"`
	Model  string            `mapstructure:"model"`
	Roles  []string          `mapstructure:"roles"`
	Fields []forms.FieldSpec `mapstructure:"fields"`
}

// WorkflowConfig is the per-application workflow configuration block.
type WorkflowConfig struct {
	Description string       `mapstructure:"description"`
	Initial     string       `mapstructure:"initial"`
	Flow        []StepConfig `mapstructure:"flow"`
}

// Config holds the configuration for the application.
type Config struct {
	Environment   string `mapstructure:"environment"`
	DevModeBypass bool   `mapstructure:"dev_mode_bypass"`

	Server struct {
		Addr string `mapstructure:"addr"`
	} `mapstructure:"server"`

	DB struct {
		Host     string `mapstructure:"host"`
		Port     int    `mapstructure:"port"`
		User     string `mapstructure:"user"`
		Password string `mapstructure:"password"`
		Name     string `mapstructure:"name"`
		SSLMode  string `mapstructure:"sslmode"`
	} `mapstructure:"db"`

	Auth struct {
		Issuer       string `mapstructure:"issuer"`
		ClientID     string `mapstructure:"client_id"`
		ClientSecret string `mapstructure:"client_secret"`
		RedirectURL  string `mapstructure:"redirect_url"`
	} `mapstructure:"auth"`

	Workflows map[string]WorkflowConfig `mapstructure:"workflows"`
}

// LoadConfig loads the configuration from the given file (or the default
// search path when empty) and validates the workflow definitions.
func LoadConfig(path string) (*Config, error) {
	if path != "" {
		viper.SetConfigFile(path)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("./config")
	}
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	if config.Server.Addr == "" {
		config.Server.Addr = ":8080"
	}

	if err := config.validateWorkflows(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) validateWorkflows() error {
	if len(c.Workflows) == 0 {
		return fmt.Errorf("no workflows configured")
	}
	for app, wf := range c.Workflows {
		if len(wf.Flow) == 0 {
			return fmt.Errorf("workflow %q has no steps", app)
		}
		seen := make(map[string]bool)
		hasInitial := false
		for _, step := range wf.Flow {
			if step.Key == "" || step.Model == "" {
				return fmt.Errorf("workflow %q has a step without key or model", app)
			}
			if seen[step.Key] {
				return fmt.Errorf("workflow %q repeats step key %q", app, step.Key)
			}
			seen[step.Key] = true
			if step.Key == wf.Initial {
				hasInitial = true
			}
		}
		if !hasInitial {
			return fmt.Errorf("workflow %q initial step %q is not in its flow", app, wf.Initial)
		}
	}
	return nil
}

// Definitions converts the configured workflows into immutable workflow
// definitions, sorted by application name for stable listings.
func (c *Config) Definitions() []models.WorkflowDefinition {
	defs := make([]models.WorkflowDefinition, 0, len(c.Workflows))
	for app, wf := range c.Workflows {
		def := models.WorkflowDefinition{
			AppName:     app,
			Description: wf.Description,
			Initial:     wf.Initial,
		}
		for _, step := range wf.Flow {
			def.Flow = append(def.Flow, models.StepDefinition{
				Key:     step.Key,
				Model:   step.Model,
				Initial: step.Key == wf.Initial,
			})
		}
		defs = append(defs, def)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].AppName < defs[j].AppName })
	return defs
}
