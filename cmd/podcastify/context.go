package main

import (
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"podcastify/pkg/config"
	"podcastify/pkg/logger"
)

// flagBindings maps config keys to the flag names that override them.
var flagBindings = map[string]string{
	"logger.level":        "log-level",
	"output.path":         "output",
	"output.validate":     "validate",
	"output.metrics_file": "metrics-file",
}

type commandContext struct {
	configFlag *string
	debugFlag  *bool

	configOnce sync.Once
	config     *config.Config
	log        logger.Logger
	configErr  error
}

func newCommandContext(configFlag *string, debugFlag *bool) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		debugFlag:  debugFlag,
	}
}

// ensureConfig loads configuration and builds the logger once per process.
// Flags of cmd that appear in flagBindings override file and env values.
func (c *commandContext) ensureConfig(cmd *cobra.Command) (*config.Config, error) {
	c.configOnce.Do(func() {
		if err := config.LoadEnvFile(""); err != nil {
			c.configErr = err
			return
		}

		path := strings.TrimSpace(*c.configFlag)
		v := config.NewViper(path)
		if err := config.ReadFile(v, path != ""); err != nil {
			c.configErr = err
			return
		}

		for key, name := range flagBindings {
			if f := cmd.Flags().Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					c.configErr = fmt.Errorf("failed to bind flag %s: %w", name, err)
					return
				}
			}
		}
		if c.debugFlag != nil && *c.debugFlag {
			v.Set("logger.level", "debug")
			v.Set("logger.development", true)
		}

		cfg, err := config.Load(v)
		if err != nil {
			c.configErr = err
			return
		}

		log, err := logger.New(cfg.Logger)
		if err != nil {
			c.configErr = err
			return
		}

		c.config = cfg
		c.log = log
	})
	return c.config, c.configErr
}

func (c *commandContext) activeLogger() logger.Logger {
	if c.log == nil {
		return logger.NewNop()
	}
	return c.log
}

func (c *commandContext) sync() {
	if c.log != nil {
		_ = c.log.Sync()
	}
}
