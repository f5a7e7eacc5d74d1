package main

import (
	"os"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"mirage/internal/config"
	"mirage/internal/services/toolrun"
)

type commandContext struct {
	configFlag string

	configOnce sync.Once
	config     *config.Config
	configErr  error

	// Overridable for tests.
	lookupEnv func(string) (string, bool)
	now       func() time.Time
	executor  toolrun.Executor
}

func newCommandContext() *commandContext {
	return &commandContext{
		lookupEnv: os.LookupEnv,
		now:       time.Now,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, _, _, err := config.Load(strings.TrimSpace(c.configFlag))
		if err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
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
