package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"jobharvest-engine/internal/config"
	"jobharvest-engine/internal/domain"
	"jobharvest-engine/internal/logger"
)

type commandContext struct {
	configFlag   *string
	dataDirFlag  *string
	logLevelFlag *string

	configOnce sync.Once
	config     config.Config
	configPath string
	configErr  error
}

func newCommandContext(configFlag, dataDirFlag, logLevelFlag *string) *commandContext {
	return &commandContext{
		configFlag:   configFlag,
		dataDirFlag:  dataDirFlag,
		logLevelFlag: logLevelFlag,
	}
}

// ensureConfig loads the config once per process: an explicit --config path,
// or config.yml in the data dir (created with defaults on first use).
func (c *commandContext) ensureConfig() (config.Config, error) {
	c.configOnce.Do(func() {
		c.configPath, c.config, c.configErr = c.load()
		if c.configErr != nil {
			return
		}
		logger.Configure(logger.Config{Level: c.config.App.LogLevel, Format: c.config.App.LogFormat})
	})
	return c.config, c.configErr
}

func (c *commandContext) load() (string, config.Config, error) {
	dataDir := strings.TrimSpace(flagValue(c.dataDirFlag))
	if dataDir == "" {
		dataDir = strings.TrimSpace(os.Getenv("JOBHARVEST_DATA_DIR"))
	}

	path := strings.TrimSpace(flagValue(c.configFlag))
	if path == "" {
		dir := dataDir
		if dir == "" {
			dir = config.Default().App.DataDir
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", config.Config{}, err
		}
		p, err := config.EnsureUserConfig(dir)
		if err != nil {
			return "", config.Config{}, fmt.Errorf("config bootstrap failed: %w", err)
		}
		path = p
	}

	cfg, err := config.Load(path)
	if err != nil {
		return "", config.Config{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if dataDir != "" {
		cfg.App.DataDir = dataDir
	}
	if lvl := strings.TrimSpace(flagValue(c.logLevelFlag)); lvl != "" {
		cfg.App.LogLevel = lvl
	}

	cfg, vr := config.NormalizeAndValidate(cfg)
	if !vr.OK() {
		return "", config.Config{}, domain.Wrap(domain.ErrFatalConfig, "config", "load",
			"invalid configuration:\n- "+strings.Join(vr.Errors, "\n- "), nil)
	}
	for _, w := range vr.Warnings {
		logger.New("config").Warn().Msg(w)
	}
	if err := os.MkdirAll(cfg.App.DataDir, 0o755); err != nil {
		return "", config.Config{}, err
	}
	return path, cfg, nil
}

// reload re-reads the config file for the HTTP config endpoints.
func (c *commandContext) reload() (config.Config, error) {
	if c.configPath == "" {
		return config.Config{}, errors.New("config not loaded")
	}
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return cfg, err
	}
	if dataDir := strings.TrimSpace(flagValue(c.dataDirFlag)); dataDir != "" {
		cfg.App.DataDir = dataDir
	}
	cfg, _ = config.NormalizeAndValidate(cfg)
	return cfg, nil
}

func flagValue(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
