package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mcdev12/focustimer/go/internal/host/natsbridge"
	"github.com/mcdev12/focustimer/go/internal/timer"
)

const (
	HostModeMemory = "memory"
	HostModeNATS   = "nats"
)

type Config struct {
	Env      string `yaml:"env"`
	LogLevel string `yaml:"log_level"`

	Host struct {
		Mode           string        `yaml:"mode"`
		NATSURL        string        `yaml:"nats_url"`
		SubjectPrefix  string        `yaml:"subject_prefix"`
		RequestTimeout time.Duration `yaml:"request_timeout"`
	} `yaml:"host"`

	Gateway struct {
		Port string `yaml:"port"`
	} `yaml:"gateway"`

	Timer struct {
		SampleInterval time.Duration `yaml:"sample_interval"`
	} `yaml:"timer"`

	Settings struct {
		File string `yaml:"file"`
	} `yaml:"settings"`
}

func defaultConfig() *Config {
	var c Config
	c.Env = "production"
	c.LogLevel = "info"
	c.Host.Mode = HostModeMemory
	c.Host.NATSURL = natsbridge.DefaultConfig().URL
	c.Host.SubjectPrefix = natsbridge.DefaultConfig().SubjectPrefix
	c.Host.RequestTimeout = natsbridge.DefaultConfig().RequestTimeout
	c.Gateway.Port = "8090"
	c.Timer.SampleInterval = timer.DefaultSampleInterval
	c.Settings.File = "focustimer-settings.yaml"
	return &c
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// loadConfig reads path over the defaults. A missing file is not an error.
func loadConfig(path string) (*Config, error) {
	config := defaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	applyEnv(config)

	if config.Host.Mode != HostModeMemory && config.Host.Mode != HostModeNATS {
		return nil, fmt.Errorf("unknown host mode %q", config.Host.Mode)
	}
	if config.Timer.SampleInterval <= 0 {
		return nil, fmt.Errorf("sample interval must be positive, got %s", config.Timer.SampleInterval)
	}
	return config, nil
}

func applyEnv(c *Config) {
	c.Env = getEnv("FOCUS_TIMER_ENV", c.Env)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.Host.Mode = getEnv("HOST_MODE", c.Host.Mode)
	c.Host.NATSURL = getEnv("NATS_URL", c.Host.NATSURL)
	c.Host.SubjectPrefix = getEnv("HOST_SUBJECT_PREFIX", c.Host.SubjectPrefix)
	c.Host.RequestTimeout = getEnvAsDuration("HOST_REQUEST_TIMEOUT", c.Host.RequestTimeout)
	if port := getEnvAsInt("GATEWAY_PORT", 0); port > 0 {
		c.Gateway.Port = strconv.Itoa(port)
	}
	c.Timer.SampleInterval = getEnvAsDuration("TIMER_SAMPLE_INTERVAL", c.Timer.SampleInterval)
	c.Settings.File = getEnv("SETTINGS_FILE", c.Settings.File)
}
