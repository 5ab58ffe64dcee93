package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/quizchest/quizchest/go/internal/models"
	"gopkg.in/yaml.v3"
)

// Config is the server configuration file.
type Config struct {
	Content struct {
		Dir string `yaml:"dir"`
	} `yaml:"content"`
	Game models.GameConfig `yaml:"game"`
	NATS struct {
		Enabled bool   `yaml:"enabled"`
		URL     string `yaml:"url"`
	} `yaml:"nats"`
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

func loadConfig(path string) (*Config, error) {
	var config Config

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// No config file: run on defaults.
	} else if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if config.Content.Dir == "" {
		config.Content.Dir = "banks"
	}
	if config.Game.BetIncrement == 0 {
		config.Game = models.DefaultGameConfig()
	}

	return &config, nil
}
