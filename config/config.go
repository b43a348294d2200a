// Package config loads config.yaml.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

const DefaultPath = "config.yaml"

type Config struct {
	Model struct {
		ArtifactPath string  `yaml:"artifact_path"`
		Seed         int64   `yaml:"seed"`
		MaxIter      int     `yaml:"max_iter"`
		C            float64 `yaml:"c"`
		TestRatio    float64 `yaml:"test_ratio"`
		Folds        int     `yaml:"folds"`
	} `yaml:"model"`
	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`
	Http struct {
		Port           int           `yaml:"port"`
		Timeout        time.Duration `yaml:"timeout"`
		AllowedOrigins []string      `yaml:"allowed_origins"`
	} `yaml:"http"`
	Log struct {
		Level string `yaml:"level"`
		Path  string `yaml:"path"`
	} `yaml:"log"`
	Cache struct {
		Size  int  `yaml:"size"`
		Watch bool `yaml:"watch"`
	} `yaml:"cache"`
	Sentry struct {
		DSN         string `yaml:"dsn"`
		Environment string `yaml:"environment"`
	} `yaml:"sentry"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	var c Config
	c.Model.ArtifactPath = "models/iris_pipeline.json"
	c.Model.Seed = 42
	c.Model.MaxIter = 1000
	c.Model.C = 1.0
	c.Model.TestRatio = 0.2
	c.Model.Folds = 5
	c.Database.Path = "data/irislab.db"
	c.Http.Port = 8080
	c.Http.Timeout = 30 * time.Second
	c.Http.AllowedOrigins = []string{"*"}
	c.Log.Level = "info"
	c.Cache.Size = 4
	c.Cache.Watch = true
	return &c
}

// Load reads path over the defaults. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	config := Default()
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return config, nil
		}
		return nil, err
	}
	defer file.Close()

	if err := yaml.NewDecoder(file).Decode(config); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return config, nil
}

func (c *Config) Validate() error {
	if c.Model.ArtifactPath == "" {
		return errors.New("model.artifact_path is required")
	}
	if c.Model.TestRatio <= 0 || c.Model.TestRatio >= 1 {
		return fmt.Errorf("model.test_ratio must be in (0, 1), got %v", c.Model.TestRatio)
	}
	if c.Model.Folds < 2 {
		return fmt.Errorf("model.folds must be at least 2, got %d", c.Model.Folds)
	}
	if c.Model.C <= 0 {
		return fmt.Errorf("model.c must be positive, got %v", c.Model.C)
	}
	if c.Model.MaxIter <= 0 {
		return fmt.Errorf("model.max_iter must be positive, got %d", c.Model.MaxIter)
	}
	if c.Http.Port <= 0 || c.Http.Port > 65535 {
		return fmt.Errorf("http.port out of range: %d", c.Http.Port)
	}
	return nil
}
