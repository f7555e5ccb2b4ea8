package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"sntplan/internal/stratify"
)

// Config models sntplan.yml.
type Config struct {
	Project struct {
		ID         string `yaml:"id"`
		Name       string `yaml:"name"`
		Country    string `yaml:"country"`
		AdminLevel int    `yaml:"admin_level"`
		Year       int    `yaml:"year"`
	} `yaml:"project"`
	Stratification struct {
		Metric     string                     `yaml:"metric"`
		Thresholds map[string]map[string]Band `yaml:"thresholds"`
	} `yaml:"stratification"`
	Costing struct {
		Years     int                           `yaml:"years"`
		UnitCosts map[string]map[string]float64 `yaml:"unit_costs"`
	} `yaml:"costing"`
	Forecast struct {
		Years int `yaml:"years"`
	} `yaml:"forecast"`
	Quality struct {
		RequiredSourceTypes []string `yaml:"required_source_types"`
	} `yaml:"quality"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

type Band struct {
	Min float64 `yaml:"min_value"`
	Max float64 `yaml:"max_value"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Secret         string   `yaml:"secret"`
	Events         []string `yaml:"events"`
	Enabled        *bool    `yaml:"enabled"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; import with snt project config import --file <path>", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Project.ID == "" {
		return fmt.Errorf("config.project.id is required")
	}
	if c.Project.AdminLevel < 0 || c.Project.AdminLevel > 4 {
		return fmt.Errorf("config.project.admin_level must be between 0 and 4")
	}
	if c.Stratification.Metric != "" && !stratify.ValidMetric(c.Stratification.Metric) {
		return fmt.Errorf("config.stratification.metric %q is not a known metric", c.Stratification.Metric)
	}
	for metric, bands := range c.Stratification.Thresholds {
		if !stratify.ValidMetric(metric) {
			return fmt.Errorf("config.stratification.thresholds has unknown metric %q", metric)
		}
		for level, band := range bands {
			if !stratify.ValidRiskLevel(level) {
				return fmt.Errorf("thresholds for %s reference unknown risk level %q", metric, level)
			}
			if band.Min >= band.Max {
				return fmt.Errorf("thresholds for %s/%s: min_value must be below max_value", metric, level)
			}
		}
	}
	if c.Costing.Years < 0 {
		return fmt.Errorf("config.costing.years must not be negative")
	}
	if c.Forecast.Years < 0 {
		return fmt.Errorf("config.forecast.years must not be negative")
	}
	for i, hook := range c.Webhooks {
		if hook.URL == "" {
			return fmt.Errorf("webhook %d has empty url", i)
		}
		for _, event := range hook.Events {
			if event == "" {
				return fmt.Errorf("webhook %d has empty event filter", i)
			}
		}
	}
	for _, kind := range c.Quality.RequiredSourceTypes {
		if kind == "" {
			return fmt.Errorf("config.quality.required_source_types contains empty entry")
		}
	}
	return nil
}

// CostingYears returns the configured costing horizon, defaulting to 5.
func (c *Config) CostingYears() int {
	if c == nil || c.Costing.Years == 0 {
		return 5
	}
	return c.Costing.Years
}

// ForecastYears returns the configured projection horizon, defaulting to 5.
func (c *Config) ForecastYears() int {
	if c == nil || c.Forecast.Years == 0 {
		return 5
	}
	return c.Forecast.Years
}

// Thresholds returns the configured bands for a metric, or nil if absent.
func (c *Config) Thresholds(metric string) stratify.Thresholds {
	if c == nil {
		return nil
	}
	bands, ok := c.Stratification.Thresholds[metric]
	if !ok {
		return nil
	}
	out := make(stratify.Thresholds, len(bands))
	for level, band := range bands {
		out[level] = stratify.Band{Min: band.Min, Max: band.Max}
	}
	return out
}

// RequiredSourceTypes returns the data source types a project must register
// before data assembly can complete.
func (c *Config) RequiredSourceTypes() []string {
	if c == nil || len(c.Quality.RequiredSourceTypes) == 0 {
		return []string{"epidemiological", "demographic"}
	}
	return c.Quality.RequiredSourceTypes
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "sntplan.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault(projectID string) string {
	return fmt.Sprintf(defaultTemplate, projectID)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the default Config struct for a project.
func Default(projectID string) *Config {
	var cfg Config
	cfg.Project.ID = projectID
	_ = yaml.NewDecoder(bytes.NewBufferString(fmt.Sprintf(defaultTemplate, projectID))).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `project:
  id: %s
  admin_level: 1

stratification:
  metric: pfpr
  thresholds:
    pfpr:
      very_low:
        min_value: 0
        max_value: 1
      low:
        min_value: 1
        max_value: 10
      moderate:
        min_value: 10
        max_value: 35
      high:
        min_value: 35
        max_value: 100

costing:
  years: 5

forecast:
  years: 5

quality:
  required_source_types: [epidemiological, demographic]
`
