package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"sntplan/internal/stratify"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default("proj-1")
	if cfg.Project.ID != "proj-1" || cfg.Project.AdminLevel != 1 {
		t.Fatalf("unexpected project section: %+v", cfg.Project)
	}
	if cfg.Stratification.Metric != "pfpr" {
		t.Fatalf("expected pfpr metric, got %s", cfg.Stratification.Metric)
	}
	if cfg.CostingYears() != 5 || cfg.ForecastYears() != 5 {
		t.Fatalf("unexpected horizons: %d/%d", cfg.CostingYears(), cfg.ForecastYears())
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}

	th := cfg.Thresholds("pfpr")
	if len(th) != 4 {
		t.Fatalf("expected 4 pfpr bands, got %v", th)
	}
	if got := stratify.AssignRiskLevel(42, th); got != stratify.RiskHigh {
		t.Fatalf("expected high for pfpr 42, got %s", got)
	}
	if cfg.Thresholds("eir") != nil {
		t.Fatal("expected no configured eir bands")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	for name, mutate := range map[string]func(*Config){
		"missing project id": func(c *Config) { c.Project.ID = "" },
		"admin level range":  func(c *Config) { c.Project.AdminLevel = 7 },
		"unknown metric":     func(c *Config) { c.Stratification.Metric = "rainfall" },
		"inverted band": func(c *Config) {
			c.Stratification.Thresholds["pfpr"]["high"] = Band{Min: 50, Max: 10}
		},
		"unknown risk level": func(c *Config) {
			c.Stratification.Thresholds["pfpr"]["extreme"] = Band{Min: 0, Max: 1}
		},
		"negative costing years": func(c *Config) { c.Costing.Years = -1 },
		"webhook without url": func(c *Config) {
			c.Webhooks = []WebhookConfig{{Events: []string{"project.created"}}}
		},
	} {
		cfg := Default("proj-1")
		mutate(cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}
}

func TestFromYAML(t *testing.T) {
	cfg, err := FromYAML([]byte("project:\n  id: nga-2026\n  country: Nigeria\ncosting:\n  years: 3\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Project.Country != "Nigeria" || cfg.CostingYears() != 3 {
		t.Fatalf("unexpected config: %+v", cfg)
	}

	if _, err := FromYAML([]byte("project: [not a map")); err == nil {
		t.Fatal("expected error for malformed yaml")
	}
	if _, err := FromYAML([]byte("costing:\n  years: 3\n")); err == nil {
		t.Fatal("expected error for missing project id")
	}
}

func TestLoadFromWorkspace(t *testing.T) {
	dir := t.TempDir()
	if _, err := Load(dir); err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("expected not-found error, got %v", err)
	}
	if cfg, err := LoadOptional(dir); err != nil || cfg != nil {
		t.Fatalf("expected nil,nil for missing optional config, got %v %v", cfg, err)
	}

	if err := os.WriteFile(filepath.Join(dir, "sntplan.yml"), []byte(GenerateDefault("proj-1")), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Project.ID != "proj-1" {
		t.Fatalf("unexpected project id %s", cfg.Project.ID)
	}
}

func TestRequiredSourceTypesFallback(t *testing.T) {
	var empty Config
	empty.Project.ID = "x"
	got := empty.RequiredSourceTypes()
	if len(got) != 2 || got[0] != "epidemiological" || got[1] != "demographic" {
		t.Fatalf("unexpected fallback: %v", got)
	}
}
