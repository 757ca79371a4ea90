package dlp

import (
	"errors"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

type Rule struct {
	Name     string `yaml:"name" json:"name"`
	Type     string `yaml:"type" json:"type"`
	Pattern  string `yaml:"pattern" json:"pattern"`
	Mask     string `yaml:"mask" json:"mask"`
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	Severity string `yaml:"severity" json:"severity"`
}

type RulesConfig struct {
	Rules []Rule `yaml:"rules" json:"rules"`
}

func LoadRules(path string) (RulesConfig, error) {
	if path == "" {
		return DefaultRules(), nil
	}
	content, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return DefaultRules(), err
	}

	var cfg RulesConfig
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return RulesConfig{}, err
	}

	if len(cfg.Rules) == 0 {
		return RulesConfig{}, errors.New("no DLP rules configured")
	}

	return cfg, nil
}

// DefaultRules masks Brazilian patient identifiers. Rules apply in order.
func DefaultRules() RulesConfig {
	return RulesConfig{Rules: []Rule{
		{Name: "CPF", Type: "cpf", Pattern: `\b\d{3}\.\d{3}\.\d{3}-\d{2}\b`, Mask: "[CPF]", Enabled: true, Severity: "high"},
		{Name: "CNS", Type: "cns", Pattern: `\b[1-9]\d{2}\s\d{4}\s\d{4}\s\d{4}\b|\b[1-9]\d{14}\b`, Mask: "[CNS]", Enabled: true, Severity: "high"},
		{Name: "RG", Type: "rg", Pattern: `\b\d{1,2}\.\d{3}\.\d{3}-[\dXx]\b`, Mask: "[RG]", Enabled: true, Severity: "high"},
		{Name: "Email", Type: "email", Pattern: `\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`, Mask: "[EMAIL]", Enabled: true, Severity: "medium"},
		{Name: "Phone", Type: "phone", Pattern: `\(\d{2}\)\s?9?\d{4}-\d{4}\b|\b9?\d{4}-\d{4}\b`, Mask: "[TELEFONE]", Enabled: true, Severity: "medium"},
		{Name: "DOB", Type: "dob", Pattern: `\b\d{1,2}/\d{1,2}/\d{4}\b`, Mask: "[DATA]", Enabled: false, Severity: "low"},
	}}
}
