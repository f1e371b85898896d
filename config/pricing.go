package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ModelRate is the price of one thousand tokens for a single model.
type ModelRate struct {
	InputPer1K  float64 `yaml:"input_per_1k"`
	OutputPer1K float64 `yaml:"output_per_1k"`
}

// Pricing is the on-disk rate table override. Models listed here replace
// or extend the built-in table; Default replaces the fallback rate.
//
//	default:
//	  input_per_1k: 0.003
//	  output_per_1k: 0.015
//	models:
//	  amazon.titan-embed-text-v2:0:
//	    input_per_1k: 0.00002
//	    output_per_1k: 0
type Pricing struct {
	Default *ModelRate           `yaml:"default"`
	Models  map[string]ModelRate `yaml:"models"`
}

// LoadPricing reads a YAML rate table. An empty path yields an empty table.
func LoadPricing(path string) (*Pricing, error) {
	if path == "" {
		return &Pricing{Models: map[string]ModelRate{}}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read pricing file: %w", err)
	}

	return ParsePricing(data)
}

// ParsePricing decodes and validates a YAML rate table.
func ParsePricing(data []byte) (*Pricing, error) {
	var p Pricing
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse pricing file: %w", err)
	}
	if p.Models == nil {
		p.Models = map[string]ModelRate{}
	}

	if p.Default != nil {
		if err := p.Default.validate("default"); err != nil {
			return nil, err
		}
	}
	for modelID, rate := range p.Models {
		if err := rate.validate(modelID); err != nil {
			return nil, err
		}
	}

	return &p, nil
}

func (r ModelRate) validate(name string) error {
	if r.InputPer1K < 0 || r.OutputPer1K < 0 {
		return fmt.Errorf("pricing for %s must not be negative", name)
	}
	return nil
}
