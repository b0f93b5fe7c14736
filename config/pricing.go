package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"talent-source/models"
)

type pricingFile struct {
	Classes map[string]models.ClassPrice `yaml:"classes"`
}

// LoadPricing reads the billing class price table. An empty path yields defaults.
func LoadPricing(path string) (models.Pricing, error) {
	if path == "" {
		return models.DefaultPricing(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pricing file: %w", err)
	}
	return ParsePricing(data)
}

func ParsePricing(data []byte) (models.Pricing, error) {
	var file pricingFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode pricing: %w", err)
	}

	pricing := models.DefaultPricing()
	for key, price := range file.Classes {
		class, err := models.ParseBillingClass(key)
		if err != nil {
			return nil, err
		}
		pricing[class] = price
	}
	if err := pricing.Validate(); err != nil {
		return nil, err
	}
	return pricing, nil
}
