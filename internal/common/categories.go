package common

import (
	"fmt"
	"os"
	"path/filepath"

	"open-finance-sync-go/internal/ingest"

	"gopkg.in/yaml.v2"
)

// CategoryRule maps the provider's bank category labels to one local category
type CategoryRule struct {
	Id     string   `yaml:"id"`
	Labels []string `yaml:"labels"`
}

type CategoryRulesConfig struct {
	Categories []CategoryRule `yaml:"categories"`
}

// LoadCategoryRules reads a YAML rules file relative to the working directory
// unless the path is absolute.
func LoadCategoryRules(rulesFile string) (ingest.CategoryMap, error) {
	var rulesPath string
	if filepath.IsAbs(rulesFile) {
		rulesPath = rulesFile
	} else {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		rulesPath = filepath.Join(wd, rulesFile)
	}

	data, err := os.ReadFile(rulesPath)
	if err != nil {
		return nil, fmt.Errorf("unable to read %s: %w", rulesFile, err)
	}

	return ParseCategoryRules(data)
}

func ParseCategoryRules(data []byte) (ingest.CategoryMap, error) {
	var config CategoryRulesConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("unable to parse category rules: %w", err)
	}

	labels := make(map[string]string)
	owner := make(map[string]string)
	for i, rule := range config.Categories {
		if rule.Id == "" {
			return nil, fmt.Errorf("category at index %d missing id", i)
		}
		if len(rule.Labels) == 0 {
			return nil, fmt.Errorf("category %s has no labels", rule.Id)
		}
		for _, label := range rule.Labels {
			key := ingest.Slugify(label)
			if prev, ok := owner[key]; ok && prev != rule.Id {
				return nil, fmt.Errorf("label %q is mapped to both %s and %s", label, prev, rule.Id)
			}
			owner[key] = rule.Id
			labels[label] = rule.Id
		}
	}

	return ingest.NewCategoryMap(labels), nil
}
