package rules

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kirillkom/archivist/internal/core/domain"
)

type Config struct {
	MinConfidence float64           `yaml:"min_confidence"`
	Categories    []domain.Category `yaml:"categories"`
}

// LoadFile reads a YAML ruleset. An empty path yields the default
// ruleset.
func LoadFile(path string) (Config, error) {
	if path == "" {
		return DefaultRuleset(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read ruleset: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse ruleset yaml: %w", err)
	}
	if cfg.MinConfidence <= 0 {
		cfg.MinConfidence = DefaultRuleset().MinConfidence
	}
	return cfg, nil
}

// DefaultRuleset ships the stock archive taxonomy.
func DefaultRuleset() Config {
	return Config{
		MinConfidence: 0.1,
		Categories: []domain.Category{
			{
				ID:   "financial",
				Name: "Financial",
				Rules: []domain.Rule{
					{ID: "fin-keywords", Kind: domain.RuleKeyword, Priority: 1, Weight: 1,
						Keywords: []string{"invoice", "payment", "receipt", "financial", "budget", "expense"}},
					{ID: "fin-invoice-no", Kind: domain.RulePattern, Priority: 1, Weight: 2,
						Pattern: `invoice\s*#?\s*\d+`, Subcategory: "Invoice"},
					{ID: "fin-type", Kind: domain.RuleAffinity, Priority: 2, Weight: 1, DocumentType: "Invoice"},
				},
			},
			{
				ID:   "legal",
				Name: "Legal",
				Rules: []domain.Rule{
					{ID: "legal-keywords", Kind: domain.RuleKeyword, Priority: 1, Weight: 1,
						Keywords: []string{"contract", "agreement", "legal", "terms", "conditions", "law"}},
					{ID: "legal-type", Kind: domain.RuleAffinity, Priority: 2, Weight: 1, DocumentType: "Contract"},
				},
			},
			{
				ID:   "hr",
				Name: "HR",
				Rules: []domain.Rule{
					{ID: "hr-keywords", Kind: domain.RuleKeyword, Priority: 1, Weight: 1,
						Keywords: []string{"employee", "hr", "personnel", "salary", "benefits", "policy"}},
				},
			},
			{
				ID:   "technical",
				Name: "Technical",
				Rules: []domain.Rule{
					{ID: "tech-keywords", Kind: domain.RuleKeyword, Priority: 1, Weight: 1,
						Keywords: []string{"technical", "specification", "manual", "guide", "documentation"}},
					{ID: "tech-type", Kind: domain.RuleAffinity, Priority: 2, Weight: 1, DocumentType: "Manual"},
				},
			},
			{
				ID:   "administrative",
				Name: "Administrative",
				Rules: []domain.Rule{
					{ID: "admin-keywords", Kind: domain.RuleKeyword, Priority: 1, Weight: 1,
						Keywords: []string{"admin", "administrative", "procedure", "guideline"}},
				},
			},
		},
	}
}
