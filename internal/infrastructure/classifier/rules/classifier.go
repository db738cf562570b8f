// Package rules is a deterministic weighted-rule scorer: keyword,
// regex and document-type affinity rules contribute to their
// category's aggregate score; the highest score wins.
package rules

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/kirillkom/archivist/internal/core/domain"
)

type compiledRule struct {
	rule    domain.Rule
	pattern *regexp.Regexp
}

type compiledCategory struct {
	category    domain.Category
	rules       []compiledRule
	totalWeight float64
}

type Classifier struct {
	minConfidence float64
	categories    []compiledCategory
}

func New(cfg Config) (*Classifier, error) {
	if len(cfg.Categories) == 0 {
		return nil, fmt.Errorf("classifier: no categories configured")
	}
	compiled := make([]compiledCategory, 0, len(cfg.Categories))
	for _, category := range cfg.Categories {
		cc := compiledCategory{category: category}
		for _, rule := range category.Rules {
			cr := compiledRule{rule: rule}
			if rule.Weight <= 0 {
				cr.rule.Weight = 1
			}
			if rule.Kind == domain.RulePattern {
				pattern, err := regexp.Compile("(?i)" + rule.Pattern)
				if err != nil {
					return nil, fmt.Errorf("classifier: rule %s: invalid pattern: %w", rule.ID, err)
				}
				cr.pattern = pattern
			}
			cc.rules = append(cc.rules, cr)
			cc.totalWeight += cr.rule.Weight
		}
		compiled = append(compiled, cc)
	}
	return &Classifier{minConfidence: cfg.MinConfidence, categories: compiled}, nil
}

type categoryScore struct {
	category    compiledCategory
	score       float64
	bestRule    int // lowest Priority value among matched rules
	matched     []string
	subcategory string
}

// Classify never fails hard on empty text: keyword and pattern rules
// simply cannot match and scoring degrades to document-type affinity.
func (c *Classifier) Classify(ctx context.Context, text string, meta domain.ClassifyInput) (domain.ClassificationResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.ClassificationResult{}, err
	}

	haystack := strings.ToLower(strings.TrimSpace(meta.Title + " " + text))

	scores := make([]categoryScore, 0, len(c.categories))
	for _, category := range c.categories {
		cs := categoryScore{category: category, bestRule: int(^uint(0) >> 1)}
		var bestSubWeight float64
		for _, cr := range category.rules {
			if !matches(cr, haystack, meta.DocumentType) {
				continue
			}
			cs.score += cr.rule.Weight
			cs.matched = append(cs.matched, cr.rule.ID)
			if cr.rule.Priority < cs.bestRule {
				cs.bestRule = cr.rule.Priority
			}
			if cr.rule.Subcategory != "" && cr.rule.Weight > bestSubWeight {
				cs.subcategory = cr.rule.Subcategory
				bestSubWeight = cr.rule.Weight
			}
		}
		if cs.score > 0 {
			scores = append(scores, cs)
		}
	}

	if len(scores) == 0 {
		return domain.ClassificationResult{Category: domain.CategoryUncategorized}, nil
	}

	sort.SliceStable(scores, func(i, j int) bool {
		if scores[i].score != scores[j].score {
			return scores[i].score > scores[j].score
		}
		if scores[i].bestRule != scores[j].bestRule {
			return scores[i].bestRule < scores[j].bestRule
		}
		return scores[i].category.category.ID < scores[j].category.category.ID
	})

	winner := scores[0]
	confidence := winner.score / winner.category.totalWeight
	if confidence > 1 {
		confidence = 1
	}
	if confidence < c.minConfidence {
		return domain.ClassificationResult{
			Category:     domain.CategoryUncategorized,
			Confidence:   confidence,
			MatchedRules: winner.matched,
		}, nil
	}
	return domain.ClassificationResult{
		Category:     winner.category.category.Name,
		Subcategory:  winner.subcategory,
		Confidence:   confidence,
		MatchedRules: winner.matched,
	}, nil
}

func matches(cr compiledRule, haystack, documentType string) bool {
	switch cr.rule.Kind {
	case domain.RuleKeyword:
		if haystack == "" {
			return false
		}
		for _, keyword := range cr.rule.Keywords {
			if strings.Contains(haystack, strings.ToLower(keyword)) {
				return true
			}
		}
		return false
	case domain.RulePattern:
		return haystack != "" && cr.pattern.MatchString(haystack)
	case domain.RuleAffinity:
		return documentType != "" && strings.EqualFold(documentType, cr.rule.DocumentType)
	default:
		return false
	}
}
