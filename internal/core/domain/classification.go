package domain

type RuleKind string

const (
	RuleKeyword  RuleKind = "keyword"
	RulePattern  RuleKind = "pattern"
	RuleAffinity RuleKind = "document_type"
)

// Rule contributes a weighted score toward its category when it
// matches extracted text or document metadata.
type Rule struct {
	ID           string   `json:"id" yaml:"id"`
	Kind         RuleKind `json:"kind" yaml:"kind"`
	Keywords     []string `json:"keywords,omitempty" yaml:"keywords,omitempty"`
	Pattern      string   `json:"pattern,omitempty" yaml:"pattern,omitempty"`
	DocumentType string   `json:"document_type,omitempty" yaml:"document_type,omitempty"`
	Subcategory  string   `json:"subcategory,omitempty" yaml:"subcategory,omitempty"`
	Weight       float64  `json:"weight" yaml:"weight"`
	Priority     int      `json:"priority" yaml:"priority"`
}

// Category is a hierarchical node with its classification rules.
// Read-mostly; mutated by configuration, not by the pipeline.
type Category struct {
	ID            string   `json:"id" yaml:"id"`
	Name          string   `json:"name" yaml:"name"`
	Subcategories []string `json:"subcategories,omitempty" yaml:"subcategories,omitempty"`
	Rules         []Rule   `json:"rules" yaml:"rules"`
}

const CategoryUncategorized = "Uncategorized"

type ClassificationResult struct {
	Category     string   `json:"category"`
	Subcategory  string   `json:"subcategory,omitempty"`
	Confidence   float64  `json:"confidence"`
	MatchedRules []string `json:"matched_rules,omitempty"`
}

// ClassifyInput carries the metadata the scorer may use besides text.
type ClassifyInput struct {
	Title        string
	DocumentType string
}
