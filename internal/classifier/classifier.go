// Package classifier answers routine questions from a keyword knowledge base and
// labels the rest with a priority and tags before they become help requests.
package classifier

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/helpline/escalation-service/internal/domain"
)

// Classifier decides whether a question can be answered without a human.
type Classifier interface {
	Classify(question string) (answer string, ok bool)
	InferPriority(question string) domain.RequestPriority
	ExtractTags(question string) []string
	UrgentKeywords(question string) bool
}

// KnowledgeBase is the YAML document the keyword classifier is built from.
// Topics and tag rules are matched in file order; the first topic hit wins.
type KnowledgeBase struct {
	Topics     []Topic        `yaml:"topics"`
	Priorities []PriorityRule `yaml:"priorities"`
	Tags       []TagRule      `yaml:"tags"`
	Urgent     []string       `yaml:"urgent_keywords"`
}

// Topic maps keywords to a canned answer.
type Topic struct {
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
	Answer   string   `yaml:"answer"`
}

// PriorityRule raises the inferred priority when any keyword matches.
type PriorityRule struct {
	Priority string   `yaml:"priority"`
	Keywords []string `yaml:"keywords"`
}

// TagRule attaches Tag when any keyword matches.
type TagRule struct {
	Tag      string   `yaml:"tag"`
	Keywords []string `yaml:"keywords"`
}

// DefaultKnowledge is used when no knowledge file is configured. It carries no
// topics, so every question is routed to a human.
func DefaultKnowledge() KnowledgeBase {
	return KnowledgeBase{
		Priorities: []PriorityRule{
			{Priority: string(domain.PriorityHigh), Keywords: []string{"urgent", "emergency", "broken", "problem", "issue", "complaint"}},
			{Priority: string(domain.PriorityMedium), Keywords: []string{"appointment", "booking", "reservation", "schedule", "time"}},
		},
		Urgent: []string{"urgent", "emergency", "problem"},
	}
}

// LoadKnowledge reads a knowledge base file.
func LoadKnowledge(path string) (KnowledgeBase, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return KnowledgeBase{}, fmt.Errorf("read knowledge base %s: %w", path, err)
	}
	return ParseKnowledge(raw)
}

// ParseKnowledge decodes and validates a knowledge base document.
func ParseKnowledge(raw []byte) (KnowledgeBase, error) {
	var kb KnowledgeBase
	if err := yaml.Unmarshal(raw, &kb); err != nil {
		return KnowledgeBase{}, fmt.Errorf("parse knowledge base: %w", err)
	}
	for i, rule := range kb.Priorities {
		p, err := domain.ParsePriority(rule.Priority)
		if err != nil {
			return KnowledgeBase{}, fmt.Errorf("priority rule %d: %w", i, err)
		}
		kb.Priorities[i].Priority = string(p)
	}
	for i, topic := range kb.Topics {
		if strings.TrimSpace(topic.Answer) == "" {
			return KnowledgeBase{}, fmt.Errorf("topic %q (%d): answer is required", topic.Name, i)
		}
	}
	return kb, nil
}

// KeywordClassifier matches lower-cased substrings.
type KeywordClassifier struct {
	kb KnowledgeBase
}

// NewKeywordClassifier builds a classifier over kb.
func NewKeywordClassifier(kb KnowledgeBase) *KeywordClassifier {
	return &KeywordClassifier{kb: kb}
}

func (c *KeywordClassifier) Classify(question string) (string, bool) {
	text := strings.ToLower(question)
	for _, topic := range c.kb.Topics {
		if containsAny(text, topic.Keywords) {
			return strings.TrimSpace(topic.Answer), true
		}
	}
	return "", false
}

// InferPriority returns the highest priority whose keywords match, LOW otherwise.
func (c *KeywordClassifier) InferPriority(question string) domain.RequestPriority {
	text := strings.ToLower(question)
	best := domain.PriorityLow
	for _, rule := range c.kb.Priorities {
		p := domain.RequestPriority(rule.Priority)
		if p.Rank() > best.Rank() && containsAny(text, rule.Keywords) {
			best = p
		}
	}
	return best
}

func (c *KeywordClassifier) ExtractTags(question string) []string {
	text := strings.ToLower(question)
	var tags []string
	for _, rule := range c.kb.Tags {
		if containsAny(text, rule.Keywords) {
			tags = append(tags, rule.Tag)
		}
	}
	return tags
}

func (c *KeywordClassifier) UrgentKeywords(question string) bool {
	return containsAny(strings.ToLower(question), c.kb.Urgent)
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" && strings.Contains(text, kw) {
			return true
		}
	}
	return false
}
