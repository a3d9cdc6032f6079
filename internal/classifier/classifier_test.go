package classifier

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helpline/escalation-service/internal/domain"
)

func loadShipped(t *testing.T) *KeywordClassifier {
	t.Helper()
	kb, err := LoadKnowledge(filepath.Join("..", "..", "configs", "knowledge.yaml"))
	require.NoError(t, err)
	return NewKeywordClassifier(kb)
}

func TestClassifyAnswersKnownTopics(t *testing.T) {
	c := loadShipped(t)
	answer, ok := c.Classify("What are your opening HOURS on Saturday?")
	require.True(t, ok)
	assert.Contains(t, answer, "Saturday")

	_, ok = c.Classify("Can you fix my ruined perm?")
	assert.False(t, ok)
}

func TestInferPriority(t *testing.T) {
	c := NewKeywordClassifier(DefaultKnowledge())
	assert.Equal(t, domain.PriorityHigh, c.InferPriority("I have a complaint about my appointment"))
	assert.Equal(t, domain.PriorityMedium, c.InferPriority("Can I change my booking?"))
	assert.Equal(t, domain.PriorityLow, c.InferPriority("Do you sell gift cards?"))
}

func TestExtractTagsAndUrgency(t *testing.T) {
	c := loadShipped(t)
	assert.Equal(t, []string{"hair", "bridal", "pricing"}, c.ExtractTags("How much is bridal hair?"))
	assert.Empty(t, c.ExtractTags("hello"))
	assert.True(t, c.UrgentKeywords("This is an EMERGENCY"))
	assert.False(t, c.UrgentKeywords("just curious"))
}

func TestDefaultKnowledgeRoutesEverythingToHumans(t *testing.T) {
	_, ok := NewKeywordClassifier(DefaultKnowledge()).Classify("what are your hours")
	assert.False(t, ok)
}

func TestParseKnowledgeValidation(t *testing.T) {
	_, err := ParseKnowledge([]byte("priorities:\n  - priority: CRITICAL\n    keywords: [x]\n"))
	assert.Error(t, err)

	_, err = ParseKnowledge([]byte("topics:\n  - name: empty\n    keywords: [x]\n"))
	assert.Error(t, err)

	kb, err := ParseKnowledge([]byte("priorities:\n  - priority: urgent\n    keywords: [fire]\n"))
	require.NoError(t, err)
	assert.Equal(t, domain.PriorityUrgent, NewKeywordClassifier(kb).InferPriority("there is a fire"))

	_, err = LoadKnowledge(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
