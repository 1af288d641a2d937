package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/formflow/automation/internal/interfaces"
)

func TestParseAndValidate_AcceptsWellFormedArray(t *testing.T) {
	text := `[{"selector": "#email", "profile_field": "email", "field_kind": "email", "confidence": 0.95}]`
	entries, err := parseAndValidate(text, []string{"email", "firstName"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "#email", entries[0].Selector)
	assert.Equal(t, "email", entries[0].ProfileKey)
	assert.Equal(t, 0.95, entries[0].Confidence)
}

func TestParseAndValidate_StripsMarkdownFence(t *testing.T) {
	text := "```json\n[{\"selector\": \"#fn\", \"profile_field\": \"firstName\", \"field_kind\": \"text\", \"confidence\": 0.8}]\n```"
	entries, err := parseAndValidate(text, []string{"firstName"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestParseAndValidate_DiscardsUnknownProfileKey(t *testing.T) {
	text := `[{"selector": "#x", "profile_field": "favoriteColor", "field_kind": "text", "confidence": 0.9}]`
	entries, err := parseAndValidate(text, []string{"email"})
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestParseAndValidate_DiscardsOutOfRangeConfidence(t *testing.T) {
	text := `[{"selector": "#x", "profile_field": "email", "field_kind": "email", "confidence": 1.5}]`
	entries, err := parseAndValidate(text, []string{"email"})
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestParseAndValidate_DiscardsEmptySelector(t *testing.T) {
	text := `[{"selector": "", "profile_field": "email", "field_kind": "email", "confidence": 0.9}]`
	entries, err := parseAndValidate(text, []string{"email"})
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestParseAndValidate_NoArrayFound(t *testing.T) {
	_, err := parseAndValidate("I cannot map these fields.", []string{"email"})
	assert.Error(t, err)
}

func TestBuildPrompt_TruncatesLargeHTML(t *testing.T) {
	html := make([]byte, maxFormHTMLBytes+500)
	for i := range html {
		html[i] = 'a'
	}
	prompt := buildPrompt(interfaces.FieldAnalyzerRequest{
		FormHTML:      string(html),
		CanonicalKeys: []string{"email"},
	})
	assert.LessOrEqual(t, len(prompt), maxFormHTMLBytes+200)
}
