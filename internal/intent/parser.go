package intent

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/joescharf/repochat/internal/models"
)

// fencedRe matches a JSON object inside a fenced code block.
var fencedRe = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")

var validIntents = map[models.IntentType]bool{
	models.IntentCodeAnalysis:         true,
	models.IntentArchitectureOverview: true,
	models.IntentIssueSearch:          true,
	models.IntentIssueDetails:         true,
	models.IntentGeneralConversation:  true,
	models.IntentClarification:        true,
	models.IntentGreeting:             true,
}

var validTools = map[string]bool{
	models.ToolReadFileStructure: true,
	models.ToolFetchCode:         true,
	models.ToolFindCodeUsage:     true,
	models.ToolSearchIssues:      true,
	models.ToolGetIssueDetails:   true,
}

// parseDecision extracts a structured decision from free-form LLM text
// using a strict-then-lenient two-pass strategy: a fenced JSON block
// first, then the outermost bare-braces span. Every missing field gets a
// defined default; an unusable intent type fails the parse so the caller
// takes the deterministic fallback instead.
func parseDecision(text string) (*models.IntentDecision, bool) {
	raw, ok := extractJSON(text)
	if !ok {
		return nil, false
	}

	var parsed struct {
		IntentType           string   `json:"intent_type"`
		RequiresTools        *bool    `json:"requires_tools"`
		Confidence           *float64 `json:"confidence"`
		SuggestedTools       []string `json:"suggested_tools"`
		CanAnswerFromContext *bool    `json:"can_answer_from_context"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, false
	}

	intentType := models.IntentType(strings.TrimSpace(parsed.IntentType))
	if !validIntents[intentType] {
		return nil, false
	}

	decision := &models.IntentDecision{
		IntentType:     intentType,
		Confidence:     0.5,
		SuggestedTools: []string{},
	}
	if parsed.RequiresTools != nil {
		decision.RequiresTools = *parsed.RequiresTools
	}
	if parsed.Confidence != nil && *parsed.Confidence >= 0 && *parsed.Confidence <= 1 {
		decision.Confidence = *parsed.Confidence
	}
	for _, tool := range parsed.SuggestedTools {
		if validTools[tool] {
			decision.SuggestedTools = append(decision.SuggestedTools, tool)
		}
	}
	if parsed.CanAnswerFromContext != nil {
		decision.CanAnswerFromContext = *parsed.CanAnswerFromContext
	} else {
		decision.CanAnswerFromContext = !decision.RequiresTools
	}

	return decision, true
}

// extractJSON finds the most plausible JSON object in text.
func extractJSON(text string) (string, bool) {
	if m := fencedRe.FindStringSubmatch(text); m != nil {
		return m[1], true
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		return text[start : end+1], true
	}
	return "", false
}
