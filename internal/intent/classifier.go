// Package intent classifies the purpose of a user message and decides
// which tools, if any, should run before answering. Classification never
// fails: when the completion capability is unavailable or returns
// something unparseable, a deterministic keyword fallback takes over.
package intent

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/joescharf/repochat/internal/llm"
	"github.com/joescharf/repochat/internal/models"
)

// Only this many recent messages inform the classification; older history
// still feeds the final answer, just not this decision.
const historyWindow = 6

const classifySystemPrompt = `You classify user messages for a codebase analysis assistant. Return ONLY a JSON object with these fields:
- "intent_type": one of "code_analysis", "architecture_overview", "issue_search", "issue_details", "general_conversation", "clarification", "greeting"
- "requires_tools": boolean, true if answering needs repository or issue lookups
- "confidence": number between 0 and 1
- "suggested_tools": array drawn from "read_file_structure", "fetch_code", "find_code_usage", "search_related_issues", "get_issue_details"
- "can_answer_from_context": boolean, true if the conversation alone suffices

Return valid JSON only, no markdown fencing or explanation.`

// Classifier produces an IntentDecision per user turn.
type Classifier struct {
	llm   llm.Completer
	model string
}

// NewClassifier creates a classifier. completer may be nil, in which case
// only the deterministic fallback runs.
func NewClassifier(completer llm.Completer, model string) *Classifier {
	return &Classifier{llm: completer, model: model}
}

// Classify returns a decision for the query. It always succeeds.
func (c *Classifier) Classify(ctx context.Context, query string, history []models.ChatMessage, repoLoaded bool) models.IntentDecision {
	if c.llm != nil {
		if decision, ok := c.classifyWithLLM(ctx, query, history, repoLoaded); ok {
			return decision
		}
	}
	return Fallback(query, repoLoaded)
}

func (c *Classifier) classifyWithLLM(ctx context.Context, query string, history []models.ChatMessage, repoLoaded bool) (models.IntentDecision, bool) {
	if len(history) > historyWindow {
		history = history[len(history)-historyWindow:]
	}

	var sb strings.Builder
	if len(history) > 0 {
		sb.WriteString("Recent conversation:\n")
		for _, m := range history {
			fmt.Fprintf(&sb, "%s: %s\n", m.Role, m.Content)
		}
		sb.WriteString("\n")
	}
	fmt.Fprintf(&sb, "Repository loaded: %t\n\n", repoLoaded)
	sb.WriteString("Classify this message: ")
	sb.WriteString(query)

	messages := []models.ChatMessage{
		{Role: models.RoleSystem, Content: classifySystemPrompt},
		{Role: models.RoleUser, Content: sb.String()},
	}

	text, err := c.llm.Complete(ctx, messages, c.model)
	if err != nil {
		return models.IntentDecision{}, false
	}
	decision, ok := parseDecision(text)
	if !ok {
		return models.IntentDecision{}, false
	}
	return *decision, true
}

var issueNumberRe = regexp.MustCompile(`#\d+`)

var greetingWords = map[string]bool{
	"hello": true, "hi": true, "hey": true, "howdy": true,
	"greetings": true, "thanks": true, "thank": true,
}

var issueWords = []string{"issue", "bug", "pull request", "ticket", "regression", "crash"}

var structureWords = []string{"architecture", "structure", "organized", "organised", "layout", "overview", "module"}

// Fallback derives a decision from keyword heuristics against the
// lower-cased query. This branch is the deterministic contract the system
// degrades to when the completion capability misbehaves.
func Fallback(query string, repoLoaded bool) models.IntentDecision {
	lower := strings.ToLower(query)
	words := strings.FieldsFunc(lower, func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	})

	for _, w := range words {
		if greetingWords[w] {
			return models.IntentDecision{
				IntentType:           models.IntentGreeting,
				RequiresTools:        false,
				Confidence:           0.9,
				SuggestedTools:       []string{},
				CanAnswerFromContext: true,
			}
		}
	}

	for _, kw := range issueWords {
		if strings.Contains(lower, kw) {
			if issueNumberRe.MatchString(query) {
				return models.IntentDecision{
					IntentType:     models.IntentIssueDetails,
					RequiresTools:  true,
					Confidence:     0.8,
					SuggestedTools: []string{models.ToolGetIssueDetails},
				}
			}
			return models.IntentDecision{
				IntentType:     models.IntentIssueSearch,
				RequiresTools:  true,
				Confidence:     0.7,
				SuggestedTools: []string{models.ToolSearchIssues},
			}
		}
	}

	for _, kw := range structureWords {
		if strings.Contains(lower, kw) {
			return models.IntentDecision{
				IntentType:     models.IntentArchitectureOverview,
				RequiresTools:  true,
				Confidence:     0.7,
				SuggestedTools: []string{models.ToolReadFileStructure},
			}
		}
	}

	if repoLoaded {
		return models.IntentDecision{
			IntentType:     models.IntentCodeAnalysis,
			RequiresTools:  true,
			Confidence:     0.5,
			SuggestedTools: []string{models.ToolReadFileStructure, models.ToolFetchCode},
		}
	}
	return models.IntentDecision{
		IntentType:           models.IntentGeneralConversation,
		RequiresTools:        false,
		Confidence:           0.5,
		SuggestedTools:       []string{},
		CanAnswerFromContext: true,
	}
}
