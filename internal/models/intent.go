package models

// IntentType classifies the purpose of a user message.
type IntentType string

const (
	IntentCodeAnalysis         IntentType = "code_analysis"
	IntentArchitectureOverview IntentType = "architecture_overview"
	IntentIssueSearch          IntentType = "issue_search"
	IntentIssueDetails         IntentType = "issue_details"
	IntentGeneralConversation  IntentType = "general_conversation"
	IntentClarification        IntentType = "clarification"
	IntentGreeting             IntentType = "greeting"
)

// Tool names the agent may execute for a turn. The set is closed; dispatch
// is a plain switch, no runtime registration.
const (
	ToolReadFileStructure  = "read_file_structure"
	ToolFetchCode          = "fetch_code"
	ToolFindCodeUsage      = "find_code_usage"
	ToolSearchIssues       = "search_related_issues"
	ToolGetIssueDetails    = "get_issue_details"
)

// IntentDecision is the classifier's output for one user turn.
type IntentDecision struct {
	IntentType           IntentType `json:"intent_type"`
	RequiresTools        bool       `json:"requires_tools"`
	Confidence           float64    `json:"confidence"`
	SuggestedTools       []string   `json:"suggested_tools"`
	CanAnswerFromContext bool       `json:"can_answer_from_context"`
}

// HasTool reports whether the decision suggests the named tool.
func (d *IntentDecision) HasTool(name string) bool {
	for _, t := range d.SuggestedTools {
		if t == name {
			return true
		}
	}
	return false
}
