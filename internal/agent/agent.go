package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/joescharf/repochat/internal/github"
	"github.com/joescharf/repochat/internal/intent"
	"github.com/joescharf/repochat/internal/llm"
	"github.com/joescharf/repochat/internal/models"
	"github.com/joescharf/repochat/internal/repo"
	"github.com/joescharf/repochat/internal/sessions"
)

const (
	maxEvidenceFiles      = 5
	synthesisHistoryTurns = 4
	maxStructurePaths     = 200
	maxIssueResults       = 5
)

// NoRepoGuidance is returned verbatim when a turn needs repository tools but
// no repository has been loaded. No completion request is made for such turns.
const NoRepoGuidance = "I don't have a repository loaded yet. Load one first " +
	"(POST /api/v1/repo/load or `repochat scan <url>`), then ask me again."

const synthesisSystemPrompt = `You are a code analysis assistant. Answer the user's question about the loaded repository using the evidence provided. Be concrete: cite file paths and import relationships when they support your answer. If the evidence is insufficient, say what is missing instead of guessing.`

var (
	jsonArrayRe   = regexp.MustCompile(`(?s)\[.*?\]`)
	issueNumberRe = regexp.MustCompile(`#(\d+)`)
)

// Agent drives a chat turn from classification through synthesis.
type Agent struct {
	repo       *repo.Store
	gateway    github.Gateway
	llm        llm.Completer
	sessions   *sessions.Manager
	classifier *intent.Classifier
	model      string
}

func New(repoStore *repo.Store, gateway github.Gateway, completer llm.Completer, sess *sessions.Manager, classifier *intent.Classifier, model string) *Agent {
	return &Agent{
		repo:       repoStore,
		gateway:    gateway,
		llm:        completer,
		sessions:   sess,
		classifier: classifier,
		model:      model,
	}
}

// HandleTurn runs one chat turn for a session: classify the query, gather
// tool evidence when the intent calls for it, and synthesize a reply. The
// user message is recorded before classification; the assistant reply is
// recorded only when the turn succeeds.
func (a *Agent) HandleTurn(ctx context.Context, sessionID, query string) (string, error) {
	history := a.sessions.History(sessionID)
	if err := a.sessions.Append(sessionID, models.ChatMessage{Role: models.RoleUser, Content: query}); err != nil {
		return "", err
	}

	repoLoaded := a.repo.Current() != nil
	decision := a.classifier.Classify(ctx, query, history, repoLoaded)

	if decision.RequiresTools && !repoLoaded {
		a.record(sessionID, NoRepoGuidance)
		return NoRepoGuidance, nil
	}

	var ev evidenceBundle
	if decision.RequiresTools {
		ev = a.executeTools(ctx, query, decision)
	}

	answer, err := a.synthesize(ctx, query, decision, ev, history)
	if err != nil {
		return "", err
	}
	a.record(sessionID, answer)
	return answer, nil
}

func (a *Agent) record(sessionID, answer string) {
	if err := a.sessions.Append(sessionID, models.ChatMessage{Role: models.RoleAssistant, Content: answer}); err != nil {
		slog.Warn("failed to record assistant message", "session", sessionID, "error", err)
	}
}

type fileEvidence struct {
	path    string
	content string
	usage   *models.FileUsage
}

// evidenceBundle collects tool results for synthesis. Tool failures land in
// notes as explicit markers rather than aborting the turn.
type evidenceBundle struct {
	structure   *models.FileStructure
	files       []fileEvidence
	issues      []github.IssueSummary
	issueDetail *github.IssueDetails
	notes       []string
}

func (e evidenceBundle) empty() bool {
	return e.structure == nil && len(e.files) == 0 && len(e.issues) == 0 &&
		e.issueDetail == nil && len(e.notes) == 0
}

func (a *Agent) executeTools(ctx context.Context, query string, decision models.IntentDecision) evidenceBundle {
	var ev evidenceBundle

	wantFiles := decision.HasTool(models.ToolFetchCode) || decision.HasTool(models.ToolFindCodeUsage)
	if decision.HasTool(models.ToolReadFileStructure) || wantFiles {
		if fs, err := a.repo.FileStructure(); err == nil {
			ev.structure = fs
		} else {
			ev.notes = append(ev.notes, fmt.Sprintf("file structure unavailable: %v", err))
		}
	}

	if wantFiles {
		a.gatherFiles(ctx, query, decision, &ev)
	}

	sourceURL, _ := a.repo.SourceURL()

	if decision.HasTool(models.ToolSearchIssues) {
		if issues, err := a.gateway.SearchIssues(ctx, sourceURL, query); err != nil {
			ev.notes = append(ev.notes, fmt.Sprintf("issue search failed: %v", err))
		} else {
			if len(issues) > maxIssueResults {
				issues = issues[:maxIssueResults]
			}
			ev.issues = issues
		}
	}

	if decision.HasTool(models.ToolGetIssueDetails) {
		if num, ok := extractIssueNumber(query); !ok {
			ev.notes = append(ev.notes, "issue details unavailable: no issue number found in the question")
		} else if details, err := a.gateway.GetIssueDetails(ctx, sourceURL, num); err != nil {
			ev.notes = append(ev.notes, fmt.Sprintf("issue #%d details failed: %v", num, err))
		} else {
			ev.issueDetail = details
		}
	}

	return ev
}

func (a *Agent) gatherFiles(ctx context.Context, query string, decision models.IntentDecision, ev *evidenceBundle) {
	snap := a.repo.Current()
	if snap == nil {
		return
	}
	paths := a.selectFiles(ctx, query, snap.Paths())
	for _, p := range paths {
		fe := fileEvidence{path: p}
		rec, err := a.repo.FetchFile(p)
		if err != nil {
			ev.notes = append(ev.notes, fmt.Sprintf("file %s: %v", p, err))
			continue
		}
		fe.content = rec.Content
		if decision.HasTool(models.ToolFindCodeUsage) {
			if usage, err := a.repo.UsageOf(p); err == nil {
				fe.usage = usage
			}
		}
		ev.files = append(ev.files, fe)
	}
}

// selectFiles asks the model which files answer the query. The response is
// parsed defensively: any failure yields an empty selection, never an error.
func (a *Agent) selectFiles(ctx context.Context, query string, paths []string) []string {
	if a.llm == nil || len(paths) == 0 {
		return nil
	}
	listed := paths
	if len(listed) > maxStructurePaths {
		listed = listed[:maxStructurePaths]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n\nRepository files:\n", query)
	for _, p := range listed {
		b.WriteString(p)
		b.WriteByte('\n')
	}
	fmt.Fprintf(&b, "\nRespond with a JSON array of at most %d file paths from the list above that are most relevant to the question. Respond with the JSON array only.", maxEvidenceFiles)

	resp, err := a.llm.Complete(ctx, []models.ChatMessage{
		{Role: models.RoleUser, Content: b.String()},
	}, a.model)
	if err != nil {
		slog.Warn("file selection failed", "error", err)
		return nil
	}
	return parseFileSelection(resp, paths)
}

func parseFileSelection(resp string, known []string) []string {
	raw := jsonArrayRe.FindString(resp)
	if raw == "" {
		return nil
	}
	var selected []string
	if err := json.Unmarshal([]byte(raw), &selected); err != nil {
		return nil
	}
	knownSet := make(map[string]bool, len(known))
	for _, p := range known {
		knownSet[p] = true
	}
	var out []string
	for _, p := range selected {
		if knownSet[p] && !contains(out, p) {
			out = append(out, p)
		}
		if len(out) == maxEvidenceFiles {
			break
		}
	}
	return out
}

func (a *Agent) synthesize(ctx context.Context, query string, decision models.IntentDecision, ev evidenceBundle, history []models.ChatMessage) (string, error) {
	if a.llm == nil {
		return "", &llm.CompletionError{Provider: "none", Err: fmt.Errorf("no completion provider configured")}
	}

	messages := []models.ChatMessage{
		{Role: models.RoleSystem, Content: synthesisSystemPrompt},
	}
	if len(history) > 2*synthesisHistoryTurns {
		history = history[len(history)-2*synthesisHistoryTurns:]
	}
	messages = append(messages, history...)
	messages = append(messages, models.ChatMessage{
		Role:    models.RoleUser,
		Content: buildSynthesisPrompt(query, decision, ev),
	})

	answer, err := a.llm.Complete(ctx, messages, a.model)
	if err != nil {
		return "", err
	}
	return answer, nil
}

func buildSynthesisPrompt(query string, decision models.IntentDecision, ev evidenceBundle) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Intent: %s\n", decision.IntentType)

	if !ev.empty() {
		b.WriteString("\n## Evidence\n")
	}
	if ev.structure != nil {
		fmt.Fprintf(&b, "\nRepository structure: %d files", ev.structure.TotalFiles)
		if len(ev.structure.FileTypes) > 0 {
			b.WriteString(" (")
			first := true
			for ext, n := range ev.structure.FileTypes {
				if !first {
					b.WriteString(", ")
				}
				fmt.Fprintf(&b, "%s: %d", ext, n)
				first = false
			}
			b.WriteString(")")
		}
		b.WriteByte('\n')
	}
	for _, fe := range ev.files {
		fmt.Fprintf(&b, "\n### %s\n```\n%s\n```\n", fe.path, fe.content)
		if fe.usage != nil {
			fmt.Fprintf(&b, "Imports: %s\nUsed by: %s\n",
				joinOrNone(fe.usage.Imports), joinOrNone(fe.usage.UsedBy))
		}
	}
	if len(ev.issues) > 0 {
		b.WriteString("\n### Related issues\n")
		for _, is := range ev.issues {
			kind := "issue"
			if is.IsPullRequest {
				kind = "pull request"
			}
			fmt.Fprintf(&b, "- #%d [%s, %s] %s\n", is.Number, kind, is.State, is.Title)
		}
	}
	if ev.issueDetail != nil {
		d := ev.issueDetail
		fmt.Fprintf(&b, "\n### Issue #%d: %s [%s]\n%s\n", d.Issue.Number, d.Issue.Title, d.Issue.State, d.Issue.Body)
		for _, c := range d.Comments {
			fmt.Fprintf(&b, "\nComment by %s (%s):\n%s\n", c.Author, c.CreatedAt, c.Body)
		}
		for _, r := range d.Reviews {
			fmt.Fprintf(&b, "\nReview by %s [%s]:\n%s\n", r.Author, r.State, r.Body)
		}
	}
	for _, note := range ev.notes {
		fmt.Fprintf(&b, "\nNote: %s\n", note)
	}

	fmt.Fprintf(&b, "\n## Question\n%s\n", query)
	return b.String()
}

func extractIssueNumber(query string) (int, bool) {
	m := issueNumberRe.FindStringSubmatch(query)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

func joinOrNone(items []string) string {
	if len(items) == 0 {
		return "none"
	}
	return strings.Join(items, ", ")
}

func contains(items []string, s string) bool {
	for _, it := range items {
		if it == s {
			return true
		}
	}
	return false
}
