package agent

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/repochat/internal/github"
	"github.com/joescharf/repochat/internal/intent"
	"github.com/joescharf/repochat/internal/llm"
	"github.com/joescharf/repochat/internal/models"
	"github.com/joescharf/repochat/internal/repo"
	"github.com/joescharf/repochat/internal/sessions"
)

type seqCompleter struct {
	responses []string
	err       error
	calls     int
	prompts   []string
}

func (c *seqCompleter) Complete(_ context.Context, messages []models.ChatMessage, _ string) (string, error) {
	c.calls++
	c.prompts = append(c.prompts, messages[len(messages)-1].Content)
	if c.err != nil {
		return "", c.err
	}
	if c.calls <= len(c.responses) {
		return c.responses[c.calls-1], nil
	}
	return "", errors.New("no scripted response left")
}

func (c *seqCompleter) Name() string { return "fake" }

type fakeGateway struct {
	issues      []github.IssueSummary
	details     *github.IssueDetails
	err         error
	searchCalls int
	detailCalls int
}

func (g *fakeGateway) SearchIssues(context.Context, string, string) ([]github.IssueSummary, error) {
	g.searchCalls++
	if g.err != nil {
		return nil, g.err
	}
	return g.issues, nil
}

func (g *fakeGateway) GetIssueDetails(context.Context, string, int) (*github.IssueDetails, error) {
	g.detailCalls++
	if g.err != nil {
		return nil, g.err
	}
	return g.details, nil
}

func (g *fakeGateway) GetRepoMetadata(context.Context, string) (*github.RepoMetadata, error) {
	return &github.RepoMetadata{}, nil
}

type fakeGit struct {
	files map[string]string
}

func (f *fakeGit) CloneRepo(_ context.Context, _ string, dir string) error {
	for name, content := range f.files {
		full := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
			return err
		}
	}
	return nil
}

func newAgent(t *testing.T, completer llm.Completer, gateway github.Gateway, files map[string]string) (*Agent, *sessions.Manager) {
	t.Helper()
	repoStore := repo.New(&fakeGit{files: files}, nil, time.Minute)
	if files != nil {
		require.NoError(t, repoStore.Load(context.Background(), "https://github.com/acme/demo.git"))
	}
	sess := sessions.NewManager(0)
	classifier := intent.NewClassifier(nil, "")
	return New(repoStore, gateway, completer, sess, classifier, "test-model"), sess
}

func TestHandleTurn_NoRepositoryReturnsGuidance(t *testing.T) {
	completer := &seqCompleter{}
	agent, sess := newAgent(t, completer, &fakeGateway{}, nil)

	answer, err := agent.HandleTurn(context.Background(), "s1", "show me the architecture")

	require.NoError(t, err)
	assert.Equal(t, NoRepoGuidance, answer)
	assert.Equal(t, 0, completer.calls, "no completion call should be made")

	history := sess.History("s1")
	require.Len(t, history, 2)
	assert.Equal(t, models.RoleUser, history[0].Role)
	assert.Equal(t, NoRepoGuidance, history[1].Content)
}

func TestHandleTurn_Conversational(t *testing.T) {
	completer := &seqCompleter{responses: []string{"Hello! Ask me about a repository."}}
	agent, _ := newAgent(t, completer, &fakeGateway{}, nil)

	answer, err := agent.HandleTurn(context.Background(), "s1", "hello there")

	require.NoError(t, err)
	assert.Equal(t, "Hello! Ask me about a repository.", answer)
	assert.Equal(t, 1, completer.calls, "conversational turns synthesize directly")
}

func TestHandleTurn_CodeAnalysisGathersFileEvidence(t *testing.T) {
	completer := &seqCompleter{responses: []string{
		`["pkg/parser.py"]`,
		"The parser lives in pkg/parser.py.",
	}}
	agent, _ := newAgent(t, completer, &fakeGateway{}, map[string]string{
		"pkg/parser.py": "import helpers\n",
		"helpers.py":    "x = 1\n",
	})

	answer, err := agent.HandleTurn(context.Background(), "s1", "how does the parser work?")

	require.NoError(t, err)
	assert.Equal(t, "The parser lives in pkg/parser.py.", answer)
	require.Equal(t, 2, completer.calls, "one selection call, one synthesis call")
	assert.Contains(t, completer.prompts[0], "pkg/parser.py")
	assert.Contains(t, completer.prompts[1], "### pkg/parser.py")
	assert.Contains(t, completer.prompts[1], "import helpers")
}

func TestHandleTurn_MalformedSelectionDegradesToStructureOnly(t *testing.T) {
	completer := &seqCompleter{responses: []string{
		"I think parser.py is relevant",
		"Answer from structure alone.",
	}}
	agent, _ := newAgent(t, completer, &fakeGateway{}, map[string]string{
		"parser.py": "x = 1\n",
	})

	answer, err := agent.HandleTurn(context.Background(), "s1", "how does the parser work?")

	require.NoError(t, err)
	assert.Equal(t, "Answer from structure alone.", answer)
	assert.NotContains(t, completer.prompts[1], "### parser.py")
	assert.Contains(t, completer.prompts[1], "Repository structure")
}

func TestHandleTurn_IssueSearchEvidence(t *testing.T) {
	gateway := &fakeGateway{issues: []github.IssueSummary{
		{Number: 42, Title: "Crash on startup", State: "open"},
	}}
	completer := &seqCompleter{responses: []string{"Issue #42 matches."}}
	agent, _ := newAgent(t, completer, gateway, map[string]string{"main.py": ""})

	answer, err := agent.HandleTurn(context.Background(), "s1", "any known bug about the startup crash?")

	require.NoError(t, err)
	assert.Equal(t, "Issue #42 matches.", answer)
	assert.Equal(t, 1, gateway.searchCalls)
	assert.Contains(t, completer.prompts[0], "#42")
	assert.Contains(t, completer.prompts[0], "Crash on startup")
}

func TestHandleTurn_IssueDetailsEvidence(t *testing.T) {
	gateway := &fakeGateway{details: &github.IssueDetails{
		Issue:    github.IssueSummary{Number: 7, Title: "Flaky test", State: "closed", Body: "fails on CI"},
		Comments: []github.Comment{{Author: "alice", Body: "fixed in main", CreatedAt: "2026-01-02T00:00:00Z"}},
		Reviews:  []github.Review{},
	}}
	completer := &seqCompleter{responses: []string{"Issue #7 was a flaky test."}}
	agent, _ := newAgent(t, completer, gateway, map[string]string{"main.py": ""})

	answer, err := agent.HandleTurn(context.Background(), "s1", "what happened with issue #7?")

	require.NoError(t, err)
	assert.Equal(t, "Issue #7 was a flaky test.", answer)
	assert.Equal(t, 1, gateway.detailCalls)
	assert.Contains(t, completer.prompts[0], "Issue #7: Flaky test")
	assert.Contains(t, completer.prompts[0], "fixed in main")
}

func TestHandleTurn_GatewayErrorBecomesEvidenceNote(t *testing.T) {
	gateway := &fakeGateway{err: &github.GatewayError{Kind: github.KindRateLimited, Msg: "search rate limit exhausted"}}
	completer := &seqCompleter{responses: []string{"GitHub is rate limiting us right now."}}
	agent, _ := newAgent(t, completer, gateway, map[string]string{"main.py": ""})

	answer, err := agent.HandleTurn(context.Background(), "s1", "search issues about the crash")

	require.NoError(t, err, "gateway failures degrade, they do not fail the turn")
	assert.Equal(t, "GitHub is rate limiting us right now.", answer)
	assert.Contains(t, completer.prompts[0], "issue search failed")
	assert.Contains(t, completer.prompts[0], "rate limit")
}

func TestHandleTurn_SynthesisFailureFailsTurn(t *testing.T) {
	completer := &seqCompleter{err: &llm.CompletionError{Provider: "fake", Err: errors.New("boom")}}
	agent, sess := newAgent(t, completer, &fakeGateway{}, nil)

	_, err := agent.HandleTurn(context.Background(), "s1", "hello")

	var cerr *llm.CompletionError
	require.ErrorAs(t, err, &cerr)

	history := sess.History("s1")
	require.Len(t, history, 1, "failed turns keep the user message only")
	assert.Equal(t, models.RoleUser, history[0].Role)
}

func TestHandleTurn_HistoryAccumulatesAcrossTurns(t *testing.T) {
	completer := &seqCompleter{responses: []string{"first", "second"}}
	agent, sess := newAgent(t, completer, &fakeGateway{}, nil)

	_, err := agent.HandleTurn(context.Background(), "s1", "hello")
	require.NoError(t, err)
	_, err = agent.HandleTurn(context.Background(), "s1", "thanks")
	require.NoError(t, err)

	history := sess.History("s1")
	require.Len(t, history, 4)
	assert.Equal(t, "first", history[1].Content)
	assert.Equal(t, "thanks", history[2].Content)
}

func TestParseFileSelection(t *testing.T) {
	known := []string{"a.py", "b.py", "c.py", "d.py", "e.py", "f.py", "g.py"}

	tests := []struct {
		name string
		resp string
		want []string
	}{
		{"plain array", `["a.py", "b.py"]`, []string{"a.py", "b.py"}},
		{"array inside prose", "Sure: [\"b.py\"] is the one.", []string{"b.py"}},
		{"unknown paths dropped", `["a.py", "zz.py"]`, []string{"a.py"}},
		{"duplicates collapsed", `["a.py", "a.py", "b.py"]`, []string{"a.py", "b.py"}},
		{"capped at five", `["a.py","b.py","c.py","d.py","e.py","f.py"]`, []string{"a.py", "b.py", "c.py", "d.py", "e.py"}},
		{"no array", "cannot say", nil},
		{"malformed json", `[a.py, b.py]`, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseFileSelection(tt.resp, known))
		})
	}
}

func TestExtractIssueNumber(t *testing.T) {
	n, ok := extractIssueNumber("what about issue #123?")
	require.True(t, ok)
	assert.Equal(t, 123, n)

	_, ok = extractIssueNumber("what about the latest issue?")
	assert.False(t, ok)
}
