package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/repochat/internal/agent"
	"github.com/joescharf/repochat/internal/git"
	"github.com/joescharf/repochat/internal/github"
	"github.com/joescharf/repochat/internal/intent"
	"github.com/joescharf/repochat/internal/llm"
	"github.com/joescharf/repochat/internal/output"
	"github.com/joescharf/repochat/internal/repo"
	"github.com/joescharf/repochat/internal/sessions"
	"github.com/joescharf/repochat/internal/store"
)

// Package-level shared dependencies, initialized in cobra.OnInitialize.
var (
	ui       *output.UI
	archive  store.Store
	repoStore *repo.Store
	gateway  github.Gateway
	chatAgent *agent.Agent
	sessMgr  *sessions.Manager

	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "repochat",
	Short: "Chat with a git repository's code and issues",
	Long: `repochat clones a repository, builds its Python import graph, and
answers questions about the code through an LLM, pulling in file contents,
import relationships, and GitHub issue context as evidence.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	DisableAutoGenTag: true,
}

// Execute is the main entry point called from main.go.
func Execute(version, commit, date string) {
	buildVersion = version
	buildCommit = commit
	buildDate = date

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig, initDeps)

	rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.config/repochat/config.yaml)")
}

func initConfig() {
	// If --config is explicitly set, use that file
	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: cannot find home directory: %v\n", err)
			os.Exit(1)
		}

		configDir := filepath.Join(home, ".config", "repochat")
		viper.AddConfigPath(configDir)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("REPOCHAT")
	viper.AutomaticEnv()

	// Defaults via viper.SetDefault()
	home, _ := os.UserHomeDir()
	defaultConfigDir := filepath.Join(home, ".config", "repochat")

	viper.SetDefault("db_path", filepath.Join(defaultConfigDir, "repochat.db"))
	viper.SetDefault("port", 8080)
	viper.SetDefault("llm.provider", "anthropic")
	viper.SetDefault("anthropic.api_key", "")
	viper.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	viper.SetDefault("openai.api_key", "")
	viper.SetDefault("openai.model", "gpt-4o-mini")
	viper.SetDefault("github.token", "")
	viper.SetDefault("clone.timeout", "120s")
	viper.SetDefault("chat.max_sessions", sessions.DefaultMaxSessions)

	// Read config file if it exists (optional)
	_ = viper.ReadInConfig()
}

func initDeps() {
	ui = output.New()
	ui.Verbose = verbose
}

// getArchive returns the shared scan archive, initializing it on first call.
func getArchive() (store.Store, error) {
	if archive != nil {
		return archive, nil
	}

	dbPath := viper.GetString("db_path")
	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := s.Migrate(rootCmd.Context()); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	archive = s
	return archive, nil
}

// getCompleter builds the configured LLM client. Returns nil when no API key
// is configured; callers that need completions must check.
func getCompleter() (llm.Completer, error) {
	provider := viper.GetString("llm.provider")
	cfg := llm.Config{Provider: provider}
	switch provider {
	case "openai":
		cfg.APIKey = viper.GetString("openai.api_key")
		cfg.Model = viper.GetString("openai.model")
	default:
		cfg.APIKey = viper.GetString("anthropic.api_key")
		cfg.Model = viper.GetString("anthropic.model")
	}
	if cfg.APIKey == "" {
		return nil, nil
	}
	return llm.New(cfg)
}

// getDeps wires the full chat stack: snapshot store, gateway, sessions, and
// agent. The scan archive is attached when the database opens; a db failure
// only disables archiving.
func getDeps() (*agent.Agent, error) {
	if chatAgent != nil {
		return chatAgent, nil
	}

	ar, err := getArchive()
	if err != nil {
		ui.Warning("scan archive disabled: %v", err)
		ar = nil
	}

	cloneTimeout := viper.GetDuration("clone.timeout")
	if cloneTimeout <= 0 {
		cloneTimeout = 2 * time.Minute
	}

	repoStore = repo.New(git.NewClient(), ar, cloneTimeout)
	gateway = github.NewClient(viper.GetString("github.token"))
	sessMgr = sessions.NewManager(viper.GetInt("chat.max_sessions"))

	completer, err := getCompleter()
	if err != nil {
		return nil, err
	}

	classifier := intent.NewClassifier(completer, "")
	chatAgent = agent.New(repoStore, gateway, completer, sessMgr, classifier, "")
	return chatAgent, nil
}
