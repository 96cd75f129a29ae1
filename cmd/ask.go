package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var askRepoURL string

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a question about a repository",
	Long: `Ask a one-off question. With --repo the repository is loaded
first; otherwise the question runs against the already loaded state,
which for a fresh process means conversational answers only.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ag, err := getDeps()
		if err != nil {
			return err
		}

		if askRepoURL != "" {
			ui.Info("Loading %s", askRepoURL)
			if err := repoStore.Load(cmd.Context(), askRepoURL); err != nil {
				return err
			}
		}

		question := strings.Join(args, " ")
		answer, err := ag.HandleTurn(cmd.Context(), "cli", question)
		if err != nil {
			return err
		}

		fmt.Fprintln(ui.Out, answer)
		return nil
	},
}

func init() {
	askCmd.Flags().StringVar(&askRepoURL, "repo", "", "Repository URL to load before asking")
	rootCmd.AddCommand(askCmd)
}
