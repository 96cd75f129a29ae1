package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/joescharf/repochat/internal/output"
)

var scanList bool

var scanCmd = &cobra.Command{
	Use:   "scan [url]",
	Short: "Scan a repository and build its import graph",
	Long: `Clone a repository, index its Python files, and build the import
graph. The scan result is archived in the local database.

Use --list to show previously archived scans instead.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if scanList {
			return scanListRun()
		}
		if len(args) != 1 {
			return fmt.Errorf("specify a repository URL or --list")
		}
		return scanRun(cmd, args[0])
	},
}

func init() {
	scanCmd.Flags().BoolVar(&scanList, "list", false, "List archived scans")
	rootCmd.AddCommand(scanCmd)
}

func scanRun(cmd *cobra.Command, url string) error {
	if _, err := getDeps(); err != nil {
		return err
	}

	ui.Info("Cloning %s", output.Cyan(url))
	if err := repoStore.Load(cmd.Context(), url); err != nil {
		return err
	}

	structure, err := repoStore.FileStructure()
	if err != nil {
		return err
	}
	ui.Success("Indexed %d files", structure.TotalFiles)

	exts := make([]string, 0, len(structure.FileTypes))
	for ext := range structure.FileTypes {
		exts = append(exts, ext)
	}
	sort.Strings(exts)

	table := ui.Table([]string{"Type", "Files"})
	for _, ext := range exts {
		table.Append([]string{ext, fmt.Sprintf("%d", structure.FileTypes[ext])})
	}
	return table.Render()
}

func scanListRun() error {
	s, err := getArchive()
	if err != nil {
		return err
	}

	scans, err := s.ListScans(rootCmd.Context(), 0)
	if err != nil {
		return err
	}
	if len(scans) == 0 {
		ui.Info("No archived scans")
		return nil
	}

	table := ui.Table([]string{"ID", "Repository", "Files", "Edges", "Scanned"})
	for _, sc := range scans {
		table.Append([]string{
			sc.ID[:8],
			sc.SourceURL,
			fmt.Sprintf("%d", sc.TotalFiles),
			fmt.Sprintf("%d", sc.TotalEdges),
			sc.ScannedAt.Format("2006-01-02 15:04"),
		})
	}
	return table.Render()
}
