package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	importMax         int
	importNoComments  bool
	importLocalImages bool
)

var importCmd = &cobra.Command{
	Use:   "import <url>",
	Short: "Import a post or a whole list into the vault",
	Long: `Import a single post, or every post of an author, magazine, book,
keyword, cafe board, press office or blog. Posts already in the vault are
skipped. A platform that refuses service stops the run.

Examples:
  # Import one post
  kimport import https://brunch.co.kr/@writer/12

  # Import an author's 20 newest posts
  kimport import --max 20 https://brunch.co.kr/@writer

  # Import a cafe board with images saved into the vault
  kimport import --local-images "https://cafe.naver.com/ArticleList.nhn?search.clubid=10050146&search.menuid=3"`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)

	importCmd.Flags().IntVar(&importMax, "max", 0, "maximum posts to import from a list (default from config)")
	importCmd.Flags().BoolVar(&importNoComments, "no-comments", false, "do not attach comments")
	importCmd.Flags().BoolVar(&importLocalImages, "local-images", false, "download images into the vault")
}

func runImport(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}

	opts := a.importer.Defaults()
	if cmd.Flags().Changed("max") {
		if importMax < 0 {
			return fmt.Errorf("--max must not be negative")
		}
		opts.MaxPosts = importMax
	}
	if importNoComments {
		opts.Comments = false
	}
	if importLocalImages {
		opts.LocalImages = true
	}

	report, err := a.importer.ImportURL(cmd.Context(), args[0], opts)
	if err != nil {
		return err
	}

	printReport(cmd.OutOrStdout(), report)
	if report.Aborted || (len(report.Imported) == 0 && len(report.Failed) > 0) {
		return fmt.Errorf("import incomplete: %s", report.Summary())
	}
	return nil
}
