package main

import (
	"github.com/pevans/kimport/post"
	"github.com/spf13/cobra"
)

var fetchJSON bool

var fetchCmd = &cobra.Command{
	Use:   "fetch <url>",
	Short: "Fetch a single post and print it as markdown",
	Long: `Fetch a single post without saving it.

Examples:
  kimport fetch https://brunch.co.kr/@writer/12
  kimport fetch --json https://n.news.naver.com/article/023/0003800000`,
	Args: cobra.ExactArgs(1),
	RunE: runFetch,
}

var commentsCmd = &cobra.Command{
	Use:   "comments <url>",
	Short: "Print the comment thread of a post",
	Args:  cobra.ExactArgs(1),
	RunE:  runComments,
}

func init() {
	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(commentsCmd)

	fetchCmd.Flags().BoolVar(&fetchJSON, "json", false, "print the normalized post as JSON")
	commentsCmd.Flags().BoolVar(&fetchJSON, "json", false, "print the comment tree as JSON")
}

func runFetch(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}

	p, err := a.registry().FetchPost(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	if fetchJSON {
		return printJSON(cmd.OutOrStdout(), p)
	}
	printPost(cmd.OutOrStdout(), p)
	return nil
}

func runComments(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}

	p, err := a.registry().FetchPost(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	comments := a.registry().FetchComments(cmd.Context(), p)

	out := cmd.OutOrStdout()
	if fetchJSON {
		if comments == nil {
			comments = []post.CommentNode{}
		}
		return printJSON(out, comments)
	}
	if len(comments) == 0 {
		cmd.Println("No comments.")
		return nil
	}
	printComments(out, comments, 0)
	cmd.Printf("\n%d comments\n", post.CountComments(comments))
	return nil
}
