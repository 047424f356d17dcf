package main

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pevans/kimport/media"
	"github.com/pevans/kimport/sources"
	"github.com/spf13/cobra"
)

var (
	sourceName       string
	sourceMax        int
	sourceImageMode  string
	sourceNoComments bool
	sourceDisabled   bool
	sourcesJSON      bool
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "Manage subscriptions synced by 'kimport sync'",
}

var sourcesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all sources",
	Args:  cobra.NoArgs,
	RunE:  runSourcesList,
}

var sourcesAddCmd = &cobra.Command{
	Use:   "add <url>",
	Short: "Subscribe to a list URL",
	Long: `Subscribe to an author, magazine, book, keyword, cafe board, press
office or blog.

Examples:
  kimport sources add https://brunch.co.kr/@writer
  kimport sources add --name "IT news" --max 10 "https://news.naver.com/main/list.naver?oid=023"`,
	Args: cobra.ExactArgs(1),
	RunE: runSourcesAdd,
}

var sourcesDeleteCmd = &cobra.Command{
	Use:   "delete <source-id>",
	Short: "Delete a source",
	Args:  cobra.ExactArgs(1),
	RunE:  runSourcesDelete,
}

var sourcesEnableCmd = &cobra.Command{
	Use:   "enable <source-id>",
	Short: "Enable a source and reset its error count",
	Args:  cobra.ExactArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return setSourceEnabled(cmd, args[0], true) },
}

var sourcesDisableCmd = &cobra.Command{
	Use:   "disable <source-id>",
	Short: "Disable a source",
	Args:  cobra.ExactArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return setSourceEnabled(cmd, args[0], false) },
}

func init() {
	rootCmd.AddCommand(sourcesCmd)
	sourcesCmd.AddCommand(sourcesListCmd, sourcesAddCmd, sourcesDeleteCmd, sourcesEnableCmd, sourcesDisableCmd)

	sourcesListCmd.Flags().BoolVar(&sourcesJSON, "json", false, "print sources as JSON")

	sourcesAddCmd.Flags().StringVar(&sourceName, "name", "", "display name (default: the list identifier)")
	sourcesAddCmd.Flags().IntVar(&sourceMax, "max", 0, "maximum posts per sync (default from config)")
	sourcesAddCmd.Flags().StringVar(&sourceImageMode, "image-mode", "", "image handling for this source: default, cdn or local")
	sourcesAddCmd.Flags().BoolVar(&sourceNoComments, "no-comments", false, "do not attach comments for this source")
	sourcesAddCmd.Flags().BoolVar(&sourceDisabled, "disabled", false, "add the source disabled")
}

// withSources opens the app and its source store for fn.
func withSources(cmd *cobra.Command, fn func(a *app, store *sources.SourceStore) error) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	store, err := a.openSources()
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(a, store)
}

func runSourcesList(cmd *cobra.Command, _ []string) error {
	return withSources(cmd, func(_ *app, store *sources.SourceStore) error {
		list, err := store.ListSources(sources.SourceFilter{})
		if err != nil {
			return fmt.Errorf("failed to list sources: %w", err)
		}
		if sourcesJSON {
			return printJSON(cmd.OutOrStdout(), list)
		}
		printSourcesTable(cmd.OutOrStdout(), list)
		return nil
	})
}

func runSourcesAdd(cmd *cobra.Command, args []string) error {
	return withSources(cmd, func(a *app, store *sources.SourceStore) error {
		target, err := a.registry().Detect(args[0])
		if err != nil {
			return err
		}

		var opts *sources.Options
		if sourceImageMode != "" || sourceNoComments {
			opts = &sources.Options{ImageMode: media.ImageMode(sourceImageMode)}
			if sourceNoComments {
				off := false
				opts.IncludeComments = &off
			}
		}

		var enabledAt *time.Time
		if !sourceDisabled {
			now := time.Now()
			enabledAt = &now
		}

		src, err := store.CreateSource(target, args[0], sourceName, sourceMax, opts, enabledAt)
		if err != nil {
			return err
		}
		cmd.Printf("Added %s source %q (%s)\n", src.Platform, src.Name, src.SourceID)
		return nil
	})
}

func runSourcesDelete(cmd *cobra.Command, args []string) error {
	id, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid source ID: %w", err)
	}
	return withSources(cmd, func(_ *app, store *sources.SourceStore) error {
		if err := store.DeleteSource(id); err != nil {
			return err
		}
		cmd.Printf("Deleted source %s\n", id)
		return nil
	})
}

func setSourceEnabled(cmd *cobra.Command, rawID string, enabled bool) error {
	id, err := uuid.Parse(rawID)
	if err != nil {
		return fmt.Errorf("invalid source ID: %w", err)
	}
	return withSources(cmd, func(_ *app, store *sources.SourceStore) error {
		var update sources.SourceUpdate
		if enabled {
			now := time.Now()
			zero := 0
			update.EnabledAt = &now
			update.FetchErrorCount = &zero
			update.ClearLastError = true
		} else {
			update.ClearEnabledAt = true
		}
		if err := store.UpdateSource(id, update); err != nil {
			return err
		}
		if enabled {
			cmd.Printf("Enabled source %s\n", id)
		} else {
			cmd.Printf("Disabled source %s\n", id)
		}
		return nil
	})
}
