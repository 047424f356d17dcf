package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/pevans/kimport/sources"
	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync [source-id...]",
	Short: "Import new posts from every enabled source",
	Long: `Import new posts from every enabled source, or only from the named
sources. A source that fails repeatedly is disabled automatically.`,
	RunE: runSync,
}

func init() {
	rootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	ids := make([]uuid.UUID, 0, len(args))
	for _, arg := range args {
		id, err := uuid.Parse(arg)
		if err != nil {
			return fmt.Errorf("invalid source ID: %w", err)
		}
		ids = append(ids, id)
	}

	return withSources(cmd, func(a *app, store *sources.SourceStore) error {
		if len(ids) == 0 {
			cmd.Println("Syncing all enabled sources...")
		}

		results, err := a.importer.SyncSources(cmd.Context(), store, ids...)
		if err != nil {
			return fmt.Errorf("sync failed: %w", err)
		}

		synced, failed, imported := 0, 0, 0
		out := cmd.OutOrStdout()
		for _, r := range results {
			switch {
			case r.Skipped:
				fmt.Fprintf(out, "%s: skipped (%s)\n", r.Source.Name, r.Error)
			case r.Error != "":
				failed++
				fmt.Fprintf(out, "%s: failed: %s\n", r.Source.Name, r.Error)
				if r.Disabled {
					fmt.Fprintf(out, "  source disabled after %d consecutive errors\n", r.Source.FetchErrorCount+1)
				}
			default:
				synced++
				fmt.Fprintf(out, "%s: %s\n", r.Source.Name, r.Report.Summary())
			}
			if r.Report != nil {
				imported += len(r.Report.Imported)
			}
		}

		// Display results
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Sync completed:")
		fmt.Fprintf(out, "  Sources synced: %d\n", synced)
		fmt.Fprintf(out, "  Sources failed: %d\n", failed)
		fmt.Fprintf(out, "  Posts imported: %d\n", imported)
		return nil
	})
}
