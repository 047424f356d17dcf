package importer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/pevans/kimport/ai"
	"github.com/pevans/kimport/media"
	"github.com/pevans/kimport/post"
	"github.com/pevans/kimport/sources"
)

// SourceStore is the subscription storage SyncSources reads and updates.
// *sources.SourceStore satisfies it.
type SourceStore interface {
	GetSource(id uuid.UUID) (*sources.Source, error)
	ListSources(filter sources.SourceFilter) ([]sources.Source, error)
	UpdateSource(id uuid.UUID, update sources.SourceUpdate) error
}

// SyncResult is the outcome for one source.
type SyncResult struct {
	Source   sources.Source `json:"source"`
	Report   *Report        `json:"report,omitempty"`
	Error    string         `json:"error,omitempty"`
	Skipped  bool           `json:"skipped,omitempty"`
	Disabled bool           `json:"disabled,omitempty"`
}

// SyncSources imports the newest posts of each source. With no ids every
// enabled source is synced; named sources are synced even when disabled.
// Once a platform refuses service its remaining sources are skipped
// without counting against them.
func (i *Importer) SyncSources(ctx context.Context, store SourceStore, ids ...uuid.UUID) ([]SyncResult, error) {
	list, err := i.sourcesToSync(store, ids)
	if err != nil {
		return nil, err
	}

	log.Printf("INFO: Syncing %d sources", len(list))
	blocked := make(map[post.Platform]string)
	results := make([]SyncResult, 0, len(list))

	for _, src := range list {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		if reason, ok := blocked[src.Platform]; ok {
			log.Printf("WARN: Skipping %s (%s): %s refused service: %s", src.Name, src.SourceID, src.Platform, reason)
			results = append(results, SyncResult{Source: src, Skipped: true, Error: reason})
			continue
		}

		result, err := i.syncSource(ctx, store, src)
		if errors.Is(err, post.ErrBlocked) {
			blocked[src.Platform] = post.Cause(err)
		}
		results = append(results, result)
	}
	return results, nil
}

// syncSource imports one source and records the outcome on it. The
// returned error is the reason the sync failed, if it did.
func (i *Importer) syncSource(ctx context.Context, store SourceStore, src sources.Source) (SyncResult, error) {
	start := i.now()
	report, err := i.ImportList(ctx, src.Target(), i.sourceOptions(src))
	result := SyncResult{Source: src, Report: report}

	// An interrupted run says nothing about the source.
	if ctxErr := ctx.Err(); ctxErr != nil {
		result.Error = ctxErr.Error()
		return result, ctxErr
	}
	if err == nil && report.Aborted {
		err = report.Err()
	}

	if err != nil {
		result.Error = post.Cause(err)
		result.Disabled = i.handleSyncError(store, src, err)
		return result, err
	}

	i.handleSyncSuccess(store, src, start)
	log.Printf("INFO: Synced %s (%s): %s in %v", src.Name, src.SourceID, report.Summary(), i.now().Sub(start))
	return result, nil
}

// handleSyncSuccess records the sync time and clears the error state.
func (i *Importer) handleSyncSuccess(store SourceStore, src sources.Source, at time.Time) {
	zero := 0
	update := sources.SourceUpdate{
		LastSyncedAt:    &at,
		FetchErrorCount: &zero,
		ClearLastError:  true,
	}
	if err := store.UpdateSource(src.SourceID, update); err != nil {
		log.Printf("ERROR: Failed to update source %s after sync: %v", src.SourceID, err)
	}
}

// handleSyncError counts the failure and disables the source once the
// threshold is reached. It reports whether the source was disabled.
func (i *Importer) handleSyncError(store SourceStore, src sources.Source, syncErr error) bool {
	count := src.FetchErrorCount + 1
	cause := post.Cause(syncErr)
	update := sources.SourceUpdate{
		FetchErrorCount: &count,
		LastError:       &cause,
	}

	disable := i.disableAfter > 0 && count >= i.disableAfter && src.IsEnabled()
	if disable {
		update.ClearEnabledAt = true
		log.Printf("ERROR: Auto-disabling source %s (%s) after %d consecutive errors: %v",
			src.Name, src.SourceID, count, syncErr)
	} else {
		log.Printf("WARN: Failed to sync %s (%s), error %d: %v", src.Name, src.SourceID, count, syncErr)
	}

	if err := store.UpdateSource(src.SourceID, update); err != nil {
		log.Printf("ERROR: Failed to update source %s after error: %v", src.SourceID, err)
		return false
	}
	return disable
}

func (i *Importer) sourcesToSync(store SourceStore, ids []uuid.UUID) ([]sources.Source, error) {
	if len(ids) == 0 {
		enabled := true
		list, err := store.ListSources(sources.SourceFilter{Enabled: &enabled})
		if err != nil {
			return nil, fmt.Errorf("failed to list sources: %w", err)
		}
		return list, nil
	}

	list := make([]sources.Source, 0, len(ids))
	for _, id := range ids {
		src, err := store.GetSource(id)
		if err != nil {
			return nil, fmt.Errorf("failed to get source %s: %w", id, err)
		}
		list = append(list, *src)
	}
	return list, nil
}

// sourceOptions applies a source's overrides to the defaults.
func (i *Importer) sourceOptions(src sources.Source) Options {
	opts := i.defaults
	if src.MaxPosts > 0 {
		opts.MaxPosts = src.MaxPosts
	}
	if o := src.Options; o != nil {
		if o.ImageMode != "" {
			opts.LocalImages = o.ImageMode == media.ImageLocal
		}
		if o.IncludeComments != nil {
			opts.Comments = *o.IncludeComments
		}
		if o.Enrich != nil {
			if *o.Enrich {
				opts.Enrich.Tags, opts.Enrich.Excerpt = true, true
			} else {
				opts.Enrich = ai.Options{}
			}
		}
	}
	return opts
}
