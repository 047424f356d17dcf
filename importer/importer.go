package importer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/pevans/kimport/ai"
	"github.com/pevans/kimport/media"
	"github.com/pevans/kimport/paginate"
	"github.com/pevans/kimport/post"
	"github.com/pevans/kimport/vault"
)

// Vault stores imported notes and knows which posts it already holds.
// *vault.Vault satisfies it.
type Vault interface {
	Index() (*vault.Index, error)
	Save(n vault.Note) (string, error)
}

// Options control a single import run.
type Options struct {
	// MaxPosts caps how many posts a list import fetches. Zero means no cap.
	MaxPosts int

	// Comments attaches the comment tree to each note.
	Comments bool

	// LocalImages downloads images into the vault's assets directory.
	LocalImages bool

	// Enrich selects the AI steps. Ignored without an enricher.
	Enrich ai.Options
}

// Importer fetches posts through a Registry and saves them to a Vault.
type Importer struct {
	registry     *Registry
	vault        Vault
	defaults     Options
	localizer    *media.Localizer
	enricher     *ai.Enricher
	postDelay    time.Duration
	disableAfter int
	now          func() time.Time
}

// Option configures an Importer.
type Option func(*Importer)

// WithDefaults sets the options used by SyncSources before per-source
// overrides, and returned by Defaults.
func WithDefaults(opts Options) Option {
	return func(i *Importer) { i.defaults = opts }
}

// WithLocalizer enables image downloads for runs with LocalImages set.
func WithLocalizer(l *media.Localizer) Option {
	return func(i *Importer) { i.localizer = l }
}

// WithEnricher enables the AI steps.
func WithEnricher(e *ai.Enricher) Option {
	return func(i *Importer) { i.enricher = e }
}

// WithPostDelay sets the minimum gap between post fetches in a batch.
func WithPostDelay(d time.Duration) Option {
	return func(i *Importer) { i.postDelay = d }
}

// WithDisableAfter sets how many consecutive failed syncs disable a source.
// Zero never disables.
func WithDisableAfter(n int) Option {
	return func(i *Importer) { i.disableAfter = n }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(i *Importer) { i.now = now }
}

// New creates an Importer.
func New(registry *Registry, v Vault, opts ...Option) *Importer {
	i := &Importer{
		registry: registry,
		vault:    v,
		defaults: Options{Comments: true},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Defaults returns the configured default options.
func (i *Importer) Defaults() Options {
	return i.defaults
}

// Registry returns the registry the importer fetches through.
func (i *Importer) Registry() *Registry {
	return i.registry
}

// Imported describes a saved note.
type Imported struct {
	Ref   post.Ref `json:"ref"`
	Title string   `json:"title"`
	Path  string   `json:"path"`
}

// Failure describes a post that could not be imported.
type Failure struct {
	URL   string `json:"url"`
	Cause string `json:"cause"`
}

// Report is the outcome of an import run. A run that stopped early has
// Aborted set and says why in AbortReason.
type Report struct {
	Imported    []Imported `json:"imported"`
	Failed      []Failure  `json:"failed"`
	Skipped     []post.Ref `json:"skipped"`
	Warnings    []string   `json:"warnings"`
	Aborted     bool       `json:"aborted"`
	AbortReason string     `json:"abort_reason,omitempty"`

	abortErr error
}

func newReport() *Report {
	return &Report{
		Imported: []Imported{},
		Failed:   []Failure{},
		Skipped:  []post.Ref{},
		Warnings: []string{},
	}
}

// Err returns the error that aborted the run, if any.
func (r *Report) Err() error {
	return r.abortErr
}

// Summary renders the report as one line, e.g.
// "3 imported, 1 skipped, 1 failed (aborted: login required)".
func (r *Report) Summary() string {
	s := fmt.Sprintf("%d imported, %d skipped, %d failed", len(r.Imported), len(r.Skipped), len(r.Failed))
	if n := len(r.Warnings); n > 0 {
		s += fmt.Sprintf(", %d warnings", n)
	}
	if r.Aborted {
		s += " (aborted: " + r.AbortReason + ")"
	}
	return s
}

func (r *Report) fail(url string, err error) {
	r.Failed = append(r.Failed, Failure{URL: url, Cause: post.Cause(err)})
}

func (r *Report) abort(err error) {
	r.Aborted = true
	r.AbortReason = post.Cause(err)
	r.abortErr = err
}

// ImportURL imports the post or list raw points at.
func (i *Importer) ImportURL(ctx context.Context, raw string, opts Options) (*Report, error) {
	target, err := i.registry.Detect(raw)
	if err != nil {
		return nil, err
	}
	if target.IsPost() {
		return i.ImportPost(ctx, target.Ref, opts)
	}
	return i.ImportList(ctx, target, opts)
}

// ImportPost imports a single post. Fetch failures are recorded in the
// report; the error is only set when the vault cannot be read.
func (i *Importer) ImportPost(ctx context.Context, ref post.Ref, opts Options) (*Report, error) {
	f, err := i.registry.fetcherFor(post.Target{Platform: ref.Platform})
	if err != nil {
		return nil, err
	}
	index, err := i.vault.Index()
	if err != nil {
		return nil, fmt.Errorf("failed to read vault: %w", err)
	}
	logIndexErrors(index)

	report := newReport()
	if err := i.importOne(ctx, f, ref, opts, index, report); err != nil {
		report.abort(err)
	}
	return report, nil
}

// ImportList lists target and imports its posts one at a time, newest
// first. A post that fails is recorded and the run continues, except when
// the platform refuses service, which stops the run. The error is set only
// when the list itself could not be read.
func (i *Importer) ImportList(ctx context.Context, target post.Target, opts Options) (*Report, error) {
	f, err := i.registry.fetcherFor(target)
	if err != nil {
		return nil, err
	}
	if target.IsPost() {
		return i.ImportPost(ctx, target.Ref, opts)
	}

	refs, err := f.ListPosts(ctx, target, opts.MaxPosts)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s %s %s: %w", target.Platform, target.Kind, target.ID, err)
	}
	if opts.MaxPosts > 0 && len(refs) > opts.MaxPosts {
		refs = refs[:opts.MaxPosts]
	}

	index, err := i.vault.Index()
	if err != nil {
		return nil, fmt.Errorf("failed to read vault: %w", err)
	}
	logIndexErrors(index)

	report := newReport()
	pacer := paginate.NewPacer(i.postDelay)
	for _, ref := range refs {
		if err := ctx.Err(); err != nil {
			report.abort(err)
			break
		}
		if index.Has(ref.Key()) {
			report.Skipped = append(report.Skipped, ref)
			continue
		}
		if err := pacer.Wait(ctx); err != nil {
			report.abort(err)
			break
		}
		if err := i.importOne(ctx, f, ref, opts, index, report); err != nil {
			report.abort(err)
			break
		}
	}
	return report, nil
}

// importOne fetches, finishes and saves ref. It returns an error only when
// the whole run should stop.
func (i *Importer) importOne(ctx context.Context, f Fetcher, ref post.Ref, opts Options, index *vault.Index, report *Report) error {
	if index.Has(ref.Key()) {
		report.Skipped = append(report.Skipped, ref)
		return nil
	}

	p, err := f.FetchPost(ctx, ref)
	if err != nil {
		log.Printf("WARN: Failed to import %s: %v", ref, err)
		report.fail(ref.String(), err)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if errors.Is(err, post.ErrBlocked) {
			return err
		}
		return nil
	}

	// Refs from listings may scope ids differently than the fetched post.
	if index.Has(p.Key()) {
		report.Skipped = append(report.Skipped, ref)
		return nil
	}

	note := vault.Note{Post: p}
	if opts.Comments {
		note.Comments = i.registry.FetchComments(ctx, p)
	}
	for _, w := range i.finish(ctx, p, opts) {
		report.Warnings = append(report.Warnings, fmt.Sprintf("%s: %s", ref, w))
	}

	path, err := i.vault.Save(note)
	if err != nil {
		log.Printf("ERROR: Failed to save %s: %v", ref, err)
		report.fail(ref.String(), fmt.Errorf("failed to save note: %w", err))
		return nil
	}
	index.Add(p.Key(), path)
	index.Add(ref.Key(), path)

	log.Printf("INFO: Imported %s -> %s", ref, path)
	report.Imported = append(report.Imported, Imported{Ref: ref, Title: p.Title, Path: path})
	return nil
}

// finish runs the optional post-processing steps. Their failures only
// produce warnings.
func (i *Importer) finish(ctx context.Context, p *post.Post, opts Options) []string {
	var warnings []string

	if opts.LocalImages && i.localizer != nil {
		body, failed := i.localizer.Localize(ctx, p.BodyMarkdown, p.SourceURL)
		p.BodyMarkdown = body
		if failed > 0 {
			warnings = append(warnings, fmt.Sprintf("%d images kept their remote URL", failed))
		}
	}

	if i.enricher != nil && (opts.Enrich.Tags || opts.Enrich.Excerpt || opts.Enrich.Layout) {
		for _, w := range i.enricher.Enrich(ctx, p, opts.Enrich) {
			log.Printf("WARN: %s: %s", p.SourceURL, w)
			warnings = append(warnings, w)
		}
	}
	return warnings
}

func logIndexErrors(index *vault.Index) {
	if len(index.Errors) == 0 {
		return
	}
	names := make([]string, 0, len(index.Errors))
	for _, e := range index.Errors {
		names = append(names, e.Filename)
	}
	log.Printf("WARN: %d notes could not be read: %s", len(index.Errors), strings.Join(names, ", "))
}
