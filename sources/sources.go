// Package sources stores subscriptions: post lists (an author, a magazine, a
// cafe board, a press office) that are imported again on every sync.
package sources

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pevans/kimport/media"
	"github.com/pevans/kimport/post"
)

var (
	ErrSourceNotFound  = errors.New("source not found")
	ErrDuplicateSource = errors.New("source for this list already exists")
	ErrInvalidSource   = errors.New("source must name a post list on a supported platform")
)

// SourceStore manages subscriptions using SQLite.
type SourceStore struct {
	db *sql.DB
}

// Options are per-source import settings that override the configured
// defaults.
type Options struct {
	ImageMode       media.ImageMode `json:"image_mode,omitempty"`
	IncludeComments *bool           `json:"include_comments,omitempty"`
	Enrich          *bool           `json:"enrich,omitempty"`
}

// Source is a subscription to one post list.
type Source struct {
	SourceID        uuid.UUID     `json:"source_id"`
	Platform        post.Platform `json:"platform"`
	Kind            post.Kind     `json:"kind"`
	Identifier      string        `json:"identifier"`
	SubIdentifier   string        `json:"sub_identifier,omitempty"`
	URL             string        `json:"url"`
	Name            string        `json:"name"`
	MaxPosts        int           `json:"max_posts"`
	EnabledAt       *time.Time    `json:"enabled_at,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
	LastSyncedAt    *time.Time    `json:"last_synced_at,omitempty"`
	FetchErrorCount int           `json:"fetch_error_count"`
	LastError       *string       `json:"last_error,omitempty"`
	Options         *Options      `json:"options,omitempty"`
}

// IsEnabled returns true if the source is currently enabled.
func (s *Source) IsEnabled() bool {
	return s.EnabledAt != nil
}

// Target returns the list target the source subscribes to.
func (s *Source) Target() post.Target {
	return post.Target{Platform: s.Platform, Kind: s.Kind, ID: s.Identifier, SubID: s.SubIdentifier}
}

// SourceUpdate represents fields that can be updated on a source.
type SourceUpdate struct {
	Name            *string
	MaxPosts        *int
	EnabledAt       *time.Time
	ClearEnabledAt  bool // Set to true to set enabled_at to NULL
	Options         *Options
	LastSyncedAt    *time.Time
	FetchErrorCount *int
	LastError       *string
	ClearLastError  bool
}

// SourceFilter represents filtering options for listing sources.
type SourceFilter struct {
	Platform *post.Platform
	Enabled  *bool
	Limit    int
	Offset   int
}

const sourceColumns = `source_id, platform, kind, identifier, sub_identifier, url, name,
	max_posts, enabled_at, created_at, updated_at, last_synced_at,
	fetch_error_count, last_error, options`

// NewSourceStore opens (creating if needed) the database at dbPath.
func NewSourceStore(dbPath string) (*SourceStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &SourceStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

func (s *SourceStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sources (
		source_id TEXT PRIMARY KEY,
		platform TEXT NOT NULL,
		kind TEXT NOT NULL,
		identifier TEXT NOT NULL,
		sub_identifier TEXT NOT NULL DEFAULT '',
		url TEXT NOT NULL,
		name TEXT NOT NULL,
		max_posts INTEGER DEFAULT 0,
		enabled_at TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		last_synced_at TEXT,
		fetch_error_count INTEGER DEFAULT 0,
		last_error TEXT,
		options TEXT,
		UNIQUE (platform, kind, identifier, sub_identifier)
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SourceStore) Close() error {
	return s.db.Close()
}

// CreateSource subscribes to the list named by target. Single posts cannot
// be subscribed to.
func (s *SourceStore) CreateSource(
	target post.Target,
	url, name string,
	maxPosts int,
	opts *Options,
	enabledAt *time.Time,
) (*Source, error) {
	if !target.Platform.Valid() || target.IsPost() || target.Kind == "" || target.ID == "" {
		return nil, ErrInvalidSource
	}
	if maxPosts < 0 {
		maxPosts = 0
	}
	if name == "" {
		name = target.ID
	}

	now := time.Now()
	source := &Source{
		SourceID:      uuid.New(),
		Platform:      target.Platform,
		Kind:          target.Kind,
		Identifier:    target.ID,
		SubIdentifier: target.SubID,
		URL:           url,
		Name:          name,
		MaxPosts:      maxPosts,
		EnabledAt:     enabledAt,
		CreatedAt:     now,
		UpdatedAt:     now,
		Options:       opts,
	}

	optionsJSON, err := marshalOptions(opts)
	if err != nil {
		return nil, err
	}

	query := `INSERT INTO sources (
		source_id, platform, kind, identifier, sub_identifier, url, name,
		max_posts, enabled_at, created_at, updated_at, options
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = s.db.Exec(query,
		source.SourceID.String(),
		string(source.Platform),
		string(source.Kind),
		source.Identifier,
		source.SubIdentifier,
		source.URL,
		source.Name,
		source.MaxPosts,
		formatTime(source.EnabledAt),
		formatTime(&source.CreatedAt),
		formatTime(&source.UpdatedAt),
		optionsJSON,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateSource
		}
		return nil, fmt.Errorf("failed to insert source: %w", err)
	}

	return source, nil
}

// GetSource retrieves a source by ID.
func (s *SourceStore) GetSource(sourceID uuid.UUID) (*Source, error) {
	row := s.db.QueryRow("SELECT "+sourceColumns+" FROM sources WHERE source_id = ?", sourceID.String())

	source, err := scanSource(row)
	if err == sql.ErrNoRows {
		return nil, ErrSourceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query source: %w", err)
	}
	return source, nil
}

// ListSources lists sources, oldest first, with optional filtering.
func (s *SourceStore) ListSources(filter SourceFilter) ([]Source, error) {
	query := "SELECT " + sourceColumns + " FROM sources"

	var whereClauses []string
	var args []any

	if filter.Platform != nil {
		whereClauses = append(whereClauses, "platform = ?")
		args = append(args, string(*filter.Platform))
	}
	if filter.Enabled != nil {
		if *filter.Enabled {
			whereClauses = append(whereClauses, "enabled_at IS NOT NULL")
		} else {
			whereClauses = append(whereClauses, "enabled_at IS NULL")
		}
	}

	if len(whereClauses) > 0 {
		query += " WHERE " + strings.Join(whereClauses, " AND ")
	}

	query += " ORDER BY created_at ASC, rowid ASC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	if filter.Offset > 0 {
		if filter.Limit <= 0 {
			query += " LIMIT -1"
		}
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sources: %w", err)
	}
	defer rows.Close()

	var sources []Source
	for rows.Next() {
		source, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan source: %w", err)
		}
		sources = append(sources, *source)
	}

	return sources, rows.Err()
}

// UpdateSource updates a source with the provided fields.
func (s *SourceStore) UpdateSource(sourceID uuid.UUID, update SourceUpdate) error {
	setClauses := []string{"updated_at = ?"}
	now := time.Now()
	args := []any{formatTime(&now)}

	if update.Name != nil {
		setClauses = append(setClauses, "name = ?")
		args = append(args, *update.Name)
	}
	if update.MaxPosts != nil {
		setClauses = append(setClauses, "max_posts = ?")
		args = append(args, max(*update.MaxPosts, 0))
	}
	if update.ClearEnabledAt {
		setClauses = append(setClauses, "enabled_at = ?")
		args = append(args, nil)
	} else if update.EnabledAt != nil {
		setClauses = append(setClauses, "enabled_at = ?")
		args = append(args, formatTime(update.EnabledAt))
	}
	if update.Options != nil {
		optionsJSON, err := marshalOptions(update.Options)
		if err != nil {
			return err
		}
		setClauses = append(setClauses, "options = ?")
		args = append(args, optionsJSON)
	}
	if update.LastSyncedAt != nil {
		setClauses = append(setClauses, "last_synced_at = ?")
		args = append(args, formatTime(update.LastSyncedAt))
	}
	if update.FetchErrorCount != nil {
		setClauses = append(setClauses, "fetch_error_count = ?")
		args = append(args, *update.FetchErrorCount)
	}
	if update.ClearLastError {
		setClauses = append(setClauses, "last_error = ?")
		args = append(args, nil)
	} else if update.LastError != nil {
		setClauses = append(setClauses, "last_error = ?")
		args = append(args, *update.LastError)
	}

	args = append(args, sourceID.String())

	query := fmt.Sprintf("UPDATE sources SET %s WHERE source_id = ?",
		strings.Join(setClauses, ", "))

	result, err := s.db.Exec(query, args...)
	if err != nil {
		return fmt.Errorf("failed to update source: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrSourceNotFound
	}

	return nil
}

// DeleteSource deletes a source.
func (s *SourceStore) DeleteSource(sourceID uuid.UUID) error {
	result, err := s.db.Exec("DELETE FROM sources WHERE source_id = ?", sourceID.String())
	if err != nil {
		return fmt.Errorf("failed to delete source: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrSourceNotFound
	}

	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSource(row scanner) (*Source, error) {
	var (
		idStr, platform, kind, identifier, subIdentifier, url, name string
		createdAtStr, updatedAtStr                                  string
		maxPosts, fetchErrorCount                                   int
		enabledAtStr, lastSyncedAtStr, lastError, optionsJSON       sql.NullString
	)

	err := row.Scan(
		&idStr, &platform, &kind, &identifier, &subIdentifier, &url, &name,
		&maxPosts, &enabledAtStr, &createdAtStr, &updatedAtStr, &lastSyncedAtStr,
		&fetchErrorCount, &lastError, &optionsJSON,
	)
	if err != nil {
		return nil, err
	}

	sourceID, err := uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse source ID: %w", err)
	}

	source := &Source{
		SourceID:        sourceID,
		Platform:        post.Platform(platform),
		Kind:            post.Kind(kind),
		Identifier:      identifier,
		SubIdentifier:   subIdentifier,
		URL:             url,
		Name:            name,
		MaxPosts:        maxPosts,
		CreatedAt:       parseTime(createdAtStr),
		UpdatedAt:       parseTime(updatedAtStr),
		FetchErrorCount: fetchErrorCount,
	}

	if enabledAtStr.Valid {
		t := parseTime(enabledAtStr.String)
		source.EnabledAt = &t
	}
	if lastSyncedAtStr.Valid {
		t := parseTime(lastSyncedAtStr.String)
		source.LastSyncedAt = &t
	}
	if lastError.Valid {
		source.LastError = &lastError.String
	}
	if optionsJSON.Valid {
		var opts Options
		if err := json.Unmarshal([]byte(optionsJSON.String), &opts); err != nil {
			return nil, fmt.Errorf("failed to unmarshal options: %w", err)
		}
		source.Options = &opts
	}

	return source, nil
}

func marshalOptions(opts *Options) (any, error) {
	if opts == nil {
		return nil, nil
	}
	data, err := json.Marshal(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal options: %w", err)
	}
	return string(data), nil
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint") ||
		strings.Contains(err.Error(), "unique constraint")
}

func formatTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	// Strip monotonic clock for consistent storage and comparisons
	return t.Truncate(0).Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339, s)
	}
	return t.Truncate(0)
}
