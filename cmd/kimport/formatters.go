package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/pevans/kimport/importer"
	"github.com/pevans/kimport/post"
	"github.com/pevans/kimport/sources"
)

// printJSON prints v as indented JSON
func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	fmt.Fprintln(w, string(data))
	return nil
}

// printPost prints a post's metadata followed by its markdown body
func printPost(w io.Writer, p *post.Post) {
	fmt.Fprintf(w, "# %s\n", p.Title)
	if p.Subtitle != "" {
		fmt.Fprintf(w, "%s\n", p.Subtitle)
	}
	fmt.Fprintln(w)

	author := p.AuthorDisplayName
	if author == "" {
		author = p.AuthorHandle
	}
	fmt.Fprintf(w, "Author:    %s\n", author)
	if !p.PublishDate.IsZero() {
		fmt.Fprintf(w, "Published: %s\n", p.PublishDate.In(post.KST).Format("2006-01-02 15:04"))
	}
	fmt.Fprintf(w, "URL:       %s\n", p.SourceURL)
	if len(p.Tags) > 0 {
		fmt.Fprintf(w, "Tags:      %s\n", strings.Join(p.Tags, ", "))
	}
	if p.Series != nil {
		fmt.Fprintf(w, "Series:    %s\n", p.Series.Title)
	}
	if p.LikeCount != nil {
		fmt.Fprintf(w, "Likes:     %d\n", *p.LikeCount)
	}
	if p.CommentCount != nil {
		fmt.Fprintf(w, "Comments:  %d\n", *p.CommentCount)
	}
	fmt.Fprintln(w)
	fmt.Fprint(w, p.BodyMarkdown)
}

// printComments prints a comment forest indented by depth
func printComments(w io.Writer, nodes []post.CommentNode, depth int) {
	for _, c := range nodes {
		indent := strings.Repeat("  ", depth)
		name := c.AuthorName
		if c.IsPrivilegedMember {
			name += " ★"
		}
		fmt.Fprintf(w, "%s- %s (%s)\n", indent, name, c.Timestamp)
		for _, line := range strings.Split(c.Content, "\n") {
			fmt.Fprintf(w, "%s  %s\n", indent, line)
		}
		printComments(w, c.Replies, depth+1)
	}
}

// printReport prints what an import run did
func printReport(w io.Writer, r *importer.Report) {
	for _, item := range r.Imported {
		fmt.Fprintf(w, "  + %s\n", item.Path)
	}
	for _, ref := range r.Skipped {
		fmt.Fprintf(w, "  = %s (already in vault)\n", ref)
	}
	for _, f := range r.Failed {
		fmt.Fprintf(w, "  ! %s: %s\n", f.URL, f.Cause)
	}
	for _, warning := range r.Warnings {
		fmt.Fprintf(w, "  ~ %s\n", warning)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, r.Summary())
}

// printSourcesTable prints sources in a fixed-width table
func printSourcesTable(w io.Writer, list []sources.Source) {
	if len(list) == 0 {
		fmt.Fprintln(w, "No sources configured.")
		return
	}

	// Print table header
	fmt.Fprintf(w, "%-36s %-7s %-8s %-8s %-30s %s\n", "ID", "PLATFORM", "KIND", "STATUS", "NAME", "LAST SYNC")
	fmt.Fprintln(w, strings.Repeat("-", 110))

	for _, s := range list {
		status := "enabled"
		if !s.IsEnabled() {
			status = "disabled"
		}
		lastSync := "never"
		if s.LastSyncedAt != nil {
			lastSync = s.LastSyncedAt.In(post.KST).Format("2006-01-02 15:04")
		}
		fmt.Fprintf(w, "%-36s %-7s %-8s %-8s %-30s %s\n",
			s.SourceID.String(),
			s.Platform,
			s.Kind,
			status,
			truncate(s.Name, 30),
			lastSync,
		)
	}
}

// truncate shortens s to at most n runes, marking the cut with "..."
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}
