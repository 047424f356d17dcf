// Package vault writes imported posts as markdown notes into a directory
// and reads them back for duplicate detection.
package vault

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/pevans/kimport/post"
)

const (
	// AssetsDir is the vault subdirectory holding downloaded images.
	AssetsDir = "assets"

	maxNameBytes = 120
)

// Vault is a directory of notes.
type Vault struct {
	dir string
	now func() time.Time

	// mu serializes name allocation so concurrent writes never pick the
	// same file.
	mu sync.Mutex
}

// ReadError describes a failure to read a single note.
type ReadError struct {
	Filename string
	Err      error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("%s: %v", e.Filename, e.Err)
}

// Index is the set of posts already in the vault. Files that could not be
// read are listed in Errors rather than failing the scan.
type Index struct {
	keys   map[post.Key]string
	Errors []ReadError
}

// Has reports whether a note for key exists.
func (ix *Index) Has(key post.Key) bool {
	_, ok := ix.keys[key]
	return ok
}

// Path returns the note file recorded for key.
func (ix *Index) Path(key post.Key) (string, bool) {
	p, ok := ix.keys[key]
	return p, ok
}

// Add records a note written after the scan.
func (ix *Index) Add(key post.Key, path string) {
	if ix.keys == nil {
		ix.keys = make(map[post.Key]string)
	}
	ix.keys[key] = path
}

// Len returns the number of indexed notes.
func (ix *Index) Len() int {
	return len(ix.keys)
}

// New opens the vault at dir, creating it if needed.
func New(dir string) (*Vault, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create vault directory: %w", err)
	}
	return &Vault{dir: dir, now: time.Now}, nil
}

// Dir returns the vault directory.
func (v *Vault) Dir() string {
	return v.dir
}

// Save writes n as a new note and returns its path. The file name comes
// from the publish date and title; an existing file is never overwritten.
func (v *Vault) Save(n Note) (string, error) {
	if n.Post == nil {
		return "", errors.New("note has no post")
	}
	data, err := Render(n, v.now())
	if err != nil {
		return "", err
	}

	base := NoteName(n.Post)

	v.mu.Lock()
	defer v.mu.Unlock()

	path, err := v.create(v.dir, base, ".md", data)
	if err != nil {
		return "", fmt.Errorf("failed to write note: %w", err)
	}
	return path, nil
}

// WriteAsset stores a binary file under the assets directory and returns
// the vault-relative link to it.
func (v *Vault) WriteAsset(name string, data []byte) (string, error) {
	dir := filepath.Join(v.dir, AssetsDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create assets directory: %w", err)
	}

	ext := filepath.Ext(name)
	base := sanitize(strings.TrimSuffix(name, ext))
	if base == "" {
		base = "image"
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	path, err := v.create(dir, base, ext, data)
	if err != nil {
		return "", fmt.Errorf("failed to write asset: %w", err)
	}
	return AssetsDir + "/" + filepath.Base(path), nil
}

// create writes data to dir/base+ext, adding " 2", " 3", ... to base until
// the name is free.
func (v *Vault) create(dir, base, ext string, data []byte) (string, error) {
	for i := 1; ; i++ {
		name := base
		if i > 1 {
			name += " " + strconv.Itoa(i)
		}
		path := filepath.Join(dir, name+ext)

		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", err
		}
		if _, err := f.Write(data); err != nil {
			f.Close()
			os.Remove(path)
			return "", err
		}
		return path, f.Close()
	}
}

// Index scans every note in the vault. Markdown files without frontmatter,
// or whose frontmatter names no platform, are not imported notes and are
// ignored. A non-nil error means the vault itself could not be walked.
func (v *Vault) Index() (*Index, error) {
	ix := &Index{keys: make(map[post.Key]string)}

	err := filepath.WalkDir(v.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == v.dir {
				return err
			}
			ix.Errors = append(ix.Errors, ReadError{Filename: v.rel(path), Err: err})
			return nil
		}
		if d.IsDir() {
			if path != v.dir && (d.Name() == AssetsDir || strings.HasPrefix(d.Name(), ".")) {
				return filepath.SkipDir
			}
			return nil
		}
		if filepath.Ext(d.Name()) != ".md" {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			ix.Errors = append(ix.Errors, ReadError{Filename: v.rel(path), Err: err})
			return nil
		}
		fm, err := ParseFrontmatter(data)
		if errors.Is(err, ErrNoFrontmatter) {
			return nil
		}
		if err != nil {
			ix.Errors = append(ix.Errors, ReadError{Filename: v.rel(path), Err: err})
			return nil
		}
		if fm.Platform == "" || fm.PostID == "" {
			return nil
		}
		ix.keys[fm.Key()] = path
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan vault: %w", err)
	}
	return ix, nil
}

func (v *Vault) rel(path string) string {
	if r, err := filepath.Rel(v.dir, path); err == nil {
		return r
	}
	return path
}

// NoteName is the file name (without extension) for p: its publish date
// followed by its title.
func NoteName(p *post.Post) string {
	title := sanitize(p.Title)
	if title == "" {
		title = string(p.Platform) + " " + p.SourcePostID
	}
	return p.PublishDate.In(post.KST).Format(dateLayout) + " " + title
}

// sanitize makes s safe as a file name on every common file system and
// trims it to a sensible length without splitting a character.
func sanitize(s string) string {
	s = strings.Map(func(r rune) rune {
		switch {
		case strings.ContainsRune(`/\:*?"<>|#^[]`, r):
			return ' '
		case r < 0x20:
			return -1
		}
		return r
	}, s)
	s = strings.Join(strings.Fields(s), " ")
	s = strings.Trim(s, ". ")

	for len(s) > maxNameBytes {
		_, size := utf8.DecodeLastRuneInString(s)
		s = s[:len(s)-size]
	}
	return strings.TrimRight(s, ". ")
}
