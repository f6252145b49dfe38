// ABOUTME: Read-only story library over the directory the engine writes generated stories into.
// ABOUTME: Each story is a directory of pageN.txt files with optional pageN.png illustrations.
package stories

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// AssetsRoute is the URL prefix under which story files are served.
const AssetsRoute = "/stories/assets"

// ErrStoryNotFound is returned by Get for unknown or invalid ids.
var ErrStoryNotFound = errors.New("story not found")

var pageFile = regexp.MustCompile(`^page(\d+)\.(txt|png)$`)

// Page is one page of a story.
type Page struct {
	Number int
	Text   string
	// Image is the URL of the page illustration, or "" when there is none.
	Image string
}

// Story is a generated story. ID is the directory name and may contain spaces.
type Story struct {
	ID    string
	Title string
	Pages []Page
}

// Cover returns the first page image URL, or "".
func (s *Story) Cover() string {
	for _, p := range s.Pages {
		if p.Image != "" {
			return p.Image
		}
	}
	return ""
}

// URL returns the path of the story's page with the id escaped.
func (s *Story) URL() string {
	return "/stories/" + url.PathEscape(s.ID)
}

// Library reads stories from a directory.
type Library struct {
	root string
}

// NewLibrary creates a library rooted at dir.
func NewLibrary(dir string) *Library {
	return &Library{root: dir}
}

// Root returns the library directory.
func (l *Library) Root() string { return l.root }

// List returns every story with at least one page, sorted by id. A missing
// root directory is an empty library.
func (l *Library) List() ([]*Story, error) {
	entries, err := os.ReadDir(l.root)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read stories directory: %w", err)
	}

	var out []*Story
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		s, err := l.load(e.Name())
		if err != nil {
			log.Printf("component=stories action=skip id=%q err=%v", e.Name(), err)
			continue
		}
		if len(s.Pages) == 0 {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Get returns the story with the given id. The id may be percent-encoded.
func (l *Library) Get(id string) (*Story, error) {
	id = DecodeID(id)
	if !validID(id) {
		return nil, ErrStoryNotFound
	}
	info, err := os.Stat(filepath.Join(l.root, id))
	if err != nil || !info.IsDir() {
		return nil, ErrStoryNotFound
	}
	s, err := l.load(id)
	if err != nil {
		return nil, err
	}
	if len(s.Pages) == 0 {
		return nil, ErrStoryNotFound
	}
	return s, nil
}

// DecodeID percent-decodes a story id taken from a URL. Ids that are not
// valid escapes are returned unchanged.
func DecodeID(id string) string {
	decoded, err := url.PathUnescape(id)
	if err != nil {
		return id
	}
	return decoded
}

func validID(id string) bool {
	if id == "" || id == "." || id == ".." {
		return false
	}
	return !strings.ContainsAny(id, `/\`) && !strings.ContainsRune(id, 0)
}

func (l *Library) load(id string) (*Story, error) {
	dir := filepath.Join(l.root, id)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read story %q: %w", id, err)
	}

	texts := map[int]string{}
	images := map[int]string{}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := pageFile.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		switch m[2] {
		case "txt":
			data, err := os.ReadFile(filepath.Join(dir, e.Name()))
			if err != nil {
				return nil, fmt.Errorf("read %s/%s: %w", id, e.Name(), err)
			}
			texts[n] = strings.TrimSpace(string(data))
		case "png":
			images[n] = AssetsRoute + "/" + url.PathEscape(id) + "/" + e.Name()
		}
	}

	s := &Story{ID: id, Title: id}
	for n, text := range texts {
		s.Pages = append(s.Pages, Page{Number: n, Text: text, Image: images[n]})
	}
	sort.Slice(s.Pages, func(i, j int) bool { return s.Pages[i].Number < s.Pages[j].Number })
	return s, nil
}
