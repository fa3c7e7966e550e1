// Package source turns files and stdin into narration text and finds the
// documents before and after the current one.
package source

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/mitchellh/go-homedir"
	"golang.org/x/text/unicode/norm"
)

// Stdin is the path naming standard input.
const Stdin = "-"

// ErrEmpty is returned when a document has no narratable text.
var ErrEmpty = errors.New("document has no text")

var markdownExtensions = []string{".md", ".mdown", ".mkdn", ".mkd", ".markdown"}

// Document is a loaded narration text.
type Document struct {
	Path  string
	Title string
	Text  string
}

// Load reads path, or r when path is Stdin. Markdown is reduced to its prose
// and the result is cleaned. A document without text yields ErrEmpty along
// with the (empty) Document.
func Load(path string, r io.Reader) (Document, error) {
	var (
		raw []byte
		err error
		doc Document
	)
	if path == Stdin {
		doc.Title = "stdin"
		raw, err = io.ReadAll(r)
	} else {
		path, err = homedir.Expand(path)
		if err != nil {
			return doc, err
		}
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
		doc.Path = path
		doc.Title = filepath.Base(path)
		raw, err = os.ReadFile(path)
	}
	if err != nil {
		return doc, fmt.Errorf("reading %s: %w", doc.Title, err)
	}

	text := string(raw)
	if path == Stdin || IsMarkdown(path) {
		text = Prose(raw)
	}
	doc.Text = Clean(text)
	if doc.Text == "" {
		return doc, ErrEmpty
	}
	return doc, nil
}

// IsMarkdown reports whether path has a markdown extension.
func IsMarkdown(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range markdownExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

var (
	spaces        = regexp.MustCompile(`\s+`)
	sentenceBreak = regexp.MustCompile(`([.!?…]) `)
)

// Clean normalises text for narration: NFC composition, no-break spaces
// become spaces, whitespace runs collapse to one space and every sentence
// ending followed by a space starts a new line.
func Clean(s string) string {
	s = norm.NFC.String(s)
	s = strings.ReplaceAll(s, "\u00a0", " ")
	s = spaces.ReplaceAllString(s, " ")
	s = sentenceBreak.ReplaceAllString(s, "$1\n")
	return strings.TrimSpace(s)
}
