package source

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
)

func TestClean(t *testing.T) {
	tests := []struct {
		name, in, want string
	}{
		{"no-break spaces", "a\u00a0b", "a b"},
		{"whitespace runs", "  one \t two\n\n three  ", "one two three"},
		{"sentence breaks", "Hi. How are you? Fine! Well… ok", "Hi.\nHow are you?\nFine!\nWell…\nok"},
		{"no break without space", "3.14 is pi", "3.14 is pi"},
		{"composes to NFC", "Vie\u0323\u0302t", "Vi\u1ec7t"},
		{"empty", " \n\t ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Clean(tt.in); got != tt.want {
				t.Errorf("Clean(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestProse(t *testing.T) {
	md := "# Title\n\nSome *emphasis* and a [link](http://x.io).\nNext line\n\n" +
		"```go\nfmt.Println(\"skip\")\n```\n\n" +
		"- first\n- second!\n\n<div>raw</div>\n\nSee <https://example.com>"
	got := Clean(Prose([]byte(md)))
	want := "Title.\nSome emphasis and a link.\nNext line.\nfirst.\nsecond!\nSee https://example.com."
	if got != want {
		t.Errorf("Prose:\n got %q\nwant %q", got, want)
	}
}

func write(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	md := write(t, dir, "notes.md", "## Hello\n\nworld  again")
	txt := write(t, dir, "plain.txt", "# not a heading. really")
	empty := write(t, dir, "empty.md", "```\ncode only\n```\n")

	doc, err := Load(md, nil)
	if err != nil {
		t.Fatal(err)
	}
	if doc.Text != "Hello.\nworld again." || doc.Title != "notes.md" || doc.Path != md {
		t.Errorf("markdown doc = %+v", doc)
	}

	doc, err = Load(txt, nil)
	if err != nil || doc.Text != "# not a heading.\nreally" {
		t.Errorf("plain doc = %+v, err = %v", doc, err)
	}

	if _, err := Load(empty, nil); !errors.Is(err, ErrEmpty) {
		t.Errorf("empty: err = %v", err)
	}
	if _, err := Load(filepath.Join(dir, "missing.md"), nil); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing: err = %v", err)
	}

	doc, err = Load(Stdin, strings.NewReader("piped *text*"))
	if err != nil || doc.Text != "piped text." || doc.Path != "" {
		t.Errorf("stdin doc = %+v, err = %v", doc, err)
	}
}

func TestStepNumber(t *testing.T) {
	tests := []struct {
		path string
		step int
		want string
		ok   bool
	}{
		{"/b/chuong-009.md", 1, "/b/chuong-010.md", true},
		{"/b/chuong-010.md", -1, "/b/chuong-009.md", true},
		{"/b/part2-ch99.txt", 1, "/b/part2-ch100.txt", true},
		{"/b/ch1.md", -1, "/b/ch1.md", false},
		{"/b/v2/readme.md", 1, "", false},
	}
	for _, tt := range tests {
		got, ok := StepNumber(tt.path, tt.step)
		if got != tt.want || ok != tt.ok {
			t.Errorf("StepNumber(%q, %d) = %q, %v; want %q, %v", tt.path, tt.step, got, ok, tt.want, tt.ok)
		}
	}
}

func TestSiblings(t *testing.T) {
	dir := t.TempDir()
	for _, n := range []string{"intro.md", "10.md", "2.md", "other.txt"} {
		write(t, dir, n, "x")
	}
	sub := filepath.Join(dir, "nested")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	write(t, sub, "1.md", "x")

	got, err := Siblings(filepath.Join(dir, "2.md"))
	if err != nil {
		t.Fatal(err)
	}
	want := []string{filepath.Join(dir, "2.md"), filepath.Join(dir, "10.md"), filepath.Join(dir, "intro.md")}
	if !slices.Equal(got, want) {
		t.Errorf("Siblings = %v, want %v", got, want)
	}
}

func TestSibling(t *testing.T) {
	dir := t.TempDir()
	ch1 := write(t, dir, "chapter-01.md", "x")
	ch2 := write(t, dir, "chapter-02.md", "x")
	notes := write(t, dir, "notes.md", "x")

	tests := []struct {
		name string
		path string
		step int
		want string
		err  error
	}{
		{"numbered next", ch1, 1, ch2, nil},
		{"numbered prev", ch2, -1, ch1, nil},
		{"missing number falls back to order", ch2, 1, notes, nil},
		{"unnumbered prev", notes, -1, ch2, nil},
		{"past the end", notes, 1, "", ErrNoSibling},
		{"before the start", ch1, -1, "", ErrNoSibling},
		{"stdin", "", 1, "", ErrNoSibling},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Sibling(tt.path, tt.step)
			if got != tt.want || !errors.Is(err, tt.err) {
				t.Errorf("Sibling = %q, %v; want %q, %v", got, err, tt.want, tt.err)
			}
		})
	}
}

func TestNaturalCompare(t *testing.T) {
	names := []string{"b10", "a", "b2", "b02x", "b1"}
	slices.SortFunc(names, naturalCompare)
	want := []string{"a", "b1", "b2", "b02x", "b10"}
	if !slices.Equal(names, want) {
		t.Errorf("sorted = %v, want %v", names, want)
	}
}

func TestWatch(t *testing.T) {
	dir := t.TempDir()
	p := write(t, dir, "doc.md", "v1")
	w, err := Watch(p, log.New(io.Discard))
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Wait(ctx) }()

	write(t, dir, "unrelated.md", "x")
	time.Sleep(50 * time.Millisecond)
	write(t, dir, "doc.md", "v2")
	if err := <-done; err != nil {
		t.Fatalf("Wait = %v", err)
	}
}

func TestWatchIdle(t *testing.T) {
	p := write(t, t.TempDir(), "doc.md", "v1")
	w, err := Watch(p, log.New(io.Discard))
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := w.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("idle Wait = %v", err)
	}
}
