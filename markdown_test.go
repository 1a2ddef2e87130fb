package segue

import (
	"strings"
	"testing"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

func TestHTMLToMarkdownHeadings(t *testing.T) {
	got := HTMLToMarkdown(`<h1>Title</h1><p>Intro.</p><h3 class="x">Sub</h3>`)
	if !strings.Contains(got, "# Title\n") {
		t.Errorf("missing h1: %q", got)
	}
	if !strings.Contains(got, "### Sub") {
		t.Errorf("missing h3: %q", got)
	}
	if !strings.Contains(got, "Intro.") {
		t.Errorf("missing paragraph: %q", got)
	}
}

func TestHTMLToMarkdownInline(t *testing.T) {
	got := HTMLToMarkdown(`<p>See <a href="https://example.com/doc">the doc</a> for <strong>bold</strong>, <em>italic</em> and <code>code</code>.</p>`)
	for _, want := range []string{
		"[the doc](https://example.com/doc)",
		"**bold**",
		"*italic*",
		"`code`",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("missing %q in %q", want, got)
		}
	}
}

func TestHTMLToMarkdownLists(t *testing.T) {
	got := HTMLToMarkdown(`<ul><li>one</li><li>two<ol><li>a</li><li>b</li></ol></li></ul>`)
	for _, want := range []string{"- one", "- two", "  1. a", "  2. b"} {
		if !strings.Contains(got, want) {
			t.Errorf("missing %q in %q", want, got)
		}
	}
}

func TestHTMLToMarkdownEntitiesAndTags(t *testing.T) {
	got := HTMLToMarkdown(`<p>a &lt; b &amp;&amp; c &gt; d</p><span data-x="1">kept text</span><!-- dropped -->`)
	if !strings.Contains(got, "a < b && c > d") {
		t.Errorf("entities: %q", got)
	}
	if !strings.Contains(got, "kept text") {
		t.Errorf("span text dropped: %q", got)
	}
	if strings.Contains(got, "dropped") || strings.Contains(got, "<span") {
		t.Errorf("residue left: %q", got)
	}
}

func TestHTMLToMarkdownCollapsesBlankRuns(t *testing.T) {
	got := HTMLToMarkdown("<p>a</p><p></p><p></p><p>b</p>")
	if strings.Contains(got, "\n\n\n") {
		t.Errorf("blank run survived: %q", got)
	}
	if !strings.HasSuffix(got, "\n") {
		t.Errorf("missing trailing newline: %q", got)
	}
}

// Rendering markdown to HTML and converting back should preserve structure.
func TestHTMLToMarkdownRoundTrip(t *testing.T) {
	src := "# Notes\n\nSome **bold** text with a [link](https://example.com).\n\n- first\n- second\n"

	var buf strings.Builder
	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	if err := md.Convert([]byte(src), &buf); err != nil {
		t.Fatal(err)
	}

	got := HTMLToMarkdown(buf.String())
	for _, want := range []string{
		"# Notes",
		"**bold**",
		"[link](https://example.com)",
		"- first",
		"- second",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("round trip missing %q:\n%s", want, got)
		}
	}
}
