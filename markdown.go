package segue

import (
	"fmt"
	"regexp"
	"strings"
)

// HTMLToMarkdown converts a subset of HTML (the shapes our page bodies use)
// to Markdown: headings, links, emphasis, ordered/unordered lists with
// nesting, paragraphs and line breaks. Residual tags are stripped and blank
// runs collapsed. Used when a tool schema's contentFormat accepts markdown.
func HTMLToMarkdown(html string) string {
	s := strings.ReplaceAll(html, "\r\n", "\n")
	s = htmlCommentRe.ReplaceAllString(s, "")

	for level := 1; level <= 6; level++ {
		re := headingRes[level-1]
		prefix := strings.Repeat("#", level)
		s = re.ReplaceAllString(s, "\n"+prefix+" $1\n")
	}

	s = anchorRe.ReplaceAllString(s, "[$2]($1)")
	s = boldRe.ReplaceAllString(s, "**$2**")
	s = italicRe.ReplaceAllString(s, "*$2*")
	s = codeRe.ReplaceAllString(s, "`$1`")

	s = convertLists(s)

	s = paragraphOpenRe.ReplaceAllString(s, "\n")
	s = paragraphCloseRe.ReplaceAllString(s, "\n")
	s = brRe.ReplaceAllString(s, "\n")

	s = residualTagRe.ReplaceAllString(s, "")
	s = unescapeEntities(s)
	s = blankRunRe.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s) + "\n"
}

var (
	htmlCommentRe    = regexp.MustCompile(`(?s)<!--.*?-->`)
	anchorRe         = regexp.MustCompile(`(?is)<a[^>]*href="([^"]*)"[^>]*>(.*?)</a>`)
	boldRe           = regexp.MustCompile(`(?is)<(strong|b)>(.*?)</(strong|b)>`)
	italicRe         = regexp.MustCompile(`(?is)<(em|i)>(.*?)</(em|i)>`)
	codeRe           = regexp.MustCompile(`(?is)<code>(.*?)</code>`)
	paragraphOpenRe  = regexp.MustCompile(`(?i)<p[^>]*>`)
	paragraphCloseRe = regexp.MustCompile(`(?i)</p>`)
	brRe             = regexp.MustCompile(`(?i)<br\s*/?>`)
	residualTagRe    = regexp.MustCompile(`(?s)<[^>]+>`)
	blankRunRe       = regexp.MustCompile(`\n{3,}`)
)

var headingRes = [6]*regexp.Regexp{
	regexp.MustCompile(`(?is)<h1[^>]*>(.*?)</h1>`),
	regexp.MustCompile(`(?is)<h2[^>]*>(.*?)</h2>`),
	regexp.MustCompile(`(?is)<h3[^>]*>(.*?)</h3>`),
	regexp.MustCompile(`(?is)<h4[^>]*>(.*?)</h4>`),
	regexp.MustCompile(`(?is)<h5[^>]*>(.*?)</h5>`),
	regexp.MustCompile(`(?is)<h6[^>]*>(.*?)</h6>`),
}

// listTokenRe splits list markup into tags and text runs.
var listTokenRe = regexp.MustCompile(`(?i)</?(ul|ol|li)[^>]*>`)

// convertLists rewrites <ul>/<ol>/<li> markup into indented Markdown list
// items, preserving nesting depth. Ordered lists number per level.
func convertLists(s string) string {
	if !strings.Contains(strings.ToLower(s), "<li") {
		return s
	}

	type frame struct {
		ordered bool
		counter int
	}
	var stack []frame
	var b strings.Builder
	last := 0

	flushText := func(text string) {
		b.WriteString(text)
	}

	for _, loc := range listTokenRe.FindAllStringIndex(s, -1) {
		flushText(s[last:loc[0]])
		last = loc[1]
		tag := strings.ToLower(s[loc[0]:loc[1]])
		switch {
		case strings.HasPrefix(tag, "<ul"):
			stack = append(stack, frame{ordered: false})
		case strings.HasPrefix(tag, "<ol"):
			stack = append(stack, frame{ordered: true})
		case tag == "</ul>" || tag == "</ol>":
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
			if len(stack) == 0 {
				b.WriteString("\n")
			}
		case strings.HasPrefix(tag, "<li"):
			depth := len(stack) - 1
			if depth < 0 {
				depth = 0
			}
			b.WriteString("\n")
			b.WriteString(strings.Repeat("  ", depth))
			if len(stack) > 0 && stack[len(stack)-1].ordered {
				stack[len(stack)-1].counter++
				fmt.Fprintf(&b, "%d. ", stack[len(stack)-1].counter)
			} else {
				b.WriteString("- ")
			}
		case tag == "</li>":
			// Item text already emitted; nothing to close.
		}
	}
	flushText(s[last:])
	return b.String()
}

// unescapeEntities reverses the handful of entities page bodies contain.
func unescapeEntities(s string) string {
	r := strings.NewReplacer(
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", `"`,
		"&#39;", "'",
		"&nbsp;", " ",
		"&amp;", "&", // last so double-escapes resolve once
	)
	return r.Replace(s)
}
