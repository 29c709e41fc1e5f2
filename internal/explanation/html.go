package explanation

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const blockSelector = "p, div, br, li, h1, h2, h3, h4, h5, h6, tr, blockquote, pre"

// LooksLikeHTML is a cheap check used before parsing.
func LooksLikeHTML(s string) bool {
	return strings.Contains(s, "<") && strings.Contains(s, ">")
}

// StripHTML returns the visible text of an HTML fragment, with block
// elements on their own lines. Plain text passes through trimmed.
func StripHTML(s string) string {
	if !LooksLikeHTML(s) {
		return strings.TrimSpace(s)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return strings.TrimSpace(s)
	}
	doc.Find("script, style").Remove()
	doc.Find(blockSelector).Each(func(_ int, sel *goquery.Selection) {
		sel.BeforeHtml("\n")
		sel.AfterHtml("\n")
	})

	var lines []string
	for _, line := range strings.Split(doc.Text(), "\n") {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

// ImageURLs returns the src of every <img> in document order, deduplicated.
func ImageURLs(s string) []string {
	if !strings.Contains(s, "<img") {
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return nil
	}
	seen := make(map[string]bool)
	var urls []string
	doc.Find("img").Each(func(_ int, sel *goquery.Selection) {
		src, ok := sel.Attr("src")
		src = strings.TrimSpace(src)
		if !ok || src == "" || seen[src] {
			return
		}
		seen[src] = true
		urls = append(urls, src)
	})
	return urls
}
